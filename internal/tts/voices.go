package tts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed voices.schema.json
var voicesSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// VoiceProfile describes one voice the synthesis service can speak with.
type VoiceProfile struct {
	Voice       string `json:"voice"`
	Sample      string `json:"sample,omitempty"`
	Description string `json:"description,omitempty"`
}

// Voices is the validated manifest of available voice profiles, loaded once
// at startup and immutable afterwards.
type Voices struct {
	profiles map[string]VoiceProfile
	baseDir  string
}

// LoadVoices reads and schema-validates a voices.json manifest.
func LoadVoices(path string) (*Voices, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voices manifest: %w", err)
	}

	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode voices manifest: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load voices schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("voices manifest validation failed: %w", err)
	}

	var manifest struct {
		Voices []VoiceProfile `json:"voices"`
	}
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return nil, fmt.Errorf("unmarshal voices manifest: %w", err)
	}

	profiles := make(map[string]VoiceProfile, len(manifest.Voices))
	for _, profile := range manifest.Voices {
		key := strings.TrimSpace(profile.Voice)
		if key == "" {
			continue
		}
		profiles[key] = profile
	}

	return &Voices{
		profiles: profiles,
		baseDir:  filepath.Dir(path),
	}, nil
}

// Check verifies that a voice key exists in the manifest and that its
// reference sample, when declared, is present on disk.
func (v *Voices) Check(voice string) error {
	if v == nil {
		return nil
	}
	profile, ok := v.profiles[strings.TrimSpace(voice)]
	if !ok {
		return fmt.Errorf("voice %q is not in the manifest", voice)
	}
	if profile.Sample == "" {
		return nil
	}
	sample := profile.Sample
	if !filepath.IsAbs(sample) {
		sample = filepath.Join(v.baseDir, sample)
	}
	if _, err := os.Stat(sample); err != nil {
		return fmt.Errorf("voice %q sample missing: %w", voice, err)
	}
	return nil
}

// Keys returns every manifest voice key.
func (v *Voices) Keys() []string {
	if v == nil {
		return nil
	}
	keys := make([]string, 0, len(v.profiles))
	for key := range v.profiles {
		keys = append(keys, key)
	}
	return keys
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("voices.schema.json", strings.NewReader(voicesSchemaJSON)); err != nil {
			compiledSchemaErr = err
			return
		}
		compiledSchema, compiledSchemaErr = compiler.Compile("voices.schema.json")
	})
	return compiledSchema, compiledSchemaErr
}

func decodeStrictJSON(payload []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := ensureEOF(decoder); err != nil {
		return nil, err
	}
	return value, nil
}

func ensureEOF(decoder *json.Decoder) error {
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("unexpected trailing JSON content")
	}
	return nil
}
