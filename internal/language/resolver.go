package language

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ErrNotFound marks a language name absent from every configured table.
// Callers must treat it as an input validation failure, not a fault.
var ErrNotFound = errors.New("language not found")

// Token carries the per-service codes for one logical language.
// Fields are empty when the backing table has no row for the name;
// a stage that needs an empty field reports the language as unsupported.
type Token struct {
	Name           string
	STTLocale      string
	TranslationTag string
	TTSVoice       string
}

// TablePaths names the three flat Language,Code tables, one per stage.
type TablePaths struct {
	STT         string
	Translation string
	TTS         string
}

// Resolver maps case-folded language names to Tokens. The backing tables are
// read once at construction; the resolver is immutable and safe for
// concurrent readers afterwards.
type Resolver struct {
	tokens map[string]Token
}

func NewResolver(paths TablePaths) (*Resolver, error) {
	tokens := make(map[string]Token)

	stt, err := loadTable(paths.STT)
	if err != nil {
		return nil, fmt.Errorf("load STT table: %w", err)
	}
	translation, err := loadTable(paths.Translation)
	if err != nil {
		return nil, fmt.Errorf("load translation table: %w", err)
	}
	tts, err := loadTable(paths.TTS)
	if err != nil {
		return nil, fmt.Errorf("load TTS table: %w", err)
	}

	for name, code := range stt {
		tok := tokens[name]
		tok.Name = name
		tok.STTLocale = code
		tokens[name] = tok
	}
	for name, code := range translation {
		tok := tokens[name]
		tok.Name = name
		tok.TranslationTag = code
		tokens[name] = tok
	}
	for name, code := range tts {
		tok := tokens[name]
		tok.Name = name
		tok.TTSVoice = code
		tokens[name] = tok
	}

	return &Resolver{tokens: tokens}, nil
}

// Resolve looks up a language by its human-readable name. The lookup is
// case-insensitive and exact; misses return ErrNotFound.
func (r *Resolver) Resolve(name string) (Token, error) {
	if r == nil {
		return Token{}, fmt.Errorf("resolver is nil")
	}
	key := foldName(name)
	if key == "" {
		return Token{}, ErrNotFound
	}
	token, ok := r.tokens[key]
	if !ok {
		return Token{}, ErrNotFound
	}
	return token, nil
}

// NameForSTTLocale reverse-maps a detected STT locale code (for example "en")
// back to the logical language name. Returns ErrNotFound when no table row
// carries the code.
func (r *Resolver) NameForSTTLocale(code string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("resolver is nil")
	}
	normalized := LanguageCode(code)
	if normalized == "" {
		return "", ErrNotFound
	}
	for name, token := range r.tokens {
		if LanguageCode(token.STTLocale) == normalized {
			return name, nil
		}
	}
	return "", ErrNotFound
}

// Names returns the sorted union of language names across all three tables.
func (r *Resolver) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.tokens))
	for name := range r.tokens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tokens returns every token, sorted by name.
func (r *Resolver) Tokens() []Token {
	if r == nil {
		return nil
	}
	tokens := make([]Token, 0, len(r.tokens))
	for _, name := range r.Names() {
		tokens = append(tokens, r.tokens[name])
	}
	return tokens
}

func foldName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// loadTable reads one Language,Code CSV table into a name-keyed map.
// A header row is required; blank lines are skipped.
func loadTable(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "Language") || !strings.EqualFold(strings.TrimSpace(header[1]), "Code") {
		return nil, fmt.Errorf("%s: expected Language,Code header, got %q", path, strings.Join(header, ","))
	}

	rows := make(map[string]string)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(record) < 2 {
			continue
		}
		name := foldName(record[0])
		code := strings.TrimSpace(record[1])
		if name == "" || code == "" {
			continue
		}
		rows[name] = code
	}
	return rows, nil
}
