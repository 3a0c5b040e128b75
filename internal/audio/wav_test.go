package audio

import (
	"bytes"
	"math"
	"testing"
)

func sine(rate int, seconds float64, freq float64) Clip {
	n := int(float64(rate) * seconds)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(10000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return Clip{Samples: samples, SampleRate: rate}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	clip := sine(ContractSampleRate, 0.25, 440)
	wav, err := EncodeWAV(clip)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeWAV(bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.SampleRate != ContractSampleRate {
		t.Fatalf("unexpected rate %d", decoded.SampleRate)
	}
	if len(decoded.Samples) != len(clip.Samples) {
		t.Fatalf("sample count %d, want %d", len(decoded.Samples), len(clip.Samples))
	}
	for i := range clip.Samples {
		if decoded.Samples[i] != clip.Samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, decoded.Samples[i], clip.Samples[i])
		}
	}
}

func TestWrapPCMDropsOddTrailingByte(t *testing.T) {
	t.Parallel()

	wav, err := WrapPCM([]byte{1, 0, 2, 0, 3}, ContractSampleRate, 1)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	clip, err := DecodeWAV(bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(clip.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(clip.Samples))
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := DecodeWAV(bytes.NewReader([]byte("definitely not audio data at all........"))); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := DecodeWAV(bytes.NewReader(nil)); err == nil {
		t.Fatal("expected decode error for empty stream")
	}
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	t.Parallel()

	// Two frames of stereo: (100, 300) and (-200, -400).
	pcm := []byte{100, 0, 44, 1, 56, 255, 112, 254}
	wav, err := WrapPCM(pcm, 8000, 2)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	clip, err := DecodeWAV(bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(clip.Samples) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(clip.Samples))
	}
	if clip.Samples[0] != 200 || clip.Samples[1] != -300 {
		t.Fatalf("unexpected downmix: %v", clip.Samples)
	}
}

func TestConcat(t *testing.T) {
	t.Parallel()

	a := Clip{Samples: []int16{1, 2}, SampleRate: 24000}
	b := Clip{Samples: []int16{3}, SampleRate: 24000}
	joined, err := Concat(a, b)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	if len(joined.Samples) != 3 || joined.SampleRate != 24000 {
		t.Fatalf("unexpected concat result: %+v", joined)
	}

	if _, err := Concat(a, Clip{Samples: []int16{9}, SampleRate: 16000}); err == nil {
		t.Fatal("expected rate mismatch error")
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	clip := sine(24000, 0.5, 440)
	out, err := Resample(clip, ContractSampleRate)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if out.SampleRate != ContractSampleRate {
		t.Fatalf("unexpected rate %d", out.SampleRate)
	}
	wantLen := int(0.5 * ContractSampleRate)
	if diff := len(out.Samples) - wantLen; diff < -1 || diff > 1 {
		t.Fatalf("resampled length %d, want about %d", len(out.Samples), wantLen)
	}

	same, err := Resample(out, ContractSampleRate)
	if err != nil {
		t.Fatalf("resample no-op: %v", err)
	}
	if len(same.Samples) != len(out.Samples) {
		t.Fatal("no-op resample changed length")
	}
}

func TestArtifactLifecycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, err := NewArtifact(dir, "out")
	if err != nil {
		t.Fatalf("new artifact: %v", err)
	}
	second, err := NewArtifact(dir, "out")
	if err != nil {
		t.Fatalf("new artifact: %v", err)
	}
	if first.Path == second.Path {
		t.Fatalf("artifact paths collide: %s", first.Path)
	}

	if err := first.WriteClip(sine(ContractSampleRate, 0.1, 220)); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	if !first.Exists() {
		t.Fatal("artifact missing after write")
	}
	if err := first.Remove(); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if first.Exists() {
		t.Fatal("artifact still present after remove")
	}
	if err := first.Remove(); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
}
