package tts

import "context"

// Synthesizer produces speech audio for text using an external text-to-speech
// service. The voice key selects the service-side voice profile.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (Speech, error)
	Ping(ctx context.Context) error
}

// Speech is one synthesis outcome: every sub-segment the service yielded,
// already concatenated into a single contiguous waveform at the service's
// native sample rate.
type Speech struct {
	Samples    []int16
	SampleRate int
}

// Empty reports whether the service produced no audio.
func (s Speech) Empty() bool {
	return len(s.Samples) == 0
}
