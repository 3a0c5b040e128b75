package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ContractSampleRate is the wire format every artifact is delivered in:
// 16 kHz, mono, 16-bit PCM.
const ContractSampleRate = 16000

const (
	pcmFormat       = 1
	bitsPerSample   = 16
	bytesPerSample  = 2
	riffHeaderBytes = 44
)

// Clip is decoded mono 16-bit PCM audio.
type Clip struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Empty reports whether the clip carries no samples.
func (c Clip) Empty() bool {
	return len(c.Samples) == 0
}

// WrapPCM wraps raw little-endian PCM16 bytes in a WAV container.
// Odd trailing bytes are dropped.
func WrapPCM(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}

	var buf bytes.Buffer
	buf.Grow(riffHeaderBytes + len(pcm))

	byteRate := sampleRate * channels * bytesPerSample
	blockAlign := channels * bytesPerSample

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(pcmFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// EncodeWAV writes a clip as a mono PCM16 WAV.
func EncodeWAV(clip Clip) ([]byte, error) {
	pcm := make([]byte, len(clip.Samples)*bytesPerSample)
	for i, sample := range clip.Samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}
	return WrapPCM(pcm, clip.SampleRate, 1)
}

// DecodeWAV parses a PCM16 WAV stream into a mono clip. Stereo input is
// downmixed by averaging the channels. Non-PCM or non-16-bit data is rejected.
func DecodeWAV(r io.Reader) (Clip, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Clip{}, fmt.Errorf("read wav: %w", err)
	}
	if len(data) < riffHeaderBytes || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("not a RIFF/WAVE stream")
	}

	var (
		sampleRate int
		channels   int
		haveFmt    bool
	)

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return Clip{}, fmt.Errorf("fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != pcmFormat {
				return Clip{}, fmt.Errorf("unsupported wav format %d (want PCM)", format)
			}
			if bits != bitsPerSample {
				return Clip{}, fmt.Errorf("unsupported sample width %d bits (want %d)", bits, bitsPerSample)
			}
			if channels != 1 && channels != 2 {
				return Clip{}, fmt.Errorf("unsupported channel count %d", channels)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Clip{}, fmt.Errorf("data chunk before fmt chunk")
			}
			return decodeData(data[body:body+chunkSize], sampleRate, channels), nil
		}

		// Chunks are word aligned.
		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}

	return Clip{}, fmt.Errorf("wav stream has no data chunk")
}

func decodeData(pcm []byte, sampleRate, channels int) Clip {
	frameBytes := channels * bytesPerSample
	frames := len(pcm) / frameBytes
	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		base := i * frameBytes
		if channels == 1 {
			samples[i] = int16(binary.LittleEndian.Uint16(pcm[base:]))
			continue
		}
		left := int32(int16(binary.LittleEndian.Uint16(pcm[base:])))
		right := int32(int16(binary.LittleEndian.Uint16(pcm[base+2:])))
		samples[i] = int16((left + right) / 2)
	}
	return Clip{Samples: samples, SampleRate: sampleRate}
}

// Concat joins clips recorded at the same sample rate into one waveform.
func Concat(clips ...Clip) (Clip, error) {
	var out Clip
	for _, clip := range clips {
		if clip.Empty() {
			continue
		}
		if out.SampleRate == 0 {
			out.SampleRate = clip.SampleRate
		}
		if clip.SampleRate != out.SampleRate {
			return Clip{}, fmt.Errorf("sample rate mismatch: %d vs %d", clip.SampleRate, out.SampleRate)
		}
		out.Samples = append(out.Samples, clip.Samples...)
	}
	return out, nil
}

// Resample converts a clip to the target rate by linear interpolation.
// Clips already at the target rate are returned unchanged.
func Resample(clip Clip, targetRate int) (Clip, error) {
	if targetRate <= 0 {
		return Clip{}, fmt.Errorf("invalid target rate %d", targetRate)
	}
	if clip.SampleRate == targetRate || clip.Empty() {
		return Clip{Samples: clip.Samples, SampleRate: targetRate}, nil
	}
	if clip.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("invalid source rate %d", clip.SampleRate)
	}

	ratio := float64(clip.SampleRate) / float64(targetRate)
	outLen := int(math.Round(float64(len(clip.Samples)) / ratio))
	if outLen < 1 {
		outLen = 1
	}

	out := make([]int16, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(clip.Samples)-1 {
			out[i] = clip.Samples[len(clip.Samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(clip.Samples[idx])
		b := float64(clip.Samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}

	return Clip{Samples: out, SampleRate: targetRate}, nil
}
