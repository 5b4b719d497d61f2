// Package audio provides the audio primitives of the dispatch pipeline:
// fixed-size PCM frames, frame sources (microphone or WAV replay),
// WAV encoding and speech-output playback.
package audio

import (
	"fmt"
	"time"
)

// Format describes raw PCM audio.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat is 16kHz 16-bit mono, the format expected by the
// transcription providers.
var DefaultFormat = Format{
	SampleRate: 16000,
	Channels:   1,
	BitDepth:   16,
}

// SamplesPerFrame returns the number of samples per channel in a frame of
// duration d.
func (f Format) SamplesPerFrame(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}

// Validate reports whether the format can be captured and encoded.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", f.SampleRate)
	}
	if f.Channels != 1 {
		return fmt.Errorf("audio: only mono is supported, got %d channels", f.Channels)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("audio: only 16-bit samples are supported, got %d", f.BitDepth)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

// Frame is one fixed-size block of signed 16-bit mono samples.
// Frames carry no identity beyond their arrival order (Seq).
type Frame struct {
	Seq        uint64
	Samples    []int16
	SampleRate int
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// MeanAbsAmplitude returns the mean absolute sample value, in raw sample units.
func (f Frame) MeanAbsAmplitude() float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range f.Samples {
		v := int64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return float64(sum) / float64(len(f.Samples))
}
