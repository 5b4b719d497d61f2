package segment

import (
	"fmt"
	"sync/atomic"
	"time"

	"emergency-dispatch-service/internal/service/audio"
)

// Generator hands out segment IDs of the form "<session>-seg-N".
// The counter is shared across sessions and never repeats.
type Generator struct {
	counter uint64
}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Next(sessionId string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-seg-%d", sessionId, n)
}

// Segment is one buffered utterance candidate: a run of speech frames plus
// the trailing silence that closed it. A finalized segment is never empty
// and is not mutated after it leaves the segmenter.
type Segment struct {
	ID         string
	Frames     []audio.Frame
	SampleRate int

	// TrailingSilence is the accumulated silence at the end of Frames.
	TrailingSilence time.Duration
	// Truncated is set when the segment hit the maximum duration guard
	// instead of closing on silence.
	Truncated bool
}

// SampleCount returns the number of samples across all frames.
func (s *Segment) SampleCount() int {
	n := 0
	for _, f := range s.Frames {
		n += len(f.Samples)
	}
	return n
}

// Duration returns the audio duration of the segment.
func (s *Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.SampleCount()) * time.Second / time.Duration(s.SampleRate)
}

// Samples returns the concatenated samples as a new slice.
func (s *Segment) Samples() []int16 {
	out := make([]int16, 0, s.SampleCount())
	for _, f := range s.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Format returns the PCM format of the segment's samples.
func (s *Segment) Format() audio.Format {
	return audio.Format{SampleRate: s.SampleRate, Channels: 1, BitDepth: 16}
}
