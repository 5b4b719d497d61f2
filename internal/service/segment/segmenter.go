package segment

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"emergency-dispatch-service/internal/observability/logging"
	"emergency-dispatch-service/internal/service/audio"
)

// Options configures a Segmenter.
type Options struct {
	// SpeechThreshold is the mean absolute amplitude, in raw sample units,
	// that a frame must exceed to count as speech.
	SpeechThreshold float64
	// SilenceDuration is the trailing silence that finalizes a segment.
	SilenceDuration time.Duration
	// MaxSegmentDuration finalizes a segment that keeps recording past this
	// length. Zero disables the guard.
	MaxSegmentDuration time.Duration
	// TrimTrailingSilence drops the closing silence frames from emitted
	// segments.
	TrimTrailingSilence bool
}

// DefaultOptions returns the defaults used by the dispatch service.
func DefaultOptions() Options {
	return Options{
		SpeechThreshold:    700,
		SilenceDuration:    1500 * time.Millisecond,
		MaxSegmentDuration: 60 * time.Second,
	}
}

// Segmenter is the speech/silence state machine.
//
// State transitions:
//
//	IDLE ──speech──→ RECORDING ──silence ≥ SilenceDuration──→ IDLE
//	  │                 │
//	  └── silence:      └── speech: append, reset silence
//	      discard           silence: append, accumulate
//
// Observe never blocks and performs no I/O. It is meant to be driven by a
// single goroutine; Close, State and Pending may be called from any
// goroutine.
type Segmenter struct {
	opts      Options
	sessionId string
	ids       *Generator
	log       zerolog.Logger

	mu      sync.Mutex
	state   State
	current *Segment
	silence time.Duration
	silent  int
	length  time.Duration
	closed  bool
}

// NewSegmenter creates a segmenter in the Idle state.
func NewSegmenter(sessionId string, ids *Generator, opts Options) *Segmenter {
	if ids == nil {
		ids = NewGenerator()
	}
	return &Segmenter{
		opts:      opts,
		sessionId: sessionId,
		ids:       ids,
		log:       logging.WithSession(sessionId).With().Str("component", "segmenter").Logger(),
		state:     StateIdle,
	}
}

// IsSpeech reports whether a frame counts as speech.
func (s *Segmenter) IsSpeech(f audio.Frame) bool {
	return f.MeanAbsAmplitude() > s.opts.SpeechThreshold
}

// Observe feeds one frame to the state machine. It returns the finalized
// segment when this frame closes one, and (nil, false) otherwise. Frames
// observed after Close are ignored.
func (s *Segmenter) Observe(f audio.Frame) (*Segment, bool) {
	speech := s.IsSpeech(f)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}

	switch s.state {
	case StateIdle:
		if !speech {
			return nil, false
		}
		s.current = &Segment{
			ID:         s.ids.Next(s.sessionId),
			SampleRate: f.SampleRate,
		}
		s.append(f)
		s.resetSilence()
		s.state = StateRecording
		s.log.Debug().Str("segmentId", s.current.ID).Msg("Speech started")
		return nil, false

	case StateRecording:
		s.append(f)
		if speech {
			s.resetSilence()
		} else {
			s.silence += f.Duration()
			s.silent++
			if s.silence >= s.opts.SilenceDuration {
				return s.finalize(false), true
			}
		}
		if s.opts.MaxSegmentDuration > 0 && s.length >= s.opts.MaxSegmentDuration {
			return s.finalize(true), true
		}
		return nil, false
	}

	return nil, false
}

func (s *Segmenter) append(f audio.Frame) {
	s.current.Frames = append(s.current.Frames, f)
	s.length += f.Duration()
}

func (s *Segmenter) resetSilence() {
	s.silence = 0
	s.silent = 0
}

// finalize hands off the current segment and returns to Idle.
// Caller must hold s.mu.
func (s *Segmenter) finalize(truncated bool) *Segment {
	seg := s.current
	seg.TrailingSilence = s.silence
	seg.Truncated = truncated

	if s.opts.TrimTrailingSilence && s.silent > 0 && s.silent < len(seg.Frames) {
		seg.Frames = seg.Frames[:len(seg.Frames)-s.silent]
		seg.TrailingSilence = 0
	}

	s.current = nil
	s.length = 0
	s.resetSilence()
	s.state = StateIdle

	s.log.Debug().
		Str("segmentId", seg.ID).
		Int("frames", len(seg.Frames)).
		Dur("duration", seg.Duration()).
		Bool("truncated", truncated).
		Msg("Segment finalized")
	return seg
}

// Flush finalizes the segment in progress when the input ends before its
// closing silence. It returns (nil, false) when Idle or closed.
func (s *Segmenter) Flush() (*Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.current == nil {
		return nil, false
	}
	s.log.Debug().Str("segmentId", s.current.ID).Msg("Flushing segment at end of input")
	return s.finalize(false), true
}

// Close stops the segmenter. Any partial segment is discarded and later
// frames are ignored. Idempotent.
func (s *Segmenter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.current != nil {
		s.log.Debug().Str("segmentId", s.current.ID).Int("frames", len(s.current.Frames)).Msg("Discarding partial segment on close")
	}
	s.current = nil
	s.length = 0
	s.resetSilence()
	s.state = StateIdle
}

// State returns the current state.
func (s *Segmenter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the number of frames buffered in the current segment.
func (s *Segmenter) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return len(s.current.Frames)
}

// IsClosed returns true once Close has been called.
func (s *Segmenter) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
