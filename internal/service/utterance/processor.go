// Package utterance turns finalized speech segments into caller text.
package utterance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"emergency-dispatch-service/internal/observability/logging"
	"emergency-dispatch-service/internal/observability/metrics"
	"emergency-dispatch-service/internal/service/audio"
	"emergency-dispatch-service/internal/service/segment"
	"emergency-dispatch-service/internal/service/stt"
)

// DefaultMinDuration rejects spurious single-frame triggers.
const DefaultMinDuration = 50 * time.Millisecond

// Reasons a segment produces no utterance.
const (
	RejectTooShort      = "too_short"
	RejectEmptyText     = "empty_transcript"
	RejectTranscription = "transcription_error"
)

// Workspace is the ephemeral storage an utterance is encoded into.
type Workspace interface {
	Path(name string) string
}

// Utterance is the text a caller spoke in one segment.
type Utterance struct {
	SegmentID string
	Text      string
	Duration  time.Duration
	At        time.Time
}

// Processor validates, encodes and transcribes segments.
type Processor struct {
	sessionId   string
	transcriber stt.Transcriber
	workspace   Workspace
	minDuration time.Duration
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewProcessor creates a processor for one session.
func NewProcessor(sessionId string, t stt.Transcriber, ws Workspace, minDuration time.Duration) *Processor {
	return &Processor{
		sessionId:   sessionId,
		transcriber: t,
		workspace:   ws,
		minDuration: minDuration,
		metrics:     metrics.DefaultMetrics,
		now:         time.Now,
	}
}

// Process transcribes one segment. The bool result is false when the
// segment yields no utterance: too short, empty transcript, or a
// transcription failure. A failure also returns a *stt.TranscriptionError
// for the caller to log; it never ends the session.
func (p *Processor) Process(ctx context.Context, seg *segment.Segment) (Utterance, bool, error) {
	log := logging.WithSegment(p.sessionId, seg.ID)
	duration := seg.Duration()

	if duration < p.minDuration {
		p.metrics.RecordSegmentRejected(RejectTooShort)
		log.Debug().Dur("duration", duration).Dur("min", p.minDuration).Msg("Segment below minimum duration, skipping")
		return Utterance{}, false, nil
	}

	path := p.workspace.Path(fmt.Sprintf("speech_%s.wav", seg.ID))
	if err := audio.WriteWAVFile(path, seg.Samples(), seg.Format()); err != nil {
		p.metrics.RecordSegmentRejected(RejectTranscription)
		return Utterance{}, false, &stt.TranscriptionError{Provider: p.transcriber.Name(), Err: fmt.Errorf("encode segment: %w", err)}
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.metrics.RecordCleanupError()
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove segment audio")
		}
	}()

	start := time.Now()
	text, err := p.transcriber.Transcribe(ctx, stt.Audio{Path: path, Format: seg.Format()})
	p.metrics.RecordTranscription(p.transcriber.Name(), err, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordSegmentRejected(RejectTranscription)
		var te *stt.TranscriptionError
		if !errors.As(err, &te) {
			err = &stt.TranscriptionError{Provider: p.transcriber.Name(), Err: err}
		}
		return Utterance{}, false, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		p.metrics.RecordSegmentRejected(RejectEmptyText)
		log.Debug().Msg("Empty transcript, skipping")
		return Utterance{}, false, nil
	}

	p.metrics.RecordUtterance()
	log.Info().Str("text", text).Dur("duration", duration).Msg("Caller utterance")

	return Utterance{
		SegmentID: seg.ID,
		Text:      text,
		Duration:  duration,
		At:        p.now(),
	}, true, nil
}
