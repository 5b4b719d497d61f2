package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"emergency-dispatch-service/internal/observability/metrics"
)

// FrameSource delivers audio frames at a fixed cadence.
//
// Frames are delivered on a bounded channel that is closed when the source
// stops. If the source stopped because the device failed, Err returns a
// *CaptureError.
type FrameSource interface {
	// Start opens the device and begins delivering frames.
	Start(ctx context.Context) error

	// Frames returns the delivery channel.
	Frames() <-chan Frame

	// Err returns the error that ended capture, if any.
	Err() error

	// Close stops delivery and releases the device. Idempotent.
	Close() error

	// Format returns the captured PCM format.
	Format() Format
}

// CaptureError reports an audio device failure. It is fatal to a session.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("audio capture %s failed: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// pump is the delivery half shared by the frame sources. Deliveries never
// block: when the consumer falls behind, the frame is dropped and counted.
type pump struct {
	frames  chan Frame
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	seq     uint64
	err     error
	dropped uint64
	closed  bool
}

func newPump(queueSize int, logger zerolog.Logger) *pump {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &pump{
		frames:  make(chan Frame, queueSize),
		log:     logger,
		metrics: metrics.DefaultMetrics,
	}
}

func (p *pump) deliver(samples []int16, sampleRate int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.seq++
	f := Frame{Seq: p.seq, Samples: samples, SampleRate: sampleRate}
	select {
	case p.frames <- f:
		p.metrics.RecordFrameCaptured(len(samples))
	default:
		p.dropped++
		p.metrics.RecordFrameDropped()
		if p.dropped == 1 || p.dropped%100 == 0 {
			p.log.Warn().Uint64("dropped", p.dropped).Msg("Frame queue full, dropping audio frames")
		}
	}
}

// finish closes the delivery channel once, recording err as the cause.
func (p *pump) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.err = err
	close(p.frames)
}

func (p *pump) error() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
