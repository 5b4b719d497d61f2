package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"emergency-dispatch-service/internal/events"
	"emergency-dispatch-service/internal/models"
	"emergency-dispatch-service/internal/observability/logging"
	"emergency-dispatch-service/internal/observability/metrics"
	"emergency-dispatch-service/internal/service/audio"
	"emergency-dispatch-service/internal/service/dialogue"
	"emergency-dispatch-service/internal/service/segment"
	"emergency-dispatch-service/internal/service/stt"
	"emergency-dispatch-service/internal/service/tts"
	"emergency-dispatch-service/internal/service/utterance"
)

// Config holds the per-session settings.
type Config struct {
	ID string
	// TempRoot is the parent of the session directory; os.TempDir when empty.
	TempRoot     string
	Segmenter    segment.Options
	MinUtterance time.Duration
	Dialogue     dialogue.Options
	// Greeting is spoken and published before listening starts. Empty
	// disables it.
	Greeting string
	// SegmentQueue bounds finalized segments waiting for the turn worker.
	SegmentQueue int
}

// Deps are the collaborators a session drives.
type Deps struct {
	Source      audio.FrameSource
	Transcriber stt.Transcriber
	Assistant   dialogue.Assistant
	// NewSpeaker builds the speech output once the session directory exists.
	// Nil logs replies without speaking them.
	NewSpeaker func(sessionId string, ws tts.Workspace) tts.Speaker
	Notifier   events.Notifier
	IDs        *segment.Generator
}

// Session is one call. Frames flow from the source through the segmenter
// goroutine into a bounded segment queue drained by a single turn worker,
// so dialogue turns never overlap and run in the order segments closed.
type Session struct {
	cfg     Config
	deps    Deps
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	resources  *Resources
	segmenter  *segment.Segmenter
	processor  *utterance.Processor
	controller *dialogue.Controller
	speaker    tts.Speaker
	segments   chan *segment.Segment

	cancel   context.CancelFunc
	finished chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	// startMu is held for the whole of Start so Stop waits for it.
	startMu sync.Mutex

	mu        sync.RWMutex
	state     State
	err       error
	startedAt time.Time
	started   bool
	running   bool
}

// New creates a session in the Starting state.
func New(cfg Config, deps Deps) *Session {
	if cfg.SegmentQueue <= 0 {
		cfg.SegmentQueue = 8
	}
	if deps.IDs == nil {
		deps.IDs = segment.NewGenerator()
	}
	if deps.Notifier == nil {
		deps.Notifier = events.NotifierFunc(func(context.Context, models.TranscriptUpdate) error { return nil })
	}
	return &Session{
		cfg:      cfg,
		deps:     deps,
		log:      logging.WithSession(cfg.ID),
		metrics:  metrics.DefaultMetrics,
		now:      time.Now,
		finished: make(chan struct{}),
		done:     make(chan struct{}),
		state:    StateStarting,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.cfg.ID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// StartedAt returns when the session began listening.
func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// Err returns the error that ended the session, if any. Only a capture
// failure ends a session on its own.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Done is closed once the session has stopped and its storage is removed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start allocates storage, opens the conversation thread, optionally greets
// the caller and starts capturing. ctx bounds startup only; the session
// runs until Stop or a capture failure.
func (s *Session) Start(ctx context.Context) error {
	if s.deps.Source == nil || s.deps.Transcriber == nil || s.deps.Assistant == nil {
		return errors.New("session: source, transcriber and assistant are required")
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.started || s.state != StateStarting {
		s.mu.Unlock()
		return errors.New("session: already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.start(ctx); err != nil {
		s.log.Error().Err(err).Msg("Session failed to start")
		s.abort()
		return err
	}
	return nil
}

func (s *Session) start(ctx context.Context) error {
	res, err := NewResources(s.cfg.TempRoot, s.cfg.ID)
	if err != nil {
		return err
	}
	s.resources = res

	controller, err := dialogue.NewController(ctx, s.cfg.ID, s.deps.Assistant, s.cfg.Dialogue)
	if err != nil {
		return err
	}
	s.controller = controller

	s.processor = utterance.NewProcessor(s.cfg.ID, s.deps.Transcriber, res, s.cfg.MinUtterance)
	s.segmenter = segment.NewSegmenter(s.cfg.ID, s.deps.IDs, s.cfg.Segmenter)
	s.segments = make(chan *segment.Segment, s.cfg.SegmentQueue)
	if s.deps.NewSpeaker != nil {
		s.speaker = s.deps.NewSpeaker(s.cfg.ID, res)
	} else {
		s.speaker = tts.NopSpeaker{Log: s.log}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if s.cfg.Greeting != "" {
		s.reply(runCtx, s.cfg.Greeting)
	}

	if err := s.deps.Source.Start(runCtx); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = StateListening
	s.startedAt = s.now()
	s.running = true
	s.mu.Unlock()
	s.metrics.RecordSessionStart()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.segmentLoop(runCtx)
	}()
	go func() {
		defer wg.Done()
		s.turnWorker(runCtx)
	}()
	go func() {
		wg.Wait()
		close(s.finished)
		// A source that ended on its own (failure or end of file) stops
		// the session.
		s.Stop()
	}()

	s.log.Info().
		Str("dir", res.Dir()).
		Str("threadId", controller.ThreadID()).
		Str("format", s.deps.Source.Format().String()).
		Msg("Session listening")
	return nil
}

// abort releases whatever start acquired.
func (s *Session) abort() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.deps.Source != nil {
			s.deps.Source.Close()
		}
		if s.resources != nil {
			s.resources.Cleanup()
		}
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		close(s.done)
	})
}

// segmentLoop feeds frames to the segmenter and queues finalized segments.
// When the source runs dry, speech still in progress is queued as a last
// segment; after Stop the segmenter is closed and nothing is flushed.
func (s *Session) segmentLoop(ctx context.Context) {
	defer close(s.segments)

	frames := s.deps.Source.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				if err := s.deps.Source.Err(); err != nil {
					s.fail(err)
					return
				}
				if seg, flushed := s.segmenter.Flush(); flushed {
					s.queueSegment(ctx, seg)
				}
				return
			}
			seg, emitted := s.segmenter.Observe(f)
			if !emitted {
				continue
			}
			if !s.queueSegment(ctx, seg) {
				return
			}
		}
	}
}

func (s *Session) queueSegment(ctx context.Context, seg *segment.Segment) bool {
	s.metrics.RecordSegmentEmitted(seg.Duration().Seconds())
	select {
	case s.segments <- seg:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()

	var ce *audio.CaptureError
	if errors.As(err, &ce) {
		s.log.Error().Err(err).Msg("Audio capture failed, ending session")
	} else {
		s.log.Error().Err(err).Msg("Session failed")
	}
}

// turnWorker is the only consumer of the segment queue.
func (s *Session) turnWorker(ctx context.Context) {
	for seg := range s.segments {
		if ctx.Err() != nil {
			return
		}
		s.handleSegment(ctx, seg)
	}
}

func (s *Session) handleSegment(ctx context.Context, seg *segment.Segment) {
	u, ok, err := s.processor.Process(ctx, seg)
	if err != nil {
		var te *stt.TranscriptionError
		if errors.As(err, &te) {
			s.log.Warn().Err(err).Str("segmentId", seg.ID).Msg("Transcription failed, segment dropped")
		} else {
			s.log.Error().Err(err).Str("segmentId", seg.ID).Msg("Segment processing failed")
		}
		return
	}
	if !ok {
		return
	}

	s.notify(ctx, models.RoleCaller, u.Text)

	r := s.controller.TakeTurn(ctx, u.Text)
	if ctx.Err() != nil {
		// Stopped mid-turn; the reply is abandoned.
		return
	}
	s.reply(ctx, r.Text)
}

// reply publishes and speaks one dispatcher line.
func (s *Session) reply(ctx context.Context, text string) {
	s.notify(ctx, models.RoleDispatcher, text)
	if err := s.speaker.Speak(ctx, text); err != nil {
		s.log.Warn().Err(err).Msg("Speech output failed")
	}
}

func (s *Session) notify(ctx context.Context, role, text string) {
	u := models.NewTranscriptUpdate(s.cfg.ID, role, text, s.now())
	if err := s.deps.Notifier.Notify(ctx, u); err != nil {
		s.log.Warn().Err(err).Str("role", role).Msg("Failed to publish transcript update")
	}
}

// Stop halts capture, waits for the pipeline, and removes the session
// directory. It is idempotent and returns after cleanup; concurrent callers
// all wait for the first to finish. An in-flight turn is abandoned.
func (s *Session) Stop() {
	s.startMu.Lock()
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	s.startMu.Unlock()

	if !running {
		s.abort()
		<-s.done
		return
	}

	s.stopOnce.Do(func() {
		s.segmenter.Close()
		if err := s.deps.Source.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Error closing audio source")
		}
		s.cancel()
		<-s.finished

		s.resources.Cleanup()

		s.mu.Lock()
		s.state = StateStopped
		startedAt := s.startedAt
		failed := s.err != nil
		s.mu.Unlock()

		s.metrics.RecordSessionEnd(failed, s.now().Sub(startedAt).Seconds())
		s.log.Info().Bool("failed", failed).Dur("duration", s.now().Sub(startedAt)).Msg("Session stopped")
		close(s.done)
	})
	<-s.done
}

// String implements fmt.Stringer for logs.
func (s *Session) String() string {
	return fmt.Sprintf("session(%s, %s)", s.cfg.ID, s.State())
}
