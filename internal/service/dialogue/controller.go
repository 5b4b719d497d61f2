package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"emergency-dispatch-service/internal/observability/logging"
	"emergency-dispatch-service/internal/observability/metrics"
)

// FallbackReply is spoken whenever a turn cannot produce a real reply.
const FallbackReply = "I'm experiencing technical difficulties. Please hold."

// Options configures turn polling.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Fallback     string
}

// DefaultOptions polls every 0.5s for up to 30s.
func DefaultOptions() Options {
	return Options{
		PollInterval: 500 * time.Millisecond,
		Timeout:      30 * time.Second,
		Fallback:     FallbackReply,
	}
}

// Reply is the dispatcher side of a turn. Err records why Fallback was
// used; it is for logs and metrics only.
type Reply struct {
	Text     string
	Fallback bool
	Err      error
}

// Controller runs dialogue turns against one thread. Turns must not
// overlap; the session's single turn worker guarantees that.
type Controller struct {
	assistant Assistant
	threadID  string
	opts      Options
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

// NewController creates the session's conversation thread.
func NewController(ctx context.Context, sessionId string, a Assistant, opts Options) (*Controller, error) {
	if opts.Fallback == "" {
		opts.Fallback = FallbackReply
	}
	threadID, err := a.CreateThread(ctx)
	if err != nil {
		return nil, &BackendError{Op: "create thread", Err: err}
	}
	log := logging.WithSession(sessionId).With().Str("component", "dialogue").Str("threadId", threadID).Logger()
	log.Info().Msg("Conversation thread created")

	return &Controller{
		assistant: a,
		threadID:  threadID,
		opts:      opts,
		log:       log,
		metrics:   metrics.DefaultMetrics,
	}, nil
}

// ThreadID returns the external conversation context id.
func (c *Controller) ThreadID() string {
	return c.threadID
}

// TakeTurn sends the caller's text and waits for the assistant's reply.
// It never fails: any error or a timeout yields the fallback reply.
func (c *Controller) TakeTurn(ctx context.Context, text string) Reply {
	start := time.Now()
	reply, err := c.turn(ctx, text)
	if err != nil {
		cause := "backend"
		if errors.Is(err, ErrDialogueTimeout) {
			cause = "timeout"
		}
		c.metrics.RecordTurn(time.Since(start).Seconds(), true, cause)
		c.log.Error().Err(err).Str("cause", cause).Msg("Dialogue turn failed, using fallback reply")
		return Reply{Text: c.opts.Fallback, Fallback: true, Err: err}
	}

	c.metrics.RecordTurn(time.Since(start).Seconds(), false, "")
	c.log.Info().Str("reply", reply).Dur("latency", time.Since(start)).Msg("Dispatcher reply")
	return Reply{Text: reply}
}

func (c *Controller) turn(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if err := c.assistant.AddUserMessage(ctx, c.threadID, text); err != nil {
		return "", c.backendErr(ctx, "add message", err)
	}

	runID, err := c.assistant.StartRun(ctx, c.threadID)
	if err != nil {
		return "", c.backendErr(ctx, "start run", err)
	}

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		status, err := c.assistant.RunStatus(ctx, c.threadID, runID)
		if err != nil {
			return "", c.backendErr(ctx, "poll run", err)
		}

		switch status {
		case RunCompleted:
			reply, err := c.assistant.LatestAssistantMessage(ctx, c.threadID)
			if err != nil {
				return "", c.backendErr(ctx, "retrieve reply", err)
			}
			reply = strings.TrimSpace(reply)
			if reply == "" {
				return "", &BackendError{Op: "retrieve reply", Err: ErrEmptyReply}
			}
			return reply, nil
		case RunFailed:
			return "", &BackendError{Op: "run", Err: fmt.Errorf("run %s ended without completing", runID)}
		}

		select {
		case <-ctx.Done():
			return "", c.timeoutOr(ctx)
		case <-ticker.C:
		}
	}
}

// backendErr reports a deadline hit inside a backend call as a timeout.
func (c *Controller) backendErr(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrDialogueTimeout
	}
	return &BackendError{Op: op, Err: err}
}

func (c *Controller) timeoutOr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrDialogueTimeout
	}
	return &BackendError{Op: "poll run", Err: ctx.Err()}
}
