package dialogue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeAssistant scripts run statuses and records the message log.
type fakeAssistant struct {
	mu sync.Mutex

	threadErr   error
	addErr      error
	runErr      error
	statusErr   error
	replyErr    error
	statuses    []RunStatus // returned in order, the last one repeats
	reply       string
	statusCalls int
	messages    []string
}

func (f *fakeAssistant) CreateThread(ctx context.Context) (string, error) {
	if f.threadErr != nil {
		return "", f.threadErr
	}
	return "thread_1", nil
}

func (f *fakeAssistant) AddUserMessage(ctx context.Context, threadID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeAssistant) StartRun(ctx context.Context, threadID string) (string, error) {
	if f.runErr != nil {
		return "", f.runErr
	}
	return "run_1", nil
}

func (f *fakeAssistant) RunStatus(ctx context.Context, threadID, runID string) (RunStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return RunFailed, f.statusErr
	}
	i := f.statusCalls
	f.statusCalls++
	if len(f.statuses) == 0 {
		return RunCompleted, nil
	}
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

func (f *fakeAssistant) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	if f.replyErr != nil {
		return "", f.replyErr
	}
	return f.reply, nil
}

func fastOptions() Options {
	return Options{
		PollInterval: 5 * time.Millisecond,
		Timeout:      100 * time.Millisecond,
		Fallback:     FallbackReply,
	}
}

func newTestController(t *testing.T, a Assistant) *Controller {
	t.Helper()
	c, err := NewController(context.Background(), "call-1", a, fastOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestController_CompletedRun(t *testing.T) {
	a := &fakeAssistant{
		statuses: []RunStatus{RunPending, RunPending, RunCompleted},
		reply:    "  What is the address of the emergency?  ",
	}
	c := newTestController(t, a)

	r := c.TakeTurn(context.Background(), "There's a fire")

	if r.Fallback {
		t.Fatalf("unexpected fallback: %v", r.Err)
	}
	if r.Text != "What is the address of the emergency?" {
		t.Errorf("unexpected reply %q", r.Text)
	}
	if a.statusCalls != 3 {
		t.Errorf("expected 3 status polls, got %d", a.statusCalls)
	}
	if len(a.messages) != 1 || a.messages[0] != "There's a fire" {
		t.Errorf("unexpected message log %v", a.messages)
	}
	if c.ThreadID() != "thread_1" {
		t.Errorf("expected thread_1, got %s", c.ThreadID())
	}
}

func TestController_TimeoutFallsBack(t *testing.T) {
	a := &fakeAssistant{statuses: []RunStatus{RunPending}}
	c := newTestController(t, a)

	start := time.Now()
	r := c.TakeTurn(context.Background(), "hello?")
	elapsed := time.Since(start)

	if !r.Fallback {
		t.Fatal("expected fallback reply")
	}
	if r.Text != "I'm experiencing technical difficulties. Please hold." {
		t.Errorf("unexpected fallback text %q", r.Text)
	}
	if !errors.Is(r.Err, ErrDialogueTimeout) {
		t.Errorf("expected ErrDialogueTimeout, got %v", r.Err)
	}
	if elapsed > time.Second {
		t.Errorf("turn should be bounded by the timeout, took %v", elapsed)
	}
	if a.statusCalls < 2 {
		t.Errorf("expected repeated polling, got %d polls", a.statusCalls)
	}
}

func TestController_BackendErrorsFallBack(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		a      *fakeAssistant
		wantOp string
	}{
		{"add message", &fakeAssistant{addErr: boom}, "add message"},
		{"start run", &fakeAssistant{runErr: boom}, "start run"},
		{"poll", &fakeAssistant{statusErr: boom}, "poll run"},
		{"retrieve", &fakeAssistant{replyErr: boom}, "retrieve reply"},
		{"failed run", &fakeAssistant{statuses: []RunStatus{RunPending, RunFailed}}, "run"},
		{"empty reply", &fakeAssistant{reply: "   "}, "retrieve reply"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t, tt.a)

			r := c.TakeTurn(context.Background(), "help")

			if !r.Fallback || r.Text != FallbackReply {
				t.Fatalf("expected fallback, got %+v", r)
			}
			var be *BackendError
			if !errors.As(r.Err, &be) {
				t.Fatalf("expected BackendError, got %v", r.Err)
			}
			if be.Op != tt.wantOp {
				t.Errorf("expected op %q, got %q", tt.wantOp, be.Op)
			}
		})
	}
}

func TestController_CustomFallback(t *testing.T) {
	opts := fastOptions()
	opts.Fallback = "Please stay on the line."
	c, err := NewController(context.Background(), "call-1", &fakeAssistant{runErr: errors.New("down")}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r := c.TakeTurn(context.Background(), "hi"); r.Text != "Please stay on the line." {
		t.Errorf("unexpected reply %q", r.Text)
	}
}

func TestNewController_ThreadError(t *testing.T) {
	_, err := NewController(context.Background(), "call-1", &fakeAssistant{threadErr: errors.New("unauthorized")}, fastOptions())

	var be *BackendError
	if !errors.As(err, &be) || be.Op != "create thread" {
		t.Fatalf("expected create thread BackendError, got %v", err)
	}
}

func TestController_MessagesAppendInOrder(t *testing.T) {
	a := &fakeAssistant{reply: "ok"}
	c := newTestController(t, a)

	for _, text := range []string{"first", "second", "third"} {
		c.TakeTurn(context.Background(), text)
	}

	want := []string{"first", "second", "third"}
	for i := range want {
		if a.messages[i] != want[i] {
			t.Errorf("message %d: expected %q, got %q", i, want[i], a.messages[i])
		}
	}
}

func TestRunStatus_String(t *testing.T) {
	tests := []struct {
		status   RunStatus
		expected string
	}{
		{RunPending, "PENDING"},
		{RunCompleted, "COMPLETED"},
		{RunFailed, "FAILED"},
		{RunStatus(7), "UNKNOWN(7)"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, got)
		}
	}
}
