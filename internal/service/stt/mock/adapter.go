// Package mock provides a mock STT provider for running without cloud credentials.
// It returns canned caller utterances in rotation.
package mock

import (
	"context"
	"sync"
	"time"

	"emergency-dispatch-service/internal/service/stt"
)

// DefaultUtterances provides sample caller utterances for simulation.
var DefaultUtterances = []string{
	"There's a fire in the building next door",
	"I'm at 42 Elm Street near the corner",
	"Yes there are people still inside",
	"I can see smoke coming from the second floor",
	"Thank you please hurry",
}

// Adapter implements stt.Transcriber with canned responses.
type Adapter struct {
	mu         sync.Mutex
	utterances []string
	next       int
	delay      time.Duration
	calls      int
}

// New creates a mock transcriber cycling through DefaultUtterances.
func New() *Adapter {
	return NewWithUtterances(DefaultUtterances, 0)
}

// NewWithUtterances creates a mock transcriber with its own script and a
// simulated processing delay.
func NewWithUtterances(utterances []string, delay time.Duration) *Adapter {
	if len(utterances) == 0 {
		utterances = DefaultUtterances
	}
	return &Adapter{
		utterances: append([]string(nil), utterances...),
		delay:      delay,
	}
}

// Transcribe returns the next scripted utterance.
func (a *Adapter) Transcribe(ctx context.Context, _ stt.Audio) (string, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return "", &stt.TranscriptionError{Provider: a.Name(), Err: ctx.Err()}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	text := a.utterances[a.next%len(a.utterances)]
	a.next++
	a.calls++
	return text, nil
}

// Calls returns the number of Transcribe calls served.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *Adapter) Name() string {
	return "mock"
}
