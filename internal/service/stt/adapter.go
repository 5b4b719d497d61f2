// Package stt defines the interface for Speech-to-Text providers.
package stt

import (
	"context"
	"fmt"

	"emergency-dispatch-service/internal/service/audio"
)

// Audio points at one encoded utterance on ephemeral storage.
type Audio struct {
	// Path is a mono 16-bit WAV file.
	Path   string
	Format audio.Format
}

// Transcriber defines the interface for STT providers (OpenAI, Google, etc.).
type Transcriber interface {
	// Transcribe returns the text spoken in the audio. The result may carry
	// leading or trailing whitespace.
	Transcribe(ctx context.Context, a Audio) (string, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

// TranscriptionError reports a provider failure. The segment is dropped and
// the session keeps listening.
type TranscriptionError struct {
	Provider string
	Err      error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription via %s failed: %v", e.Provider, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}
