// Package whisper provides an OpenAI Whisper speech-to-text provider.
package whisper

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"

	"emergency-dispatch-service/internal/service/stt"
)

// DefaultModel is the transcription model used for caller audio.
const DefaultModel = "whisper-1"

// Config holds transcription settings.
type Config struct {
	Model    string
	Language string
}

// Adapter implements stt.Transcriber using the OpenAI audio API.
type Adapter struct {
	client *openai.Client
	cfg    Config
}

// New creates a Whisper adapter on an existing client.
func New(client *openai.Client, cfg Config) *Adapter {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Adapter{client: client, cfg: cfg}
}

func (a *Adapter) Name() string {
	return "openai"
}

// Transcribe uploads the WAV file and returns the recognized text.
func (a *Adapter) Transcribe(ctx context.Context, in stt.Audio) (string, error) {
	f, err := os.Open(in.Path)
	if err != nil {
		return "", &stt.TranscriptionError{Provider: a.Name(), Err: fmt.Errorf("open audio: %w", err)}
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(a.cfg.Model),
	}
	if a.cfg.Language != "" {
		params.Language = openai.String(a.cfg.Language)
	}

	res, err := a.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", &stt.TranscriptionError{Provider: a.Name(), Err: err}
	}
	return res.Text, nil
}
