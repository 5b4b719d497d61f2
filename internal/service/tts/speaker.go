// Package tts speaks dispatcher replies.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog"

	"emergency-dispatch-service/internal/observability/logging"
	"emergency-dispatch-service/internal/observability/metrics"
	"emergency-dispatch-service/internal/service/audio"
)

// Speaker turns dispatcher text into audible speech.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Workspace is the ephemeral storage synthesized audio is written to.
type Workspace interface {
	Path(name string) string
}

// NopSpeaker only logs. Used on headless hosts.
type NopSpeaker struct {
	Log zerolog.Logger
}

func (s NopSpeaker) Speak(ctx context.Context, text string) error {
	s.Log.Debug().Str("text", text).Msg("Speech output disabled")
	return nil
}

// Config holds synthesis settings.
type Config struct {
	Model string
	Voice string
}

// DefaultConfig returns the tts-1 model with the alloy voice.
func DefaultConfig() Config {
	return Config{
		Model: string(openai.SpeechModelTTS1),
		Voice: "alloy",
	}
}

// OpenAISpeaker synthesizes WAV audio with the OpenAI speech API and plays
// it through a Player.
type OpenAISpeaker struct {
	client    *openai.Client
	cfg       Config
	workspace Workspace
	player    audio.Player
	log       zerolog.Logger
	metrics   *metrics.Metrics
	seq       atomic.Uint64
}

var _ Speaker = (*OpenAISpeaker)(nil)

// NewOpenAISpeaker creates a speaker for one session. A nil player skips
// playback after synthesis.
func NewOpenAISpeaker(sessionId string, client *openai.Client, cfg Config, ws Workspace, player audio.Player) *OpenAISpeaker {
	return &OpenAISpeaker{
		client:    client,
		cfg:       cfg,
		workspace: ws,
		player:    player,
		log:       logging.WithProvider(sessionId, "tts", "openai"),
		metrics:   metrics.DefaultMetrics,
	}
}

// Speak synthesizes text and blocks until playback ends.
func (s *OpenAISpeaker) Speak(ctx context.Context, text string) error {
	if err := s.speak(ctx, text); err != nil {
		s.metrics.RecordSpeechError("openai")
		return err
	}
	return nil
}

func (s *OpenAISpeaker) speak(ctx context.Context, text string) error {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.cfg.Model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.cfg.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return fmt.Errorf("synthesize speech: %w", err)
	}
	defer resp.Body.Close()

	path := s.workspace.Path(fmt.Sprintf("reply_%d.wav", s.seq.Add(1)))
	defer os.Remove(path)

	if err := writeFile(path, resp.Body); err != nil {
		return fmt.Errorf("store speech: %w", err)
	}

	samples, format, err := audio.ReadWAVFile(path)
	if err != nil {
		return fmt.Errorf("decode speech: %w", err)
	}
	if len(samples) == 0 {
		return errors.New("decode speech: no audio in response")
	}
	s.log.Debug().Int("samples", len(samples)).Str("format", format.String()).Msg("Speech synthesized")

	if s.player == nil {
		return nil
	}
	if err := s.player.Play(ctx, samples, format); err != nil {
		return fmt.Errorf("play speech: %w", err)
	}
	return nil
}

func writeFile(path string, r io.Reader) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(f, r)
	return err
}
