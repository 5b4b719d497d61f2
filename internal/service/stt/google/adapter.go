// Package google provides a Google Cloud Speech-to-Text provider.
package google

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/encoding/protojson"

	"emergency-dispatch-service/internal/observability/logging"
	"emergency-dispatch-service/internal/service/audio"
	"emergency-dispatch-service/internal/service/stt"
)

// Config holds recognition settings.
type Config struct {
	LanguageCode  string
	SampleRateHz  int32
	AudioEncoding string
	Model         string
}

// DefaultConfig returns the settings used for dispatch calls.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  16000,
		AudioEncoding: "LINEAR16",
	}
}

// recognizeFunc is the unary recognize call, swapped out in tests.
type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Adapter implements stt.Transcriber using Google Cloud Speech-to-Text.
type Adapter struct {
	cfg       Config
	client    *speech.Client
	recognize recognizeFunc
	log       zerolog.Logger
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Adapter{
		cfg:    cfg,
		client: c,
		log:    logging.WithComponent("stt.google"),
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return c.Recognize(ctx, req)
		},
	}, nil
}

func (a *Adapter) Name() string {
	return "google"
}

// Transcribe sends the utterance as raw LINEAR16 audio and joins the top
// alternative of every result.
func (a *Adapter) Transcribe(ctx context.Context, in stt.Audio) (string, error) {
	samples, format, err := audio.ReadWAVFile(in.Path)
	if err != nil {
		return "", &stt.TranscriptionError{Provider: a.Name(), Err: err}
	}

	resp, err := a.recognize(ctx, a.request(samples, format))
	if err != nil {
		return "", &stt.TranscriptionError{Provider: a.Name(), Err: err}
	}
	a.log.Debug().Func(func(e *zerolog.Event) {
		if b, err := protojson.Marshal(resp); err == nil {
			e.RawJSON("response", b)
		}
	}).Msg("Recognize response")

	var parts []string
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		parts = append(parts, r.GetAlternatives()[0].GetTranscript())
	}
	return strings.Join(parts, " "), nil
}

func (a *Adapter) request(samples []int16, format audio.Format) *speechpb.RecognizeRequest {
	rate := a.cfg.SampleRateHz
	if format.SampleRate > 0 {
		rate = int32(format.SampleRate)
	}

	content := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(content[2*i:], uint16(s))
	}

	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        parseAudioEncoding(a.cfg.AudioEncoding),
			SampleRateHertz: rate,
			LanguageCode:    a.cfg.LanguageCode,
			Model:           a.cfg.Model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	}
}

// Close releases the client connection.
func (a *Adapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// parseAudioEncoding maps a config string to the Google enum. Unknown
// values fall back to LINEAR16.
func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
