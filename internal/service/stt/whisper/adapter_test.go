package whisper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"emergency-dispatch-service/internal/service/audio"
	"emergency-dispatch-service/internal/service/stt"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client := openai.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)
	return &client
}

func writeTestWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speech_test.wav")
	if err := audio.WriteWAVFile(path, make([]int16, 1600), audio.DefaultFormat); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestAdapter_Transcribe(t *testing.T) {
	var gotModel string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"  my house is on fire  "}`))
	})

	a := New(client, Config{})
	text, err := a.Transcribe(context.Background(), stt.Audio{Path: writeTestWAV(t), Format: audio.DefaultFormat})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "  my house is on fire  " {
		t.Errorf("unexpected text %q", text)
	}
	if gotModel != DefaultModel {
		t.Errorf("expected model %s, got %s", DefaultModel, gotModel)
	}
}

func TestAdapter_Transcribe_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})

	a := New(client, Config{})
	_, err := a.Transcribe(context.Background(), stt.Audio{Path: writeTestWAV(t)})

	var te *stt.TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TranscriptionError, got %v", err)
	}
	if te.Provider != "openai" {
		t.Errorf("expected provider openai, got %s", te.Provider)
	}
}

func TestAdapter_Transcribe_MissingFile(t *testing.T) {
	a := New(nil, Config{})

	_, err := a.Transcribe(context.Background(), stt.Audio{Path: filepath.Join(t.TempDir(), "missing.wav")})
	var te *stt.TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TranscriptionError, got %v", err)
	}
}
