package utterance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"emergency-dispatch-service/internal/service/audio"
	"emergency-dispatch-service/internal/service/segment"
	"emergency-dispatch-service/internal/service/stt"
)

type dirWorkspace string

func (d dirWorkspace) Path(name string) string {
	return filepath.Join(string(d), name)
}

// fakeTranscriber records calls and checks the audio file exists.
type fakeTranscriber struct {
	text    string
	err     error
	calls   int
	paths   []string
	existed bool
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, a stt.Audio) (string, error) {
	f.calls++
	f.paths = append(f.paths, a.Path)
	_, statErr := os.Stat(a.Path)
	f.existed = statErr == nil
	return f.text, f.err
}

func (f *fakeTranscriber) Name() string { return "fake" }

func segmentOf(id string, frames, samplesPerFrame int) *segment.Segment {
	seg := &segment.Segment{ID: id, SampleRate: 16000}
	for i := 0; i < frames; i++ {
		samples := make([]int16, samplesPerFrame)
		for j := range samples {
			samples[j] = 900
		}
		seg.Frames = append(seg.Frames, audio.Frame{Seq: uint64(i + 1), Samples: samples, SampleRate: 16000})
	}
	return seg
}

func TestProcessor_RejectsShortSegment(t *testing.T) {
	tr := &fakeTranscriber{text: "hello"}
	p := NewProcessor("call-1", tr, dirWorkspace(t.TempDir()), DefaultMinDuration)

	// 30ms at 16kHz
	_, ok, err := p.Process(context.Background(), segmentOf("call-1-seg-1", 1, 480))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no utterance for a 30ms segment")
	}
	if tr.calls != 0 {
		t.Errorf("expected no transcription call, got %d", tr.calls)
	}
}

func TestProcessor_AcceptsMinimumDuration(t *testing.T) {
	tr := &fakeTranscriber{text: "hello"}
	p := NewProcessor("call-1", tr, dirWorkspace(t.TempDir()), DefaultMinDuration)

	// Exactly 50ms
	_, ok, err := p.Process(context.Background(), segmentOf("call-1-seg-1", 1, 800))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || tr.calls != 1 {
		t.Errorf("expected a transcription of a 50ms segment, ok=%v calls=%d", ok, tr.calls)
	}
}

func TestProcessor_Transcribes(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTranscriber{text: "  there's a fire on Main Street \n"}
	p := NewProcessor("call-1", tr, dirWorkspace(dir), DefaultMinDuration)
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	u, ok, err := p.Process(context.Background(), segmentOf("call-1-seg-7", 10, 800))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected an utterance")
	}
	if u.Text != "there's a fire on Main Street" {
		t.Errorf("expected trimmed text, got %q", u.Text)
	}
	if u.SegmentID != "call-1-seg-7" {
		t.Errorf("expected segment id call-1-seg-7, got %s", u.SegmentID)
	}
	if u.Duration != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", u.Duration)
	}
	if !u.At.Equal(at) {
		t.Errorf("expected %v, got %v", at, u.At)
	}

	if !tr.existed {
		t.Error("expected the WAV file to exist during transcription")
	}
	if filepath.Base(tr.paths[0]) != "speech_call-1-seg-7.wav" {
		t.Errorf("unexpected file name %s", tr.paths[0])
	}
	if _, err := os.Stat(tr.paths[0]); !os.IsNotExist(err) {
		t.Error("expected the WAV file to be removed after transcription")
	}
}

func TestProcessor_WhitespaceTranscriptIsNoOp(t *testing.T) {
	tr := &fakeTranscriber{text: " \t\n "}
	p := NewProcessor("call-1", tr, dirWorkspace(t.TempDir()), DefaultMinDuration)

	_, ok, err := p.Process(context.Background(), segmentOf("call-1-seg-1", 10, 800))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no utterance for whitespace transcript")
	}
}

func TestProcessor_TranscriptionError(t *testing.T) {
	cause := errors.New("network unreachable")
	tr := &fakeTranscriber{err: cause}
	p := NewProcessor("call-1", tr, dirWorkspace(t.TempDir()), DefaultMinDuration)

	_, ok, err := p.Process(context.Background(), segmentOf("call-1-seg-1", 10, 800))
	if ok {
		t.Error("expected no utterance on failure")
	}

	var te *stt.TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TranscriptionError, got %v", err)
	}
	if te.Provider != "fake" || !errors.Is(err, cause) {
		t.Errorf("unexpected error %v", err)
	}

	if _, statErr := os.Stat(tr.paths[0]); !os.IsNotExist(statErr) {
		t.Error("expected the WAV file to be removed after a failed transcription")
	}
}

func TestProcessor_EncodeFailure(t *testing.T) {
	tr := &fakeTranscriber{text: "hello"}
	missing := filepath.Join(t.TempDir(), "gone")
	p := NewProcessor("call-1", tr, dirWorkspace(missing), DefaultMinDuration)

	_, ok, err := p.Process(context.Background(), segmentOf("call-1-seg-1", 10, 800))
	if ok || err == nil {
		t.Fatalf("expected failure writing into a missing directory, ok=%v err=%v", ok, err)
	}
	if tr.calls != 0 {
		t.Errorf("expected no transcription call, got %d", tr.calls)
	}
}
