package segment

import (
	"testing"
	"time"

	"emergency-dispatch-service/internal/service/audio"
)

const (
	testRate        = 16000
	testFrameLength = 800 // 50ms at 16kHz
)

func frameOf(amplitude int16) audio.Frame {
	samples := make([]int16, testFrameLength)
	for i := range samples {
		// Alternate sign so the mean absolute value equals amplitude.
		if i%2 == 0 {
			samples[i] = amplitude
		} else {
			samples[i] = -amplitude
		}
	}
	return audio.Frame{Samples: samples, SampleRate: testRate}
}

func framesFor(amplitude int16, d time.Duration) []audio.Frame {
	n := int(d / (50 * time.Millisecond))
	out := make([]audio.Frame, n)
	for i := range out {
		out[i] = frameOf(amplitude)
		out[i].Seq = uint64(i + 1)
	}
	return out
}

func feed(s *Segmenter, frames []audio.Frame) []*Segment {
	var out []*Segment
	for _, f := range frames {
		if seg, ok := s.Observe(f); ok {
			out = append(out, seg)
		}
	}
	return out
}

func newTestSegmenter(opts Options) *Segmenter {
	return NewSegmenter("call-test", NewGenerator(), opts)
}

func TestSegmenter_SilenceOnlyStaysIdle(t *testing.T) {
	s := newTestSegmenter(DefaultOptions())

	segs := feed(s, framesFor(50, 3*time.Second))

	if len(segs) != 0 {
		t.Errorf("expected no segments, got %d", len(segs))
	}
	if s.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", s.State())
	}
	if s.Pending() != 0 {
		t.Errorf("expected no pending frames, got %d", s.Pending())
	}
}

func TestSegmenter_SpeechThenSilenceEmitsOneSegment(t *testing.T) {
	s := newTestSegmenter(DefaultOptions())

	frames := append(framesFor(900, 200*time.Millisecond), framesFor(30, 1600*time.Millisecond)...)
	segs := feed(s, frames)

	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	seg := segs[0]

	// 4 speech frames + 30 silence frames up to the 1.5s crossing. The two
	// remaining silence frames arrive in Idle and are discarded.
	if len(seg.Frames) != 34 {
		t.Errorf("expected 34 frames, got %d", len(seg.Frames))
	}
	if seg.Duration() != 1700*time.Millisecond {
		t.Errorf("expected 1.7s, got %v", seg.Duration())
	}
	if seg.TrailingSilence != 1500*time.Millisecond {
		t.Errorf("expected 1.5s trailing silence, got %v", seg.TrailingSilence)
	}
	if seg.ID != "call-test-seg-1" {
		t.Errorf("expected call-test-seg-1, got %s", seg.ID)
	}
	if seg.Truncated {
		t.Error("segment closed on silence should not be truncated")
	}
	if s.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", s.State())
	}
	if s.Pending() != 0 {
		t.Errorf("expected no pending frames, got %d", s.Pending())
	}
}

func TestSegmenter_TransitionTable(t *testing.T) {
	tests := []struct {
		name        string
		amplitudes  []int16
		wantState   State
		wantPending int
	}{
		{"idle silence discarded", []int16{10}, StateIdle, 0},
		{"idle speech starts recording", []int16{900}, StateRecording, 1},
		{"recording speech appends", []int16{900, 900}, StateRecording, 2},
		{"recording silence appends", []int16{900, 10}, StateRecording, 2},
		{"silence before speech is dropped", []int16{10, 10, 900, 10}, StateRecording, 2},
		{"threshold is strict", []int16{700}, StateIdle, 0},
		{"just above threshold", []int16{701}, StateRecording, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSegmenter(DefaultOptions())
			for _, a := range tt.amplitudes {
				if _, ok := s.Observe(frameOf(a)); ok {
					t.Fatal("unexpected segment")
				}
			}
			if s.State() != tt.wantState {
				t.Errorf("expected %v, got %v", tt.wantState, s.State())
			}
			if s.Pending() != tt.wantPending {
				t.Errorf("expected %d pending, got %d", tt.wantPending, s.Pending())
			}
		})
	}
}

func TestSegmenter_SpeechResetsSilence(t *testing.T) {
	s := newTestSegmenter(DefaultOptions())

	var frames []audio.Frame
	frames = append(frames, framesFor(900, 100*time.Millisecond)...)
	frames = append(frames, framesFor(30, 1400*time.Millisecond)...) // just short of threshold
	frames = append(frames, framesFor(900, 50*time.Millisecond)...)
	frames = append(frames, framesFor(30, 1450*time.Millisecond)...)

	if segs := feed(s, frames); len(segs) != 0 {
		t.Fatalf("expected no segment while silence keeps resetting, got %d", len(segs))
	}
	if s.State() != StateRecording {
		t.Fatalf("expected StateRecording, got %v", s.State())
	}

	seg, ok := s.Observe(frameOf(30))
	if !ok {
		t.Fatal("expected segment on the silence frame that crosses 1.5s")
	}
	if len(seg.Frames) != 2+28+1+30 {
		t.Errorf("expected 61 frames, got %d", len(seg.Frames))
	}
}

func TestSegmenter_MultipleSegments(t *testing.T) {
	s := newTestSegmenter(DefaultOptions())

	var frames []audio.Frame
	for i := 0; i < 3; i++ {
		frames = append(frames, framesFor(1200, 300*time.Millisecond)...)
		frames = append(frames, framesFor(0, 1500*time.Millisecond)...)
	}

	segs := feed(s, frames)
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	for i, seg := range segs {
		if len(seg.Frames) != 36 {
			t.Errorf("segment %d: expected 36 frames, got %d", i, len(seg.Frames))
		}
		if len(seg.Frames) == 0 {
			t.Errorf("segment %d is empty", i)
		}
	}
	if segs[0].ID == segs[1].ID || segs[1].ID == segs[2].ID {
		t.Error("segment IDs should be unique")
	}
}

func TestSegmenter_TrimTrailingSilence(t *testing.T) {
	opts := DefaultOptions()
	opts.TrimTrailingSilence = true
	s := newTestSegmenter(opts)

	frames := append(framesFor(900, 200*time.Millisecond), framesFor(30, 1600*time.Millisecond)...)
	segs := feed(s, frames)

	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if len(segs[0].Frames) != 4 {
		t.Errorf("expected 4 speech frames, got %d", len(segs[0].Frames))
	}
	if segs[0].Duration() != 200*time.Millisecond {
		t.Errorf("expected 200ms, got %v", segs[0].Duration())
	}
}

func TestSegmenter_MaxSegmentDuration(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxSegmentDuration = time.Second
	s := newTestSegmenter(opts)

	segs := feed(s, framesFor(900, 2500*time.Millisecond))

	if len(segs) != 2 {
		t.Fatalf("expected 2 capped segments, got %d", len(segs))
	}
	for i, seg := range segs {
		if !seg.Truncated {
			t.Errorf("segment %d: expected truncated", i)
		}
		if seg.Duration() != time.Second {
			t.Errorf("segment %d: expected 1s, got %v", i, seg.Duration())
		}
	}
	if s.State() != StateRecording || s.Pending() != 10 {
		t.Errorf("expected remaining 10 frames recording, got %v/%d", s.State(), s.Pending())
	}
}

func TestSegmenter_MaxSegmentDurationDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxSegmentDuration = 0
	s := newTestSegmenter(opts)

	if segs := feed(s, framesFor(900, 5*time.Second)); len(segs) != 0 {
		t.Errorf("expected no segments, got %d", len(segs))
	}
	if s.Pending() != 100 {
		t.Errorf("expected 100 pending frames, got %d", s.Pending())
	}
}

func TestSegmenter_CloseIgnoresFrames(t *testing.T) {
	s := newTestSegmenter(DefaultOptions())

	feed(s, framesFor(900, 200*time.Millisecond))
	s.Close()
	s.Close() // idempotent

	if !s.IsClosed() {
		t.Error("expected closed")
	}
	if s.Pending() != 0 {
		t.Errorf("expected partial segment discarded, got %d pending", s.Pending())
	}

	segs := feed(s, append(framesFor(900, 200*time.Millisecond), framesFor(30, 2*time.Second)...))
	if len(segs) != 0 {
		t.Errorf("expected no segments after close, got %d", len(segs))
	}
	if s.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", s.State())
	}
}

func TestSegmenter_Flush(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		frames     []audio.Frame
		close      bool
		wantOK     bool
		wantFrames int
	}{
		{
			name:   "idle",
			opts:   DefaultOptions(),
			frames: framesFor(30, 500*time.Millisecond),
		},
		{
			name:       "speech cut off",
			opts:       DefaultOptions(),
			frames:     framesFor(900, 300*time.Millisecond),
			wantOK:     true,
			wantFrames: 6,
		},
		{
			name:       "short silence kept",
			opts:       DefaultOptions(),
			frames:     append(framesFor(900, 300*time.Millisecond), framesFor(30, 200*time.Millisecond)...),
			wantOK:     true,
			wantFrames: 10,
		},
		{
			name: "short silence trimmed",
			opts: Options{
				SpeechThreshold:     700,
				SilenceDuration:     1500 * time.Millisecond,
				TrimTrailingSilence: true,
			},
			frames:     append(framesFor(900, 300*time.Millisecond), framesFor(30, 200*time.Millisecond)...),
			wantOK:     true,
			wantFrames: 6,
		},
		{
			name:   "closed",
			opts:   DefaultOptions(),
			frames: framesFor(900, 300*time.Millisecond),
			close:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSegmenter(tt.opts)
			if segs := feed(s, tt.frames); len(segs) != 0 {
				t.Fatalf("expected no segment before flush, got %d", len(segs))
			}
			if tt.close {
				s.Close()
			}

			seg, ok := s.Flush()
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if !ok {
				return
			}
			if len(seg.Frames) != tt.wantFrames {
				t.Errorf("expected %d frames, got %d", tt.wantFrames, len(seg.Frames))
			}
			if seg.Truncated {
				t.Error("flushed segment should not be marked truncated")
			}
			if s.State() != StateIdle || s.Pending() != 0 {
				t.Errorf("expected idle with nothing pending, got %v/%d", s.State(), s.Pending())
			}
			if _, again := s.Flush(); again {
				t.Error("second flush should emit nothing")
			}
		})
	}
}

func TestSegmenter_EmitIffSpeechFollowedBySilenceRun(t *testing.T) {
	// Property check over a few hand-built patterns: S = speech, . = silence frame.
	tests := []struct {
		pattern string
		want    int
	}{
		{"", 0},
		{"..........", 0},
		{"S", 0},
		{"S" + repeat('.', 29), 0},
		{"S" + repeat('.', 30), 1},
		{"SSS" + repeat('.', 30) + "S" + repeat('.', 30), 2},
		{"S" + repeat('.', 29) + "S" + repeat('.', 29), 0},
	}

	for _, tt := range tests {
		s := newTestSegmenter(DefaultOptions())
		got := 0
		for _, c := range tt.pattern {
			a := int16(10)
			if c == 'S' {
				a = 900
			}
			if seg, ok := s.Observe(frameOf(a)); ok {
				if len(seg.Frames) == 0 {
					t.Errorf("pattern %q: empty segment", tt.pattern)
				}
				got++
			}
		}
		if got != tt.want {
			t.Errorf("pattern %q: expected %d segments, got %d", tt.pattern, tt.want, got)
		}
	}
}

func repeat(c byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return string(b)
}
