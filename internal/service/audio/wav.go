package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"emergency-dispatch-service/internal/observability/logging"
)

// WAV audio format tag for uncompressed PCM.
const audioFormatPCM = 1

// EncodeWAV writes samples as an uncompressed PCM WAV container.
func EncodeWAV(w io.WriteSeeker, samples []int16, format Format) error {
	if err := format.Validate(); err != nil {
		return err
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	e := wav.NewEncoder(w, format.SampleRate, format.BitDepth, format.Channels, audioFormatPCM)
	if err := e.Write(&goaudio.IntBuffer{
		Data: data,
		Format: &goaudio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRate,
		},
		SourceBitDepth: format.BitDepth,
	}); err != nil {
		_ = e.Close()
		return fmt.Errorf("audio: writing wav samples: %w", err)
	}
	if err := e.Close(); err != nil {
		return fmt.Errorf("audio: finalizing wav: %w", err)
	}
	return nil
}

// WriteWAVFile encodes samples into a new file at path.
func WriteWAVFile(path string, samples []int16, format Format) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: creating wav file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("audio: closing wav file: %w", cerr)
		}
	}()
	return EncodeWAV(f, samples, format)
}

// DecodeWAV reads a 16-bit PCM WAV container. Multi-channel input is
// downmixed to mono. A data chunk whose size was left unset by a
// streaming writer is read to the end of the input.
func DecodeWAV(r io.ReadSeeker) ([]int16, Format, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, Format{}, errors.New("audio: not a valid wav file")
	}
	if d.BitDepth != 16 {
		return nil, Format{}, fmt.Errorf("audio: unsupported wav bit depth %d", d.BitDepth)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, Format{}, fmt.Errorf("audio: locating wav data: %w", err)
	}
	if d.PCMChunk == nil {
		return nil, Format{}, errors.New("audio: wav has no data chunk")
	}

	// The parser reports 0 for both an unset size and 0xFFFFFFFF.
	var data io.Reader = d.PCMChunk
	if d.PCMChunk.Size > 0 {
		data = io.LimitReader(d.PCMChunk, int64(d.PCMChunk.Size))
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: decoding wav: %w", err)
	}

	channels := int(d.NumChans)
	if channels < 1 {
		channels = 1
	}
	frameBytes := 2 * channels
	if len(raw) > 0 && len(raw) < frameBytes {
		return nil, Format{}, fmt.Errorf("audio: wav data chunk of %d bytes holds no complete sample", len(raw))
	}

	samples := make([]int16, len(raw)/frameBytes)
	for i := range samples {
		var sum int
		for c := 0; c < channels; c++ {
			off := i*frameBytes + 2*c
			sum += int(int16(binary.LittleEndian.Uint16(raw[off : off+2])))
		}
		samples[i] = int16(sum / channels)
	}

	return samples, Format{SampleRate: int(d.SampleRate), Channels: 1, BitDepth: 16}, nil
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) ([]int16, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: opening wav file: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// WAVSource replays a WAV file as fixed-size frames. With Realtime set,
// frames are paced at the frame duration as a microphone would deliver
// them; otherwise they are delivered as fast as the consumer accepts them.
type WAVSource struct {
	path          string
	frameDuration time.Duration
	realtime      bool
	log           zerolog.Logger

	// frames are handed over with a blocking send when not paced, so a
	// replay never loses audio.
	pump *pump

	format  Format
	samples []int16

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	closed  bool
}

// NewWAVSource creates a replay source for the file at path.
func NewWAVSource(path string, frameDuration time.Duration, realtime bool, queueSize int) *WAVSource {
	logger := logging.WithComponent("audio.wav")
	return &WAVSource{
		path:          path,
		frameDuration: frameDuration,
		realtime:      realtime,
		log:           logger,
		pump:          newPump(queueSize, logger),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// NewSampleSource replays in-memory samples; used by tests and tools.
func NewSampleSource(samples []int16, format Format, frameDuration time.Duration, queueSize int) *WAVSource {
	s := NewWAVSource("", frameDuration, false, queueSize)
	s.samples = samples
	s.format = format
	return s
}

// Start loads the file and begins delivering frames.
func (s *WAVSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("audio: source already started")
	}

	if s.path != "" {
		samples, format, err := ReadWAVFile(s.path)
		if err != nil {
			return &CaptureError{Op: "open wav", Err: err}
		}
		s.samples, s.format = samples, format
	}
	if s.frameDuration <= 0 {
		return &CaptureError{Op: "configure", Err: fmt.Errorf("invalid frame duration %v", s.frameDuration)}
	}
	s.started = true

	s.log.Info().
		Str("path", s.path).
		Str("format", s.format.String()).
		Int("samples", len(s.samples)).
		Bool("realtime", s.realtime).
		Msg("Replaying audio")

	go s.loop(ctx)
	return nil
}

func (s *WAVSource) loop(ctx context.Context) {
	defer close(s.doneCh)

	n := s.format.SamplesPerFrame(s.frameDuration)
	if n <= 0 {
		s.pump.finish(&CaptureError{Op: "configure", Err: errors.New("frame holds no samples")})
		return
	}

	var ticker *time.Ticker
	if s.realtime {
		ticker = time.NewTicker(s.frameDuration)
		defer ticker.Stop()
	}

	// The last partial frame is padded with silence.
	for off := 0; off < len(s.samples); off += n {
		if ticker != nil {
			select {
			case <-ctx.Done():
				s.pump.finish(nil)
				return
			case <-s.stopCh:
				s.pump.finish(nil)
				return
			case <-ticker.C:
			}
		}

		samples := make([]int16, n)
		copy(samples, s.samples[off:min(off+n, len(s.samples))])

		if s.realtime {
			s.pump.deliver(samples, s.format.SampleRate)
			continue
		}

		s.pump.mu.Lock()
		s.pump.seq++
		f := Frame{Seq: s.pump.seq, Samples: samples, SampleRate: s.format.SampleRate}
		s.pump.mu.Unlock()

		select {
		case <-ctx.Done():
			s.pump.finish(nil)
			return
		case <-s.stopCh:
			s.pump.finish(nil)
			return
		case s.pump.frames <- f:
			s.pump.metrics.RecordFrameCaptured(len(samples))
		}
	}
	s.pump.finish(nil)
}

// Frames returns the delivery channel.
func (s *WAVSource) Frames() <-chan Frame { return s.pump.frames }

// Err returns the error that ended replay, if any.
func (s *WAVSource) Err() error { return s.pump.error() }

// Format returns the format of the replayed audio. Valid after Start.
func (s *WAVSource) Format() Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Close stops replay. Idempotent.
func (s *WAVSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	close(s.stopCh)
	if started {
		<-s.doneCh
	} else {
		s.pump.finish(nil)
	}
	return nil
}
