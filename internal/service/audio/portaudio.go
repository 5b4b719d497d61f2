package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"emergency-dispatch-service/internal/observability/logging"
)

// PortAudioSource captures frames from the default input device using
// blocking reads of one frame each.
type PortAudioSource struct {
	format        Format
	frameDuration time.Duration
	pump          *pump
	log           zerolog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	closed  bool
}

// NewPortAudioSource creates a microphone source. queueSize bounds the
// number of frames buffered between capture and the consumer.
func NewPortAudioSource(format Format, frameDuration time.Duration, queueSize int) *PortAudioSource {
	logger := logging.WithComponent("audio.portaudio")
	return &PortAudioSource{
		format:        format,
		frameDuration: frameDuration,
		pump:          newPump(queueSize, logger),
		log:           logger,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start initializes PortAudio, opens the default input stream and starts
// the capture loop.
func (s *PortAudioSource) Start(ctx context.Context) error {
	if err := s.format.Validate(); err != nil {
		return &CaptureError{Op: "configure", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("audio: source already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return &CaptureError{Op: "initialize", Err: err}
	}

	s.buf = make([]int16, s.format.SamplesPerFrame(s.frameDuration)*s.format.Channels)
	stream, err := portaudio.OpenDefaultStream(s.format.Channels, 0, float64(s.format.SampleRate), len(s.buf), s.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return &CaptureError{Op: "open stream", Err: err}
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return &CaptureError{Op: "start stream", Err: err}
	}
	s.stream = stream
	s.started = true

	s.log.Info().
		Str("format", s.format.String()).
		Dur("frameDuration", s.frameDuration).
		Int("samplesPerFrame", len(s.buf)).
		Msg("Listening for speech")

	go s.loop(ctx)
	return nil
}

func (s *PortAudioSource) loop(ctx context.Context) {
	defer close(s.doneCh)
	for {
		select {
		case <-ctx.Done():
			s.pump.finish(nil)
			return
		case <-s.stopCh:
			s.pump.finish(nil)
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				// Device status warning; the buffer still holds a full frame.
				s.log.Warn().Err(err).Msg("Audio status")
			} else {
				s.log.Error().Err(err).Msg("Audio capture failed")
				s.pump.finish(&CaptureError{Op: "read", Err: err})
				return
			}
		}

		samples := make([]int16, len(s.buf))
		copy(samples, s.buf)
		s.pump.deliver(samples, s.format.SampleRate)
	}
}

// Frames returns the delivery channel.
func (s *PortAudioSource) Frames() <-chan Frame { return s.pump.frames }

// Err returns the capture error that ended the stream, if any.
func (s *PortAudioSource) Err() error { return s.pump.error() }

// Format returns the captured format.
func (s *PortAudioSource) Format() Format { return s.format }

// Close stops the capture loop, then closes the stream and terminates
// PortAudio. The loop exits within one frame duration.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if !started {
		s.pump.finish(nil)
		return nil
	}

	close(s.stopCh)
	<-s.doneCh

	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping stream: %w", err))
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminating portaudio: %w", err))
	}
	s.log.Debug().Msg("Audio capture closed")
	return errors.Join(errs...)
}

// Player plays mono 16-bit PCM.
type Player interface {
	Play(ctx context.Context, samples []int16, format Format) error
}

// PortAudioPlayer plays audio on the default output device.
type PortAudioPlayer struct {
	frameDuration time.Duration
}

// NewPortAudioPlayer creates a player that writes blocks of frameDuration.
func NewPortAudioPlayer(frameDuration time.Duration) *PortAudioPlayer {
	if frameDuration <= 0 {
		frameDuration = 50 * time.Millisecond
	}
	return &PortAudioPlayer{frameDuration: frameDuration}
}

// Play blocks until all samples were written or ctx is done.
func (p *PortAudioPlayer) Play(ctx context.Context, samples []int16, format Format) error {
	if err := format.Validate(); err != nil {
		return err
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer portaudio.Terminate()

	buf := make([]int16, format.SamplesPerFrame(p.frameDuration))
	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(samples); off += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, samples[off:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

// Device describes an audio device.
type Device struct {
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	DefaultInput      bool
	DefaultOutput     bool
}

// ListDevices returns the audio devices known to PortAudio.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: listing devices: %w", err)
	}
	defIn, _ := portaudio.DefaultInputDevice()
	defOut, _ := portaudio.DefaultOutputDevice()

	devices := make([]Device, 0, len(infos))
	for _, d := range infos {
		dev := Device{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			DefaultInput:      defIn != nil && defIn.Name == d.Name,
			DefaultOutput:     defOut != nil && defOut.Name == d.Name,
		}
		if d.HostApi != nil {
			dev.HostAPI = d.HostApi.Name
		}
		devices = append(devices, dev)
	}
	return devices, nil
}
