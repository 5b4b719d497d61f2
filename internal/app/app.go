package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"emergency-dispatch-service/internal/config"
	"emergency-dispatch-service/internal/events"
	"emergency-dispatch-service/internal/observability/logging"
	"emergency-dispatch-service/internal/schema"
	"emergency-dispatch-service/internal/service/audio"
	"emergency-dispatch-service/internal/service/dialogue"
	"emergency-dispatch-service/internal/service/segment"
	"emergency-dispatch-service/internal/service/stt"
	"emergency-dispatch-service/internal/service/stt/google"
	"emergency-dispatch-service/internal/service/stt/mock"
	"emergency-dispatch-service/internal/service/stt/whisper"
	"emergency-dispatch-service/internal/service/tts"
	"emergency-dispatch-service/internal/session"
)

// SourceFactory opens the audio input for a new session.
type SourceFactory func(sessionId string) (audio.FrameSource, error)

// SpeakerFactory builds the speech output for a session.
type SpeakerFactory func(sessionId string, ws tts.Workspace) tts.Speaker

// Option overrides a collaborator the application would otherwise build
// from configuration.
type Option func(*Application)

// WithTranscriber replaces the configured STT provider.
func WithTranscriber(t stt.Transcriber) Option {
	return func(a *Application) { a.transcriber = t }
}

// WithAssistant replaces the OpenAI assistant.
func WithAssistant(as dialogue.Assistant) Option {
	return func(a *Application) { a.assistant = as }
}

// WithSourceFactory replaces the configured audio source.
func WithSourceFactory(f SourceFactory) Option {
	return func(a *Application) { a.newSource = f }
}

// WithSpeakerFactory replaces the configured TTS provider.
func WithSpeakerFactory(f SpeakerFactory) Option {
	return func(a *Application) { a.newSpeaker = f }
}

// WithSinks adds transcript update sinks next to the dashboard hub and
// the Kafka publisher.
func WithSinks(sinks ...events.Notifier) Option {
	return func(a *Application) { a.sinks = append(a.sinks, sinks...) }
}

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Registry  *session.Registry
	Hub       *events.Hub
	Publisher *events.Publisher
	Notifier  events.Notifier

	openai      *openai.Client
	transcriber stt.Transcriber
	assistant   dialogue.Assistant
	newSource   SourceFactory
	newSpeaker  SpeakerFactory
	sinks       []events.Notifier
	ids         *segment.Generator
	closers     []func() error
}

// New constructs a new Application from the provided configuration.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Application, error) {
	a := &Application{
		Cfg: cfg,
		ids: segment.NewGenerator(),
	}
	a.setupLogger()
	for _, opt := range opts {
		opt(a)
	}

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	validator, err := schema.New()
	if err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}

	a.Hub = events.NewHub()
	a.Publisher = events.NewPublisher(&events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		Principal: cfg.Kafka.Principal,
	})
	a.closers = append(a.closers, a.Hub.Close, a.Publisher.Close)
	a.Notifier = events.NewFanout(validator, append([]events.Notifier{a.Hub, a.Publisher}, a.sinks...)...)

	if err := a.buildProviders(ctx); err != nil {
		a.Shutdown()
		return nil, err
	}

	a.Registry = session.NewRegistry()
	a.Hub.OnCommand(a.HandleCommand)

	appLogger.Info().
		Str("stt", a.transcriber.Name()).
		Str("tts", cfg.TTS.Provider).
		Str("audio", cfg.Audio.Source).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Emergency dispatch application created")
	return a, nil
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:  a.Cfg.Observability.LogLevel,
		Format: a.Cfg.Observability.LogFormat,
	})

	a.Logger = logging.WithComponent("application").With().
		Str("service", a.Cfg.Service.Name).
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

func (a *Application) buildProviders(ctx context.Context) error {
	cfg := a.Cfg

	needsOpenAI := a.assistant == nil ||
		(a.transcriber == nil && cfg.STT.Provider == "openai") ||
		(a.newSpeaker == nil && cfg.TTS.Provider == "openai")
	if needsOpenAI {
		a.openai = newOpenAIClient(cfg.OpenAI)
	}

	if a.transcriber == nil {
		t, err := a.buildTranscriber(ctx)
		if err != nil {
			return err
		}
		a.transcriber = t
	}

	if a.assistant == nil {
		if cfg.Dialogue.AssistantID == "" {
			return errors.New("DIALOGUE_ASSISTANT_ID is required")
		}
		a.assistant = dialogue.NewOpenAIAssistant(a.openai, cfg.Dialogue.AssistantID)
	}

	if a.newSpeaker == nil {
		s, err := a.buildSpeakerFactory()
		if err != nil {
			return err
		}
		a.newSpeaker = s
	}

	if a.newSource == nil {
		s, err := a.buildSourceFactory()
		if err != nil {
			return err
		}
		a.newSource = s
	}
	return nil
}

func newOpenAIClient(cfg config.OpenAIConfig) *openai.Client {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &client
}

func (a *Application) buildTranscriber(ctx context.Context) (stt.Transcriber, error) {
	switch a.Cfg.STT.Provider {
	case "openai":
		return whisper.New(a.openai, whisper.Config{
			Model:    a.Cfg.OpenAI.TranscriptionModel,
			Language: languageOf(a.Cfg.STT.LanguageCode),
		}), nil
	case "google":
		gc := google.DefaultConfig()
		gc.LanguageCode = a.Cfg.STT.LanguageCode
		gc.SampleRateHz = int32(a.Cfg.Audio.SampleRate)
		gc.AudioEncoding = a.Cfg.STT.AudioEncoding
		g, err := google.New(ctx, gc)
		if err != nil {
			return nil, fmt.Errorf("create google speech client: %w", err)
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	case "mock":
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", a.Cfg.STT.Provider)
	}
}

// languageOf maps a BCP-47 code such as en-US to the ISO-639-1 code
// Whisper accepts.
func languageOf(code string) string {
	if len(code) >= 2 {
		return code[:2]
	}
	return code
}

func (a *Application) buildSpeakerFactory() (SpeakerFactory, error) {
	switch a.Cfg.TTS.Provider {
	case "openai":
		var player audio.Player
		if a.Cfg.Audio.Playback {
			player = audio.NewPortAudioPlayer(a.Cfg.Audio.FrameDuration)
		}
		ttsCfg := tts.Config{Model: a.Cfg.OpenAI.SpeechModel, Voice: a.Cfg.OpenAI.Voice}
		return func(sessionId string, ws tts.Workspace) tts.Speaker {
			return tts.NewOpenAISpeaker(sessionId, a.openai, ttsCfg, ws, player)
		}, nil
	case "none", "":
		return func(sessionId string, _ tts.Workspace) tts.Speaker {
			return tts.NopSpeaker{Log: logging.WithSession(sessionId)}
		}, nil
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", a.Cfg.TTS.Provider)
	}
}

func (a *Application) buildSourceFactory() (SourceFactory, error) {
	ac := a.Cfg.Audio
	format := audio.Format{SampleRate: ac.SampleRate, Channels: ac.Channels, BitDepth: 16}
	switch ac.Source {
	case "portaudio":
		return func(string) (audio.FrameSource, error) {
			return audio.NewPortAudioSource(format, ac.FrameDuration, ac.FrameQueue), nil
		}, nil
	case "wav":
		if ac.WAVPath == "" {
			return nil, errors.New("AUDIO_WAV_PATH is required for the wav source")
		}
		return func(string) (audio.FrameSource, error) {
			return audio.NewWAVSource(ac.WAVPath, ac.FrameDuration, true, ac.FrameQueue), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown audio source %q", ac.Source)
	}
}

// SessionConfig returns the per-session settings derived from configuration.
func (a *Application) SessionConfig(id string) session.Config {
	c := a.Cfg
	return session.Config{
		ID:       id,
		TempRoot: c.Service.TempDir,
		Segmenter: segment.Options{
			SpeechThreshold:     c.Segmenter.SpeechThreshold,
			SilenceDuration:     c.Segmenter.SilenceDuration,
			MaxSegmentDuration:  c.Segmenter.MaxSegmentDuration,
			TrimTrailingSilence: c.Segmenter.TrimTrailingSilence,
		},
		MinUtterance: c.Segmenter.MinUtterance,
		Dialogue: dialogue.Options{
			PollInterval: c.Dialogue.PollInterval,
			Timeout:      c.Dialogue.Timeout,
			Fallback:     c.Dialogue.Fallback,
		},
		Greeting:     c.Dialogue.Greeting,
		SegmentQueue: c.Segmenter.SegmentQueue,
	}
}

// NewSession builds an unstarted session; it is the registry factory.
func (a *Application) NewSession(id string) (*session.Session, error) {
	src, err := a.newSource(id)
	if err != nil {
		return nil, fmt.Errorf("open audio source: %w", err)
	}
	return session.New(a.SessionConfig(id), session.Deps{
		Source:      src,
		Transcriber: a.transcriber,
		Assistant:   a.assistant,
		NewSpeaker:  a.newSpeaker,
		Notifier:    a.Notifier,
		IDs:         a.ids,
	}), nil
}

// StartCall starts a session under id, or under a fresh id when empty.
func (a *Application) StartCall(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	return a.Registry.Start(ctx, id, a.NewSession)
}

// EndCall stops the session registered under id.
func (a *Application) EndCall(id string) error {
	return a.Registry.Stop(id)
}

// HandleCommand serves start_call and end_call from dashboard websockets.
// The session is keyed by the connection id.
func (a *Application) HandleCommand(ctx context.Context, connID, event string) error {
	switch event {
	case events.EventStartCall:
		_, err := a.StartCall(ctx, connID)
		return err
	case events.EventEndCall:
		if err := a.EndCall(connID); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", event)
	}
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Emergency dispatch service starting")

	return nil
}

// Ready reports whether the service can accept a new call.
func (a *Application) Ready() bool {
	return !a.StartupTime.IsZero()
}

// Shutdown stops every call and releases the shared clients.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("Emergency dispatch service shutting down")
	if a.Registry != nil {
		a.Registry.StopAll()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Error releasing resource")
		}
	}
	a.closers = nil
}
