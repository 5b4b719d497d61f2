// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Service       ServiceConfig
	Audio         AudioConfig
	Segmenter     SegmenterConfig
	Dialogue      DialogueConfig
	OpenAI        OpenAIConfig
	STT           STTConfig
	TTS           TTSConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name      string
	Principal string
	HTTPPort  string
	AdminPort string
	GRPCPort  string
	TempDir   string
}

type AudioConfig struct {
	Source        string // portaudio | wav
	WAVPath       string
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
	FrameQueue    int
	Playback      bool
}

type SegmenterConfig struct {
	SpeechThreshold     float64
	SilenceDuration     time.Duration
	MinUtterance        time.Duration
	MaxSegmentDuration  time.Duration
	TrimTrailingSilence bool
	SegmentQueue        int
}

type DialogueConfig struct {
	AssistantID  string
	PollInterval time.Duration
	Timeout      time.Duration
	Fallback     string
	Greeting     string
}

type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	SpeechModel        string
	Voice              string
}

type STTConfig struct {
	Provider      string // openai | google | mock
	LanguageCode  string
	AudioEncoding string
}

type TTSConfig struct {
	Provider string // openai | none
}

type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	Principal string
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads the configuration from environment variables, falling back
// to defaults for unset or unparsable values.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-emergency-dispatch")

	return &Config{
		Service: ServiceConfig{
			Name:      envOrDefault("SERVICE_NAME", "emergency-dispatch-service"),
			Principal: principal,
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
			AdminPort: envOrDefault("ADMIN_PORT", "9090"),
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
			TempDir:   envOrDefault("SESSION_TEMP_DIR", ""),
		},
		Audio: AudioConfig{
			Source:        envOrDefault("AUDIO_SOURCE", "portaudio"),
			WAVPath:       envOrDefault("AUDIO_WAV_PATH", ""),
			SampleRate:    envOrDefaultInt("AUDIO_SAMPLE_RATE", 16000),
			Channels:      envOrDefaultInt("AUDIO_CHANNELS", 1),
			FrameDuration: envOrDefaultDuration("AUDIO_FRAME_DURATION", 50*time.Millisecond),
			FrameQueue:    envOrDefaultInt("AUDIO_FRAME_QUEUE", 64),
			Playback:      envOrDefaultBool("AUDIO_PLAYBACK", true),
		},
		Segmenter: SegmenterConfig{
			SpeechThreshold:     envOrDefaultFloat("SEGMENT_SPEECH_THRESHOLD", 700),
			SilenceDuration:     envOrDefaultDuration("SEGMENT_SILENCE_DURATION", 1500*time.Millisecond),
			MinUtterance:        envOrDefaultDuration("SEGMENT_MIN_DURATION", 50*time.Millisecond),
			MaxSegmentDuration:  envOrDefaultDuration("SEGMENT_MAX_DURATION", 60*time.Second),
			TrimTrailingSilence: envOrDefaultBool("SEGMENT_TRIM_TRAILING_SILENCE", false),
			SegmentQueue:        envOrDefaultInt("SEGMENT_QUEUE", 8),
		},
		Dialogue: DialogueConfig{
			AssistantID:  envOrDefault("DIALOGUE_ASSISTANT_ID", ""),
			PollInterval: envOrDefaultDuration("DIALOGUE_POLL_INTERVAL", 500*time.Millisecond),
			Timeout:      envOrDefaultDuration("DIALOGUE_TIMEOUT", 30*time.Second),
			Fallback:     envOrDefault("DIALOGUE_FALLBACK", "I'm experiencing technical difficulties. Please hold."),
			Greeting:     envOrDefault("DIALOGUE_GREETING", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey:             envOrDefault("OPENAI_API_KEY", ""),
			BaseURL:            envOrDefault("OPENAI_BASE_URL", ""),
			TranscriptionModel: envOrDefault("OPENAI_TRANSCRIPTION_MODEL", "whisper-1"),
			SpeechModel:        envOrDefault("OPENAI_SPEECH_MODEL", "tts-1"),
			Voice:              envOrDefault("OPENAI_VOICE", "alloy"),
		},
		STT: STTConfig{
			Provider:      envOrDefault("STT_PROVIDER", "openai"),
			LanguageCode:  envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			AudioEncoding: envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
		},
		TTS: TTSConfig{
			Provider: envOrDefault("TTS_PROVIDER", "openai"),
		},
		Kafka: KafkaConfig{
			Enabled:   envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:   envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:     envOrDefault("KAFKA_TOPIC", "dispatch.transcript.update"),
			Principal: envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

// LoadEnvFiles loads variables from .env files into the environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
