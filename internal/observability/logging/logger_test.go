package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInit_ParsesLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := []struct {
		level    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			Init(Config{Level: tt.level, Format: "json"})
			if got := zerolog.GlobalLevel(); got != tt.expected {
				t.Errorf("Init(%q) level = %v, want %v", tt.level, got, tt.expected)
			}
		})
	}
}

func TestInit_SameConfigKeepsLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := Config{Level: "warn", Format: "json"}
	Init(cfg)

	// A logger swapped in after Init survives a repeat with the same config.
	log.Logger = zerolog.Nop()
	Init(cfg)
	if log.Logger.GetLevel() != zerolog.Disabled {
		t.Error("expected Init with an unchanged config to leave the logger alone")
	}

	Init(Config{Level: "debug", Format: "json"})
	if log.Logger.GetLevel() == zerolog.Disabled {
		t.Error("expected Init with a new config to replace the logger")
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level, got %v", zerolog.GlobalLevel())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %s", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got %s", cfg.Format)
	}
}
