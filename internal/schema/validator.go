// Package schema validates dashboard events before they leave the service.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"emergency-dispatch-service/internal/models"
)

// Validator checks transcript updates against a JSON schema derived from
// models.TranscriptUpdate.
type Validator struct {
	resolved *jsonschema.Resolved
}

// New builds the transcript update schema.
func New() (*Validator, error) {
	s, err := jsonschema.For[models.TranscriptUpdate](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("infer transcript schema: %w", err)
	}

	role, ok := s.Properties["role"]
	if !ok {
		return nil, fmt.Errorf("transcript schema has no role property")
	}
	role.Enum = []any{models.RoleCaller, models.RoleDispatcher}

	if ts, ok := s.Properties["timestamp"]; ok {
		ts.Pattern = `^\d{2}:\d{2}:\d{2}$`
	}
	if msg, ok := s.Properties["message"]; ok {
		minLen := 1
		msg.MinLength = &minLen
	}

	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve transcript schema: %w", err)
	}
	return &Validator{resolved: resolved}, nil
}

// MustNew is New for package initialization; it panics on error.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks one event.
func (v *Validator) Validate(event models.TranscriptUpdate) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	var instance map[string]any
	if err := json.Unmarshal(b, &instance); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	if err := v.resolved.Validate(instance); err != nil {
		return fmt.Errorf("invalid transcript update: %w", err)
	}
	return nil
}
