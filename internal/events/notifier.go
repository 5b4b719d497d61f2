package events

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"emergency-dispatch-service/internal/models"
)

// Notifier receives every transcript update of a session.
type Notifier interface {
	Notify(ctx context.Context, u models.TranscriptUpdate) error
}

// Validator checks an update before it is sent anywhere.
type Validator interface {
	Validate(u models.TranscriptUpdate) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, u models.TranscriptUpdate) error

func (f NotifierFunc) Notify(ctx context.Context, u models.TranscriptUpdate) error {
	return f(ctx, u)
}

// Fanout validates an update and delivers it to every sink. A failing sink
// does not stop delivery to the others.
type Fanout struct {
	validator Validator
	sinks     []Notifier
}

// NewFanout creates a fanout. A nil validator skips validation.
func NewFanout(v Validator, sinks ...Notifier) *Fanout {
	return &Fanout{validator: v, sinks: sinks}
}

func (f *Fanout) Notify(ctx context.Context, u models.TranscriptUpdate) error {
	if f.validator != nil {
		if err := f.validator.Validate(u); err != nil {
			log.Error().Err(err).Str("sessionId", u.SessionID).Str("role", u.Role).Msg("Dropping invalid transcript update")
			return err
		}
	}

	var errs []error
	for _, s := range f.sinks {
		if err := s.Notify(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
