package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/loginguard/internal/models"
)

// EventSink durably stores security events
type EventSink interface {
	Name() string
	Write(ctx context.Context, ev *models.SecurityEvent) error
}

// SinkError records which sink failed a write
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%s sink: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() []error {
	return []error{models.ErrStorageWrite, e.Err}
}

// MultiSink writes every event to all of its sinks
type MultiSink struct {
	sinks []EventSink
}

// NewMultiSink creates a MultiSink; nil sinks are skipped
func NewMultiSink(sinks ...EventSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Name implements EventSink
func (m *MultiSink) Name() string {
	return "multi"
}

// Len returns the number of configured sinks
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// Write attempts every sink even when an earlier one fails and joins the failures
func (m *MultiSink) Write(ctx context.Context, ev *models.SecurityEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, ev); err != nil {
			errs = append(errs, &SinkError{Sink: s.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// FailedSinks lists the sink names found in err
func FailedSinks(err error) []string {
	if err == nil {
		return nil
	}
	var names []string
	var walk func(error)
	walk = func(e error) {
		switch v := e.(type) {
		case *SinkError:
			names = append(names, v.Sink)
		case interface{ Unwrap() []error }:
			for _, inner := range v.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)
	return names
}
