package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type teeSink []Sink

// Tee returns a Sink that writes every batch to each of sinks in turn. A
// single sink is returned unchanged.
func Tee(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return teeSink(sinks)
}

func (t teeSink) Name() string {
	names := make([]string, len(t))
	for i, s := range t {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Write continues past a failing sink and returns all errors joined.
func (t teeSink) Write(ctx context.Context, records []Record) error {
	var errs []error
	for _, s := range t {
		if err := s.Write(ctx, records); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
