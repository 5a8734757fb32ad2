// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes updates to a logger. It is used when no broker is configured.
type LogSink struct {
	Logger *zap.Logger
}

// Publish implements Sink
func (s LogSink) Publish(_ context.Context, u Update) error {
	fields := make([]zap.Field, 0, len(u.Values)+1)
	fields = append(fields, zap.String("id", u.ID))
	for _, name := range u.Names() {
		fields = append(fields, zap.Any(name, u.Values[name]))
	}
	s.Logger.Info("telemetry", fields...)
	return nil
}

// MultiSink publishes to every sink, stopping at the first error
type MultiSink []Sink

// Publish implements Sink
func (m MultiSink) Publish(ctx context.Context, u Update) error {
	for _, s := range m {
		if err := s.Publish(ctx, u); err != nil {
			return err
		}
	}
	return nil
}
