// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package telemetry is the pipeline's structured logging surface: a
// small ILogger-shaped interface backed by go.uber.org/zap, scaled down
// to the handful of call sites the module has (engine start-up in
// scanengine and configuration reloads in scanconfig) rather than a full
// multi-backend logger manager.
package telemetry

import "go.uber.org/zap"

// Logger is the structured logging interface business code in this
// module is written against, mirroring the Infow/Warnw/Errorw call
// shape of arcentrix-arcentra's ILogger.
type Logger interface {
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

// Errorf is a package-level diagnostic hook an embedding service can set
// to capture pipeline diagnostics without taking the zap dependency,
// grounded on SnellerInc-sneller/vm.Errorf.
var Errorf func(format string, args ...any)

func errorf(format string, args ...any) {
	if Errorf != nil {
		Errorf(format, args...)
	}
}

// zapLogger adapts a zap.SugaredLogger to Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds a production zap-backed Logger.
func New() (Logger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapLogger{s: l.Sugar()}, nil
}

// NewNop returns a Logger that discards everything, for tests and
// callers that haven't configured logging.
func NewNop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func (z *zapLogger) Infow(msg string, keysAndValues ...any) {
	z.s.Infow(msg, keysAndValues...)
}

func (z *zapLogger) Warnw(msg string, keysAndValues ...any) {
	z.s.Warnw(msg, keysAndValues...)
	errorf("scanexec: %s", msg)
}

func (z *zapLogger) Errorw(msg string, keysAndValues ...any) {
	z.s.Errorw(msg, keysAndValues...)
	errorf("scanexec: %s", msg)
}
