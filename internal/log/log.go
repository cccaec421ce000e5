// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the structured and standard loggers used across the
// toolbox process.
package log

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used throughout the server.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)

	DebugContext(ctx context.Context, msg string)
	InfoContext(ctx context.Context, msg string)
	WarnContext(ctx context.Context, msg string)
	ErrorContext(ctx context.Context, msg string)
}

// SeverityToLevel converts a toolbox log level string to a zapcore.Level.
func SeverityToLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", level)
	}
}

type zapLogger struct {
	l *zap.Logger
}

// NewStructuredLogger returns a Logger that writes one JSON object per line.
func NewStructuredLogger(outW, errW io.Writer, level string) (Logger, error) {
	lvl, err := SeverityToLevel(level)
	if err != nil {
		return nil, err
	}
	core := newCore(outW, errW, lvl, zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()))
	return &zapLogger{l: zap.New(core)}, nil
}

// NewStdLogger returns a Logger that writes human-readable lines.
func NewStdLogger(outW, errW io.Writer, level string) (Logger, error) {
	lvl, err := SeverityToLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := newCore(outW, errW, lvl, zapcore.NewConsoleEncoder(cfg))
	return &zapLogger{l: zap.New(core)}, nil
}

func newCore(outW, errW io.Writer, minLevel zapcore.Level, enc zapcore.Encoder) zapcore.Core {
	infoAndBelow := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= minLevel && l < zapcore.ErrorLevel
	})
	errorAndAbove := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= minLevel && l >= zapcore.ErrorLevel
	})
	return zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.AddSync(outW), infoAndBelow),
		zapcore.NewCore(enc, zapcore.AddSync(errW), errorAndAbove),
	)
}

func (z *zapLogger) Debug(msg string) { z.l.Debug(msg) }
func (z *zapLogger) Info(msg string)  { z.l.Info(msg) }
func (z *zapLogger) Warn(msg string)  { z.l.Warn(msg) }
func (z *zapLogger) Error(msg string) { z.l.Error(msg) }

func (z *zapLogger) DebugContext(_ context.Context, msg string) { z.l.Debug(msg) }
func (z *zapLogger) InfoContext(_ context.Context, msg string)  { z.l.Info(msg) }
func (z *zapLogger) WarnContext(_ context.Context, msg string)  { z.l.Warn(msg) }
func (z *zapLogger) ErrorContext(_ context.Context, msg string) { z.l.Error(msg) }
