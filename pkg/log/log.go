/** Copyright 2020-2023 Alibaba Group Holding Limited.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package log wraps a logr.Logger backed by zap, the way the teacher's
// pkg/common/log does, but without controller-runtime's delegating
// sink: this library has no controller-manager to defer logger
// construction to, so the zap logger is built eagerly at package init
// and SetLogger simply swaps it out.
package log

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log = Logger{makeDefaultLogger(0)}

func makeDefaultLogger(verbose int) logr.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbose))
	zl, err := cfg.Build()
	if err != nil {
		zl = zap.NewNop()
	}
	return zapr.NewLogger(zl).WithName("plasma")
}

// SetLogLevel rebuilds the default logger at the given verbosity
// (higher is more verbose, following logr's convention).
func SetLogLevel(level int) {
	Log = Logger{makeDefaultLogger(level)}
}

type Logger struct {
	logr.Logger
}

// SetLogger installs a concrete logging implementation, e.g. one
// wired to the host application's own zap instance.
func SetLogger(l Logger) {
	Log = l
}

// FromContext returns a logger with predefined values from a
// context.Context, falling back to the package logger.
func FromContext(ctx context.Context, keysAndValues ...any) Logger {
	l := Log.Logger
	if ctx != nil {
		if logger, err := logr.FromContext(ctx); err == nil {
			l = logger
		}
	}
	return Logger{l.WithValues(keysAndValues...)}
}

// IntoContext stores log into ctx for later retrieval via FromContext.
func IntoContext(ctx context.Context, log Logger) context.Context {
	return logr.NewContext(ctx, log.Logger)
}

func V(level int) Logger {
	return Logger{Log.V(level)}
}

func WithValues(keysAndValues ...any) Logger {
	return Logger{Log.WithValues(keysAndValues...)}
}

func WithName(name string) Logger {
	return Logger{Log.WithName(name)}
}

func (l Logger) Fatal(err error, msg string, keysAndValues ...any) {
	l.Error(err, msg, keysAndValues...)
	os.Exit(1)
}

func (l Logger) Infof(format string, v ...any) {
	l.Info(fmt.Sprintf(format, v...))
}

func (l Logger) Errorf(err error, format string, v ...any) {
	l.Error(err, fmt.Sprintf(format, v...))
}

func (l Logger) Fatalf(err error, format string, v ...any) {
	l.Fatal(err, fmt.Sprintf(format, v...))
}

func Info(msg string, keysAndValues ...any) {
	Log.Info(msg, keysAndValues...)
}

func Error(err error, msg string, keysAndValues ...any) {
	Log.Error(err, msg, keysAndValues...)
}

func Fatal(err error, msg string, keysAndValues ...any) {
	Log.Fatal(err, msg, keysAndValues...)
}

func Infof(format string, v ...any) {
	Log.Infof(format, v...)
}

func Errorf(err error, format string, v ...any) {
	Log.Errorf(err, format, v...)
}

func Fatalf(err error, format string, v ...any) {
	Log.Fatalf(err, format, v...)
}
