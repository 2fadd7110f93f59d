// Package logging provides structured, context-scoped logging for the
// service, backed by logrus.
package logging

import (
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey struct{}

var global = newLogger("info", "text")

func newLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(parseLevel(level))
	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func parseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// Init configures the global logger. Format is "json" or "text".
func Init(level, format string) {
	global = newLogger(level, format)
}

// L returns the global logger as an entry ready for WithField chaining.
func L() *logrus.Entry {
	return logrus.NewEntry(global)
}

// WithContext stores a logger entry in the context so downstream calls share
// its fields (request id, wallet, ...).
func WithContext(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, contextKey{}, entry)
}

// FromContext returns the logger stored in ctx, or the global logger.
func FromContext(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(contextKey{}).(*logrus.Entry); ok {
		return entry
	}
	return L()
}
