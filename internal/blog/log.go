// Package blog is bvisor's logging shim: a thin wrapper over logrus
// that stamps every line with the emitting component, the way LXD's
// shared/logger package stamps a subsystem prefix before handing off
// to its own backend.
package blog

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Component names used across the supervisor (spec.md §7: "human
// readable prefixes per component").
const (
	ComponentPrefork    = "prefork"
	ComponentGuest      = "guest"
	ComponentSupervisor = "supervisor"
)

// Logger is a component-scoped logger.
type Logger struct {
	entry *logrus.Entry
}

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if f := os.Stderr; term.IsTerminal(int(f.Fd())) {
		l.SetOutput(colorable.NewColorable(f))
	} else {
		l.SetOutput(os.Stderr)
	}

	return l
}

// New returns a Logger scoped to component.
func New(component string) *Logger {
	return &Logger{entry: base.WithField("component", component)}
}

// Discard returns a Logger that drops everything, for use in tests
// (spec.md §7: "in tests logging is suppressed").
func Discard(component string) *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{entry: l.WithField("component", component)}
}

func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// WithField returns a derived Logger carrying an extra structured field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}
