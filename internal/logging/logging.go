// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = newLogger(os.Stderr)

// newLogger returns a text logger writing to w.
func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Setup applies the configured level. debug forces the debug level.
func Setup(level string, debug bool) error {
	if debug {
		base.SetLevel(logrus.DebugLevel)
		return nil
	}
	level = strings.TrimSpace(level)
	if level == "" {
		base.SetLevel(logrus.InfoLevel)
		return nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	base.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// Logger returns the shared logger.
func Logger() *logrus.Logger {
	return base
}

// For returns a logger tagged with a component name.
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}
