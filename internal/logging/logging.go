package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a logrus logger writing text output to stderr at the given level.
// Unknown levels fall back to info.
func New(level string) *logrus.Logger {
	return NewWithOutput(level, os.Stderr)
}

// NewWithOutput is like New but writes to w.
func NewWithOutput(level string, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithField("level", level).Warn("Logging: unknown log level, using info")
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return logger
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
