package config

import (
	"github.com/sirupsen/logrus"
)

// NewLogger creates a new logger instance with consistent formatting
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(parseLevel(level))
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	return logger
}

// ConfigureGlobalLogger configures the global logrus instance
func ConfigureGlobalLogger(level string) {
	logrus.SetLevel(parseLevel(level))
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
