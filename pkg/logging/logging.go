// Package logging provides the structured logger used across carl, edgar
// and cleo. It mirrors the teacher's pkg/logging: a thin alias over
// logrus with a JSON formatter and a LOG_LEVEL-driven level.
package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/eclipse-opendut/opendut-sub001/pkg/config"
)

// Logger is the logger handle passed through constructors.
type Logger = *logrus.Logger

// Fields is a structured-logging field set.
type Fields = logrus.Fields

// NewLogger creates a configured logger instance.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(config.GetLogLevel())
	return logger
}

// NewLoggerWithService returns a logger configured like NewLogger. The
// service name is not attached to its entries: the entry built by
// WithField is discarded and its base logger is returned.
func NewLoggerWithService(serviceName string) *logrus.Logger {
	logger := NewLogger()
	return logger.WithField("service", serviceName).Logger
}
