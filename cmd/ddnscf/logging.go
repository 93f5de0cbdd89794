package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

func newLogger(cfg LogConfig, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q: expected \"text\" or \"json\"", cfg.Format)
	}

	if cfg.Syslog {
		hook, err := syslogHook()
		if err != nil {
			return nil, fmt.Errorf("connecting to syslog: %w", err)
		}
		logger.AddHook(hook)
	}
	return logger, nil
}
