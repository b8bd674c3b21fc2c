package logger

import (
	"os"
	"strings"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

type Config struct {
	Service string
	Version string
	// Level is one of debug, info, warn or error. Anything else means info.
	Level string
	// Format is logfmt or json
	Format string
}

// New creates a new structured logger using go-kit/log
func New(config Config) kitlog.Logger {
	// logfmt by default, human readable and easy to parse by log aggregators like datadog, ELK stack etc.
	var logger kitlog.Logger
	if strings.EqualFold(config.Format, "json") {
		logger = kitlog.NewJSONLogger(kitlog.NewSyncWriter(os.Stderr))
	} else {
		logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	}
	logger = level.NewFilter(logger, levelOption(config.Level))
	// Add timestamp with UTC timezone
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
	// Add caller information, which is the file and line number of the code that called the logger
	logger = kitlog.With(logger, "caller", kitlog.DefaultCaller)
	logger = kitlog.With(logger, "service", config.Service, "version", config.Version)
	return logger
}

func levelOption(s string) level.Option {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return level.AllowDebug()
	case "warn", "warning":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	}
	return level.AllowInfo()
}
