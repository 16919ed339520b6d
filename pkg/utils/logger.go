package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var (
	ModName = "utils"
	log     = logrus.WithField(
		"module", ModName,
	)
	DefaultLoglvl    = logrus.InfoLevel
	DefaultLogOutput = os.Stderr // stdout is kept for the report
)

// ParseLogLevel accepts any logrus level name, falling back to info.
func ParseLogLevel(lvl string) logrus.Level {
	level, err := logrus.ParseLevel(lvl)
	if err != nil {
		return DefaultLoglvl
	}
	return level
}

func ParseLogOutput(out string) io.Writer {
	switch out {
	case "stdout", "terminal":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		return DefaultLogOutput
	}
}

// ParseLogFormatter returns a timestamped text formatter unless json is asked for.
func ParseLogFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
	}
	return &logrus.TextFormatter{FullTimestamp: true}
}
