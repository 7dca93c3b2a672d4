package cli

import (
	"io"
	"strings"

	"github.com/GabrielNunesIT/go-libs/logger"
)

// SetupLogging creates the process logger on w and installs it as the
// default. Unknown levels fall back to info.
func SetupLogging(level string, w io.Writer) logger.ILogger {
	log := logger.NewConsoleLogger(w)

	known := true
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		log.SetLevel(logger.LevelTrace)
	case "debug":
		log.SetLevel(logger.LevelDebug)
	case "warn", "warning":
		log.SetLevel(logger.LevelWarning)
	case "error":
		log.SetLevel(logger.LevelError)
	case "info", "":
		log.SetLevel(logger.LevelInfo)
	default:
		known = false
		log.SetLevel(logger.LevelInfo)
	}

	logger.SetDefaultLogger(log)
	logger.SetCtxFallbackLogger(log)

	if !known {
		log.Warningf("unknown log level %q, using info", level)
	}
	return log
}
