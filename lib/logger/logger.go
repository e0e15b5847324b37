package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// --------------------------------------------------------------------------
// Root Logger
// --------------------------------------------------------------------------

var (
	rootOnce sync.Once
	root     *logrus.Logger
)

// rootLogger lazily builds the process-wide logger all components share.
func rootLogger() *logrus.Logger {
	rootOnce.Do(func() {
		root = logrus.New()
		root.SetLevel(logrus.InfoLevel)
		root.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	})
	return root
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// GetLogger returns a logger entry scoped to the named component.
// Components declare a package-level variable:
//
//	var log = logger.GetLogger("cache")
//
// and log through it with log.Infof / log.WithFields.
func GetLogger(component string) *logrus.Entry {
	return rootLogger().WithField("component", component)
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetLevel adjusts the level of the shared root logger.
// Accepted levels are debug, info, warn and error.
func SetLevel(level string) error {
	parsed, err := parseLogLevel(level)
	if err != nil {
		return err
	}
	rootLogger().SetLevel(parsed)
	return nil
}

// SetOutput redirects all log output, used by the CLI and by tests.
func SetOutput(w io.Writer) {
	rootLogger().SetOutput(w)
}

// parseLogLevel converts a string level to a logrus.Level
func parseLogLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warning", "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}
