package common

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// SetupLogging configures the process wide logger. format is "text" or
// "json"; an empty level keeps info.
func SetupLogging(level, format string, out io.Writer) error {
	if out == nil {
		out = os.Stderr
	}
	log.SetOutput(out)

	switch format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(lvl)
	return nil
}

// Logger returns an entry tagged with the component name.
func Logger(component string) *log.Entry {
	return log.WithField("component", component)
}
