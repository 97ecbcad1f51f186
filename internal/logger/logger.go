package logger

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Setup configures the global logger for the agent
func Setup(level string) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	SetLogLevel(level)
}

// SetLogLevel -
func SetLogLevel(level string) {
	if level == "" {
		return
	}
	l, err := log.ParseLevel(level)
	if err != nil {
		log.Errorf("Failed to set log level: %v", err)
		return
	}
	log.SetLevel(l)
	log.Debugf("Log level is %s", l)
}
