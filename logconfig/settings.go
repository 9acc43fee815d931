package logconfig

import (
	log "github.com/sirupsen/logrus"
)

// This output format is used when hacking on the daemon (has terminal).
func ConfigDebugLogger() {
	log.SetReportCaller(true)
	log.SetLevel(log.DebugLevel)
	log.SetFormatter(&log.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

// ConfigProductionLogger applies the level from the configuration file and
// keeps the default timestamped format.
func ConfigProductionLogger(level string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Unknown log level '%s', using 'info'", level)
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}
