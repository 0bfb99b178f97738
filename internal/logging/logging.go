package logging

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger. Unknown levels fall back to
// info; format is "json" or anything else for text.
func Setup(level, format string) {
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
