// Package i18n holds the notification texts sent to destinations.
package i18n

import (
	"strings"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
)

// Catalog keys.
const (
	Started        = "started"
	Stopped        = "stopped"
	MotionDetected = "motion_detected"
)

// TimeLayout formats the {time} placeholder.
const TimeLayout = "2006-01-02 15:04:05"

var defaults = map[string]string{
	"started.subject":         "Motion relay started",
	"started.message":         "Motion relay started",
	"stopped.subject":         "Motion relay stopped",
	"stopped.message":         "Motion relay stopped",
	"motion_detected.subject": "Motion relay - Alert",
	"motion_detected.message": "Motion detected on {time}.",
}

// Catalog resolves texts from overrides first, then the built-in entries.
type Catalog struct {
	entries map[string]string
	log     logger.ILogger
}

// Notice is a subject and message pair.
type Notice struct {
	Subject string
	Message string
}

// New creates a catalog. Empty override values are ignored.
func New(overrides map[string]string, log logger.ILogger) *Catalog {
	entries := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		entries[k] = v
	}
	for k, v := range overrides {
		if v == "" {
			continue
		}
		entries[strings.ToLower(k)] = v
	}
	return &Catalog{entries: entries, log: log.SubLogger("I18n")}
}

// Get returns the text for key, or "" when it is unknown.
func (c *Catalog) Get(key string) string {
	v, ok := c.entries[key]
	if !ok {
		c.log.Warningf("missing text: key=%s", key)
	}
	return v
}

// Notice returns the subject and message for key with {time} replaced by at.
func (c *Catalog) Notice(key string, at time.Time) Notice {
	r := strings.NewReplacer("{time}", at.Format(TimeLayout))
	return Notice{
		Subject: r.Replace(c.Get(key + ".subject")),
		Message: r.Replace(c.Get(key + ".message")),
	}
}
