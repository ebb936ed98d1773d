// File: internal/log/log.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Tagged logrus entries for the core subsystems.

package log

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

func init() {
	logrus.SetLevel(logrus.InfoLevel)
	if raw := os.Getenv("COLLABIO_LOG_LEVEL"); raw != "" {
		if level, err := logrus.ParseLevel(strings.ToLower(raw)); err == nil {
			logrus.SetLevel(level)
		}
	}
	logrus.AddHook(new(TaggedHook))
}

// NewLogger returns a logger entry tagged with the subsystem name.
func NewLogger(tag string) *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger()).WithField("tag", tag)
}

// TaggedHook folds the tag field into the message prefix.
type TaggedHook struct{}

func (h *TaggedHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *TaggedHook) Fire(entry *logrus.Entry) error {
	if tagObj, loaded := entry.Data["tag"]; loaded {
		tag := tagObj.(string)
		delete(entry.Data, "tag")
		entry.Message = "[" + tag + "]: " + entry.Message
	}
	return nil
}
