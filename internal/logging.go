package internal

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewNullLogger returns a logger whose output is discarded. It is used when
// callers do not supply a logger of their own.
func NewNullLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
