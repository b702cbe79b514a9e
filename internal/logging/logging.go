// Package logging provides the engine's package-level structured
// logger, matching the logrus conventions used throughout the
// teacher's syncapi (util.GetLogger(ctx).WithField(...)), adapted to
// a library with no per-request HTTP context of its own.
package logging

import "github.com/sirupsen/logrus"

var base = logrus.StandardLogger()

// Logger returns the engine's base logger. Callers attach their own
// component/room_id/user_id fields via WithField/WithFields.
func Logger() *logrus.Logger { return base }

// SetLogger overrides the base logger, e.g. so a host process can
// inject its own formatter/output/level.
func SetLogger(l *logrus.Logger) { base = l }
