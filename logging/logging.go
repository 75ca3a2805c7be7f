// Package logging configures the process-wide zap logger.
package logging

import "go.uber.org/zap"

// New returns a sugared logger. Development mode uses the console encoder
// with human-readable timestamps; production emits JSON.
func New(dev bool) *zap.SugaredLogger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}
