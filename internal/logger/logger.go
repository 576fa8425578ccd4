// Package logger configures the process-wide zap logger.  All other
// packages log through zap.L() so tests and tools get a working no-op
// logger without any setup.
package logger

import (
	"go.uber.org/zap"
)

// Init builds the global logger for the given environment and installs it
// via zap.ReplaceGlobals.  "prod" gets sampled JSON output, everything
// else a human-readable development config.
func Init(env string) error {
	var (
		l   *zap.Logger
		err error
	)
	if env == "prod" || env == "production" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(l)
	return nil
}
