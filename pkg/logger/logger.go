package logger

import (
	"go.uber.org/zap"
)

type Config struct {
	Development bool
}

// New builds a sugared logger; development mode enables console encoding
// and debug level.
func New(cfg Config) (*zap.SugaredLogger, error) {
	var l *zap.Logger
	var err error
	if cfg.Development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Nop returns a logger that discards everything. Used by tests and as a
// default when callers pass nil.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
