package logger

import (
	"fmt"

	"go.uber.org/zap"

	"bpm-agent/internal/application/port/output"
)

var _ output.LoggerPort = (*ZapAdapter)(nil)

// ZapAdapter exposes a zap sugared logger through the port. Key/value
// pairs in args follow zap's With convention.
type ZapAdapter struct {
	sugar *zap.SugaredLogger
}

func New(development bool) (*ZapAdapter, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &ZapAdapter{sugar: l.Sugar()}, nil
}

// NewNop returns a logger that discards everything. For tests.
func NewNop() *ZapAdapter {
	return &ZapAdapter{sugar: zap.NewNop().Sugar()}
}

func (a *ZapAdapter) Debug(msg string, args ...any) { a.sugar.Debugw(msg, args...) }
func (a *ZapAdapter) Info(msg string, args ...any)  { a.sugar.Infow(msg, args...) }
func (a *ZapAdapter) Warn(msg string, args ...any)  { a.sugar.Warnw(msg, args...) }
func (a *ZapAdapter) Error(msg string, args ...any) { a.sugar.Errorw(msg, args...) }

func (a *ZapAdapter) WithField(key string, value any) output.LoggerPort {
	return &ZapAdapter{sugar: a.sugar.With(key, value)}
}

func (a *ZapAdapter) Close() error {
	// Sync on stderr is best-effort.
	_ = a.sugar.Sync()
	return nil
}
