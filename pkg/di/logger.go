package di

import (
	"github.com/cockroachdb/errors"
	"github.com/goliatone/go-user-cache/pkg/config"
	"go.uber.org/zap"
)

// NewLogger builds the service logger: a console logger in development,
// JSON otherwise, at the configured level.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", cfg.Log.Level)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level

	logger, err := zcfg.Build(zap.Fields(
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	))
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger, nil
}
