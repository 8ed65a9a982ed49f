package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"reqtx/internal/bootstrap/config"
	"reqtx/internal/bootstrap/logging"
	"reqtx/internal/errs"
	"reqtx/internal/infrastructure/persistence/gormdb/model"
	"reqtx/internal/usecase/kv"
)

type App struct {
	Config  config.Config
	DB      *gorm.DB
	KV      *kv.Service
	Handler http.Handler
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := a.DB.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logging.Info(logCtx, "schema migration completed")
	return nil
}
