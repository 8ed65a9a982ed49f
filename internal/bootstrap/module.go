package bootstrap

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"reqtx/internal/bootstrap/config"
	"reqtx/internal/bootstrap/database"
	"reqtx/internal/bootstrap/logging"
	gormrepo "reqtx/internal/infrastructure/persistence/gormdb/repository"
	"reqtx/internal/infrastructure/persistence/gormdb/txsession"
	gormuow "reqtx/internal/infrastructure/persistence/gormdb/uow"
	"reqtx/internal/ports"
	"reqtx/internal/transport/httpapi"
	"reqtx/internal/txfilter"
	"reqtx/internal/usecase/kv"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(
		fx.Annotate(
			txsession.NewSession,
			fx.As(new(ports.Session)),
		),
	),
	fx.Provide(
		fx.Annotate(
			gormrepo.NewKVRepository,
			fx.As(new(ports.KVRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			gormuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(kv.NewService),
	fx.Provide(provideRegistry),
	fx.Provide(provideTxMetrics),
	fx.Provide(provideTxFactory),
	fx.Provide(provideHandler),
	fx.Provide(provideApp),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.Close(); err != nil {
				return err
			}
			logging.Info(logCtx, "database connection closed")
			return nil
		},
	})

	return db, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// provideTxMetrics returns nil when metrics are disabled; the filter treats a
// nil *Metrics as a no-op.
func provideTxMetrics(cfg config.Config, reg *prometheus.Registry) (*txfilter.Metrics, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	return txfilter.NewMetrics(reg)
}

func provideTxFactory(cfg config.Config, session ports.Session, metrics *txfilter.Metrics) *txfilter.Factory {
	return txfilter.NewFactory(session, TxFilterOptions(cfg.Transaction, metrics)...)
}

// TxFilterOptions turns the transaction config into filter defaults.
func TxFilterOptions(cfg config.TransactionConfig, metrics *txfilter.Metrics) []txfilter.Option {
	return []txfilter.Option{
		txfilter.WithIsolationLevel(cfg.Isolation()),
		txfilter.WithRequestURLLogging(cfg.LogRequestURL),
		txfilter.WithRollbackOnServerError(cfg.RollbackOnServerError),
		txfilter.WithErrorWriter(httpapi.WriteError),
		txfilter.WithMetrics(metrics),
	}
}

func provideHandler(cfg config.Config, svc *kv.Service, factory *txfilter.Factory, reg *prometheus.Registry) http.Handler {
	routerCfg := httpapi.RouterConfig{}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsPath = cfg.Metrics.Path
		routerCfg.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
	return httpapi.NewRouter(svc, factory, routerCfg)
}

func provideApp(cfg config.Config, db *gorm.DB, svc *kv.Service, handler http.Handler) *App {
	return &App{
		Config:  cfg,
		DB:      db,
		KV:      svc,
		Handler: handler,
	}
}
