package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"payrollengine/internal/domain/attendance"
	"payrollengine/internal/domain/audit"
	"payrollengine/internal/domain/compensation"
	"payrollengine/internal/domain/core"
	"payrollengine/internal/domain/incentive"
	"payrollengine/internal/domain/leave"
	"payrollengine/internal/domain/payroll"
	"payrollengine/internal/platform/config"
	"payrollengine/internal/platform/crypto"
	"payrollengine/internal/platform/db"
	"payrollengine/internal/platform/jobs"
	"payrollengine/internal/platform/lock"
	"payrollengine/internal/platform/logging"
	"payrollengine/internal/platform/metrics"
)

const lockPrefix = "payrollengine:lock:"

type App struct {
	Config   config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Registry *prometheus.Registry
	Engine   *Engine
	Jobs     *jobs.Service
	Router   http.Handler
	Logger   logrus.FieldLogger
}

// New connects to the database, applies migrations and wires the engine.
func New(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*App, error) {
	logger = logging.OrDiscard(logger)
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "db connect")
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "migrations")
		}
	}
	cryptoSvc, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "encryption key")
	}

	app := &App{Config: cfg, DB: pool, Logger: logger}

	var locker lock.Locker = lock.NewMemory()
	if cfg.RedisAddr != "" {
		app.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := app.Redis.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, errors.Wrap(err, "redis ping")
		}
		locker = lock.NewRedis(app.Redis, lockPrefix, cfg.LockTTL)
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt := payroll.Runtime{
		Logger:  logger,
		Metrics: metrics.New(app.Registry),
		Audit:   audit.New(pool),
		Locker:  locker,
	}
	store := payroll.NewStore(pool)
	directory := core.NewDirectory(pool, cryptoSvc)
	calc := payroll.NewCalculator(payroll.CalculatorDeps{
		Store:      store,
		Directory:  directory,
		Resolver:   compensation.NewResolver(compensation.NewStore(pool)),
		Attendance: attendance.NewService(pool),
		Leave:      leave.NewService(pool),
		Incentives: incentive.NewIncentiveStore(pool),
		Penalties:  incentive.NewPenaltyStore(pool),
	}, rt)

	app.Jobs = jobs.New(jobs.NewPGRunLog(pool), logger)
	app.Engine = &Engine{
		Roster:     directory,
		Calculator: calc,
		Batch: payroll.NewBatchProcessor(calc, store, store, payroll.BatchDefaults{
			Limit:   cfg.BatchLimit,
			Workers: cfg.BatchWorkers,
			Timeout: cfg.BatchTimeout,
		}, rt),
		Approvals: payroll.NewApprovalWorkflow(store, rt),
		Transfers: payroll.NewTransferEngine(store, store, cryptoSvc, cfg.FeeRate(), rt),
		Jobs:      app.Jobs,
		AdviceDir: cfg.AdviceDir,
		Logger:    logger,
	}
	app.Router = NewOpsRouter(pool, app.Registry, logger)
	return app, nil
}

// Run starts the job worker and scheduler and serves the ops router until ctx ends.
func (a *App) Run(ctx context.Context) error {
	a.Jobs.Start(ctx)
	a.Jobs.Schedule(ctx, jobs.JobPayrollCycle, a.Config.BatchInterval, a.Engine.ScheduledCycle(time.Now))

	srv := &http.Server{Addr: a.Config.OpsAddr, Handler: a.Router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		a.Logger.WithFields(logrus.Fields{
			"addr":          a.Config.OpsAddr,
			"batchInterval": a.Config.BatchInterval.String(),
		}).Info("payroll worker listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
