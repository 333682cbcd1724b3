// Package server initializes and runs the TierGate server: it selects the
// storage backends, builds the services and runs the gRPC endpoint, the
// metrics endpoint, the retention sweeper and the auth event consumer until
// shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/quartz"
	"github.com/dmitrijs2005/tiergate/internal/cache"
	"github.com/dmitrijs2005/tiergate/internal/logging"
	"github.com/dmitrijs2005/tiergate/internal/server/auth"
	"github.com/dmitrijs2005/tiergate/internal/server/config"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/identities"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/records"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/tierchanges"
	"github.com/dmitrijs2005/tiergate/internal/server/services"
	"github.com/dmitrijs2005/tiergate/internal/tier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/tiergate/internal/server/grpc"
)

// authEventBuffer bounds sign-in/sign-out events waiting for the consumer.
const authEventBuffer = 64

type App struct {
	config   *config.Config
	logger   logging.Logger
	registry *prometheus.Registry

	closers []io.Closer

	grpcServer *gs.GRPCServer
	retention  *services.Retention
	accounts   *services.Accounts
	authEvents chan auth.Event
}

// storage is the set of remote repositories the services run on.
type storage struct {
	records     records.Store
	identities  identities.Repository
	tierChanges tierchanges.Repository
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, parseLevel(c.LogLevel))
	app := &App{config: c, logger: logger, registry: prometheus.NewRegistry()}

	st, err := app.openStorage(ctx)
	if err != nil {
		return nil, multierr.Append(err, app.Close())
	}

	cacheDB, localCache, err := cache.Open(ctx, c.CacheDSN)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("cache init error: %w", err), app.Close())
	}
	app.closers = append(app.closers, cacheDB)

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := services.NewMetrics(app.registry)
	if err != nil {
		return nil, multierr.Append(err, app.Close())
	}

	clock := quartz.NewReal()
	deps := services.Deps{
		Policy:     tier.DefaultPolicy(),
		Records:    st.records,
		Identities: st.identities,
		Cache:      localCache,
		Notifier: services.MultiNotifier{
			services.NewLogNotifier(logger),
			services.NewHistoryNotifier(st.tierChanges),
		},
		Metrics:       metrics,
		Logger:        logger,
		Clock:         clock,
		RemoteTimeout: c.RemoteTimeout,
	}

	retention := services.RetentionOptions{
		Window:     c.RetentionWindow,
		Interval:   c.SweepInterval,
		StartDelay: c.SweepStartDelay,
		BatchSize:  c.SweepBatchSize,
	}
	if c.S3Bucket != "" {
		archiver, err := services.NewS3Archiver(ctx, services.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		}, clock)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("s3 init error: %w", err), app.Close())
		}
		retention.Archiver = archiver
	}

	referrals := services.NewReferrals(deps, c.ReferralCodeAttempts)
	app.accounts = services.NewAccounts(deps, auth.NewJWTVerifier([]byte(c.IdentitySecret), c.IdentityIssuer))
	app.retention = services.NewRetention(deps, retention)
	app.authEvents = make(chan auth.Event, authEventBuffer)

	app.grpcServer = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, gs.Services{
		Registrar:  services.NewRegistrar(deps, referrals),
		Engagement: services.NewEngagement(deps),
		Profiles:   services.NewProfiles(deps),
		Accounts:   app.accounts,
		Referrals:  referrals,
		Status:     services.NewStatusReader(deps),
	}, c.SecretKey, c.AccessTokenValidityDuration, app.authEvents)

	return app, nil
}

// openStorage connects to PostgreSQL and migrates it. An empty DSN selects
// the in-memory store, which keeps no state across restarts.
func (app *App) openStorage(ctx context.Context) (*storage, error) {
	if app.config.DatabaseDSN == "" {
		app.logger.Warn(ctx, "no database configured, using in-memory store")
		return &storage{
			records:     records.NewMemoryStore(),
			identities:  identities.NewMemoryRepository(),
			tierChanges: tierchanges.NewMemoryRepository(),
		}, nil
	}

	db, err := sqlOpen("pgx", app.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.closers = append(app.closers, db)

	pingCtx, cancel := context.WithTimeout(ctx, app.config.RemoteTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	return &storage{
		records:     rm.Records(db),
		identities:  rm.Identities(db),
		tierChanges: rm.TierChanges(db),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until a signal arrives, ctx is done or a component fails.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.grpcServer.Run(ctx)
	})

	if app.config.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, app.logger, app.registry, app.config.MetricsAddr)
		})
	}

	g.Go(func() error {
		return app.retention.Run(ctx)
	})

	g.Go(func() error {
		return app.accounts.Watch(ctx, app.authEvents)
	})

	err := g.Wait()
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
	return multierr.Append(err, app.Close())
}

// Close releases database handles.
func (app *App) Close() error {
	var err error
	for i := len(app.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, app.closers[i].Close())
	}
	app.closers = nil
	return err
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
