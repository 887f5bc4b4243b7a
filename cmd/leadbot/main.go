// Command leadbot runs the lead-nurturing backend: the HTTP API used by the
// bot gateway and operators, and the delivery scheduler for warm-up messages
// and follow-up reminders.
//
// Configuration comes from the environment (see internal/config); a .env file
// in the working directory is loaded first when present.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/config"
	httpapi "github.com/tbourn/go-leadbot-backend/internal/http"
	"github.com/tbourn/go-leadbot-backend/internal/messaging"
	"github.com/tbourn/go-leadbot-backend/internal/observability"
	"github.com/tbourn/go-leadbot-backend/internal/repo"
	"github.com/tbourn/go-leadbot-backend/internal/scheduler"
	"github.com/tbourn/go-leadbot-backend/internal/seed"
	"github.com/tbourn/go-leadbot-backend/internal/services"
	"github.com/tbourn/go-leadbot-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// Missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		sysutil.SetupLogger("info", false)
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, ver); err != nil {
		logger.Fatal().Err(err).Msg("leadbot exited")
	}
	logger.Info().Msg("bye")
}

func run(ctx context.Context, cfg config.Config, ver string) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	sender, closer, err := messaging.New(messaging.Options{
		Driver:          cfg.Messenger.Driver,
		TelegramToken:   cfg.Messenger.TelegramToken,
		TelegramAPI:     cfg.Messenger.TelegramAPI,
		TelegramTimeout: cfg.Messenger.TelegramTimeout,
		KafkaBrokers:    cfg.Messenger.KafkaBrokers,
		KafkaTopic:      cfg.Messenger.KafkaTopic,
		Log:             log.With().Str("component", "messenger").Logger(),
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	schedLog := log.With().Str("component", "scheduler").Logger()
	followUps := services.NewFollowUpService(db, schedLog)
	warmups := services.NewWarmupService(db, schedLog)
	if cfg.FollowUp.Pause > 0 {
		followUps.Pause = cfg.FollowUp.Pause
		warmups.Pause = cfg.FollowUp.Pause
	}
	if cfg.FollowUp.ClaimTTL > 0 {
		followUps.ClaimTTL = cfg.FollowUp.ClaimTTL
	}
	mailings := services.NewMailingService(db, schedLog)
	mailings.Pause = cfg.Scheduler.MailingPause
	runner := &scheduler.Runner{
		FollowUps:    followUps,
		Warmups:      warmups,
		Mailings:     mailings,
		Sender:       sender,
		Interval:     cfg.Scheduler.Interval,
		InitialDelay: cfg.Scheduler.InitialDelay,
		Threshold:    cfg.FollowUp.Threshold,
		Purge: func(ctx context.Context, now time.Time) (int64, error) {
			return repo.PurgeExpiredIdempotency(ctx, db, now)
		},
		Log:     schedLog,
		Metrics: scheduler.NewMetrics(reg),
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Registry: reg, Jobs: runner}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", ver).Str("messenger", cfg.Messenger.Driver).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if cfg.Scheduler.Enabled {
		g.Go(func() error { return runner.Run(gctx) })
	} else {
		log.Info().Msg("scheduler disabled")
	}
	return g.Wait()
}

// openDB opens the store, migrates it and applies the seed catalog.
func openDB(ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if cfg.OTEL.Enabled {
		if err := repo.Instrument(db); err != nil {
			return nil, err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}

	if cfg.SeedPath != "" {
		cat, err := seed.Load(cfg.SeedPath)
		if err != nil {
			return nil, err
		}
		res, err := seed.Apply(ctx, db, cat)
		if err != nil {
			return nil, err
		}
		log.Info().
			Int("lead_magnets", res.LeadMagnets).
			Int("products", res.Products).
			Int("offers", res.Offers).
			Int("scenarios", res.Scenarios).
			Int("faq", res.FAQ).
			Str("path", cfg.SeedPath).
			Msg("seed applied")
	}
	if _, err := services.NewLeadMagnetService(db).EnsureDefault(ctx); err != nil {
		return nil, err
	}
	return db, nil
}
