package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/petermazzocco/construction-portal/internal/auth"
	"github.com/petermazzocco/construction-portal/internal/blob"
	"github.com/petermazzocco/construction-portal/internal/config"
	"github.com/petermazzocco/construction-portal/internal/handlers"
	"github.com/petermazzocco/construction-portal/internal/imaging"
	"github.com/petermazzocco/construction-portal/internal/logging"
	"github.com/petermazzocco/construction-portal/internal/portal"
	"github.com/petermazzocco/construction-portal/internal/session"
	"github.com/petermazzocco/construction-portal/internal/store"
	"github.com/petermazzocco/construction-portal/internal/store/postgres"
	"github.com/petermazzocco/construction-portal/internal/store/sqlite"
)

const sweepInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database connection
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Upload storage
	blobs, err := openBlobs(ctx, cfg, logger)
	if err != nil {
		return err
	}

	svc := portal.New(st, blobs,
		portal.WithLogger(logger),
		portal.WithThumbnailer(imaging.New()),
		portal.WithMaxUploadBytes(cfg.Uploads.MaxBytes),
	)
	created, err := svc.SeedAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.FullName)
	if err != nil {
		return err
	}
	if !created {
		logger.WithField("username", cfg.Admin.Username).Debug("admin account already present")
	}

	// Session store
	sessionStore, closeSessions, err := openSessions(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSessions()
	sessions := session.NewManager(sessionStore, cfg.Session.TTL, session.WithLogger(logger))

	secret := []byte(cfg.Session.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate session secret: %w", err)
		}
		logger.Warn("no session secret configured, using a random one; sessions will not survive a restart")
	}
	cookies := auth.NewCookies(secret, int(cfg.Session.TTL/time.Second), cfg.Session.Secure)

	// OAUTH
	if cfg.OAuth.Enabled() {
		auth.ConfigureGoogle(cfg.OAuth.GoogleKey, cfg.OAuth.GoogleSecret, cfg.OAuth.CallbackURL, cookies.Store())
		logger.Info("google sign-in enabled")
	}

	h, err := handlers.New(handlers.Deps{
		Portal:             svc,
		Sessions:           sessions,
		Cookies:            cookies,
		Logger:             logger,
		OAuth:              cfg.OAuth.Enabled(),
		LoginRatePerMinute: cfg.LoginRatePerMinute,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Addr).Info("starting portal server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.Database.PostgresDSN, logger)
	default:
		return sqlite.Open(ctx, sqlite.Config{Path: cfg.Database.SQLitePath, Logger: logger})
	}
}

func openBlobs(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (blob.Store, error) {
	if cfg.Uploads.Backend == config.UploadsS3 {
		s3 := cfg.Uploads.S3
		return blob.NewBucket(ctx, blob.S3Config{
			Bucket:          s3.Bucket,
			Prefix:          s3.Prefix,
			AccountID:       s3.AccountID,
			AccessKeyID:     s3.AccessKeyID,
			AccessKeySecret: s3.AccessKeySecret,
			Endpoint:        s3.Endpoint,
			Region:          s3.Region,
		}, logger)
	}
	return blob.NewDir(cfg.Uploads.Dir, logger)
}

// openSessions returns the configured session backend and its closer.
// The memory backend gets a sweeper for expired records.
func openSessions(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (session.Store, func(), error) {
	if cfg.Session.Backend == config.SessionsRedis {
		rs, err := session.NewRedisStore(ctx, session.RedisConfig{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, func() {
			if err := rs.Close(); err != nil {
				logger.WithError(err).Warn("failed to close redis")
			}
		}, nil
	}

	ms := session.NewMemoryStore()
	sweepCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case now := <-ticker.C:
				if n := ms.Sweep(now); n > 0 {
					logger.WithField("expired", n).Debug("swept sessions")
				}
			}
		}
	}()
	return ms, cancel, nil
}
