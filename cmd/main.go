package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"tombola/internal/admin"
	"tombola/internal/clock"
	"tombola/internal/config"
	"tombola/internal/crypto"
	"tombola/internal/draw"
	"tombola/internal/handlers"
	"tombola/internal/metrics"
	"tombola/internal/notify"
	"tombola/internal/progression"
	"tombola/internal/protection"
	"tombola/internal/services"
	"tombola/internal/store"
)

func main() {
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	// 1. Configuration and logging
	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Init("tombola", true, false, io.Discard)
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logOut := io.Discard
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			logger.Init("tombola", true, false, io.Discard)
			logger.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	defer logger.Init("tombola", cfg.Verbose, false, logOut).Close()

	clk := clock.NewSystem()

	// 2. Store and notifications
	st, notifier, closeStore := openStore(cfg, clk)
	defer closeStore()

	// 3. Identity storage
	identity, err := newIdentity(cfg, clk)
	if err != nil {
		logger.Fatalf("Failed to set up identity storage: %v", err)
	}

	// 4. Services
	adminSvc, err := admin.New(admin.Config{
		Credentials: admin.Credentials{
			Email:        cfg.Admin.Email,
			Password:     cfg.Admin.Password,
			SecurityCode: cfg.Admin.SecurityCode,
		},
		Secret:      cfg.Admin.JWTSecret,
		SuperAdmins: cfg.Admin.SuperAdmins,
		Store:       st,
		Clock:       clk,
	})
	if err != nil {
		logger.Fatalf("Failed to set up admin: %v", err)
	}

	tickets := services.NewTicketService(services.TicketServiceConfig{
		Store:    st,
		Identity: identity,
		Notifier: notifier,
		Access:   adminSvc,
		Clock:    clk,
	})
	if !tickets.ProtectionStatus().EncryptionWorking && identity.Mode() == services.ModeEncrypted {
		logger.Errorf("Encryption self-test failed")
	}
	tickets.Debug()

	calc, err := progression.NewCalculator(progression.DefaultTiers, cfg.Draw.Minimum, cfg.Deadline())
	if err != nil {
		logger.Fatalf("Invalid progression: %v", err)
	}
	prizes := services.NewPrizeService(st, calc, tickets)
	draws := services.NewDrawService(tickets, prizes, clk)

	// 5. Draw watcher
	watcher := draw.NewWatcher(st, calc, tickets, clk)
	if _, err := watcher.Check(); err != nil {
		logger.Errorf("Initial threshold check: %v", err)
	}
	if err := watcher.Start(cfg.Draw.Schedule); err != nil {
		logger.Fatalf("Failed to start draw watcher: %v", err)
	}

	// 6. HTTP
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware())
	handlers.NewHTTPHandler(tickets, prizes, draws, adminSvc, watcher).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Server starting on http://localhost%s (%s identity, %s store)", cfg.Addr(), identity.Mode(), cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to run server: %v", err)
		}
	}()

	// 7. Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	watcher.Stop(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown: %v", err)
	}
}

// openStore selects the store backend. The redis backend also publishes
// ledger events when a channel is configured.
func openStore(cfg *config.Config, clk clock.Clock) (store.Store, notify.Notifier, func()) {
	notifiers := notify.Multi{notify.Log{}, metrics.Notifier{}}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warning("Using the in-memory store: data is lost on exit")
		return store.NewMemory(), notifiers, func() {}
	case config.BackendRedis:
		rs, err := store.DialRedis(cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB, cfg.Store.RedisPrefix, cfg.Store.RedisTimeout)
		if err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		if cfg.Store.RedisChannel != "" {
			notifiers = append(notifiers, notify.NewRedis(rs.Client(), cfg.Store.RedisChannel, clk))
		}
		return rs, notifiers, func() {
			if err := rs.Close(); err != nil {
				logger.Warningf("Closing redis: %v", err)
			}
		}
	default:
		fs, err := store.NewFile(cfg.Store.DataDir)
		if err != nil {
			logger.Fatalf("Failed to open data dir: %v", err)
		}
		return fs, notifiers, func() {}
	}
}

func newIdentity(cfg *config.Config, clk clock.Clock) (services.ParticipantIdentity, error) {
	if cfg.Protection.IdentityMode == config.IdentityClear {
		logger.Warning("Identity storage in clear: participant data is not encrypted")
		return services.ClearIdentity{}, nil
	}
	c, err := crypto.NewCipher(cfg.Protection.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return services.NewEncryptedIdentity(protection.NewMapper(c, clk), cfg.Protection.FailClosed), nil
}
