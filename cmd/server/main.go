package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"seka-server/internal/config"
	"seka-server/internal/jwt"
	"seka-server/internal/mux"
	"seka-server/internal/rng"
	"seka-server/pkg/ledger"
	"seka-server/pkg/matchmaking"
	"seka-server/pkg/room"
	"seka-server/pkg/store"
)

const readTimeout = time.Second * 5
const writeTimeout = time.Second * 10
const shutdownTimeout = time.Second * 10

// Version is the server version
var Version = "v0.0.0-dev"

var addr = flag.String("addr", "", "the listen address, overrides the config")

func main() {
	flag.Parse()
	setupLogger()
	cfg := config.Instance()

	// fail fast
	if err := jwt.LoadKeys(); err != nil {
		logrus.WithError(err).Fatal("could not load keys")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := ledger.Open(cfg.LedgerDriver, cfg.LedgerDSN, cfg.StartingBalance)
	if err != nil {
		logrus.WithError(err).Fatal("could not open ledger")
	}
	defer l.Close()

	// run the ledger migrations
	if err := l.Migrate(); err != nil {
		logrus.WithError(err).Fatal("could not migrate ledger")
	}

	logger := logrus.StandardLogger()
	hub := room.NewHub(logger)

	var st store.Store
	var notifier room.Notifier
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		st = store.NewRedis(client, cfg.Redis.Prefix)
		relay := store.NewRelay(client, cfg.Redis.Prefix, logger)
		notifier = relay

		ready := make(chan struct{})
		go func() {
			if err := relay.Run(ctx, hub, ready); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithError(err).Fatal("event relay stopped")
			}
		}()
		<-ready
	} else {
		logrus.Warn("no redis address configured, sessions will only live in this process")
		st = store.NewMemory()
		notifier = hub
	}

	if err := st.Ping(ctx); err != nil {
		logrus.WithError(err).Fatal("could not reach the session store")
	}

	coordinator := room.NewCoordinator(st, l, notifier, rng.Crypto{}, logger, cfg.Coordinator)
	matchmaker := matchmaking.New(st, l, coordinator, notifier, cfg.Game, cfg.Matchmaking, logger)

	go matchmaker.Run(ctx)
	go tick(ctx, coordinator, cfg.Coordinator.TickInterval)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	})

	m := mux.NewMux(Version, mux.Services{
		Store:       st,
		Ledger:      l,
		Hub:         hub,
		Coordinator: coordinator,
		Matchmaker:  matchmaker,
		Logger:      logger,
	})

	listen := cfg.Addr
	if *addr != "" {
		listen = *addr
	}

	srv := &http.Server{
		Addr:         listen,
		Handler:      loggingHandler(c.Handler(m)),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("could not shut down cleanly")
		}
	}()

	logrus.WithField("addr", srv.Addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Fatal("server stopped")
	}
}

// tick expires overdue turns until the context is cancelled
func tick(ctx context.Context, coordinator *room.Coordinator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := coordinator.Tick(ctx); err != nil {
				logrus.WithError(err).Error("could not expire turns")
			}
		}
	}
}

func loggingHandler(next http.Handler) http.Handler {
	if config.Instance().Log.DisableAccessLogs {
		return next
	}

	return handlers.CombinedLoggingHandler(os.Stdout, next)
}

func setupLogger() {
	cfg := config.Instance().Log
	if lvl := cfg.Level; lvl != "" {
		level, err := logrus.ParseLevel(lvl)
		if err != nil {
			logrus.WithError(err).Fatal("could not parse level")
		}

		logrus.SetLevel(level)
	}

	if strings.ToLower(cfg.Format) == "json" || strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
