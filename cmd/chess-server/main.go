package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appcfg "github.com/park285/chess-session-server/internal/config"
	"github.com/park285/chess-session-server/internal/directory"
	"github.com/park285/chess-session-server/internal/metrics"
	"github.com/park285/chess-session-server/internal/msgcat"
	"github.com/park285/chess-session-server/internal/obslog"
	"github.com/park285/chess-session-server/internal/room"
	"github.com/park285/chess-session-server/internal/rules"
	"github.com/park285/chess-session-server/internal/server"
	"github.com/park285/chess-session-server/internal/session"
	"github.com/park285/chess-session-server/internal/transport"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logOpts := obslog.OptionsFromEnv()
	logOpts.NodeID = cfg.NodeID
	if err := obslog.Init(logOpts); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("messages_load_failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, rdb := openDirectory(ctx, cfg)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	feedCtx, stopFeed := context.WithCancel(context.Background())
	feed := directory.NewFeed(dir, 1024, 2*time.Second)
	feed.Start(feedCtx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := session.New(session.Deps{
		Rooms:   room.NewStore(room.WithReserver(dir)),
		Rules:   newRules(cfg),
		Feed:    feed,
		Metrics: metrics.New(reg),
		Catalog: catalog,
	}, session.Options{
		Grace:             cfg.GracePeriod,
		FinishedRetention: cfg.FinishedRetention,
		WaitingTTL:        cfg.WaitingTTL,
		ReapInterval:      cfg.ReapInterval,
		RulesTimeout:      cfg.RulesTimeout,
		NodeID:            cfg.NodeID,
	})
	go engine.Run(ctx)

	srv := server.New(server.Config{
		Addr: cfg.ListenAddr,
		Transport: transport.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			OutboxSize:     cfg.OutboxSize,
			WriteTimeout:   cfg.WriteTimeout,
		},
		Gatherer: reg,
	}, engine, dir)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("server_started",
		zap.String("addr", cfg.ListenAddr),
		zap.String("rules", cfg.RulesEngine),
		zap.Bool("redis", rdb != nil),
		zap.Duration("grace", cfg.GracePeriod),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("server_failed", zap.Error(err))
		}
	}

	logger.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server_shutdown_failed", zap.Error(err))
	}
	stopFeed()
	select {
	case <-feed.Done():
	case <-shutdownCtx.Done():
	}
	logger.Info("server_exited")
}

func openDirectory(ctx context.Context, cfg *appcfg.AppConfig) (directory.Directory, *redis.Client) {
	if cfg.RedisURL == "" {
		return directory.NewMemory(), nil
	}
	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rdb, err := directory.Dial(dctx, cfg.RedisURL)
	if err != nil {
		obslog.L().Fatal("redis_connect_failed", zap.Error(err))
	}
	return directory.NewRedis(rdb, cfg.WaitingTTL+cfg.FinishedRetention), rdb
}

func newRules(cfg *appcfg.AppConfig) rules.Engine {
	if cfg.RulesEngine == appcfg.RulesRemote {
		return rules.NewRemote(cfg.RulesURL, rules.WithTimeout(cfg.RulesTimeout), rules.WithRetry(2))
	}
	return rules.NewLocal()
}
