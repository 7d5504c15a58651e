package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	appcfg "github.com/park285/chess-session-server/internal/config"
	"github.com/park285/chess-session-server/internal/obslog"
	"github.com/park285/chess-session-server/internal/rules"
)

// rulesd serves the local rules engine over HTTP for chess-server nodes
// started with RULES_ENGINE=remote.
func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	srv := rules.NewServer(rules.NewLocal())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(cfg.RulesdAddr) }()
	obslog.L().Info("rulesd_started", zap.String("addr", cfg.RulesdAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			obslog.L().Error("rulesd_failed", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		obslog.L().Warn("rulesd_shutdown_failed", zap.Error(err))
	}
}
