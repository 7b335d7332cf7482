package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"flareddns/internal/auth"
	"flareddns/internal/config"
	"flareddns/internal/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	hashPassword := flag.String("hash-password", "", "Print a bcrypt hash for a DDNS password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded, using the process environment", slog.Any("error", err))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	log, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		slog.Error("failed to set up logging", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(log)

	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	log.Info("=== FlareDDNS, dyndns2 gateway ===")
	log.Info("starting",
		slog.String("version", version),
		slog.String("provider", cfg.Provider.Kind),
		slog.Int("ddns_users", len(cfg.DDNS.Users)),
		slog.Duration("rate_limit_window", cfg.DDNS.RateLimit.Window),
		slog.Int("rate_limit_max", cfg.DDNS.RateLimit.MaxRequests),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx, cfg, version, log); err != nil {
		log.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}
}
