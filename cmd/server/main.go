// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Autoreply decision engine service.
//
// Entry point for the reply service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Builds the decision pipeline and its worker pool
//  4. Serves webhook, review and health endpoints
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/bcem/autoreply/internal/app"
	"github.com/bcem/autoreply/internal/config"
	"github.com/bcem/autoreply/internal/webhook"
	"github.com/bcem/autoreply/internal/worker"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(setupLogger(cfg.LogLevel, cfg.LogFormat))
	slog.Info("starting autoreply service")
	slog.Info("configuration loaded",
		"workers", cfg.Workers,
		"fast_model", cfg.Completion.FastModel,
		"strong_model", cfg.Completion.StrongModel,
		"thread_limit", cfg.Pipeline.ThreadLimit,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// --- Worker Pool ---
	pool := worker.NewPool(worker.Config{
		Queue:          a.Queue,
		Processor:      a.Pipeline,
		Limiter:        a.Limiter,
		Workers:        cfg.Workers,
		Throttle:       cfg.Pipeline.ThrottlePerMinute,
		ThrottleWindow: time.Minute,
		RunTimeout:     cfg.Timeouts.Run,
	})
	pool.Start(ctx)

	// --- HTTP Server ---
	notifications := webhook.NewHandler(a.Queue, cfg.Mailbox.WebhookSecret)
	health := webhook.NewHealth(map[string]webhook.Pinger{
		"redis":    a.Queue,
		"postgres": webhook.PingFunc(a.DB.Ping),
	})
	router := webhook.NewRouter(notifications, webhook.NewReviewHandler(a.Escalations), health)

	ready, err := webhook.Serve(ctx, cfg.Port, router)
	if err != nil {
		slog.Error("failed to start HTTP server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()

	notifications.Wait()
	pool.Stop()

	slog.Info("autoreply service stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
