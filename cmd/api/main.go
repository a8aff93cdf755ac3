/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "net/http"
    "os/signal"
    "syscall"
    "time"

    "github.com/example/dep-pulse/internal/adapters/ado"
    openaiclient "github.com/example/dep-pulse/internal/adapters/openai"
    "github.com/example/dep-pulse/internal/adapters/telegram"
    "github.com/example/dep-pulse/internal/bridge"
    "github.com/example/dep-pulse/internal/config"
    "github.com/example/dep-pulse/internal/engine"
    httpx "github.com/example/dep-pulse/internal/http"
    "github.com/example/dep-pulse/internal/jobs"
    "github.com/example/dep-pulse/internal/logger"
    "github.com/example/dep-pulse/internal/repo"
    "github.com/example/dep-pulse/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    db := repo.MustOpen(ctx, cfg.DBDSN, log)
    defer db.Close()
    repository := repo.New(db, log)

    var (
        runner *bridge.Runner
        eb     engine.Bridge
        admin  services.PredictorAdmin
    )
    if cfg.PredictorCmd != "" && len(cfg.PredictorArgs) > 0 {
        runner = bridge.NewRunner(cfg.PredictorCmd, cfg.PredictorArgs, cfg.PredictorTimeout, log)
        eb = runner
        admin = runner
    }
    eng := engine.New(log, eb)

    var tracker services.Tracker
    if cfg.ADOOrgURL != "" && cfg.ADOPAT != "" {
        tracker = ado.New(cfg.ADOOrgURL, cfg.ADOProject, cfg.ADOPAT, cfg.ADOAPIVersion, cfg.HTTPTimeout, log)
    } else {
        log.Warn().Msg("tracker sync disabled: ADO_ORG_URL / ADO_PAT not set")
    }

    var llm services.LLM
    if cfg.OpenAIKey != "" {
        llm = openaiclient.New(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAITimeout, log)
    } else {
        log.Warn().Msg("dependency suggestion disabled: OPENAI_API_KEY not set")
    }

    notifier := telegram.New(cfg.TelegramToken, cfg.HTTPTimeout, log)
    if !notifier.Enabled() {
        log.Warn().Msg("alerts disabled: TELEGRAM_BOT_TOKEN not set")
    } else if cfg.PublicBaseURL != "" {
        whCtx, cancel := context.WithTimeout(ctx, cfg.HTTPTimeout)
        if err := notifier.SetWebhook(whCtx, cfg.PublicBaseURL+"/telegram/webhook", cfg.TelegramWebhookSecret); err != nil {
            log.Error().Err(err).Msg("set telegram webhook")
        }
        cancel()
    }

    svc := services.New(cfg, log, repository, eng, tracker, llm, notifier, admin)

    sched, err := jobs.Start(cfg, log, db, svc)
    if err != nil { log.Fatal().Err(err).Msg("start scheduler") }
    defer sched.Stop()

    handlers := httpx.NewHandlers(svc, log, cfg.TelegramWebhookSecret)
    router := httpx.NewRouter(handlers, cfg.AppEnv, log)

    srv := &http.Server{
        Addr:              cfg.HTTPAddr,
        Handler:           router,
        ReadHeaderTimeout: 5 * time.Second,
    }
    go func() {
        log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal().Err(err).Msg("http server")
        }
    }()

    <-ctx.Done()
    log.Info().Msg("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.Error().Err(err).Msg("http shutdown")
    }
}
