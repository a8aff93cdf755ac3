/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
    "context"
    "time"

    "github.com/example/dep-pulse/internal/config"
    "github.com/example/dep-pulse/internal/repo"
    "github.com/example/dep-pulse/internal/services"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

// sweepLockKey serializes the scheduled sweep across instances.
const sweepLockKey int64 = 757570

type Scheduler struct {
    c   *cron.Cron
    log zerolog.Logger
}

func Start(cfg config.Config, log zerolog.Logger, db *repo.DB, svc *services.Service) (*Scheduler, error) {
    loc := time.Local
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(
        cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow,
    )))

    _, err := c.AddFunc(cfg.RescoreCron, func() {
        ctx, cancel := context.WithTimeout(context.Background(), 45*time.Minute)
        defer cancel()

        got, err := db.TryAdvisoryLock(ctx, sweepLockKey)
        if err != nil {
            log.Error().Err(err).Msg("sweep lock")
            return
        }
        if !got {
            log.Info().Msg("sweep already running elsewhere, skipping")
            return
        }
        defer func() {
            if err := db.AdvisoryUnlock(context.Background(), sweepLockKey); err != nil {
                log.Error().Err(err).Msg("sweep unlock")
            }
        }()

        if _, err := svc.SyncTracker(ctx); err != nil {
            log.Error().Err(err).Msg("scheduled sync failed, scoring stale data")
        }
        if _, err := svc.RescoreAll(ctx, true); err != nil {
            log.Error().Err(err).Msg("scheduled rescore")
        }
    })
    if err != nil { return nil, err }

    c.Start()
    log.Info().Str("spec", cfg.RescoreCron).Str("tz", loc.String()).Msg("scheduler started")
    return &Scheduler{c: c, log: log}, nil
}

func (s *Scheduler) Stop() {
    ctx := s.c.Stop()
    <-ctx.Done()
    s.log.Info().Msg("scheduler stopped")
}
