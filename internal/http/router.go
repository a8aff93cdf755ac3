/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "time"

    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"
)

func NewRouter(h *Handlers, appEnv string, log zerolog.Logger) *gin.Engine {
    if appEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery(), accessLog(log))

    r.GET("/healthz", h.Healthz)

    api := r.Group("/api")
    {
        api.GET("/graph", h.Graph)
        api.GET("/critical-path", h.CriticalPath)
        api.GET("/cascade/:id", h.Cascade)
        api.POST("/dependencies/:id/predict", h.Predict)
    }

    admin := r.Group("/admin")
    {
        admin.POST("/sync", h.Sync)
        admin.POST("/rescore", h.Rescore)
        admin.POST("/suggest", h.Suggest)
        admin.GET("/last-run", h.LastRun)
        admin.POST("/predictor/train", h.TrainPredictor)
        admin.POST("/predictor/quantize", h.QuantizePredictor)
    }

    r.POST("/telegram/webhook/:secret", h.TelegramWebhook)
    r.POST("/telegram/webhook", h.TelegramWebhook)

    return r
}

func accessLog(log zerolog.Logger) gin.HandlerFunc {
    return func(c *gin.Context) {
        start := time.Now()
        c.Next()
        log.Info().
            Str("method", c.Request.Method).
            Str("path", c.Request.URL.Path).
            Int("status", c.Writer.Status()).
            Dur("took", time.Since(start)).
            Msg("http")
    }
}
