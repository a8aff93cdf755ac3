/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/example/dep-pulse/internal/adapters/telegram"
    "github.com/example/dep-pulse/internal/bridge"
    "github.com/example/dep-pulse/internal/domain"
    "github.com/example/dep-pulse/internal/engine"
    "github.com/example/dep-pulse/internal/repo"
    "github.com/example/dep-pulse/internal/services"
    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"
)

// service is what the handlers need; *services.Service satisfies it.
type service interface {
    Visualization(ctx context.Context) (engine.VizExport, error)
    CriticalPath(ctx context.Context, root *int64, enhanced bool) (domain.CriticalPathResult, error)
    CascadeImpact(ctx context.Context, itemID int64, enhanced bool) (domain.CascadeImpactResult, error)
    PredictOne(ctx context.Context, depID int64, enhanced bool) (domain.Prediction, error)
    SyncTracker(ctx context.Context) (*services.SyncResult, error)
    RescoreAll(ctx context.Context, enhanced bool) (*services.RescoreSummary, error)
    SuggestDependencies(ctx context.Context) (*services.SuggestResult, error)
    LastRun(ctx context.Context) (*repo.LastRun, error)
    TrainPredictor(ctx context.Context) (bridge.LifecycleResponse, error)
    QuantizePredictor(ctx context.Context) (bridge.LifecycleResponse, error)
    HandleChatCommand(ctx context.Context, chatID int64, text string)
}

type Handlers struct {
    svc           service
    log           zerolog.Logger
    webhookSecret string
}

func NewHandlers(svc service, log zerolog.Logger, webhookSecret string) *Handlers {
    return &Handlers{svc: svc, log: log, webhookSecret: webhookSecret}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) Graph(c *gin.Context) {
    viz, err := h.svc.Visualization(c.Request.Context())
    if err != nil {
        h.log.Error().Err(err).Msg("graph export")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "graph export failed"})
        return
    }
    c.JSON(http.StatusOK, viz)
}

func (h *Handlers) CriticalPath(c *gin.Context) {
    var root *int64
    if raw := c.Query("root"); raw != "" {
        id, err := strconv.ParseInt(raw, 10, 64)
        if err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": "root must be a work item id"})
            return
        }
        root = &id
    }
    res, err := h.svc.CriticalPath(c.Request.Context(), root, enhanced(c))
    if errors.Is(err, domain.ErrNotFound) {
        c.JSON(http.StatusNotFound, gin.H{"error": "work item not found"})
        return
    }
    if err != nil {
        h.log.Error().Err(err).Msg("critical path")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "critical path failed"})
        return
    }
    c.JSON(http.StatusOK, res)
}

func (h *Handlers) Cascade(c *gin.Context) {
    id, err := strconv.ParseInt(c.Param("id"), 10, 64)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a work item id"})
        return
    }
    res, err := h.svc.CascadeImpact(c.Request.Context(), id, enhanced(c))
    if errors.Is(err, domain.ErrNotFound) {
        c.JSON(http.StatusNotFound, gin.H{"error": "work item not found"})
        return
    }
    if err != nil {
        h.log.Error().Err(err).Int64("item", id).Msg("cascade impact")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "cascade simulation failed"})
        return
    }
    c.JSON(http.StatusOK, res)
}

func (h *Handlers) Predict(c *gin.Context) {
    id, err := strconv.ParseInt(c.Param("id"), 10, 64)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a dependency id"})
        return
    }
    pred, err := h.svc.PredictOne(c.Request.Context(), id, enhanced(c))
    if errors.Is(err, domain.ErrNotFound) {
        c.JSON(http.StatusNotFound, gin.H{"error": "dependency not found"})
        return
    }
    if err != nil {
        h.log.Error().Err(err).Int64("dep", id).Msg("predict dependency")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction failed"})
        return
    }
    c.JSON(http.StatusOK, pred)
}

// Sync and Rescore run in the background; callers poll /admin/last-run.
func (h *Handlers) Sync(c *gin.Context) {
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
        defer cancel()
        if _, err := h.svc.SyncTracker(ctx); err != nil {
            h.log.Error().Err(err).Msg("manual sync")
        }
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) Rescore(c *gin.Context) {
    enh := enhanced(c)
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
        defer cancel()
        if _, err := h.svc.RescoreAll(ctx, enh); err != nil {
            h.log.Error().Err(err).Msg("manual rescore")
        }
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) Suggest(c *gin.Context) {
    res, err := h.svc.SuggestDependencies(c.Request.Context())
    if err != nil {
        h.log.Error().Err(err).Msg("suggest dependencies")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "suggestion pass failed"})
        return
    }
    c.JSON(http.StatusOK, res)
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr, err := h.svc.LastRun(c.Request.Context())
    if err != nil {
        h.log.Error().Err(err).Msg("load last run")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "load failed"})
        return
    }
    if lr == nil {
        c.JSON(http.StatusOK, gin.H{"status": "never ran"})
        return
    }
    c.JSON(http.StatusOK, lr)
}

func (h *Handlers) TrainPredictor(c *gin.Context) {
    res, err := h.svc.TrainPredictor(c.Request.Context())
    if err != nil {
        h.log.Error().Err(err).Msg("train predictor")
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, res)
}

func (h *Handlers) QuantizePredictor(c *gin.Context) {
    res, err := h.svc.QuantizePredictor(c.Request.Context())
    if err != nil {
        h.log.Error().Err(err).Msg("quantize predictor")
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, res)
}

// TelegramWebhook verifies the shared secret (header or path param) and
// dispatches chat commands.
func (h *Handlers) TelegramWebhook(c *gin.Context) {
    secret := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
    if secret == "" { secret = c.Param("secret") }
    if secret != h.webhookSecret {
        c.Status(http.StatusForbidden)
        return
    }
    var upd telegram.Update
    if err := c.ShouldBindJSON(&upd); err != nil {
        c.Status(http.StatusBadRequest)
        return
    }
    if upd.Message == nil || upd.Message.Text == "" {
        c.Status(http.StatusOK)
        return
    }
    h.svc.HandleChatCommand(c.Request.Context(), upd.Message.Chat.ID, upd.Message.Text)
    c.Status(http.StatusOK)
}

func enhanced(c *gin.Context) bool {
    v, err := strconv.ParseBool(c.DefaultQuery("enhanced", "true"))
    if err != nil { return true }
    return v
}
