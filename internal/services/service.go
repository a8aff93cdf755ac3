/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/example/dep-pulse/internal/adapters/ado"
    "github.com/example/dep-pulse/internal/adapters/openai"
    "github.com/example/dep-pulse/internal/bridge"
    "github.com/example/dep-pulse/internal/config"
    "github.com/example/dep-pulse/internal/domain"
    "github.com/example/dep-pulse/internal/engine"
    "github.com/example/dep-pulse/internal/repo"
    "github.com/rs/zerolog"
)

// Tracker pulls work items from the project tracker. Implemented by
// adapters/ado.
type Tracker interface {
    QueryIDs(ctx context.Context, wiql string) ([]int64, error)
    GetWorkItems(ctx context.Context, ids []int64) ([]ado.WorkItem, error)
}

// LLM extracts implied dependencies from work-item text.
type LLM interface {
    SuggestDependencies(ctx context.Context, items []openai.ItemSummary) ([]openai.Suggestion, error)
}

// Notifier delivers alerts and reports to chat targets.
type Notifier interface {
    Enabled() bool
    SendMessage(ctx context.Context, chatID int64, text string) error
    SendMarkdown(ctx context.Context, chatID int64, text string) error
    ResolveUsername(ctx context.Context, username string) (int64, error)
}

// PredictorAdmin forwards model-lifecycle commands to the external predictor.
type PredictorAdmin interface {
    TrainModel(ctx context.Context, timeout time.Duration) (bridge.LifecycleResponse, error)
    QuantizeModel(ctx context.Context, timeout time.Duration) (bridge.LifecycleResponse, error)
}

type Service struct {
    cfg      config.Config
    log      zerolog.Logger
    repo     *repo.Repository
    engine   *engine.Engine
    tracker  Tracker
    llm      LLM
    notifier Notifier
    admin    PredictorAdmin // nil when no predictor binary is configured

    chatOnce sync.Once
    chatIDs  []int64
}

func New(cfg config.Config, log zerolog.Logger, r *repo.Repository, eng *engine.Engine, tracker Tracker, llm LLM, notifier Notifier, admin PredictorAdmin) *Service {
    return &Service{cfg: cfg, log: log, repo: r, engine: eng, tracker: tracker, llm: llm, notifier: notifier, admin: admin}
}

// snapshot loads the full graph input set from storage.
func (s *Service) snapshot(ctx context.Context) ([]domain.WorkItem, []domain.Dependency, error) {
    items, err := s.repo.ListWorkItems(ctx)
    if err != nil { return nil, nil, err }
    deps, err := s.repo.ListDependencies(ctx)
    if err != nil { return nil, nil, err }
    return items, deps, nil
}

func (s *Service) GraphSnapshot(ctx context.Context) (*engine.Graph, error) {
    items, deps, err := s.snapshot(ctx)
    if err != nil { return nil, err }
    return engine.Build(items, deps, s.log), nil
}

func (s *Service) Visualization(ctx context.Context) (engine.VizExport, error) {
    g, err := s.GraphSnapshot(ctx)
    if err != nil { return engine.VizExport{}, err }
    return g.ExportForVisualization(), nil
}

func (s *Service) CriticalPath(ctx context.Context, root *int64, enhanced bool) (domain.CriticalPathResult, error) {
    g, err := s.GraphSnapshot(ctx)
    if err != nil { return domain.CriticalPathResult{}, err }
    if root != nil && !g.HasNode(*root) {
        return domain.CriticalPathResult{}, domain.ErrNotFound
    }
    return s.engine.FindCriticalPath(ctx, g, root, engine.Options{Enhanced: s.enhance(enhanced)}), nil
}

func (s *Service) CascadeImpact(ctx context.Context, itemID int64, enhanced bool) (domain.CascadeImpactResult, error) {
    g, err := s.GraphSnapshot(ctx)
    if err != nil { return domain.CascadeImpactResult{}, err }
    return s.engine.SimulateCascade(ctx, g, itemID, engine.Options{Enhanced: s.enhance(enhanced)})
}

// PredictOne rescores a single dependency on demand and persists the result.
func (s *Service) PredictOne(ctx context.Context, depID int64, enhanced bool) (domain.Prediction, error) {
    dep, err := s.repo.GetDependency(ctx, depID)
    if err != nil { return domain.Prediction{}, err }
    velocities, err := s.repo.ListTeamVelocities(ctx)
    if err != nil { return domain.Prediction{}, err }

    source, target := s.endpoints(ctx, dep)
    pred := s.engine.PredictDependencyRisk(ctx, dep, source, target, velocities, engine.Options{Enhanced: s.enhance(enhanced)})
    if err := s.repo.UpdateDependencyScore(ctx, dep.ID, pred.RiskScore, pred.ExpectedDelay, pred.Model); err != nil {
        return domain.Prediction{}, fmt.Errorf("persist score: %w", err)
    }
    return pred, nil
}

func (s *Service) endpoints(ctx context.Context, dep domain.Dependency) (source, target *domain.WorkItem) {
    if it, err := s.repo.GetWorkItem(ctx, dep.SourceID); err == nil { source = &it }
    if it, err := s.repo.GetWorkItem(ctx, dep.TargetID); err == nil { target = &it }
    return source, target
}

// enhance gates per-call enhancement behind the deployment switch.
func (s *Service) enhance(requested bool) bool {
    return requested && s.cfg.PredictorEnabled
}

type RescoreSummary struct {
    RunID    int64 `json:"runId"`
    Scored   int   `json:"scored"`
    Enhanced int   `json:"enhanced"`
    Fallback int   `json:"fallback"`
    Alerts   int   `json:"alerts"`
}

// RescoreAll scores every dependency with a bounded worker pool, persists
// each result, and alerts on scores at or above the configured threshold.
func (s *Service) RescoreAll(ctx context.Context, enhanced bool) (*RescoreSummary, error) {
    runID, err := s.repo.StartScoringRun(ctx, "rescore")
    if err != nil { return nil, err }

    sum, err := s.rescore(ctx, enhanced)
    finErr := err
    if sum == nil { sum = &RescoreSummary{} }
    sum.RunID = runID
    if ferr := s.repo.FinishScoringRun(ctx, runID, sum.Scored, sum.Enhanced, sum.Fallback, sum.Alerts, finErr); ferr != nil {
        s.log.Error().Err(ferr).Int64("run", runID).Msg("finish scoring run")
    }
    return sum, err
}

func (s *Service) rescore(ctx context.Context, enhanced bool) (*RescoreSummary, error) {
    items, deps, err := s.snapshot(ctx)
    if err != nil { return nil, err }
    velocities, err := s.repo.ListTeamVelocities(ctx)
    if err != nil { return nil, err }

    byID := make(map[int64]domain.WorkItem, len(items))
    for _, it := range items {
        byID[it.ID] = it
    }

    var (
        mu  sync.Mutex
        sum RescoreSummary
    )
    jobs := make(chan domain.Dependency)
    var wg sync.WaitGroup
    workers := s.cfg.WorkersPredict
    if workers < 1 { workers = 1 }
    for i := 0; i < workers; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for dep := range jobs {
                var source, target *domain.WorkItem
                if it, ok := byID[dep.SourceID]; ok { source = &it }
                if it, ok := byID[dep.TargetID]; ok { target = &it }

                pred := s.engine.PredictDependencyRisk(ctx, dep, source, target, velocities, engine.Options{Enhanced: s.enhance(enhanced)})
                if err := s.repo.UpdateDependencyScore(ctx, dep.ID, pred.RiskScore, pred.ExpectedDelay, pred.Model); err != nil {
                    s.log.Error().Err(err).Int64("dep", dep.ID).Msg("persist score")
                    continue
                }
                alerted := false
                if pred.RiskScore >= s.cfg.RiskAlertThreshold {
                    alerted = s.alertHighRisk(ctx, dep, pred, source, target)
                }
                mu.Lock()
                sum.Scored++
                if pred.Model == domain.ModelPINN { sum.Enhanced++ } else { sum.Fallback++ }
                if alerted { sum.Alerts++ }
                mu.Unlock()
            }
        }()
    }
    for _, dep := range deps {
        select {
        case jobs <- dep:
        case <-ctx.Done():
            close(jobs)
            wg.Wait()
            return &sum, ctx.Err()
        }
    }
    close(jobs)
    wg.Wait()

    s.log.Info().Int("scored", sum.Scored).Int("enhanced", sum.Enhanced).Int("fallback", sum.Fallback).Int("alerts", sum.Alerts).Msg("rescore sweep done")
    return &sum, nil
}

func (s *Service) LastRun(ctx context.Context) (*repo.LastRun, error) {
    return s.repo.GetLastRun(ctx)
}

// TrainPredictor and QuantizePredictor forward lifecycle commands; they never
// run on the scoring path.
func (s *Service) TrainPredictor(ctx context.Context) (bridge.LifecycleResponse, error) {
    if s.admin == nil { return bridge.LifecycleResponse{}, fmt.Errorf("no predictor configured") }
    return s.admin.TrainModel(ctx, s.cfg.TrainTimeout)
}

func (s *Service) QuantizePredictor(ctx context.Context) (bridge.LifecycleResponse, error) {
    if s.admin == nil { return bridge.LifecycleResponse{}, fmt.Errorf("no predictor configured") }
    return s.admin.QuantizeModel(ctx, s.cfg.TrainTimeout)
}
