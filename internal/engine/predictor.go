/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import (
    "context"
    "sort"

    "github.com/example/dep-pulse/internal/bridge"
    "github.com/example/dep-pulse/internal/domain"
    "github.com/rs/zerolog"
)

// Bridge is what the engine needs from the external predictor. Implemented by
// *bridge.Runner; tests substitute fakes.
type Bridge interface {
    PredictRisk(ctx context.Context, req bridge.PredictRequest) (bridge.PredictResponse, error)
    FindCriticalPath(ctx context.Context, req bridge.PathRequest) (bridge.PathResponse, error)
    CascadeImpact(ctx context.Context, req bridge.CascadeRequest) (bridge.CascadeResponse, error)
    Available() bool
}

// Options select the scoring strategy for a single call. Enhanced is a
// per-call request, never global state; the result reports which model
// actually answered.
type Options struct {
    Enhanced bool
}

// Engine ties factor extraction, the deterministic estimator, and the
// optional external predictor together. Stateless across calls.
type Engine struct {
    log    zerolog.Logger
    bridge Bridge // nil when no external predictor is configured
}

func New(log zerolog.Logger, b Bridge) *Engine {
    return &Engine{log: log, bridge: b}
}

// Enhanced reports whether the external predictor is configured and answered
// its most recent call. Advisory; used only for health reporting.
func (e *Engine) Enhanced() bool { return e.bridge != nil && e.bridge.Available() }

// PredictDependencyRisk always extracts factors first, then asks the external
// predictor when enhancement is requested. Any bridge failure falls back to
// the deterministic estimate over the same factors; a result is guaranteed.
func (e *Engine) PredictDependencyRisk(ctx context.Context, dep domain.Dependency, source, target *domain.WorkItem, velocities []domain.TeamVelocity, opts Options) domain.Prediction {
    factors := ExtractRiskFactors(dep, source, target, velocities)
    if opts.Enhanced && e.bridge != nil {
        req := bridge.PredictRequest{Factors: factors, Advanced: true}
        if target != nil { req.StoryPoints = target.StoryPoints }
        resp, err := e.bridge.PredictRisk(ctx, req)
        if err == nil && resp.RiskScore >= 0 && resp.RiskScore <= 100 {
            p := domain.Prediction{RiskScore: resp.RiskScore, Model: domain.ModelPINN, Factors: factors}
            if resp.ExpectedDelayDays != nil && *resp.ExpectedDelayDays >= 0 {
                p.ExpectedDelay = *resp.ExpectedDelayDays
            } else {
                p.ExpectedDelay = EstimateDelay(p.RiskScore, target)
            }
            return p
        }
        if err != nil {
            e.log.Warn().Int64("dep", dep.ID).Err(err).Msg("enhanced prediction failed, using deterministic estimate")
        } else {
            e.log.Warn().Int64("dep", dep.ID).Int("score", resp.RiskScore).Msg("enhanced prediction out of range, using deterministic estimate")
        }
    }
    score := Estimate(factors)
    return domain.Prediction{
        RiskScore:     score,
        ExpectedDelay: EstimateDelay(score, target),
        Model:         domain.ModelDeterministic,
        Factors:       factors,
    }
}

// FindCriticalPath runs the greedy walk, or the external path finder when
// enhancement is requested and it answers with a path the graph can verify.
func (e *Engine) FindCriticalPath(ctx context.Context, g *Graph, root *int64, opts Options) domain.CriticalPathResult {
    if opts.Enhanced && e.bridge != nil {
        resp, err := e.bridge.FindCriticalPath(ctx, bridge.PathRequest{Graph: payload(g), RootID: root, Advanced: true})
        if err == nil && validPath(g, resp.Path) {
            return domain.CriticalPathResult{Path: resp.Path, TotalWeight: resp.TotalWeight, Model: domain.ModelPINN}
        }
        if err != nil {
            e.log.Warn().Err(err).Msg("enhanced critical path failed, using greedy walk")
        } else {
            e.log.Warn().Msg("enhanced critical path returned unknown nodes, using greedy walk")
        }
    }
    return CriticalPath(g, root)
}

// SimulateCascade always computes the baseline, then overlays the enhanced
// total and its explanatory factors when the external model answers. Both
// totals are reported; the baseline is never replaced.
func (e *Engine) SimulateCascade(ctx context.Context, g *Graph, itemID int64, opts Options) (domain.CascadeImpactResult, error) {
    res, err := CascadeImpact(g, itemID)
    if err != nil { return res, err }
    if opts.Enhanced && e.bridge != nil {
        resp, berr := e.bridge.CascadeImpact(ctx, bridge.CascadeRequest{ItemID: itemID, Graph: payload(g), Advanced: true})
        if berr == nil && resp.TotalDelayDays >= 0 {
            enhanced := resp.TotalDelayDays
            res.EnhancedDelayDays = &enhanced
            res.EnhancedFactors = resp.Factors
            res.Model = domain.ModelPINN
        } else if berr != nil {
            e.log.Warn().Int64("item", itemID).Err(berr).Msg("enhanced cascade failed, baseline only")
        }
    }
    return res, nil
}

func payload(g *Graph) bridge.GraphPayload {
    p := bridge.GraphPayload{Nodes: make([]domain.WorkItem, 0, len(g.Nodes)), Edges: g.Edges()}
    for _, id := range sortedNodeIDs(g) {
        p.Nodes = append(p.Nodes, g.Nodes[id])
    }
    return p
}

func sortedNodeIDs(g *Graph) []int64 {
    ids := make([]int64, 0, len(g.Nodes))
    for id := range g.Nodes {
        ids = append(ids, id)
    }
    sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
    return ids
}

func validPath(g *Graph, path []int64) bool {
    if len(path) == 0 { return false }
    for _, id := range path {
        if !g.HasNode(id) { return false }
    }
    return true
}
