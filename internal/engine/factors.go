/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package engine holds the scoring core: risk factor extraction, the
// deterministic estimator, graph construction, critical-path and cascade
// traversal, and the orchestration that decides when the external predictor
// is consulted.
package engine

import (
    "math"

    "github.com/example/dep-pulse/internal/domain"
)

const (
    neutralVelocityRisk   = 50
    baseComplexity        = 50
    aiDetectedComplexity  = 70
    assignedAllocation    = 40
    unassignedAllocation  = 70
)

// ExtractRiskFactors derives the normalized 0-100 inputs for one dependency
// edge. Total: missing data resolves to documented defaults, never an error.
// Velocity health comes from the source item's team (the side that can slip);
// allocation from the target item (the side that absorbs the slip).
func ExtractRiskFactors(dep domain.Dependency, source, target *domain.WorkItem, velocities []domain.TeamVelocity) domain.RiskFactors {
    f := domain.RiskFactors{
        TeamVelocity:         neutralVelocityRisk,
        DependencyComplexity: baseComplexity,
        ResourceAllocation:   unassignedAllocation,
    }
    if dep.Provenance == domain.ProvenanceAI { f.DependencyComplexity = aiDetectedComplexity }
    if target != nil && target.Assignee != "" { f.ResourceAllocation = assignedAllocation }

    if source != nil && source.Team != "" {
        for _, tv := range velocities {
            if tv.Team != source.Team { continue }
            if r, ok := velocityRisk(tv.Samples); ok { f.TeamVelocity = r }
            break
        }
    }
    if target != nil {
        if _, end, ok := domain.ParseSprintRange(target.Sprint); ok {
            // crude buffer hint for the enhanced model: later sprints leave
            // more room to absorb a slip
            f.SprintBufferDays = end * 2
        }
    }
    return f
}

// velocityRisk inverts a recency-weighted completion ratio into a 0-100 risk.
// Samples are ordered oldest first; weights 1..N favor recent iterations.
// planned == 0 counts as full completion.
func velocityRisk(samples []domain.VelocitySample) (int, bool) {
    if len(samples) == 0 { return 0, false }
    var weighted, total float64
    for i, s := range samples {
        ratio := 1.0
        if s.Planned > 0 { ratio = s.Completed / s.Planned }
        w := float64(i + 1)
        weighted += ratio * w
        total += w
    }
    avg := weighted / total
    risk := 100 - int(math.Round(avg*100))
    return clamp(risk), true
}

func clamp(v int) int {
    if v < 0 { return 0 }
    if v > 100 { return 100 }
    return v
}
