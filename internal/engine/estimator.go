/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import (
    "math"

    "github.com/example/dep-pulse/internal/domain"
)

// Estimate combines risk factors into a 0-100 score with a fixed linear
// weighting. Always available; the unconditional fallback for every external
// predictor failure.
func Estimate(f domain.RiskFactors) int {
    score := 0.4*float64(f.TeamVelocity) + 0.4*float64(f.DependencyComplexity) + 0.2*float64(f.ResourceAllocation)
    return clamp(int(math.Round(score)))
}

// EstimateDelay turns a risk score into whole days. Base delay is score/20
// (full risk ~ one work week), scaled by item size.
func EstimateDelay(riskScore int, item *domain.WorkItem) int {
    base := float64(riskScore) / 20.0
    scale := 1.0
    if item != nil && item.StoryPoints != nil {
        switch pts := *item.StoryPoints; {
        case pts <= 3:
            scale = 0.5
        case pts <= 8:
            scale = 1.0
        case pts <= 13:
            scale = 1.5
        default:
            scale = 2.0
        }
    }
    d := int(math.Round(base * scale))
    if d < 0 { return 0 }
    return d
}
