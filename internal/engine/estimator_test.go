package engine

import (
    "testing"

    "github.com/example/dep-pulse/internal/domain"
)

func TestEstimateLinearWeights(t *testing.T) {
    // round(0.4*50 + 0.4*70 + 0.2*70) = round(62) = 62
    f := domain.RiskFactors{TeamVelocity: 50, DependencyComplexity: 70, ResourceAllocation: 70}
    if got := Estimate(f); got != 62 {
        t.Fatalf("Estimate = %d, want 62", got)
    }
}

func TestEstimateBounds(t *testing.T) {
    for _, f := range []domain.RiskFactors{
        {},
        {TeamVelocity: 100, DependencyComplexity: 100, ResourceAllocation: 100},
        {TeamVelocity: 33, DependencyComplexity: 91, ResourceAllocation: 7},
    } {
        got := Estimate(f)
        if got < 0 || got > 100 {
            t.Fatalf("Estimate(%+v) = %d, out of [0,100]", f, got)
        }
    }
}

func TestEstimateDelayStepFunction(t *testing.T) {
    pts := func(v float64) *float64 { return &v }
    cases := []struct {
        score int
        item  *domain.WorkItem
        want  int
    }{
        {0, &domain.WorkItem{StoryPoints: pts(13)}, 0},
        {62, &domain.WorkItem{StoryPoints: pts(13)}, 5}, // round(3.1 * 1.5) = round(4.65)
        {62, &domain.WorkItem{StoryPoints: pts(3)}, 2},  // round(3.1 * 0.5)
        {62, &domain.WorkItem{StoryPoints: pts(8)}, 3},
        {62, &domain.WorkItem{StoryPoints: pts(21)}, 6}, // round(3.1 * 2.0)
        {62, &domain.WorkItem{}, 3},                     // no points: unscaled
        {62, nil, 3},
        {100, &domain.WorkItem{StoryPoints: pts(21)}, 10},
    }
    for _, c := range cases {
        if got := EstimateDelay(c.score, c.item); got != c.want {
            t.Fatalf("EstimateDelay(%d, %+v) = %d, want %d", c.score, c.item, got, c.want)
        }
    }
}

func TestEstimateDelayMonotonic(t *testing.T) {
    pts := 13.0
    item := &domain.WorkItem{StoryPoints: &pts}
    prev := -1
    for score := 0; score <= 100; score++ {
        d := EstimateDelay(score, item)
        if d < prev {
            t.Fatalf("delay decreased at score %d: %d < %d", score, d, prev)
        }
        prev = d
    }
}

func TestWorkedScenario(t *testing.T) {
    // DB team with no velocity history, ai-detected edge onto an unassigned
    // 13-point item: factors (50,70,70), score 62, delay 5 days.
    pts := 13.0
    dep := domain.Dependency{SourceID: 1, TargetID: 2, Kind: domain.KindBlocks, Provenance: domain.ProvenanceAI}
    src := &domain.WorkItem{ID: 1, Team: "DB", StoryPoints: &pts, State: "Active"}
    tgt := &domain.WorkItem{ID: 2, StoryPoints: &pts}

    f := ExtractRiskFactors(dep, src, tgt, []domain.TeamVelocity{{Team: "DB"}})
    if f.TeamVelocity != 50 || f.DependencyComplexity != 70 || f.ResourceAllocation != 70 {
        t.Fatalf("factors = %+v, want 50/70/70", f)
    }
    score := Estimate(f)
    if score != 62 { t.Fatalf("score = %d, want 62", score) }
    if d := EstimateDelay(score, tgt); d != 5 {
        t.Fatalf("delay = %d, want 5", d)
    }
}
