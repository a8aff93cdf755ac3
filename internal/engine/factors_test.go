package engine

import (
    "testing"

    "github.com/example/dep-pulse/internal/domain"
)

func TestExtractRiskFactorsDefaults(t *testing.T) {
    dep := domain.Dependency{SourceID: 1, TargetID: 2, Kind: domain.KindBlocks, Provenance: domain.ProvenanceAI}
    src := &domain.WorkItem{ID: 1, Team: "DB"}
    tgt := &domain.WorkItem{ID: 2} // unassigned

    f := ExtractRiskFactors(dep, src, tgt, nil)
    if f.TeamVelocity != 50 {
        t.Fatalf("no velocity history: want neutral 50, got %d", f.TeamVelocity)
    }
    if f.DependencyComplexity != 70 {
        t.Fatalf("ai-detected edge: want complexity 70, got %d", f.DependencyComplexity)
    }
    if f.ResourceAllocation != 70 {
        t.Fatalf("unassigned target: want allocation 70, got %d", f.ResourceAllocation)
    }
}

func TestExtractRiskFactorsAssigned(t *testing.T) {
    dep := domain.Dependency{SourceID: 1, TargetID: 2, Kind: domain.KindBlocks, Provenance: domain.ProvenanceTracker}
    tgt := &domain.WorkItem{ID: 2, Assignee: "sara"}

    f := ExtractRiskFactors(dep, &domain.WorkItem{ID: 1}, tgt, nil)
    if f.ResourceAllocation != 40 {
        t.Fatalf("assigned target: want allocation 40, got %d", f.ResourceAllocation)
    }
    if f.DependencyComplexity != 50 {
        t.Fatalf("tracker edge: want complexity 50, got %d", f.DependencyComplexity)
    }
}

func TestVelocityRiskWeighting(t *testing.T) {
    // ratios [1.0, 0.5], weights [1, 2] -> avg 0.667 -> risk 100 - 67 = 33
    samples := []domain.VelocitySample{
        {Iteration: "Sprint 1", Completed: 10, Planned: 10},
        {Iteration: "Sprint 2", Completed: 5, Planned: 10},
    }
    risk, ok := velocityRisk(samples)
    if !ok { t.Fatal("expected a risk value") }
    if risk != 33 {
        t.Fatalf("weighted velocity risk = %d, want 33", risk)
    }
}

func TestVelocityRiskEdgeCases(t *testing.T) {
    if _, ok := velocityRisk(nil); ok {
        t.Fatal("no samples must report no value")
    }
    // planned 0 counts as full completion; over-delivery clamps at 0 risk
    risk, ok := velocityRisk([]domain.VelocitySample{
        {Completed: 4, Planned: 0},
        {Completed: 15, Planned: 10},
    })
    if !ok || risk != 0 {
        t.Fatalf("over-delivering team: risk = %d ok=%v, want 0 true", risk, ok)
    }
}

func TestVelocityRiskUsesSourceTeam(t *testing.T) {
    velocities := []domain.TeamVelocity{
        {Team: "DB", Samples: []domain.VelocitySample{{Completed: 2, Planned: 10}}},
        {Team: "API", Samples: []domain.VelocitySample{{Completed: 10, Planned: 10}}},
    }
    dep := domain.Dependency{SourceID: 1, TargetID: 2, Kind: domain.KindBlocks}
    src := &domain.WorkItem{ID: 1, Team: "DB"}
    tgt := &domain.WorkItem{ID: 2, Team: "API", Assignee: "omid"}

    f := ExtractRiskFactors(dep, src, tgt, velocities)
    if f.TeamVelocity != 80 {
        t.Fatalf("source team DB at 20%% completion: want velocity risk 80, got %d", f.TeamVelocity)
    }
}
