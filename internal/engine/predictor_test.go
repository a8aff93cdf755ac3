package engine

import (
    "context"
    "errors"
    "testing"

    "github.com/example/dep-pulse/internal/bridge"
    "github.com/example/dep-pulse/internal/domain"
    "github.com/rs/zerolog"
)

type fakeBridge struct {
    predict  func(bridge.PredictRequest) (bridge.PredictResponse, error)
    path     func(bridge.PathRequest) (bridge.PathResponse, error)
    cascade  func(bridge.CascadeRequest) (bridge.CascadeResponse, error)
    up       bool
}

func (f *fakeBridge) PredictRisk(_ context.Context, req bridge.PredictRequest) (bridge.PredictResponse, error) {
    if f.predict == nil { return bridge.PredictResponse{}, errors.New("down") }
    return f.predict(req)
}

func (f *fakeBridge) FindCriticalPath(_ context.Context, req bridge.PathRequest) (bridge.PathResponse, error) {
    if f.path == nil { return bridge.PathResponse{}, errors.New("down") }
    return f.path(req)
}

func (f *fakeBridge) CascadeImpact(_ context.Context, req bridge.CascadeRequest) (bridge.CascadeResponse, error) {
    if f.cascade == nil { return bridge.CascadeResponse{}, errors.New("down") }
    return f.cascade(req)
}

func (f *fakeBridge) Available() bool { return f.up }

func TestPredictFallsBackToDeterministic(t *testing.T) {
    eng := New(zerolog.Nop(), &fakeBridge{}) // every call errors
    dep := domain.Dependency{ID: 10, SourceID: 1, TargetID: 2, Kind: domain.KindBlocks, Provenance: domain.ProvenanceAI}
    tgt := &domain.WorkItem{ID: 2}

    p := eng.PredictDependencyRisk(context.Background(), dep, &domain.WorkItem{ID: 1}, tgt, nil, Options{Enhanced: true})
    if p.Model != domain.ModelDeterministic {
        t.Fatalf("model = %q, want deterministic fallback", p.Model)
    }
    want := Estimate(ExtractRiskFactors(dep, &domain.WorkItem{ID: 1}, tgt, nil))
    if p.RiskScore != want {
        t.Fatalf("fallback score = %d, want %d (same factors)", p.RiskScore, want)
    }
    if p.RiskScore < 0 || p.RiskScore > 100 {
        t.Fatalf("score %d out of range", p.RiskScore)
    }
}

func TestPredictUsesEnhancedResult(t *testing.T) {
    delay := 7
    fb := &fakeBridge{predict: func(req bridge.PredictRequest) (bridge.PredictResponse, error) {
        if !req.Advanced { t.Fatal("enhanced call must request advanced mode") }
        return bridge.PredictResponse{RiskScore: 88, ExpectedDelayDays: &delay}, nil
    }}
    eng := New(zerolog.Nop(), fb)
    dep := domain.Dependency{ID: 10, SourceID: 1, TargetID: 2, Kind: domain.KindBlocks}

    p := eng.PredictDependencyRisk(context.Background(), dep, nil, nil, nil, Options{Enhanced: true})
    if p.Model != domain.ModelPINN || p.RiskScore != 88 || p.ExpectedDelay != 7 {
        t.Fatalf("got %+v", p)
    }
}

func TestPredictRejectsOutOfRangeEnhancedScore(t *testing.T) {
    fb := &fakeBridge{predict: func(bridge.PredictRequest) (bridge.PredictResponse, error) {
        return bridge.PredictResponse{RiskScore: 400}, nil
    }}
    eng := New(zerolog.Nop(), fb)
    dep := domain.Dependency{ID: 10, SourceID: 1, TargetID: 2, Kind: domain.KindBlocks}

    p := eng.PredictDependencyRisk(context.Background(), dep, nil, nil, nil, Options{Enhanced: true})
    if p.Model != domain.ModelDeterministic {
        t.Fatalf("out-of-range enhanced score must fall back, got model %q", p.Model)
    }
}

func TestPredictWithoutEnhancementNeverCallsBridge(t *testing.T) {
    fb := &fakeBridge{predict: func(bridge.PredictRequest) (bridge.PredictResponse, error) {
        t.Fatal("bridge must not be called when enhancement is off")
        return bridge.PredictResponse{}, nil
    }}
    eng := New(zerolog.Nop(), fb)
    dep := domain.Dependency{ID: 10, SourceID: 1, TargetID: 2, Kind: domain.KindBlocks}

    p := eng.PredictDependencyRisk(context.Background(), dep, nil, nil, nil, Options{})
    if p.Model != domain.ModelDeterministic {
        t.Fatalf("model = %q", p.Model)
    }
}

func TestCriticalPathFallsBackOnBridgeFailure(t *testing.T) {
    items := []domain.WorkItem{item(1), item(2)}
    deps := []domain.Dependency{edge(10, 1, 2, domain.KindBlocks, ip(60), ip(3))}
    g := Build(items, deps, zerolog.Nop())

    eng := New(zerolog.Nop(), &fakeBridge{})
    res := eng.FindCriticalPath(context.Background(), g, nil, Options{Enhanced: true})
    if res.Model != domain.ModelDeterministic || !equalIDs(res.Path, []int64{1, 2}) {
        t.Fatalf("got %+v", res)
    }
}

func TestCriticalPathRejectsUnknownNodesFromBridge(t *testing.T) {
    g := Build([]domain.WorkItem{item(1)}, nil, zerolog.Nop())
    fb := &fakeBridge{path: func(bridge.PathRequest) (bridge.PathResponse, error) {
        return bridge.PathResponse{Path: []int64{1, 999}, TotalWeight: 12}, nil
    }}
    eng := New(zerolog.Nop(), fb)

    res := eng.FindCriticalPath(context.Background(), g, nil, Options{Enhanced: true})
    if res.Model != domain.ModelDeterministic {
        t.Fatalf("path with unknown nodes must be rejected, got %+v", res)
    }
}

func TestCascadeEnhancedOverlaysBaseline(t *testing.T) {
    items := []domain.WorkItem{item(1), item(2)}
    deps := []domain.Dependency{edge(10, 1, 2, domain.KindBlocks, ip(60), ip(4))}
    g := Build(items, deps, zerolog.Nop())

    fb := &fakeBridge{cascade: func(bridge.CascadeRequest) (bridge.CascadeResponse, error) {
        return bridge.CascadeResponse{TotalDelayDays: 2.5, Factors: map[string]float64{"dampening": 0.6}}, nil
    }}
    eng := New(zerolog.Nop(), fb)

    res, err := eng.SimulateCascade(context.Background(), g, 1, Options{Enhanced: true})
    if err != nil { t.Fatal(err) }
    if res.TotalDelayDays != 4 {
        t.Fatalf("baseline must be preserved, got %v", res.TotalDelayDays)
    }
    if res.EnhancedDelayDays == nil || *res.EnhancedDelayDays != 2.5 {
        t.Fatalf("enhanced total missing: %+v", res)
    }
    if res.EnhancedFactors["dampening"] != 0.6 {
        t.Fatalf("factors missing: %+v", res.EnhancedFactors)
    }
    if res.Model != domain.ModelPINN {
        t.Fatalf("model = %q", res.Model)
    }
}

func TestCascadeEnhancedFailureKeepsBaseline(t *testing.T) {
    items := []domain.WorkItem{item(1), item(2)}
    deps := []domain.Dependency{edge(10, 1, 2, domain.KindBlocks, ip(60), ip(4))}
    g := Build(items, deps, zerolog.Nop())

    eng := New(zerolog.Nop(), &fakeBridge{})
    res, err := eng.SimulateCascade(context.Background(), g, 1, Options{Enhanced: true})
    if err != nil { t.Fatal(err) }
    if res.EnhancedDelayDays != nil || res.Model != domain.ModelDeterministic || res.TotalDelayDays != 4 {
        t.Fatalf("got %+v", res)
    }
}
