/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import (
    "errors"
    "strconv"
    "strings"
    "time"
)

// ErrNotFound is returned when a caller references a work item id that is not
// part of the current snapshot.
var ErrNotFound = errors.New("not found")

// Model labels attached to every derived score so consumers can tell which
// predictor produced a number.
const (
    ModelPINN          = "pinn"
    ModelDeterministic = "deterministic"
)

type WorkItem struct {
    ID          int64      `json:"id"`
    ExtID       string     `json:"extId,omitempty"`
    Title       string     `json:"title"`
    Type        string     `json:"type,omitempty"` // Epic | Story | Task | Bug
    State       string     `json:"state,omitempty"`
    Team        string     `json:"team,omitempty"`
    Sprint      string     `json:"sprint,omitempty"` // iteration label, may be a range like "Sprint 8-9"
    Assignee    string     `json:"assignee,omitempty"`
    StoryPoints *float64   `json:"storyPoints,omitempty"`
    Description string     `json:"description,omitempty"`
    CreatedAt   *time.Time `json:"createdAt,omitempty"`
    UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

type RelationKind string

const (
    KindBlocks    RelationKind = "blocks"
    KindDependsOn RelationKind = "depends_on"
    KindRelatedTo RelationKind = "related_to"
    KindRequires  RelationKind = "requires"
)

// Propagates reports whether a delay on the source side travels across this
// relation to the target. "related_to" is informational only.
func (k RelationKind) Propagates() bool {
    switch k {
    case KindBlocks, KindDependsOn, KindRequires:
        return true
    }
    return false
}

func (k RelationKind) IsValid() bool {
    switch k {
    case KindBlocks, KindDependsOn, KindRelatedTo, KindRequires:
        return true
    }
    return false
}

// Provenance records how a dependency edge entered the system.
const (
    ProvenanceManual  = "manual"
    ProvenanceTracker = "tracker"
    ProvenanceAI      = "ai_detected"
)

type Dependency struct {
    ID         int64        `json:"id"`
    SourceID   int64        `json:"sourceId"`
    TargetID   int64        `json:"targetId"`
    Kind       RelationKind `json:"kind"`
    Provenance string       `json:"provenance"`

    // Derived by the scoring engine. Both set together or both nil.
    RiskScore     *int       `json:"riskScore,omitempty"`
    ExpectedDelay *int       `json:"expectedDelay,omitempty"` // days
    ScoredModel   string     `json:"scoredModel,omitempty"`
    ScoredAt      *time.Time `json:"scoredAt,omitempty"`
}

// VelocitySample is one iteration's outcome for a team. Completed may exceed
// planned (over-delivery).
type VelocitySample struct {
    Iteration string  `json:"iteration"`
    Completed float64 `json:"completed"`
    Planned   float64 `json:"planned"`
}

type TeamVelocity struct {
    Team    string           `json:"team"`
    Samples []VelocitySample `json:"samples"` // oldest first
}

// RiskFactors are the normalized 0-100 inputs to the estimator. The extended
// fields feed only the enhanced predictor.
type RiskFactors struct {
    TeamVelocity         int `json:"teamVelocity"`
    DependencyComplexity int `json:"dependencyComplexity"`
    ResourceAllocation   int `json:"resourceAllocation"`

    TeamSize         int `json:"teamSize,omitempty"`
    SprintBufferDays int `json:"sprintBufferDays,omitempty"`
    CascadeDepth     int `json:"cascadeDepth,omitempty"`
}

type Prediction struct {
    RiskScore     int         `json:"riskScore"`
    ExpectedDelay int         `json:"expectedDelay"`
    Model         string      `json:"model"`
    Factors       RiskFactors `json:"factors"`
}

type CriticalPathResult struct {
    Path        []int64 `json:"path"`
    TotalWeight float64 `json:"totalWeight"`
    Model       string  `json:"model"`
}

type CascadeImpactResult struct {
    SourceID          int64              `json:"sourceId"`
    Affected          []int64            `json:"affected"`
    TotalDelayDays    float64            `json:"totalDelayDays"`
    EnhancedDelayDays *float64           `json:"enhancedDelayDays,omitempty"`
    EnhancedFactors   map[string]float64 `json:"enhancedFactors,omitempty"`
    Model             string             `json:"model"`
}

// ParseSprintRange reads trailing digits from an iteration label. Labels may
// encode a range ("Sprint 8-9"); a single sprint reports start == end.
func ParseSprintRange(label string) (start, end int, ok bool) {
    label = strings.TrimSpace(label)
    if label == "" { return 0, 0, false }
    i := strings.LastIndexFunc(label, func(r rune) bool { return !(r >= '0' && r <= '9' || r == '-') })
    tail := label
    if i >= 0 { tail = label[i+1:] }
    tail = strings.Trim(tail, "-")
    if tail == "" { return 0, 0, false }
    if a, b, found := strings.Cut(tail, "-"); found {
        s, err1 := strconv.Atoi(a)
        e, err2 := strconv.Atoi(b)
        if err1 != nil || err2 != nil { return 0, 0, false }
        if e < s { s, e = e, s }
        return s, e, true
    }
    n, err := strconv.Atoi(tail)
    if err != nil { return 0, 0, false }
    return n, n, true
}
