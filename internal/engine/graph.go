/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import (
    "sort"

    "github.com/example/dep-pulse/internal/domain"
    "github.com/rs/zerolog"
)

// Graph is an immutable per-call snapshot of work items and the dependency
// edges between them. Cycles are possible; traversals must tolerate them.
type Graph struct {
    Nodes   map[int64]domain.WorkItem
    out     map[int64][]domain.Dependency
    in      map[int64]int
    Dropped int
}

// Build indexes the flat snapshot into a directed graph. Edges whose source
// or target is not a known work item are dropped and logged; that is a
// data-quality condition, not an error.
func Build(items []domain.WorkItem, deps []domain.Dependency, log zerolog.Logger) *Graph {
    g := &Graph{
        Nodes: make(map[int64]domain.WorkItem, len(items)),
        out:   make(map[int64][]domain.Dependency),
        in:    make(map[int64]int),
    }
    for _, it := range items {
        g.Nodes[it.ID] = it
    }
    for _, d := range deps {
        if _, ok := g.Nodes[d.SourceID]; !ok {
            g.Dropped++
            log.Warn().Int64("dep", d.ID).Int64("source", d.SourceID).Msg("dropping edge: unknown source item")
            continue
        }
        if _, ok := g.Nodes[d.TargetID]; !ok {
            g.Dropped++
            log.Warn().Int64("dep", d.ID).Int64("target", d.TargetID).Msg("dropping edge: unknown target item")
            continue
        }
        g.out[d.SourceID] = append(g.out[d.SourceID], d)
        g.in[d.TargetID]++
    }
    return g
}

func (g *Graph) HasNode(id int64) bool { _, ok := g.Nodes[id]; return ok }

func (g *Graph) OutEdges(id int64) []domain.Dependency { return g.out[id] }

// Edges returns every edge in the graph, ordered by (source, target) for
// deterministic output.
func (g *Graph) Edges() []domain.Dependency {
    var all []domain.Dependency
    for _, es := range g.out {
        all = append(all, es...)
    }
    sort.Slice(all, func(i, j int) bool {
        if all[i].SourceID != all[j].SourceID { return all[i].SourceID < all[j].SourceID }
        return all[i].TargetID < all[j].TargetID
    })
    return all
}

// Roots returns every node with no incoming edge, ascending by id.
func (g *Graph) Roots() []int64 {
    var roots []int64
    for id := range g.Nodes {
        if g.in[id] == 0 { roots = append(roots, id) }
    }
    sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
    return roots
}

// edgeDelay is the traversal weight of one edge in days. Unscored edges fall
// back to riskScore/20, then to zero.
func edgeDelay(d domain.Dependency) float64 {
    if d.ExpectedDelay != nil { return float64(*d.ExpectedDelay) }
    if d.RiskScore != nil { return float64(*d.RiskScore) / 20.0 }
    return 0
}

// RiskBand maps a score to the coarse color band used by the visualization
// layer. A nil score reads "none".
func RiskBand(score *int) string {
    if score == nil { return "none" }
    switch {
    case *score >= 70:
        return "high"
    case *score >= 40:
        return "medium"
    }
    return "low"
}

type VizNode struct {
    ID    int64  `json:"id"`
    Label string `json:"label"`
    Type  string `json:"type,omitempty"`
    Team  string `json:"team,omitempty"`
    State string `json:"state,omitempty"`
}

type VizLink struct {
    Source        int64  `json:"source"`
    Target        int64  `json:"target"`
    Kind          string `json:"kind"`
    RiskScore     *int   `json:"riskScore,omitempty"`
    ExpectedDelay *int   `json:"expectedDelay,omitempty"`
    Band          string `json:"band"`
}

type VizExport struct {
    Nodes []VizNode `json:"nodes"`
    Links []VizLink `json:"links"`
}

// ExportForVisualization flattens the graph for a rendering layer. Pure view
// transform; nodes ascend by id, links follow Edges order.
func (g *Graph) ExportForVisualization() VizExport {
    exp := VizExport{Nodes: make([]VizNode, 0, len(g.Nodes))}
    ids := make([]int64, 0, len(g.Nodes))
    for id := range g.Nodes {
        ids = append(ids, id)
    }
    sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
    for _, id := range ids {
        n := g.Nodes[id]
        exp.Nodes = append(exp.Nodes, VizNode{ID: n.ID, Label: n.Title, Type: n.Type, Team: n.Team, State: n.State})
    }
    for _, e := range g.Edges() {
        exp.Links = append(exp.Links, VizLink{
            Source:        e.SourceID,
            Target:        e.TargetID,
            Kind:          string(e.Kind),
            RiskScore:     e.RiskScore,
            ExpectedDelay: e.ExpectedDelay,
            Band:          RiskBand(e.RiskScore),
        })
    }
    return exp
}
