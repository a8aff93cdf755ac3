/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import "github.com/example/dep-pulse/internal/domain"

// CriticalPath walks the graph greedily: from each entry node it repeatedly
// follows the outgoing edge with the highest risk score (ties: higher
// expected delay, then lower target id) and stops when a node repeats on the
// current path or has no outgoing edges. Among all entries the path with the
// largest cumulative delay wins. A fast, explainable approximation, not an
// exact longest-path solve.
func CriticalPath(g *Graph, root *int64) domain.CriticalPathResult {
    entries := entryNodes(g, root)
    best := domain.CriticalPathResult{Path: []int64{}, Model: domain.ModelDeterministic}
    for _, start := range entries {
        path, weight := walkFrom(g, start)
        better := weight > best.TotalWeight ||
            (weight == best.TotalWeight && len(path) > len(best.Path))
        if len(best.Path) == 0 || better {
            best.Path, best.TotalWeight = path, weight
        }
    }
    return best
}

func entryNodes(g *Graph, root *int64) []int64 {
    if root != nil {
        if g.HasNode(*root) { return []int64{*root} }
        return nil
    }
    if roots := g.Roots(); len(roots) > 0 { return roots }
    // fully cyclic graph: fall back to the lowest id so the walk still has a
    // deterministic starting point
    var min int64
    found := false
    for id := range g.Nodes {
        if !found || id < min { min, found = id, true }
    }
    if !found { return nil }
    return []int64{min}
}

func walkFrom(g *Graph, start int64) ([]int64, float64) {
    path := []int64{start}
    onPath := map[int64]bool{start: true}
    var weight float64
    cur := start
    for {
        next, ok := pickEdge(g.OutEdges(cur), onPath)
        if !ok { break }
        weight += edgeDelay(next)
        cur = next.TargetID
        path = append(path, cur)
        onPath[cur] = true
    }
    return path, weight
}

// pickEdge selects the riskiest edge whose target is not already on the
// current path. Nil scores rank below zero so scored edges always win.
func pickEdge(edges []domain.Dependency, onPath map[int64]bool) (domain.Dependency, bool) {
    var best domain.Dependency
    found := false
    for _, e := range edges {
        if onPath[e.TargetID] { continue }
        if !found || riskier(e, best) { best, found = e, true }
    }
    return best, found
}

func riskier(a, b domain.Dependency) bool {
    ra, rb := rank(a.RiskScore), rank(b.RiskScore)
    if ra != rb { return ra > rb }
    da, db := rank(a.ExpectedDelay), rank(b.ExpectedDelay)
    if da != db { return da > db }
    return a.TargetID < b.TargetID
}

func rank(v *int) int {
    if v == nil { return -1 }
    return *v
}
