/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package engine

import (
    "sort"

    "github.com/example/dep-pulse/internal/domain"
)

// CascadeImpact simulates a slip of the given item. It walks downstream over
// propagating relations (related_to is skipped) by BFS. An item reachable by
// several routes is counted once at its minimum hop depth, and among the
// edges arriving at that depth the one with the least cumulative delay wins,
// so a diamond never double counts the shared tail.
func CascadeImpact(g *Graph, itemID int64) (domain.CascadeImpactResult, error) {
    if !g.HasNode(itemID) {
        return domain.CascadeImpactResult{}, domain.ErrNotFound
    }
    type reach struct {
        depth int
        total float64 // cumulative delay along the chosen path
        via   float64 // delay of the chosen incoming edge
    }
    seen := map[int64]reach{itemID: {}}
    frontier := []int64{itemID}
    depth := 0
    for len(frontier) > 0 {
        depth++
        next := map[int64]reach{}
        for _, id := range frontier {
            base := seen[id].total
            for _, e := range g.OutEdges(id) {
                if !e.Kind.Propagates() { continue }
                if _, done := seen[e.TargetID]; done { continue }
                d := edgeDelay(e)
                cand := reach{depth: depth, total: base + d, via: d}
                if prev, ok := next[e.TargetID]; !ok || cand.total < prev.total {
                    next[e.TargetID] = cand
                }
            }
        }
        frontier = frontier[:0]
        for id, r := range next {
            seen[id] = r
            frontier = append(frontier, id)
        }
        sort.Slice(frontier, func(i, j int) bool { return frontier[i] < frontier[j] })
    }

    res := domain.CascadeImpactResult{SourceID: itemID, Affected: []int64{}, Model: domain.ModelDeterministic}
    type hit struct {
        id    int64
        depth int
    }
    var hits []hit
    for id, r := range seen {
        if id == itemID { continue }
        hits = append(hits, hit{id, r.depth})
        res.TotalDelayDays += r.via
    }
    sort.Slice(hits, func(i, j int) bool {
        if hits[i].depth != hits[j].depth { return hits[i].depth < hits[j].depth }
        return hits[i].id < hits[j].id
    })
    for _, h := range hits {
        res.Affected = append(res.Affected, h.id)
    }
    return res, nil
}
