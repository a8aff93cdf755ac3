/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "regexp"
    "sort"
    "strconv"
    "strings"

    "github.com/example/dep-pulse/internal/adapters/ado"
    "github.com/example/dep-pulse/internal/adapters/openai"
    "github.com/example/dep-pulse/internal/domain"
)

type SyncResult struct {
    Items         int `json:"items"`
    Edges         int `json:"edges"`
    DanglingEdges int `json:"danglingEdges"`
    Teams         int `json:"teams"`
}

// SyncTracker imports the WIQL result set: work items first, then the
// dependency links between them, then per-team velocity aggregates derived
// from the synced items. Read-only toward the tracker.
func (s *Service) SyncTracker(ctx context.Context) (*SyncResult, error) {
    if s.tracker == nil { return nil, fmt.Errorf("tracker not configured") }

    ids, err := s.tracker.QueryIDs(ctx, s.cfg.ADOWIQL)
    if err != nil { return nil, fmt.Errorf("query tracker: %w", err) }
    if len(ids) == 0 {
        s.log.Info().Msg("tracker sync: empty result set")
        return &SyncResult{}, nil
    }
    raw, err := s.tracker.GetWorkItems(ctx, ids)
    if err != nil { return nil, fmt.Errorf("fetch work items: %w", err) }

    res := &SyncResult{}
    internalByExt := make(map[int64]int64, len(raw)) // tracker id -> internal id
    var synced []domain.WorkItem
    for _, w := range raw {
        it := mapWorkItem(w, s.cfg.ADOFieldMap)
        id, err := s.repo.UpsertWorkItem(ctx, it)
        if err != nil {
            s.log.Error().Err(err).Str("ext", it.ExtID).Msg("upsert work item")
            continue
        }
        it.ID = id
        internalByExt[w.ID] = id
        synced = append(synced, it)
        res.Items++
    }

    type edgeKey struct {
        src, tgt int64
        kind     domain.RelationKind
    }
    seen := map[edgeKey]bool{}
    for _, w := range raw {
        self, ok := internalByExt[w.ID]
        if !ok { continue }
        for _, rel := range w.Relations {
            kind, srcIsSelf, ok := mapLinkKind(rel.Rel)
            if !ok { continue }
            other, ok := ado.RelationTargetID(rel)
            if !ok { continue }
            otherInternal, ok := internalByExt[other]
            if !ok {
                // link points outside the synced window
                res.DanglingEdges++
                s.log.Warn().Int64("item", w.ID).Int64("other", other).Str("rel", rel.Rel).Msg("skipping link to unsynced item")
                continue
            }
            src, tgt := self, otherInternal
            if !srcIsSelf { src, tgt = tgt, src }
            k := edgeKey{src, tgt, kind}
            if seen[k] { continue }
            seen[k] = true
            if _, err := s.repo.UpsertDependency(ctx, domain.Dependency{
                SourceID: src, TargetID: tgt, Kind: kind, Provenance: domain.ProvenanceTracker,
            }); err != nil {
                s.log.Error().Err(err).Int64("src", src).Int64("tgt", tgt).Msg("upsert dependency")
                continue
            }
            res.Edges++
        }
    }

    for team, samples := range aggregateVelocity(synced) {
        if err := s.repo.BulkInsertVelocitySamples(ctx, team, samples); err != nil {
            s.log.Error().Err(err).Str("team", team).Msg("store velocity")
            continue
        }
        res.Teams++
    }

    s.log.Info().Int("items", res.Items).Int("edges", res.Edges).Int("dangling", res.DanglingEdges).Int("teams", res.Teams).Msg("tracker sync done")
    return res, nil
}

// mapLinkKind translates a tracker link type. srcIsSelf tells whether the
// item owning the relation is the delaying side of the edge.
func mapLinkKind(rel string) (kind domain.RelationKind, srcIsSelf bool, ok bool) {
    switch rel {
    case "System.LinkTypes.Dependency-Forward":
        // this item precedes the linked one
        return domain.KindBlocks, true, true
    case "System.LinkTypes.Dependency-Reverse":
        // this item waits for the linked one
        return domain.KindDependsOn, false, true
    case "System.LinkTypes.Hierarchy-Forward":
        // child slip delays the parent
        return domain.KindRequires, false, true
    case "System.LinkTypes.Related":
        return domain.KindRelatedTo, true, true
    }
    return "", false, false
}

func mapWorkItem(w ado.WorkItem, fieldMap map[string]string) domain.WorkItem {
    f := func(key string) string {
        if fieldMap != nil {
            if ref, ok := fieldMap[key]; ok { key = ref }
        }
        return getString(w.Fields, key)
    }
    it := domain.WorkItem{
        ExtID:       strconv.FormatInt(w.ID, 10),
        Title:       f("System.Title"),
        Type:        f("System.WorkItemType"),
        State:       f("System.State"),
        Team:        lastSegment(f("System.AreaPath")),
        Sprint:      lastSegment(f("System.IterationPath")),
        Description: stripHTML(f("System.Description")),
    }
    if v, ok := w.Fields["System.AssignedTo"]; ok {
        switch a := v.(type) {
        case map[string]any:
            it.Assignee, _ = a["displayName"].(string)
        case string:
            it.Assignee = a
        }
    }
    if v, ok := w.Fields["Microsoft.VSTS.Scheduling.StoryPoints"].(float64); ok {
        it.StoryPoints = &v
    }
    return it
}

func getString(fields map[string]any, key string) string {
    v, _ := fields[key].(string)
    return v
}

func lastSegment(path string) string {
    if i := strings.LastIndexByte(path, '\\'); i >= 0 { return path[i+1:] }
    if i := strings.LastIndexByte(path, '/'); i >= 0 { return path[i+1:] }
    return path
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripHTML(s string) string {
    return strings.TrimSpace(tagPattern.ReplaceAllString(s, " "))
}

// aggregateVelocity derives per-team samples from synced items: planned is
// the sum of story points per (team, sprint); completed counts only finished
// states. Samples come back oldest sprint first.
func aggregateVelocity(items []domain.WorkItem) map[string][]domain.VelocitySample {
    type bucket struct {
        sprint    string
        order     int
        planned   float64
        completed float64
    }
    byTeam := map[string]map[string]*bucket{}
    for _, it := range items {
        if it.Team == "" || it.Sprint == "" || it.StoryPoints == nil { continue }
        start, _, ok := domain.ParseSprintRange(it.Sprint)
        if !ok { continue }
        sprints, ok2 := byTeam[it.Team]
        if !ok2 {
            sprints = map[string]*bucket{}
            byTeam[it.Team] = sprints
        }
        b, ok2 := sprints[it.Sprint]
        if !ok2 {
            b = &bucket{sprint: it.Sprint, order: start}
            sprints[it.Sprint] = b
        }
        b.planned += *it.StoryPoints
        if isFinished(it.State) { b.completed += *it.StoryPoints }
    }

    out := map[string][]domain.VelocitySample{}
    for team, sprints := range byTeam {
        buckets := make([]*bucket, 0, len(sprints))
        for _, b := range sprints {
            buckets = append(buckets, b)
        }
        sort.Slice(buckets, func(i, j int) bool {
            if buckets[i].order != buckets[j].order { return buckets[i].order < buckets[j].order }
            return buckets[i].sprint < buckets[j].sprint
        })
        samples := make([]domain.VelocitySample, 0, len(buckets))
        for _, b := range buckets {
            samples = append(samples, domain.VelocitySample{Iteration: b.sprint, Completed: b.completed, Planned: b.planned})
        }
        out[team] = samples
    }
    return out
}

func isFinished(state string) bool {
    switch strings.ToLower(state) {
    case "done", "closed", "completed", "resolved":
        return true
    }
    return false
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// redactText masks addresses before item text leaves the system.
func redactText(s string) string {
    return emailPattern.ReplaceAllString(s, "[email]")
}

type SuggestResult struct {
    Considered int `json:"considered"`
    Suggested  int `json:"suggested"`
    Inserted   int `json:"inserted"`
}

// SuggestDependencies runs the text pass: redacted titles and descriptions go
// to the model, validated suggestions enter storage unscored with provenance
// "ai_detected". The next rescore sweep scores them with the elevated
// complexity factor.
func (s *Service) SuggestDependencies(ctx context.Context) (*SuggestResult, error) {
    if s.llm == nil { return nil, fmt.Errorf("llm not configured") }

    items, err := s.repo.ListWorkItems(ctx)
    if err != nil { return nil, err }
    known := make(map[int64]bool, len(items))
    summaries := make([]openai.ItemSummary, 0, len(items))
    for _, it := range items {
        known[it.ID] = true
        if it.Description == "" { continue }
        if len(summaries) >= s.cfg.SuggestMaxItems { continue }
        summaries = append(summaries, openai.ItemSummary{
            ID:          it.ID,
            Title:       redactText(it.Title),
            Description: redactText(it.Description),
        })
    }
    res := &SuggestResult{Considered: len(summaries)}
    if len(summaries) == 0 { return res, nil }

    suggestions, err := s.llm.SuggestDependencies(ctx, summaries)
    if err != nil { return nil, fmt.Errorf("suggest dependencies: %w", err) }
    res.Suggested = len(suggestions)

    for _, sg := range suggestions {
        if !known[sg.SourceID] || !known[sg.TargetID] {
            s.log.Warn().Int64("src", sg.SourceID).Int64("tgt", sg.TargetID).Msg("suggestion references unknown item, skipped")
            continue
        }
        if _, err := s.repo.UpsertDependency(ctx, domain.Dependency{
            SourceID: sg.SourceID, TargetID: sg.TargetID, Kind: domain.KindBlocks, Provenance: domain.ProvenanceAI,
        }); err != nil {
            s.log.Error().Err(err).Int64("src", sg.SourceID).Int64("tgt", sg.TargetID).Msg("insert suggested dependency")
            continue
        }
        res.Inserted++
    }
    s.log.Info().Int("considered", res.Considered).Int("suggested", res.Suggested).Int("inserted", res.Inserted).Msg("dependency suggestion done")
    return res, nil
}
