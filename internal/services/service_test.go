package services

import (
    "strings"
    "testing"

    "github.com/example/dep-pulse/internal/adapters/ado"
    "github.com/example/dep-pulse/internal/domain"
)

func fp(v float64) *float64 { return &v }

func TestAggregateVelocity(t *testing.T) {
    items := []domain.WorkItem{
        {Team: "DB", Sprint: "Sprint 1", StoryPoints: fp(5), State: "Done"},
        {Team: "DB", Sprint: "Sprint 1", StoryPoints: fp(3), State: "Active"},
        {Team: "DB", Sprint: "Sprint 2", StoryPoints: fp(8), State: "Closed"},
        {Team: "API", Sprint: "Sprint 2", StoryPoints: fp(2), State: "Done"},
        {Team: "", Sprint: "Sprint 1", StoryPoints: fp(9), State: "Done"},   // no team
        {Team: "DB", Sprint: "Backlog", StoryPoints: fp(9), State: "Done"}, // no sprint number
        {Team: "DB", Sprint: "Sprint 3", State: "Done"},                    // no points
    }
    got := aggregateVelocity(items)
    db := got["DB"]
    if len(db) != 2 {
        t.Fatalf("DB samples = %d, want 2", len(db))
    }
    if db[0].Iteration != "Sprint 1" || db[0].Planned != 8 || db[0].Completed != 5 {
        t.Fatalf("DB sprint 1 = %+v", db[0])
    }
    if db[1].Iteration != "Sprint 2" || db[1].Planned != 8 || db[1].Completed != 8 {
        t.Fatalf("DB sprint 2 = %+v", db[1])
    }
    if api := got["API"]; len(api) != 1 || api[0].Completed != 2 {
        t.Fatalf("API samples = %+v", api)
    }
    if _, ok := got[""]; ok {
        t.Fatal("items without a team must not produce samples")
    }
}

func TestMapLinkKind(t *testing.T) {
    cases := []struct {
        rel       string
        kind      domain.RelationKind
        srcIsSelf bool
        ok        bool
    }{
        {"System.LinkTypes.Dependency-Forward", domain.KindBlocks, true, true},
        {"System.LinkTypes.Dependency-Reverse", domain.KindDependsOn, false, true},
        {"System.LinkTypes.Hierarchy-Forward", domain.KindRequires, false, true},
        {"System.LinkTypes.Related", domain.KindRelatedTo, true, true},
        {"AttachedFile", "", false, false},
    }
    for _, c := range cases {
        kind, srcIsSelf, ok := mapLinkKind(c.rel)
        if kind != c.kind || srcIsSelf != c.srcIsSelf || ok != c.ok {
            t.Fatalf("mapLinkKind(%q) = (%q,%v,%v), want (%q,%v,%v)", c.rel, kind, srcIsSelf, ok, c.kind, c.srcIsSelf, c.ok)
        }
    }
}

func TestMapWorkItem(t *testing.T) {
    w := ado.WorkItem{
        ID: 321,
        Fields: map[string]any{
            "System.Title":        "Build the schema",
            "System.WorkItemType": "Story",
            "System.State":        "Active",
            "System.AreaPath":     `Proj\Platform\DB`,
            "System.IterationPath": `Proj\Sprint 8-9`,
            "System.AssignedTo":   map[string]any{"displayName": "Sara K"},
            "System.Description":  "<div>Needs the <b>auth</b> service first.</div>",
            "Microsoft.VSTS.Scheduling.StoryPoints": 13.0,
        },
    }
    it := mapWorkItem(w, nil)
    if it.ExtID != "321" || it.Title != "Build the schema" || it.Type != "Story" {
        t.Fatalf("mapped item = %+v", it)
    }
    if it.Team != "DB" || it.Sprint != "Sprint 8-9" {
        t.Fatalf("team/sprint = %q/%q", it.Team, it.Sprint)
    }
    if it.Assignee != "Sara K" {
        t.Fatalf("assignee = %q", it.Assignee)
    }
    if it.StoryPoints == nil || *it.StoryPoints != 13 {
        t.Fatalf("story points = %v", it.StoryPoints)
    }
    if strings.Contains(it.Description, "<") {
        t.Fatalf("description not stripped: %q", it.Description)
    }
}

func TestRedactText(t *testing.T) {
    got := redactText("ping sara.k@corp.example before starting")
    if strings.Contains(got, "@corp.example") {
        t.Fatalf("address not redacted: %q", got)
    }
}

func TestRenderRiskAlertEscapesTitles(t *testing.T) {
    dep := domain.Dependency{ID: 1, SourceID: 1, TargetID: 2, Kind: domain.KindBlocks}
    src := &domain.WorkItem{ID: 1, Title: "fix (auth) v2.1"}
    pred := domain.Prediction{RiskScore: 85, ExpectedDelay: 4, Model: domain.ModelDeterministic}

    text := renderRiskAlert(dep, pred, src, nil)
    if !strings.Contains(text, `fix \(auth\) v2\.1`) {
        t.Fatalf("reserved characters not escaped: %q", text)
    }
    if !strings.Contains(text, "*85*/100") {
        t.Fatalf("score missing: %q", text)
    }
    if !strings.Contains(text, "#2") {
        t.Fatalf("missing target placeholder: %q", text)
    }
}

func TestEscapeMarkdown(t *testing.T) {
    if got := escapeMarkdown("a_b*c."); got != `a\_b\*c\.` {
        t.Fatalf("escapeMarkdown = %q", got)
    }
}
