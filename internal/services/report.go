/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "fmt"
    "strconv"
    "strings"

    "github.com/example/dep-pulse/internal/domain"
)

const topRiskLimit = 10

// notifyTargets resolves configured chat ids once per process; username
// lookups hit the bot API.
func (s *Service) notifyTargets(ctx context.Context) []int64 {
    s.chatOnce.Do(func() {
        s.chatIDs = append(s.chatIDs, s.cfg.TelegramChatIDs...)
        for _, u := range s.cfg.TelegramChatUsernames {
            id, err := s.notifier.ResolveUsername(ctx, u)
            if err != nil {
                s.log.Error().Err(err).Str("username", u).Msg("resolve chat username")
                continue
            }
            s.chatIDs = append(s.chatIDs, id)
        }
    })
    return s.chatIDs
}

// alertHighRisk fans one high-score alert out to every configured chat.
// Reports whether at least one delivery succeeded.
func (s *Service) alertHighRisk(ctx context.Context, dep domain.Dependency, pred domain.Prediction, source, target *domain.WorkItem) bool {
    if s.notifier == nil || !s.notifier.Enabled() { return false }
    text := renderRiskAlert(dep, pred, source, target)
    ok := false
    for _, chatID := range s.notifyTargets(ctx) {
        if err := s.notifier.SendMarkdown(ctx, chatID, text); err != nil {
            s.log.Error().Err(err).Int64("chat", chatID).Int64("dep", dep.ID).Msg("send risk alert")
            continue
        }
        ok = true
    }
    return ok
}

// HandleChatCommand answers one incoming webhook message.
func (s *Service) HandleChatCommand(ctx context.Context, chatID int64, text string) {
    cmd, arg, _ := strings.Cut(strings.TrimSpace(text), " ")
    if i := strings.IndexByte(cmd, '@'); i > 0 { cmd = cmd[:i] }
    switch cmd {
    case "/risks":
        s.sendRiskReport(ctx, chatID)
    case "/impact":
        s.sendImpactReport(ctx, chatID, strings.TrimSpace(arg))
    case "/help", "/start":
        s.sendHelp(ctx, chatID)
    default:
        s.sendPlain(ctx, chatID, "Unknown command. Try /help.")
    }
}

func (s *Service) sendRiskReport(ctx context.Context, chatID int64) {
    deps, err := s.repo.TopRiskDependencies(ctx, topRiskLimit)
    if err != nil {
        s.log.Error().Err(err).Msg("load top risks")
        s.sendPlain(ctx, chatID, "Could not load the risk report, try again later.")
        return
    }
    if len(deps) == 0 {
        s.sendPlain(ctx, chatID, "No scored dependencies yet. Run a rescore first.")
        return
    }
    var b strings.Builder
    b.WriteString("*Top risky dependencies*\n")
    for i, d := range deps {
        title := s.edgeLabel(ctx, d)
        fmt.Fprintf(&b, "%d\\. %s — risk *%d*, \\~%d day\\(s\\)\n",
            i+1, escapeMarkdown(title), rankOrZero(d.RiskScore), rankOrZero(d.ExpectedDelay))
    }
    s.sendMarkdown(ctx, chatID, b.String())
}

func (s *Service) sendImpactReport(ctx context.Context, chatID int64, arg string) {
    id, err := strconv.ParseInt(arg, 10, 64)
    if err != nil {
        s.sendPlain(ctx, chatID, "Usage: /impact <work item id>")
        return
    }
    res, err := s.CascadeImpact(ctx, id, true)
    if errors.Is(err, domain.ErrNotFound) {
        s.sendPlain(ctx, chatID, fmt.Sprintf("Work item %d is not in the graph.", id))
        return
    }
    if err != nil {
        s.log.Error().Err(err).Int64("item", id).Msg("cascade for chat")
        s.sendPlain(ctx, chatID, "Could not simulate the cascade, try again later.")
        return
    }
    s.sendMarkdown(ctx, chatID, renderImpact(res))
}

func (s *Service) sendHelp(ctx context.Context, chatID int64) {
    s.sendPlain(ctx, chatID, "Commands:\n"+
        "/risks — top risky dependencies\n"+
        "/impact <id> — cascade impact if an item slips\n"+
        "/help — this message")
}

func (s *Service) sendPlain(ctx context.Context, chatID int64, text string) {
    if s.notifier == nil { return }
    if err := s.notifier.SendMessage(ctx, chatID, text); err != nil {
        s.log.Error().Err(err).Int64("chat", chatID).Msg("send message")
    }
}

func (s *Service) sendMarkdown(ctx context.Context, chatID int64, text string) {
    if s.notifier == nil { return }
    if err := s.notifier.SendMarkdown(ctx, chatID, text); err != nil {
        s.log.Error().Err(err).Int64("chat", chatID).Msg("send markdown")
    }
}

func (s *Service) edgeLabel(ctx context.Context, d domain.Dependency) string {
    src, tgt := s.endpoints(ctx, d)
    name := func(it *domain.WorkItem, id int64) string {
        if it != nil && it.Title != "" { return it.Title }
        return fmt.Sprintf("#%d", id)
    }
    return fmt.Sprintf("%s → %s", name(src, d.SourceID), name(tgt, d.TargetID))
}

func renderRiskAlert(dep domain.Dependency, pred domain.Prediction, source, target *domain.WorkItem) string {
    name := func(it *domain.WorkItem, id int64) string {
        if it != nil && it.Title != "" { return it.Title }
        return fmt.Sprintf("#%d", id)
    }
    var b strings.Builder
    b.WriteString("⚠️ *High\\-risk dependency*\n")
    fmt.Fprintf(&b, "%s *%s* %s\n",
        escapeMarkdown(name(source, dep.SourceID)),
        escapeMarkdown(string(dep.Kind)),
        escapeMarkdown(name(target, dep.TargetID)))
    fmt.Fprintf(&b, "Risk *%d*/100, expected delay \\~%d day\\(s\\)\n", pred.RiskScore, pred.ExpectedDelay)
    fmt.Fprintf(&b, "Model: %s", escapeMarkdown(pred.Model))
    return b.String()
}

func renderImpact(res domain.CascadeImpactResult) string {
    var b strings.Builder
    fmt.Fprintf(&b, "*Cascade impact of \\#%d*\n", res.SourceID)
    fmt.Fprintf(&b, "Affected items: %d\n", len(res.Affected))
    fmt.Fprintf(&b, "Baseline delay: %s day\\(s\\)\n", escapeMarkdown(trimFloat(res.TotalDelayDays)))
    if res.EnhancedDelayDays != nil {
        fmt.Fprintf(&b, "Enhanced delay: %s day\\(s\\)\n", escapeMarkdown(trimFloat(*res.EnhancedDelayDays)))
    }
    if len(res.Affected) > 0 {
        ids := make([]string, 0, len(res.Affected))
        for _, id := range res.Affected {
            ids = append(ids, "\\#"+strconv.FormatInt(id, 10))
        }
        b.WriteString(strings.Join(ids, ", "))
    }
    return b.String()
}

func trimFloat(v float64) string {
    return strconv.FormatFloat(v, 'f', -1, 64)
}

func rankOrZero(v *int) int {
    if v == nil { return 0 }
    return *v
}

// escapeMarkdown quotes MarkdownV2 reserved characters in dynamic text.
func escapeMarkdown(s string) string {
    var b strings.Builder
    for _, r := range s {
        switch r {
        case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
            b.WriteByte('\\')
        }
        b.WriteRune(r)
    }
    return b.String()
}
