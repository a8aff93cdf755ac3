/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package openai suggests dependency edges implied by work-item text. Output
// edges are suggestions only; they enter storage unscored with provenance
// "ai_detected" and are scored by the next sweep.
package openai

import (
    "context"
    "encoding/json"
    "fmt"
    "strings"
    "time"

    openai "github.com/openai/openai-go/v2"
    "github.com/openai/openai-go/v2/option"
    "github.com/rs/zerolog"
)

const systemPrompt = `You read project work items and list implied dependencies between them.
Answer with a JSON array only, no prose. Each element:
{"sourceId": <id of the item that must finish first>, "targetId": <id of the item that waits>, "reason": "<short reason>"}
Only list pairs clearly implied by the text. An empty array is a valid answer.`

type Client struct {
    api   openai.Client
    model string
    log   zerolog.Logger
}

func New(apiKey, model string, timeout time.Duration, log zerolog.Logger) *Client {
    return &Client{
        api:   openai.NewClient(option.WithAPIKey(apiKey), option.WithRequestTimeout(timeout)),
        model: model,
        log:   log,
    }
}

// Suggestion is one proposed edge, in internal work-item ids.
type Suggestion struct {
    SourceID int64  `json:"sourceId"`
    TargetID int64  `json:"targetId"`
    Reason   string `json:"reason"`
}

// ItemSummary is the redacted slice of a work item shown to the model.
type ItemSummary struct {
    ID          int64  `json:"id"`
    Title       string `json:"title"`
    Description string `json:"description,omitempty"`
}

// SuggestDependencies asks the model for edges implied by the given items'
// text.
func (c *Client) SuggestDependencies(ctx context.Context, items []ItemSummary) ([]Suggestion, error) {
    payload, err := json.Marshal(items)
    if err != nil { return nil, err }

    resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
        Model: openai.ChatModel(c.model),
        Messages: []openai.ChatCompletionMessageParamUnion{
            openai.SystemMessage(systemPrompt),
            openai.UserMessage(string(payload)),
        },
    })
    if err != nil { return nil, fmt.Errorf("chat completion: %w", err) }
    if len(resp.Choices) == 0 { return nil, fmt.Errorf("chat completion: empty response") }

    content := strings.TrimSpace(resp.Choices[0].Message.Content)
    content = strings.TrimPrefix(content, "```json")
    content = strings.TrimPrefix(content, "```")
    content = strings.TrimSuffix(content, "```")

    var suggestions []Suggestion
    if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &suggestions); err != nil {
        return nil, fmt.Errorf("decode suggestions: %w", err)
    }
    out := suggestions[:0]
    for _, s := range suggestions {
        if s.SourceID == 0 || s.TargetID == 0 || s.SourceID == s.TargetID { continue }
        out = append(out, s)
    }
    c.log.Debug().Int("items", len(items)).Int("suggestions", len(out)).Msg("llm dependency suggestion done")
    return out, nil
}
