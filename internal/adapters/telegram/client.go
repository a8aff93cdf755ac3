/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package telegram delivers risk alerts and answers chat commands over the
// Bot API.
package telegram

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/rs/zerolog"
)

type Client struct {
    token string
    httpc *http.Client
    log   zerolog.Logger
}

func New(token string, timeout time.Duration, log zerolog.Logger) *Client {
    return &Client{token: token, httpc: &http.Client{Timeout: timeout}, log: log}
}

func (c *Client) Enabled() bool { return c.token != "" }

type apiResponse struct {
    OK          bool            `json:"ok"`
    Description string          `json:"description"`
    Result      json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, method string, body any, out any) error {
    payload, err := json.Marshal(body)
    if err != nil { return err }
    u := fmt.Sprintf("https://api.telegram.org/bot%s/%s", c.token, method)
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
    if err != nil { return err }
    req.Header.Set("Content-Type", "application/json")

    resp, err := c.httpc.Do(req)
    if err != nil { return fmt.Errorf("telegram %s: %w", method, err) }
    defer resp.Body.Close()
    data, err := io.ReadAll(resp.Body)
    if err != nil { return fmt.Errorf("telegram %s: %w", method, err) }

    var ar apiResponse
    if err := json.Unmarshal(data, &ar); err != nil {
        return fmt.Errorf("telegram %s: decode: %w", method, err)
    }
    if !ar.OK { return fmt.Errorf("telegram %s: %s", method, ar.Description) }
    if out != nil { return json.Unmarshal(ar.Result, out) }
    return nil
}

// SendMessage posts plain text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
    return c.call(ctx, "sendMessage", map[string]any{"chat_id": chatID, "text": text}, nil)
}

// SendMarkdown posts MarkdownV2-formatted text. Caller escapes reserved
// characters.
func (c *Client) SendMarkdown(ctx context.Context, chatID int64, text string) error {
    return c.call(ctx, "sendMessage", map[string]any{"chat_id": chatID, "text": text, "parse_mode": "MarkdownV2"}, nil)
}

// ResolveUsername looks up the numeric chat id for an @channel username.
func (c *Client) ResolveUsername(ctx context.Context, username string) (int64, error) {
    if username == "" { return 0, fmt.Errorf("empty username") }
    if username[0] != '@' { username = "@" + username }
    var chat struct {
        ID int64 `json:"id"`
    }
    if err := c.call(ctx, "getChat", map[string]any{"chat_id": username}, &chat); err != nil {
        return 0, err
    }
    return chat.ID, nil
}

// SetWebhook registers the bot webhook with a shared secret the handler
// verifies on every update.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
    return c.call(ctx, "setWebhook", map[string]any{"url": url, "secret_token": secret}, nil)
}

// Update is the subset of an incoming webhook update the handlers use.
type Update struct {
    UpdateID int64 `json:"update_id"`
    Message  *struct {
        Chat struct {
            ID int64 `json:"id"`
        } `json:"chat"`
        From *struct {
            Username string `json:"username"`
        } `json:"from"`
        Text string `json:"text"`
    } `json:"message"`
}
