/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package ado is a thin read-only Azure DevOps client: WIQL query for work
// item ids, then batched work-item fetches with relations expanded.
package ado

import (
    "bytes"
    "context"
    "encoding/base64"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/rs/zerolog"
)

const batchSize = 200

type Client struct {
    orgURL     string
    project    string
    pat        string
    apiVersion string
    httpc      *http.Client
    log        zerolog.Logger
}

func New(orgURL, project, pat, apiVersion string, timeout time.Duration, log zerolog.Logger) *Client {
    return &Client{
        orgURL:     strings.TrimRight(orgURL, "/"),
        project:    project,
        pat:        pat,
        apiVersion: apiVersion,
        httpc:      &http.Client{Timeout: timeout},
        log:        log,
    }
}

// WorkItemRef is one row of a WIQL result.
type WorkItemRef struct {
    ID int64 `json:"id"`
}

type wiqlResponse struct {
    WorkItems []WorkItemRef `json:"workItems"`
}

// WorkItem is the raw tracker shape. Fields is the flat reference-name map;
// Relations carries typed links to other items.
type WorkItem struct {
    ID        int64          `json:"id"`
    Fields    map[string]any `json:"fields"`
    Relations []Relation     `json:"relations"`
}

type Relation struct {
    Rel string `json:"rel"`
    URL string `json:"url"`
}

type batchResponse struct {
    Value []WorkItem `json:"value"`
}

// QueryIDs runs a WIQL query and returns the matching work item ids.
func (c *Client) QueryIDs(ctx context.Context, wiql string) ([]int64, error) {
    u := fmt.Sprintf("%s/%s/_apis/wit/wiql?api-version=%s", c.orgURL, c.project, c.apiVersion)
    var resp wiqlResponse
    if err := c.doJSON(ctx, http.MethodPost, u, map[string]string{"query": wiql}, &resp); err != nil {
        return nil, fmt.Errorf("wiql: %w", err)
    }
    ids := make([]int64, 0, len(resp.WorkItems))
    for _, w := range resp.WorkItems {
        ids = append(ids, w.ID)
    }
    return ids, nil
}

// GetWorkItems fetches items in batches of 200 with relations expanded.
func (c *Client) GetWorkItems(ctx context.Context, ids []int64) ([]WorkItem, error) {
    var all []WorkItem
    u := fmt.Sprintf("%s/%s/_apis/wit/workitemsbatch?api-version=%s", c.orgURL, c.project, c.apiVersion)
    for start := 0; start < len(ids); start += batchSize {
        end := start + batchSize
        if end > len(ids) { end = len(ids) }
        body := map[string]any{"ids": ids[start:end], "$expand": "Relations"}
        var resp batchResponse
        if err := c.doJSON(ctx, http.MethodPost, u, body, &resp); err != nil {
            return nil, fmt.Errorf("workitemsbatch [%d:%d]: %w", start, end, err)
        }
        all = append(all, resp.Value...)
    }
    return all, nil
}

// RelationTargetID extracts the numeric work item id from a relation URL
// (last path segment).
func RelationTargetID(rel Relation) (int64, bool) {
    i := strings.LastIndexByte(rel.URL, '/')
    if i < 0 || i == len(rel.URL)-1 { return 0, false }
    id, err := strconv.ParseInt(rel.URL[i+1:], 10, 64)
    if err != nil { return 0, false }
    return id, true
}

func (c *Client) doJSON(ctx context.Context, method, url string, body, out any) error {
    payload, err := json.Marshal(body)
    if err != nil { return err }

    var lastErr error
    for attempt := 1; attempt <= 3; attempt++ {
        req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
        if err != nil { return err }
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(":"+c.pat)))

        resp, err := c.httpc.Do(req)
        if err != nil {
            lastErr = err
        } else {
            data, rerr := io.ReadAll(resp.Body)
            resp.Body.Close()
            if rerr != nil { lastErr = rerr } else {
                switch {
                case resp.StatusCode >= 200 && resp.StatusCode < 300:
                    return json.Unmarshal(data, out)
                case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
                    lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200))
                default:
                    return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200))
                }
            }
        }
        c.log.Warn().Str("url", url).Int("attempt", attempt).Err(lastErr).Msg("ado request retry")
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(time.Duration(attempt) * time.Second):
        }
    }
    return lastErr
}

func truncate(s string, n int) string {
    if len(s) <= n { return s }
    return s[:n] + "..."
}
