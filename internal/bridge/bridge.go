/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package bridge speaks to the out-of-process predictor. Protocol: the
// command name is appended to the configured argv, the request is written as
// JSON on stdin, and the process answers with a single JSON object on stdout.
// A non-zero exit carries diagnostics on stderr. Every call is bounded by a
// timeout and independent of every other call. There is no retry here;
// callers decide once per operation whether to fall back.
package bridge

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os/exec"
    "strings"
    "sync/atomic"
    "time"

    "github.com/example/dep-pulse/internal/domain"
    "github.com/rs/zerolog"
)

const (
    CmdPredictRisk      = "predict_risk"
    CmdFindCriticalPath = "find_critical_path"
    CmdCascadeImpact    = "calculate_cascade_impact"
    CmdTrainModel       = "train_model"
    CmdQuantizeModel    = "quantize_model"
)

// CallError classifies a failed predictor invocation.
type CallError struct {
    Command string
    Kind    string // spawn | exit | decode | encode | timeout
    Stderr  string
    Err     error
}

func (e *CallError) Error() string {
    if e.Stderr != "" {
        return fmt.Sprintf("predictor %s: %s: %v: %s", e.Command, e.Kind, e.Err, e.Stderr)
    }
    return fmt.Sprintf("predictor %s: %s: %v", e.Command, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

type PredictRequest struct {
    Factors     domain.RiskFactors `json:"factors"`
    StoryPoints *float64           `json:"storyPoints,omitempty"`
    Advanced    bool               `json:"advanced,omitempty"`
}

type PredictResponse struct {
    RiskScore        int                `json:"riskScore"`
    ExpectedDelayDays *int              `json:"expectedDelayDays,omitempty"`
    Model            string             `json:"model,omitempty"`
    Factors          map[string]float64 `json:"factors,omitempty"`
}

type GraphPayload struct {
    Nodes []domain.WorkItem   `json:"nodes"`
    Edges []domain.Dependency `json:"edges"`
}

type PathRequest struct {
    Graph    GraphPayload `json:"graph"`
    RootID   *int64       `json:"rootId,omitempty"`
    Advanced bool         `json:"advanced,omitempty"`
}

type PathResponse struct {
    Path        []int64 `json:"path"`
    TotalWeight float64 `json:"totalWeight"`
}

type CascadeRequest struct {
    ItemID   int64        `json:"itemId"`
    Graph    GraphPayload `json:"graph"`
    Advanced bool         `json:"advanced,omitempty"`
}

type CascadeResponse struct {
    Affected       []int64            `json:"affected"`
    TotalDelayDays float64            `json:"totalDelayDays"`
    Factors        map[string]float64 `json:"factors,omitempty"`
}

type LifecycleResponse struct {
    Status  string `json:"status"`
    Detail  string `json:"detail,omitempty"`
    Seconds float64 `json:"seconds,omitempty"`
}

// Runner invokes the predictor binary. Safe for concurrent use; each call is
// its own process.
type Runner struct {
    bin     string
    args    []string
    timeout time.Duration
    log     zerolog.Logger

    available atomic.Bool // last-known-good hint only, never trusted to skip a call
}

func NewRunner(bin string, args []string, timeout time.Duration, log zerolog.Logger) *Runner {
    return &Runner{bin: bin, args: args, timeout: timeout, log: log}
}

// Available reports whether the most recent invocation succeeded. Advisory
// only: callers still attempt the real call when enhancement is requested.
func (r *Runner) Available() bool { return r.available.Load() }

func (r *Runner) PredictRisk(ctx context.Context, req PredictRequest) (PredictResponse, error) {
    var resp PredictResponse
    err := r.call(ctx, CmdPredictRisk, r.timeout, req, &resp)
    return resp, err
}

func (r *Runner) FindCriticalPath(ctx context.Context, req PathRequest) (PathResponse, error) {
    var resp PathResponse
    err := r.call(ctx, CmdFindCriticalPath, r.timeout, req, &resp)
    return resp, err
}

func (r *Runner) CascadeImpact(ctx context.Context, req CascadeRequest) (CascadeResponse, error) {
    var resp CascadeResponse
    err := r.call(ctx, CmdCascadeImpact, r.timeout, req, &resp)
    return resp, err
}

// TrainModel and QuantizeModel forward lifecycle commands with a caller-chosen
// budget; they never run on the scoring path.
func (r *Runner) TrainModel(ctx context.Context, timeout time.Duration) (LifecycleResponse, error) {
    var resp LifecycleResponse
    err := r.call(ctx, CmdTrainModel, timeout, struct{}{}, &resp)
    return resp, err
}

func (r *Runner) QuantizeModel(ctx context.Context, timeout time.Duration) (LifecycleResponse, error) {
    var resp LifecycleResponse
    err := r.call(ctx, CmdQuantizeModel, timeout, struct{}{}, &resp)
    return resp, err
}

func (r *Runner) call(ctx context.Context, command string, timeout time.Duration, req, resp any) error {
    payload, err := json.Marshal(req)
    if err != nil {
        return &CallError{Command: command, Kind: "encode", Err: err}
    }
    cctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()

    argv := make([]string, 0, len(r.args)+1)
    argv = append(argv, r.args...)
    argv = append(argv, command)
    cmd := exec.CommandContext(cctx, r.bin, argv...)
    cmd.Stdin = bytes.NewReader(payload)
    cmd.WaitDelay = time.Second // don't hang on inherited pipes after kill

    started := time.Now()
    out, err := cmd.Output()
    if err != nil {
        r.available.Store(false)
        ce := &CallError{Command: command, Err: err}
        switch {
        case cctx.Err() != nil:
            ce.Kind, ce.Err = "timeout", cctx.Err()
        default:
            var exitErr *exec.ExitError
            if errors.As(err, &exitErr) {
                ce.Kind = "exit"
                ce.Stderr = strings.TrimSpace(string(exitErr.Stderr))
            } else {
                ce.Kind = "spawn"
            }
        }
        r.log.Debug().Str("command", command).Str("kind", ce.Kind).Dur("took", time.Since(started)).Err(ce.Err).Msg("predictor call failed")
        return ce
    }
    if err := json.Unmarshal(bytes.TrimSpace(out), resp); err != nil {
        r.available.Store(false)
        return &CallError{Command: command, Kind: "decode", Err: err}
    }
    r.available.Store(true)
    r.log.Debug().Str("command", command).Dur("took", time.Since(started)).Msg("predictor call ok")
    return nil
}
