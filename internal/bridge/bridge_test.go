package bridge

import (
    "context"
    "errors"
    "strings"
    "testing"
    "time"

    "github.com/example/dep-pulse/internal/domain"
    "github.com/rs/zerolog"
)

// shRunner builds a Runner around `sh -c script`; the command name appended by
// the runner lands in $0 inside the script.
func shRunner(script string, timeout time.Duration) *Runner {
    return NewRunner("sh", []string{"-c", script}, timeout, zerolog.Nop())
}

func TestPredictRiskRoundTrip(t *testing.T) {
    r := shRunner(`cat >/dev/null; echo '{"riskScore":55,"expectedDelayDays":3,"model":"pinn"}'`, 5*time.Second)
    resp, err := r.PredictRisk(context.Background(), PredictRequest{Factors: domain.RiskFactors{TeamVelocity: 50}})
    if err != nil { t.Fatal(err) }
    if resp.RiskScore != 55 || resp.ExpectedDelayDays == nil || *resp.ExpectedDelayDays != 3 {
        t.Fatalf("resp = %+v", resp)
    }
    if !r.Available() {
        t.Fatal("successful call must mark the predictor available")
    }
}

func TestCommandNameReachesProcess(t *testing.T) {
    r := shRunner(`cat >/dev/null; printf '{"status":"%s"}' "$0"`, 5*time.Second)
    resp, err := r.TrainModel(context.Background(), 5*time.Second)
    if err != nil { t.Fatal(err) }
    if resp.Status != CmdTrainModel {
        t.Fatalf("command name = %q, want %q", resp.Status, CmdTrainModel)
    }
}

func TestNonZeroExitCarriesStderr(t *testing.T) {
    r := shRunner(`cat >/dev/null; echo "model file missing" >&2; exit 3`, 5*time.Second)
    _, err := r.PredictRisk(context.Background(), PredictRequest{})
    var ce *CallError
    if !errors.As(err, &ce) { t.Fatalf("err = %v, want *CallError", err) }
    if ce.Kind != "exit" {
        t.Fatalf("kind = %q, want exit", ce.Kind)
    }
    if !strings.Contains(ce.Stderr, "model file missing") {
        t.Fatalf("stderr diagnostics lost: %q", ce.Stderr)
    }
    if r.Available() {
        t.Fatal("failed call must clear availability")
    }
}

func TestMalformedOutputIsDecodeError(t *testing.T) {
    r := shRunner(`cat >/dev/null; echo 'Traceback (most recent call last):'`, 5*time.Second)
    _, err := r.PredictRisk(context.Background(), PredictRequest{})
    var ce *CallError
    if !errors.As(err, &ce) || ce.Kind != "decode" {
        t.Fatalf("err = %v, want decode CallError", err)
    }
}

func TestSpawnFailure(t *testing.T) {
    r := NewRunner("/nonexistent/predictor-bin", nil, time.Second, zerolog.Nop())
    _, err := r.PredictRisk(context.Background(), PredictRequest{})
    var ce *CallError
    if !errors.As(err, &ce) || ce.Kind != "spawn" {
        t.Fatalf("err = %v, want spawn CallError", err)
    }
}

func TestTimeoutKillsProcess(t *testing.T) {
    r := shRunner(`sleep 10`, 100*time.Millisecond)
    start := time.Now()
    _, err := r.PredictRisk(context.Background(), PredictRequest{})
    if took := time.Since(start); took > 2*time.Second {
        t.Fatalf("call not bounded by timeout, took %v", took)
    }
    var ce *CallError
    if !errors.As(err, &ce) || ce.Kind != "timeout" {
        t.Fatalf("err = %v, want timeout CallError", err)
    }
}

func TestCallerCancellation(t *testing.T) {
    r := shRunner(`sleep 10`, 30*time.Second)
    ctx, cancel := context.WithCancel(context.Background())
    go func() { time.Sleep(50 * time.Millisecond); cancel() }()
    start := time.Now()
    _, err := r.PredictRisk(ctx, PredictRequest{})
    if err == nil {
        t.Fatal("cancelled call must fail")
    }
    if took := time.Since(start); took > 2*time.Second {
        t.Fatalf("cancellation did not kill the process, took %v", took)
    }
}

func TestConcurrentCallsAreIndependent(t *testing.T) {
    r := shRunner(`cat >/dev/null; echo '{"riskScore":10}'`, 5*time.Second)
    done := make(chan error, 8)
    for i := 0; i < 8; i++ {
        go func() {
            _, err := r.PredictRisk(context.Background(), PredictRequest{})
            done <- err
        }()
    }
    for i := 0; i < 8; i++ {
        if err := <-done; err != nil { t.Fatal(err) }
    }
}
