package core

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	entries []logEntry
}

func (l *captureLogger) log(level, msg string, args []any) {
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.log("error", msg, args) }

func (l *captureLogger) has(level, msg string) bool {
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

func TestServiceObservability(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	logger := &captureLogger{}
	env := newTestEnv(t, monday, WithMetricsRecorder(metrics), WithTracer(tracer), WithLogger(logger))
	ctx := context.Background()

	env.addSample(t, "a@embl.de", "pl")
	if !metrics.has(OpAddSample, true) || !tracer.has(OpAddSample, true) {
		t.Fatalf("expected successful add_sample to be observed")
	}
	if !logger.has("info", "sample created") || !logger.has("debug", "operation completed") {
		t.Fatalf("expected add_sample logs, got %+v", logger.entries)
	}

	if _, err := env.svc.ResubmitSample(ctx, "22_01_H1"); err == nil {
		t.Fatalf("expected resubmit of unknown key to fail")
	}
	if !metrics.has(OpResubmitSample, false) || !tracer.has(OpResubmitSample, false) {
		t.Fatalf("expected failed resubmit to be observed")
	}
	if !logger.has("info", "operation rejected") {
		t.Fatalf("expected rejected operation log")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	env := newTestEnv(t, monday, WithMetricsRecorder(rec))
	env.addSample(t, "a@embl.de", "one")
	env.addSample(t, "a@embl.de", "two")
	if got := testutil.ToFloat64(rec.operations.WithLabelValues(OpAddSample, "success")); got != 2 {
		t.Fatalf("expected 2 successful add_sample, got %v", got)
	}

	again, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if again.operations != rec.operations {
		t.Fatalf("expected existing collector to be reused")
	}
}

func TestJSONTraceTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	env := newTestEnv(t, monday, WithTracer(tracer))
	if _, err := env.svc.RemainingSamples(context.Background()); err != nil {
		t.Fatalf("remaining: %v", err)
	}
	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Operation != OpRemainingSamples || entries[0].Status != "success" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode trace line: %v", err)
	}
	if decoded.Operation != OpRemainingSamples {
		t.Fatalf("unexpected trace line %s", buf.String())
	}
}
