package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

type stubLoggerProvider struct {
	logger Logger
}

func (p stubLoggerProvider) GetLogger(string) Logger {
	return p.logger
}

func TestServiceObservability_CallbackSuccess(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	f := newServiceFixture(t,
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)

	f.service.CompleteCallback(context.Background(), CallbackRequest{
		BearerToken: "token-user-1",
		Code:        "code",
		State:       f.issueState(t, "user-1"),
		Provider:    "google_drive",
	})

	if !hasCounter(metrics.counters, "connectors.oauth_callback.total", "success") {
		t.Fatalf("expected connectors.oauth_callback.total success counter")
	}
	if !hasHistogram(metrics.histograms, "connectors.oauth_callback.duration_ms", "success") {
		t.Fatalf("expected connectors.oauth_callback.duration_ms histogram")
	}
	if !hasLog(logger.snapshot(), "info", "oauth_callback succeeded", "oauth_callback") {
		t.Fatalf("expected callback succeeded structured log")
	}
	for _, record := range logger.snapshot() {
		for _, value := range record.fields {
			if rendered := fmt.Sprint(value); strings.Contains(rendered, "secret-access") || strings.Contains(rendered, "secret-refresh") {
				t.Fatalf("token material leaked into log field: %s", rendered)
			}
		}
	}
}

func TestServiceObservability_InvalidStateLogsAsRejection(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	f := newServiceFixture(t,
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)

	f.service.CompleteCallback(context.Background(), CallbackRequest{
		BearerToken: "token-user-1",
		Code:        "code",
		State:       "user-1:1:00",
		Provider:    "google_drive",
	})

	if !hasCounter(metrics.counters, "connectors.oauth_callback.total", "failure") {
		t.Fatalf("expected callback failure counter")
	}
	if !hasLog(logger.snapshot(), "warn", "oauth_callback rejected", "oauth_callback") {
		t.Fatalf("expected callback rejection log")
	}
}

func TestServiceObservability_EnrichesStructuredErrorFields(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	f := newServiceFixture(t,
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)

	richErr := goerrors.New("vault offline", goerrors.CategoryInternal).
		WithCode(500).
		WithTextCode(ConnectorErrorVaultFailure).
		WithMetadata(map[string]any{
			"request_id":    "req_123",
			"refresh_token": "secret_refresh_token",
		})
	f.service.observeOperation(
		context.Background(),
		time.Now().UTC().Add(-100*time.Millisecond),
		"write_credential",
		richErr,
		map[string]any{"provider_id": "dropbox"},
	)

	records := logger.snapshot()
	if len(records) == 0 {
		t.Fatalf("expected logs to be emitted")
	}
	last := records[len(records)-1]
	if last.level != "error" {
		t.Fatalf("expected server fault to log at error, got %s", last.level)
	}
	if last.fields["error_text_code"] != ConnectorErrorVaultFailure {
		t.Fatalf("expected error_text_code %q, got %#v", ConnectorErrorVaultFailure, last.fields["error_text_code"])
	}
	metadata, ok := last.fields["error_metadata"].(map[string]any)
	if !ok {
		t.Fatalf("expected redacted error_metadata map, got %#v", last.fields["error_metadata"])
	}
	if metadata["refresh_token"] != RedactedValue {
		t.Fatalf("expected refresh_token to be redacted, got %#v", metadata["refresh_token"])
	}
	if metadata["request_id"] != "req_123" {
		t.Fatalf("expected request_id to be kept, got %#v", metadata["request_id"])
	}
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(items []capturedHistogram, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, eventType string) bool {
	for _, item := range items {
		if item.level != level {
			continue
		}
		if item.msg != message {
			continue
		}
		if item.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}
