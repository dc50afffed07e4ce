package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hitoshi/campusevent/internal/access"
	"github.com/hitoshi/campusevent/internal/model"
)

// recordingSpan は設定された名前・属性・イベントを保持するスパン。
type recordingSpan struct {
	noop.Span
	name   string
	attrs  map[attribute.Key]attribute.Value
	events []string
	status codes.Code
	ended  bool
}

func (s *recordingSpan) SetName(name string) { s.name = name }

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	for _, a := range kv {
		s.attrs[a.Key] = a.Value
	}
}

func (s *recordingSpan) AddEvent(name string, opts ...trace.EventOption) {
	cfg := trace.NewEventConfig(opts...)
	s.events = append(s.events, name)
	s.SetAttributes(cfg.Attributes()...)
}

func (s *recordingSpan) SetStatus(code codes.Code, _ string) { s.status = code }

func (s *recordingSpan) End(...trace.SpanEndOption) { s.ended = true }

func (s *recordingSpan) IsRecording() bool { return true }

type recordingTracer struct {
	embedded.Tracer
	spans []*recordingSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	span := &recordingSpan{name: name, attrs: map[attribute.Key]attribute.Value{}}
	span.SetAttributes(cfg.Attributes()...)
	t.spans = append(t.spans, span)
	return trace.ContextWithSpan(ctx, span), span
}

type recordingProvider struct {
	embedded.TracerProvider
	tracer *recordingTracer
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer { return p.tracer }

func newRecordingProvider() *recordingProvider {
	return &recordingProvider{tracer: &recordingTracer{}}
}

func serveTraced(t *testing.T, provider trace.TracerProvider, policy access.Policy, req *http.Request, status int) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.Use(NewTracingMiddleware(provider))
	r.Use(NewAuthenticateMiddleware(newFakeDecoder()))
	r.With(Authorize(policy, nil)).Get("/api/events/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTracing_GuestRequest_RecordsRouteAndDecision(t *testing.T) {
	provider := newRecordingProvider()
	req := httptest.NewRequest(http.MethodGet, "/api/events/42", nil)
	req.Header.Set("User-Agent", "campus-test")

	w := serveTraced(t, provider, access.Open(), req, http.StatusOK)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(provider.tracer.spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(provider.tracer.spans))
	}
	span := provider.tracer.spans[0]

	if span.name != "GET /api/events/{id}" {
		t.Errorf("span name = %q, want %q", span.name, "GET /api/events/{id}")
	}
	if !span.ended {
		t.Error("span should be ended")
	}
	checks := map[attribute.Key]string{
		"http.method":     "GET",
		"http.target":     "/api/events/42",
		"http.route":      "/api/events/{id}",
		"http.user_agent": "campus-test",
		"enduser.role":    string(model.RoleGuest),
		"access.decision": "allow",
	}
	for key, want := range checks {
		if got := span.attrs[key].AsString(); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if got := span.attrs["http.status_code"].AsInt64(); got != http.StatusOK {
		t.Errorf("http.status_code = %d, want 200", got)
	}
	if len(span.events) != 1 || span.events[0] != "access_decision" {
		t.Errorf("events = %v, want [access_decision]", span.events)
	}
	if span.status == codes.Error {
		t.Error("successful request must not mark the span as error")
	}
}

func TestTracing_AuthenticatedDenied_RecordsUserAndDecision(t *testing.T) {
	provider := newRecordingProvider()
	req := httptest.NewRequest(http.MethodGet, "/api/events/42", nil)
	req.Header.Set("Authorization", "Bearer student-token")

	w := serveTraced(t, provider, access.Roles(model.RoleOrganizer), req, http.StatusOK)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	span := provider.tracer.spans[0]
	if got := span.attrs["enduser.id"].AsString(); got != "user-s" {
		t.Errorf("enduser.id = %q, want user-s", got)
	}
	if got := span.attrs["enduser.role"].AsString(); got != string(model.RoleStudent) {
		t.Errorf("enduser.role = %q, want student", got)
	}
	if got := span.attrs["access.decision"].AsString(); got != "insufficient_role" {
		t.Errorf("access.decision = %q, want insufficient_role", got)
	}
	if got := span.attrs["http.status_code"].AsInt64(); got != http.StatusForbidden {
		t.Errorf("http.status_code = %d, want 403", got)
	}
}

func TestTracing_ServerError_MarksSpanAsError(t *testing.T) {
	provider := newRecordingProvider()
	req := httptest.NewRequest(http.MethodGet, "/api/events/42", nil)

	serveTraced(t, provider, access.Open(), req, http.StatusServiceUnavailable)

	if got := provider.tracer.spans[0].status; got != codes.Error {
		t.Errorf("status code = %v, want Error", got)
	}
}

func TestTracing_NilProvider_UsesGlobalNoop(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/events/42", nil)

	w := serveTraced(t, nil, access.Open(), req, http.StatusOK)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
