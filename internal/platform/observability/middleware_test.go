package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tradeshop/api/internal/platform/requestctx"
)

func TestParseCloudTraceHeader(t *testing.T) {
	sc, ok := parseCloudTraceHeader("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" || !sc.IsSampled() || !sc.IsRemote() {
		t.Fatalf("unexpected span context %+v", sc)
	}
	if got := formatCloudTraceHeader(sc); got != "105445aa7843bc8bf206b12000100000/1;o=1" {
		t.Fatalf("round trip mismatch: %s", got)
	}

	for _, bad := range []string{"", "abc", "105445aa7843bc8bf206b12000100000/0", "zz/1"} {
		if _, ok := parseCloudTraceHeader(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestTraceMiddlewareAdoptsCloudTraceContext(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("shop-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/42;o=0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.TraceID != "105445aa7843bc8bf206b12000100000" || got.ProjectID != "shop-prod" {
		t.Fatalf("unexpected trace info %+v", got)
	}
	if cloudLoggingTrace(got) != "projects/shop-prod/traces/105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected logging trace %q", cloudLoggingTrace(got))
	}
}

func TestRequestLoggerUsesRoutePatternAndStatusLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := chi.NewRouter()
	r.Use(InjectLoggerMiddleware(zap.New(core)), RequestLoggerMiddleware("shop"))
	r.Get("/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for 404, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["route"] != "/orders/{orderID}" || fields["status"] != int64(http.StatusNotFound) {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "internal_server_error" {
		t.Fatalf("unexpected body %v", body)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged via fallback logger")
	}
}

func TestCleanStripsControlCharacters(t *testing.T) {
	if got := clean("GET\r\n\x00X", 10); got != "GETX" {
		t.Fatalf("unexpected cleaned value %q", got)
	}
	if got := clean("abcdef", 3); got != "abc" {
		t.Fatalf("expected truncation, got %q", got)
	}
}
