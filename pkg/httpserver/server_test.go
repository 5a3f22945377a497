// pkg/httpserver/server_test.go
package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, string(body)
}

func TestEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_hits_total", Help: "h"})
	reg.MustRegister(c)
	c.Inc()

	var ready error = errors.New("gateway down")
	srv, err := New(Config{Addr: ":0"}, func() error { return ready }, reg, logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := srv.Handler()

	if code, body := get(t, h, "/healthz"); code != http.StatusOK || body != "OK" {
		t.Errorf("healthz = %d %q", code, body)
	}
	if code, body := get(t, h, "/readyz"); code != http.StatusServiceUnavailable || !strings.Contains(body, "gateway down") {
		t.Errorf("readyz = %d %q", code, body)
	}
	ready = nil
	if code, _ := get(t, h, "/readyz"); code != http.StatusOK {
		t.Errorf("readyz after recovery = %d", code)
	}
	if code, body := get(t, h, "/metrics"); code != http.StatusOK || !strings.Contains(body, "test_hits_total 1") {
		t.Errorf("metrics = %d %q", code, body)
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := New(Config{}, func() error { return nil }, nil, logger.NewNop()); err == nil {
		t.Fatal("expected error for empty addr")
	}
	cfg := Config{Addr: ":1"}
	cfg.applyDefaults()
	if cfg.MetricsPath != "/metrics" || cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := Recover(logger.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	if code, _ := get(t, h, "/"); code != http.StatusInternalServerError {
		t.Errorf("code = %d", code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(RequestIDHeader)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-1")
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-1" || seen != "abc-1" {
		t.Errorf("request id = %q (handler saw %q), want abc-1", got, seen)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Errorf("generated request id = %q, want uuid", got)
	}
}

func TestComposeOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Compose(mark("a"), mark("b"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "h")
	}))
	get(t, h, "/")
	if strings.Join(order, ",") != "a,b,h" {
		t.Errorf("order = %v", order)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(httpRequests, httpDuration)

	h := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	get(t, h, "/probe")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, mf := range mfs {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["path"] == "/probe" && labels["code"] == "418" && m.GetCounter().GetValue() >= 1 {
				found = true
			}
		}
	}
	if !found {
		t.Error("http_requests_total{path=/probe,code=418} not recorded")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	srv, err := New(Config{Addr: "127.0.0.1:0"}, func() error { return nil }, nil, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
