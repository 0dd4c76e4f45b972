package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"jail-bench/internal/config"
)

func healthServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/health") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
}

func TestNewInfluxSink_UnhealthyServer(t *testing.T) {
	srv := healthServer(t, `{"name":"influxdb","status":"fail","message":"service unavailable"}`)
	defer srv.Close()

	sink, err := NewInfluxSink(config.DatabaseConfig{
		Host:     srv.URL,
		Name:     "bench",
		User:     "bench",
		Password: "token",
		Org:      "perf",
	}, "run1")

	if err == nil {
		t.Fatal("expected error for failed health check")
	}
	if sink != nil {
		t.Fatalf("expected nil sink on failed health check, got %v", sink)
	}
	if !strings.Contains(err.Error(), "health check failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewInfluxSink_HealthyServer(t *testing.T) {
	srv := healthServer(t, `{"name":"influxdb","status":"pass"}`)
	defer srv.Close()

	sink, err := NewInfluxSink(config.DatabaseConfig{
		Host:     srv.URL,
		Name:     "bench",
		User:     "bench",
		Password: "token",
		Org:      "perf",
	}, "run1")
	if err != nil {
		t.Fatalf("NewInfluxSink: %v", err)
	}
	if sink == nil {
		t.Fatal("expected sink for healthy server")
	}
	defer sink.Close()
}
