package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	h := loggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/lab/bv", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status %d", rec.Code)
	}
	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != "POST" || fields["path"] != "/api/v1/lab/bv" {
		t.Errorf("unexpected fields %v", fields)
	}
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("status field %v (%T)", fields["status"], fields["status"])
	}
}
