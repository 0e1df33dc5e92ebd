package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/watchparty-service/internal/auth"
	"github.com/psds-microservice/watchparty-service/internal/errs"
	"go.uber.org/zap"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.New(errs.ErrSessionNotFound, "s1"), http.StatusNotFound},
		{errs.New(errs.ErrSessionInactive, "s1"), http.StatusGone},
		{errs.New(errs.ErrNotHost, "s1"), http.StatusForbidden},
		{errs.Invalid("s1", "message is empty"), http.StatusBadRequest},
		{fmt.Errorf("store: %w", errs.New(errs.ErrSessionNotFound, "s1")), http.StatusNotFound},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRequireCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireCaller(auth.NewHeaderAuthenticator("X-User-ID")), func(c *gin.Context) {
		c.String(http.StatusOK, callerOf(c))
	})

	tests := []struct {
		name     string
		user     string
		wantCode int
		wantBody string
	}{
		{"missing identity", "", http.StatusUnauthorized, ""},
		{"identity from header", "alice", http.StatusOK, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.user != "" {
				req.Header.Set("X-User-ID", tt.user)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("got status %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("got body %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("expected generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "req-123" {
		t.Errorf("expected propagated request id, got %q", got)
	}
}

func TestReadyReportsStoreFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(func(ctx context.Context) error { return errors.New("db down") })
	r := gin.New()
	r.GET("/ready", h.Ready)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got %d, want 503", rec.Code)
	}
}
