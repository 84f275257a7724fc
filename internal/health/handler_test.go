package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shelfwatch/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
)

func serve(h *HealthHandler, path string) *httptest.ResponseRecorder {
	router := httprouter.New()
	h.RegisterRoutes(router)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

var (
	up   = PingFunc(func(context.Context) error { return nil })
	down = PingFunc(func(context.Context) error { return errors.New("connection refused") })
)

func TestHealth(t *testing.T) {
	rec := serve(NewHealthHandler(down, nil, logger.Nop()), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	tests := []struct {
		name     string
		database Pinger
		audit    Pinger
		code     int
		body     string
	}{
		{"store up", up, nil, http.StatusOK, `{"status":"ready","database":"ok"}`},
		{"store down", down, up, http.StatusServiceUnavailable, `{"status":"unavailable","database":"error"}`},
		{"audit down", up, down, http.StatusOK, `{"status":"degraded","database":"ok","audit":"error"}`},
		{"all up", up, up, http.StatusOK, `{"status":"ready","database":"ok","audit":"ok"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(NewHealthHandler(tt.database, tt.audit, logger.Nop()), "/ready")
			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}
