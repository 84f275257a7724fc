package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "shelfwatch/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError_AppErrorUsesItsStatus(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, WriteError(rec, apperrors.PolicyBlocked("Please wait 2 more minutes", 90*time.Second)))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Please wait 2 more minutes", body.Error)
	assert.Equal(t, apperrors.CodePolicyBlocked, body.Code)
	assert.EqualValues(t, 90, body.Details[apperrors.DetailRemainingSeconds])
}

func TestWriteError_PlainErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, WriteError(rec, errors.New("mongo: connection refused")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestExtractLimitOffset(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int64
		wantErr    bool
	}{
		{name: "defaults", query: "", wantLimit: 10, wantOffset: 0},
		{name: "explicit", query: "?limit=25&offset=5", wantLimit: 25, wantOffset: 5},
		{name: "clamped", query: "?limit=100000&offset=-3", wantLimit: 100, wantOffset: 0},
		{name: "bad limit", query: "?limit=abc", wantErr: true},
		{name: "bad offset", query: "?offset=xyz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/checkouts/overdue"+tt.query, nil)
			limit, offset, err := ExtractLimitOffset(r)
			if tt.wantErr {
				assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestExtractSince(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?since=2024-03-01T08:00:00Z", nil)
	since, err := ExtractSince(r)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), since)

	r = httptest.NewRequest(http.MethodGet, "/x?since=yesterday", nil)
	_, err = ExtractSince(r)
	assert.Error(t, err)
}
