package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/candletrader/engine/internal/candidate"
	"github.com/candletrader/engine/internal/reconcile"
	"github.com/candletrader/engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStats struct{ stats reconcile.DailyStats }

func (s stubStats) Stats() reconcile.DailyStats { return s.stats }

type stubHealth struct{ err error }

func (h stubHealth) HealthCheck(ctx context.Context) error { return h.err }

func seededStore() *store.Store {
	st := store.New(0, 0)
	watching := candidate.New("005930", "Samsung", candidate.KOSPI)
	watching.Status = candidate.StatusWatching
	st.Add(watching)
	entered := candidate.New("000660", "SK Hynix", candidate.KOSPI)
	entered.Status = candidate.StatusEntered
	st.Add(entered)
	return st
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealthHealthyWithNoChecker(t *testing.T) {
	s := New(store.New(0, 0), nil, nil, nil, Config{})
	rec := doRequest(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleHealthUnhealthyWhenCheckerFails(t *testing.T) {
	s := New(store.New(0, 0), nil, stubHealth{err: errors.New("db down")}, nil, Config{})
	rec := doRequest(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleCandidatesReturnsAllWithoutFilter(t *testing.T) {
	s := New(seededStore(), nil, nil, nil, Config{})
	rec := doRequest(t, s, http.MethodGet, "/api/candidates")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
}

func TestHandleCandidatesFiltersByStatus(t *testing.T) {
	s := New(seededStore(), nil, nil, nil, Config{})
	rec := doRequest(t, s, http.MethodGet, "/api/candidates?status=ENTERED")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestHandleCandidateReturnsNotFoundForUnknownCode(t *testing.T) {
	s := New(seededStore(), nil, nil, nil, Config{})
	rec := doRequest(t, s, http.MethodGet, "/api/candidates/999999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCandidateReturnsKnownCode(t *testing.T) {
	s := New(seededStore(), nil, nil, nil, Config{})
	rec := doRequest(t, s, http.MethodGet, "/api/candidates/005930")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePositionsReturnsEnteredAndPendingOrderOnly(t *testing.T) {
	s := New(seededStore(), nil, nil, nil, Config{})
	rec := doRequest(t, s, http.MethodGet, "/api/positions")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestHandleStatsReturnsNilWhenProviderUnset(t *testing.T) {
	s := New(store.New(0, 0), nil, nil, nil, Config{})
	rec := doRequest(t, s, http.MethodGet, "/api/stats")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Stats interface{} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body.Stats)
}

func TestHandleStatsReturnsProviderValues(t *testing.T) {
	s := New(store.New(0, 0), stubStats{stats: reconcile.DailyStats{TradesOpened: 3}}, nil, nil, Config{})
	rec := doRequest(t, s, http.MethodGet, "/api/stats")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Stats reconcile.DailyStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Stats.TradesOpened)
}

func TestShutdownIsSafeBeforeStart(t *testing.T) {
	s := New(store.New(0, 0), nil, nil, nil, Config{})
	assert.NoError(t, s.Shutdown(context.Background()))
}
