package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvdispatch/core/dispatch/logging"
)

type memStore struct{ recs []logging.LogRecord }

func (m *memStore) Append(_ context.Context, r logging.LogRecord) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Query(_ context.Context, q logging.LogQuery) ([]logging.LogRecord, error) {
	var res []logging.LogRecord
	for _, r := range m.recs {
		if q.Matches(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

func (m *memStore) Close() error { return nil }

func seededStore(t *testing.T) *memStore {
	t.Helper()
	store := &memStore{}
	now := time.Now()
	require.NoError(t, store.Append(context.Background(), logging.LogRecord{
		Timestamp: now, CycleID: "c1", Trigger: "explicit",
		Decisions: []logging.Decision{{Phase: "assign_free_orders", Action: logging.ActionAssigned, Order: "T-1", Vehicle: "V1"}},
	}))
	require.NoError(t, store.Append(context.Background(), logging.LogRecord{
		Timestamp: now, CycleID: "c2", Trigger: "explicit",
		Decisions: []logging.Decision{{Phase: "park_idle_vehicles", Action: logging.ActionAssigned, Order: "Park-00001", Vehicle: "V2"}},
	}))
	return store
}

func TestLogHandler_AuthAndFilters(t *testing.T) {
	h := NewLogHandler(seededStore(t), "tok")

	req := httptest.NewRequest(http.MethodGet, "/api/dispatch/logs?vehicle_id=V1", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var out []logging.LogRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].CycleID)

	req = httptest.NewRequest(http.MethodGet, "/api/dispatch/logs", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogHandler_PhaseAndBadTime(t *testing.T) {
	h := NewLogHandler(seededStore(t), "")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/dispatch/logs?phase=park_idle_vehicles", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var out []logging.LogRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "c2", out[0].CycleID)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/dispatch/logs?start=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/dispatch/logs?order_id=T-9", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}
