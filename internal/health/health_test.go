package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendlt/actionlog/sequencer"
)

type staticStats sequencer.Stats

func (s *staticStats) Stats() *sequencer.Stats {
	cp := sequencer.Stats(*s)
	return &cp
}

type fakeNode struct{ err error }

func (p fakeNode) IsHealthy(context.Context) error { return p.err }

func get(t *testing.T, h http.HandlerFunc) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthy(t *testing.T) {
	hc := NewHealthChecker(&staticStats{
		Running:       true,
		Account:       "0xabc",
		QueueDepth:    2,
		Logged:        3,
		Failed:        1,
		NextSequence:  8,
		SequenceKnown: true,
		LastHash:      "0x01",
	}, fakeNode{})

	rec, body := get(t, hc.Handler())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "ok", body["node"])
	assert.Equal(t, float64(8), body["next_sequence"])
	assert.Equal(t, 0.75, body["success_rate"])
	assert.Equal(t, float64(2), body["queue_depth"])

	rec, body = get(t, hc.ReadinessHandler())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ready"])
}

func TestUnhealthy(t *testing.T) {
	t.Run("orchestrator stopped", func(t *testing.T) {
		hc := NewHealthChecker(&staticStats{Running: false}, nil)
		rec, body := get(t, hc.Handler())
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unchecked", body["node"])
		assert.NotContains(t, body, "next_sequence")
		assert.NotContains(t, body, "success_rate")
	})

	t.Run("node down", func(t *testing.T) {
		hc := NewHealthChecker(&staticStats{Running: true}, fakeNode{err: errors.New("connection refused")})
		rec, body := get(t, hc.Handler())
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "connection refused", body["node"])

		rec, body = get(t, hc.ReadinessHandler())
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, false, body["ready"])
	})
}

func TestLiveness(t *testing.T) {
	rec, body := get(t, LivenessHandler())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["alive"])
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthChecker(&staticStats{Running: true}, nil).Register(mux)

	for _, path := range []string{"/healthz", "/readyz", "/livez"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
