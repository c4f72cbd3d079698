package proc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveStatus(t *testing.T, r *Registry, path string) (int, map[string]any) {
	t.Helper()
	h := NewHealthMonitor(testHealthTuning(), func() int { return len(r.Sessions()) })
	router := NewStatusRouter(r, h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestStatusRouter(t *testing.T) {
	r := NewRegistry(RegistryConfig{Resolver: newFakeResolver(), Context: t.Context()})
	r.Enqueue("g", track("a"), track("b"))
	r.EnsureSession("other")

	t.Run("health", func(t *testing.T) {
		code, body := serveStatus(t, r, "/api/health")
		assert.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 2, body["sessions"])
		assert.EqualValues(t, 0, body["errors"])
	})

	t.Run("sessions", func(t *testing.T) {
		code, body := serveStatus(t, r, "/api/sessions")
		assert.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 2, body["count"])
		sessions := body["sessions"].([]any)
		assert.Equal(t, "g", sessions[0].(map[string]any)["id"])
		assert.Equal(t, "other", sessions[1].(map[string]any)["id"])
	})

	t.Run("one session", func(t *testing.T) {
		code, body := serveStatus(t, r, "/api/sessions/g")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "idle", body["status"])
		assert.Nil(t, body["current"])
		assert.Len(t, body["pending"], 2)
		assert.EqualValues(t, 1, body["volume"])
		assert.Equal(t, false, body["locked"])
	})

	t.Run("unknown session", func(t *testing.T) {
		code, body := serveStatus(t, r, "/api/sessions/nope")
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, ErrSessionNotFound.Error(), body["message"])
	})
}
