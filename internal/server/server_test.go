package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/larder/internal/freshness"
	"github.com/dyluth/larder/internal/gate"
	"github.com/dyluth/larder/internal/generator"
	"github.com/dyluth/larder/internal/normalize"
	"github.com/dyluth/larder/internal/quota"
	"github.com/dyluth/larder/internal/records"
	"github.com/dyluth/larder/pkg/larder"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const pairBody = `{
	"subject": {"startup_id": "s1", "investor_id": "i1", "perspective": "startup"},
	"inputs": {"pair": {"startup": {"id": "s1"}, "investor": {"id": "i1"}}}
}`

const taskBody = `{
	"subject": {"user_id": "u1", "scope": "t1"},
	"inputs": {"task": {"task_id": "t1", "title": "Upload your pitch deck", "category": "document"}}
}`

type testEnv struct {
	server  *Server
	mr      *miniredis.Miniredis
	records *records.Store
	gen     *generator.Static
}

func setupTestServer(t *testing.T, limit int) *testEnv {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := larder.NewClient(&redis.Options{Addr: mr.Addr()}, "server-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store, err := records.Open(filepath.Join(t.TempDir(), "records.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	limits := make(map[larder.Kind]int)
	ttl := make(map[larder.Kind]time.Duration)
	for _, kind := range larder.AllKinds() {
		limits[kind] = limit
		ttl[kind] = 7 * 24 * time.Hour
	}
	ledger, err := quota.NewLedger(client, limits)
	require.NoError(t, err)

	rules, err := freshness.NewRules(map[larder.Kind][]larder.Source{
		larder.KindCompatibility: {larder.SourceProfile, larder.SourceExtendedProfile},
	})
	require.NoError(t, err)

	norm, err := normalize.New(nil)
	require.NoError(t, err)

	gen := &generator.Static{Text: `{"overallScore": 82, "message": "Looks good"}`}
	g, err := gate.New(gate.Deps{
		Cache:      client,
		Ledger:     ledger,
		Oracle:     freshness.NewOracle(store),
		Rules:      rules,
		Generator:  gen,
		Normalizer: norm,
	}, gate.Config{TTL: ttl, Retention: 30 * 24 * time.Hour, GenerationTimeout: 5 * time.Second})
	require.NoError(t, err)

	srv, err := NewServer(Deps{Gate: g, Records: store, Usage: ledger, Cache: client}, zap.NewNop(), 8080)
	require.NoError(t, err)

	return &testEnv{server: srv, mr: mr, records: store, gen: gen}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) gate.Result {
	t.Helper()
	var res gate.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return res
}

func TestNewServer(t *testing.T) {
	t.Run("returns error when gate is nil", func(t *testing.T) {
		_, err := NewServer(Deps{}, zap.NewNop(), 8080)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "gate is required")
	})

	t.Run("accepts nil logger", func(t *testing.T) {
		env := setupTestServer(t, 5)
		srv, err := NewServer(Deps{
			Gate:    env.server.gate,
			Records: env.server.records,
			Usage:   env.server.usage,
			Cache:   env.server.cache,
		}, nil, 8080)
		require.NoError(t, err)
		assert.NotNil(t, srv.logger)
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		env := setupTestServer(t, 5)

		rec := env.do(t, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "connected", resp.Redis)
		assert.Equal(t, "connected", resp.Records)
	})

	t.Run("unhealthy when Redis unavailable", func(t *testing.T) {
		env := setupTestServer(t, 5)
		env.mr.Close()

		rec := env.do(t, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, "disconnected", resp.Redis)
		assert.NotEmpty(t, resp.Error)
	})
}

func TestHandleRequest(t *testing.T) {
	env := setupTestServer(t, 5)

	rec := env.do(t, http.MethodPost, "/api/v1/artifacts/compatibility", pairBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeResult(t, rec)
	assert.Equal(t, gate.OutcomeRecomputed, first.Outcome)
	require.NotNil(t, first.Artifact.Compatibility)
	assert.Equal(t, 82, first.Artifact.Compatibility.OverallScore)

	rec = env.do(t, http.MethodPost, "/api/v1/artifacts/compatibility", pairBody)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeResult(t, rec)
	assert.Equal(t, gate.OutcomeHit, second.Outcome)
	assert.Equal(t, first.EntryID, second.EntryID)
	assert.Equal(t, 1, env.gen.Calls())
}

func TestHandleRequest_QuotaExceeded(t *testing.T) {
	env := setupTestServer(t, 0)

	rec := env.do(t, http.MethodPost, "/api/v1/artifacts/compatibility", pairBody)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var resp QuotaExceededResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Limit)
	assert.Equal(t, "compatibility", resp.Kind)
	assert.Equal(t, "Tomorrow", resp.NextReset)
	assert.True(t, resp.ResetAt.After(time.Now()))
	assert.Zero(t, env.gen.Calls())
}

func TestHandleRequest_BadRequests(t *testing.T) {
	env := setupTestServer(t, 5)

	tests := map[string]struct {
		path string
		body string
	}{
		"unknown kind":   {"/api/v1/artifacts/horoscope", pairBody},
		"malformed json": {"/api/v1/artifacts/compatibility", `{"subject":`},
		"inputs mismatch": {"/api/v1/artifacts/insights", `{
			"subject": {"user_id": "u1", "role": "startup"},
			"inputs": {"task": {"task_id": "t1", "title": "x"}}
		}`},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Zero(t, env.gen.Calls())
}

func TestHandleInvalidate(t *testing.T) {
	env := setupTestServer(t, 5)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/artifacts/compatibility", pairBody).Code)

	rec := env.do(t, http.MethodDelete, "/api/v1/artifacts/compatibility",
		`{"subject": {"startup_id": "s1", "investor_id": "i1", "perspective": "startup"}}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	res := decodeResult(t, env.do(t, http.MethodPost, "/api/v1/artifacts/compatibility", pairBody))
	assert.Equal(t, gate.OutcomeRecomputed, res.Outcome)
	assert.Equal(t, 2, env.gen.Calls())
}

func TestHandleTouch(t *testing.T) {
	env := setupTestServer(t, 5)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/artifacts/compatibility", pairBody).Code)

	updated := time.Now().Add(time.Minute).UTC().Format(time.RFC3339)
	rec := env.do(t, http.MethodPost, "/api/v1/sources/profile/touch",
		`{"user_id": "s1", "record_id": "profile-s1", "updated_at": "`+updated+`"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	res := decodeResult(t, env.do(t, http.MethodPost, "/api/v1/artifacts/compatibility", pairBody))
	assert.Equal(t, gate.OutcomeRecomputed, res.Outcome, "profile change makes the score stale")

	t.Run("unknown source", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/sources/weather/touch",
			`{"user_id": "s1", "record_id": "r1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing record id", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/sources/profile/touch", `{"user_id": "s1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("deletion", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/sources/documents/touch",
			`{"user_id": "s1", "record_id": "deck", "deleted": true}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestHandleTaskEdited(t *testing.T) {
	env := setupTestServer(t, 5)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/artifacts/task_verification", taskBody).Code)

	rec := env.do(t, http.MethodPatch, "/api/v1/tasks/t1",
		`{"user_id": "u1", "old_category": "document", "new_category": "document"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp InvalidatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Invalidated)

	rec = env.do(t, http.MethodPatch, "/api/v1/tasks/t1",
		`{"user_id": "u1", "old_category": "document", "new_category": "financial"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Invalidated)
}

func TestHandleAllTasksCompleted(t *testing.T) {
	env := setupTestServer(t, 5)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/artifacts/task_verification", taskBody).Code)

	rec := env.do(t, http.MethodPost, "/api/v1/users/u1/tasks/completed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp InvalidatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Invalidated)
}

func TestHandleUsage(t *testing.T) {
	env := setupTestServer(t, 5)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/artifacts/compatibility", pairBody).Code)

	rec := env.do(t, http.MethodGet, "/api/v1/usage/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UsageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp.UserID)
	require.Len(t, resp.Usage, len(larder.AllKinds()))
	for _, u := range resp.Usage {
		want := 0
		if u.Kind == larder.KindCompatibility {
			want = 1
		}
		assert.Equal(t, want, u.Used, "kind %s", u.Kind)
		assert.Equal(t, 5, u.Limit)
	}

	t.Run("invalid user", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/usage/bad:id", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t, 5)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/artifacts/compatibility", pairBody).Code)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "larder_gate_requests_total")
}
