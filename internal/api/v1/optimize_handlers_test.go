package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-aflowx-optimizer/internal/artifact"
	"station-aflowx-optimizer/internal/auth"
	"station-aflowx-optimizer/internal/db"
	"station-aflowx-optimizer/internal/db/repositories"
	"station-aflowx-optimizer/internal/executor/mock"
	"station-aflowx-optimizer/internal/idempotency"
	"station-aflowx-optimizer/internal/jobqueue"
	"station-aflowx-optimizer/internal/metrics"
	"station-aflowx-optimizer/internal/optimize"
	"station-aflowx-optimizer/internal/taxonomy"
)

func newTestHandlers(t *testing.T) (*gin.Engine, *OptimizeHandlers, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tdb, err := db.NewTest(t)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tdb.Close() })
	repo := repositories.NewOptimizationRepo(tdb.Conn())

	settings := optimize.Settings{
		DefaultDatasetSize:    6,
		MaxSearchRounds:       2,
		MaxExpansionsPerRound: 1,
		MaxPromptCandidates:   2,
		TrainRatio:            0.6,
		ValRatio:              0.2,
		TestRatio:             0.2,
		JudgeBackend:          "mock",
	}
	svc := optimize.New(mock.New(), nil, artifact.NewMemoryStore(), repo, settings)

	allowRoot := t.TempDir()
	handlers := NewOptimizeHandlers(
		svc,
		repo,
		jobqueue.New(2),
		idempotency.New(),
		metrics.New(),
		auth.NewTenantMiddleware(auth.TenantConfig{Enabled: false, DefaultTenant: "acme"}),
		allowRoot,
		taxonomy.DefaultRules(),
	)

	router := gin.New()
	group := router.Group("/v1")
	handlers.RegisterRoutes(group)

	return router, handlers, allowRoot
}

func doRequest(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz_ReturnsOK(t *testing.T) {
	router, _, _ := newTestHandlers(t)
	rec := doRequest(router, http.MethodGet, "/v1/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsSnapshot_ReflectsPriorRequest(t *testing.T) {
	router, _, _ := newTestHandlers(t)
	doRequest(router, http.MethodGet, "/v1/healthz", nil, nil)
	rec := doRequest(router, http.MethodGet, "/v1/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.GreaterOrEqual(t, snap.RequestsTotal, int64(1))
}

func TestOptimize_ReturnsReportFields(t *testing.T) {
	router, _, _ := newTestHandlers(t)
	reqBody := map[string]interface{}{
		"agent_name":   "support-bot",
		"task_desc":    "answer customer questions about graph data",
		"dataset_size": 6,
	}

	rec := doRequest(router, http.MethodPost, "/v1/agents/optimize", reqBody, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["run_id"])
	assert.Equal(t, "full_system", resp["profile"])
	assert.Equal(t, "support-bot", resp["agent_name"])
	assert.EqualValues(t, 1, resp["version"])
	assert.NotEmpty(t, resp["blueprint_id"])
	assert.NotEmpty(t, resp["artifact_path"])
}

func TestOptimize_RejectsMissingRequiredFields(t *testing.T) {
	router, _, _ := newTestHandlers(t)
	rec := doRequest(router, http.MethodPost, "/v1/agents/optimize", map[string]interface{}{"task_desc": "only task desc"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptimize_IdempotencyReplaysCachedResponse(t *testing.T) {
	router, _, _ := newTestHandlers(t)
	reqBody := map[string]interface{}{
		"agent_name":   "billing-bot",
		"task_desc":    "resolve billing disputes",
		"dataset_size": 6,
	}
	headers := map[string]string{"Idempotency-Key": "req-1"}

	first := doRequest(router, http.MethodPost, "/v1/agents/optimize", reqBody, headers)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := doRequest(router, http.MethodPost, "/v1/agents/optimize", reqBody, headers)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestOptimize_RejectsBlankIdempotencyKeyHeader(t *testing.T) {
	router, _, _ := newTestHandlers(t)
	reqBody := map[string]interface{}{
		"agent_name":   "blank-key-bot",
		"task_desc":    "answer questions",
		"dataset_size": 6,
	}
	rec := doRequest(router, http.MethodPost, "/v1/agents/optimize", reqBody, map[string]string{"Idempotency-Key": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptimizeAsync_JobEventuallySucceeds(t *testing.T) {
	router, _, _ := newTestHandlers(t)
	reqBody := map[string]interface{}{
		"agent_name":   "async-bot",
		"task_desc":    "answer async questions",
		"dataset_size": 6,
	}

	rec := doRequest(router, http.MethodPost, "/v1/agents/optimize/async", reqBody, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	jobID, _ := submitted["job_id"].(string)
	require.NotEmpty(t, jobID)

	deadline := time.Now().Add(5 * time.Second)
	var jobResp map[string]interface{}
	for time.Now().Before(deadline) {
		jr := doRequest(router, http.MethodGet, "/v1/agents/jobs/"+jobID, nil, nil)
		require.Equal(t, http.StatusOK, jr.Code)
		require.NoError(t, json.Unmarshal(jr.Body.Bytes(), &jobResp))
		if jobResp["status"] == "succeeded" || jobResp["status"] == "failed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, "succeeded", jobResp["status"])
}

func TestGetJob_NotFoundForUnknownID(t *testing.T) {
	router, _, _ := newTestHandlers(t)
	rec := doRequest(router, http.MethodGet, "/v1/agents/jobs/does-not-exist", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndGetVersion_AfterOptimize(t *testing.T) {
	router, _, _ := newTestHandlers(t)
	reqBody := map[string]interface{}{
		"agent_name":   "versions-bot",
		"task_desc":    "answer questions about versions",
		"dataset_size": 6,
	}
	rec := doRequest(router, http.MethodPost, "/v1/agents/optimize", reqBody, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	listRec := doRequest(router, http.MethodGet, "/v1/agents/versions-bot/versions", nil, nil)
	require.Equal(t, http.StatusOK, listRec.Code)
	var versions []map[string]interface{}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &versions))
	require.Len(t, versions, 1)

	getRec := doRequest(router, http.MethodGet, "/v1/agents/versions-bot/versions/1", nil, nil)
	assert.Equal(t, http.StatusOK, getRec.Code)

	badVersionRec := doRequest(router, http.MethodGet, "/v1/agents/versions-bot/versions/not-a-number", nil, nil)
	assert.Equal(t, http.StatusBadRequest, badVersionRec.Code)

	missingRec := doRequest(router, http.MethodGet, "/v1/agents/versions-bot/versions/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, missingRec.Code)
}

func TestDeployVersion_TransitionsLifecycle(t *testing.T) {
	router, _, _ := newTestHandlers(t)
	reqBody := map[string]interface{}{
		"agent_name":   "deploy-bot",
		"task_desc":    "answer questions about deployment",
		"dataset_size": 6,
	}
	rec := doRequest(router, http.MethodPost, "/v1/agents/optimize", reqBody, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	deployRec := doRequest(router, http.MethodPost, "/v1/agents/deploy-bot/versions/1/deploy", nil, nil)
	require.Equal(t, http.StatusOK, deployRec.Code)

	var row map[string]interface{}
	require.NoError(t, json.Unmarshal(deployRec.Body.Bytes(), &row))
	assert.Equal(t, "DEPLOYED", row["lifecycle"])
}

func manualBlueprintJSON() []byte {
	payload := map[string]interface{}{
		"blueprint_id": "manual-parity-bp",
		"topology":     "linear",
		"tools":        []map[string]interface{}{{"name": "search"}},
		"actions":      []map[string]interface{}{{"name": "lookup", "tools": []string{"search"}}},
		"experts": []map[string]interface{}{{
			"name": "worker",
			"operators": []map[string]interface{}{{
				"name":    "step1",
				"actions": []string{"lookup"},
			}},
		}},
		"leader_actions": []string{"lookup"},
		"metadata":       map[string]string{},
	}
	encoded, _ := json.Marshal(payload)
	return encoded
}

func TestManualParity_RejectsPathOutsideAllowRoot(t *testing.T) {
	router, _, allowRoot := newTestHandlers(t)

	outsideDir := t.TempDir()
	outsidePath := filepath.Join(outsideDir, "manual.json")
	require.NoError(t, os.WriteFile(outsidePath, manualBlueprintJSON(), 0o644))
	require.NotEqual(t, allowRoot, outsideDir)

	reqBody := map[string]interface{}{
		"agent_name":            "parity-bot",
		"task_desc":             "answer questions",
		"manual_blueprint_path": outsidePath,
		"dataset_size":          6,
	}
	rec := doRequest(router, http.MethodPost, "/v1/agents/benchmark/manual-parity", reqBody, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManualParity_Succeeds(t *testing.T) {
	router, _, allowRoot := newTestHandlers(t)

	manualPath := filepath.Join(allowRoot, "manual.json")
	require.NoError(t, os.WriteFile(manualPath, manualBlueprintJSON(), 0o644))

	reqBody := map[string]interface{}{
		"agent_name":            "parity-bot",
		"task_desc":             "answer questions about graph data",
		"manual_blueprint_path": manualPath,
		"dataset_size":          6,
	}
	rec := doRequest(router, http.MethodPost, "/v1/agents/benchmark/manual-parity", reqBody, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["RunID"])
	assert.Equal(t, manualPath, resp["ManualBlueprintPath"])
}
