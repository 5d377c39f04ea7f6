package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stagecost/app/handler"
	"stagecost/app/router"
	"stagecost/internal/service"
	"stagecost/pkg/billing"
	"stagecost/pkg/interfaces"
	"stagecost/pkg/store/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(t *testing.T, store interfaces.RunStore, refresh *service.RefreshService, apiKey string) *gin.Engine {
	t.Helper()
	engine := gin.New()
	router.NewRouter(handler.NewRunHandler(service.NewRunService(store), refresh), apiKey).Setup(engine)
	return engine
}

func seed(t *testing.T, store interfaces.RunStore, ids ...string) {
	t.Helper()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range ids {
		require.NoError(t, store.SaveRun(context.Background(), &interfaces.RunRecord{
			ID:         id,
			TotalCost:  "1.5",
			AnalyzedAt: base.Add(time.Duration(i) * time.Hour),
			Stages:     []interfaces.StageRecord{{Seq: 1, Stage: "run_01_unpack"}},
		}))
	}
}

func do(engine *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRunHandler_List(t *testing.T) {
	store := memory.NewRunStore(0)
	seed(t, store, "a", "b", "c")
	engine := newEngine(t, store, nil, "")

	w := do(engine, http.MethodGet, "/api/v1/runs?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Runs  []interfaces.RunRecord `json:"runs"`
		Total int                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, "c", body.Runs[0].ID)
	assert.Equal(t, "b", body.Runs[1].ID)

	w = do(engine, http.MethodGet, "/api/v1/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunHandler_GetAndLatest(t *testing.T) {
	store := memory.NewRunStore(0)
	engine := newEngine(t, store, nil, "")

	w := do(engine, http.MethodGet, "/api/v1/runs/latest", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	seed(t, store, "a", "b")

	w = do(engine, http.MethodGet, "/api/v1/runs/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	var run interfaces.RunRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, "b", run.ID)

	w = do(engine, http.MethodGet, "/api/v1/runs/a", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, "a", run.ID)
	assert.Equal(t, "1.5", run.TotalCost)

	w = do(engine, http.MethodGet, "/api/v1/runs/zzz", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestRunHandler_Refresh(t *testing.T) {
	dir := t.TempDir()
	timingFile := filepath.Join(dir, "time_unix.txt")
	resourceFile := filepath.Join(dir, "resources.cfg")
	require.NoError(t, os.WriteFile(timingFile, []byte("# Submission time:  900\ns 1 0 1000 4600 3600\n"), 0644))
	require.NoError(t, os.WriteFile(resourceFile, []byte("Step Nodes Ntasks Ncpus_per_task Gres Mem_per_cpu\ns 1 1 2 0 1G\n"), 0644))

	store := memory.NewRunStore(0)
	analysis := service.NewAnalysisService(service.AnalysisConfig{
		Policy:           billing.NewPolicy(0.5, 10),
		Currency:         "$",
		SubmitOffset:     20,
		CPUsPerNodeLimit: 56,
	}, nil, store)
	refresh := service.NewRefreshService(analysis, timingFile, resourceFile, false, nil)
	engine := newEngine(t, store, refresh, "secret")

	w := do(engine, http.MethodPost, "/api/v1/runs/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(engine, http.MethodPost, "/api/v1/runs/refresh", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(engine, http.MethodPost, "/api/v1/runs/refresh", "secret")
	require.Equal(t, http.StatusOK, w.Code)
	var run interfaces.RunRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, "1", run.TotalCost)

	w = do(engine, http.MethodGet, "/api/v1/runs/"+run.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRunHandler_RefreshNotConfigured(t *testing.T) {
	engine := newEngine(t, memory.NewRunStore(0), nil, "")
	w := do(engine, http.MethodPost, "/api/v1/runs/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth(t *testing.T) {
	engine := newEngine(t, memory.NewRunStore(0), nil, "")
	w := do(engine, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
