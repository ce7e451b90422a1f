package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobleaser/internal/ingest"
	"github.com/kiranshivaraju/jobleaser/internal/sequence"
	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/kiranshivaraju/jobleaser/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRegistry struct{ err error }

func (f failingRegistry) CreateAgent(context.Context, *models.Agent) error { return f.err }
func (f failingRegistry) ListAgents(context.Context) ([]*models.Agent, error) {
	return nil, f.err
}

func newImporter(s *store.MemoryStore) *ingest.Importer {
	return ingest.NewImporter(s, sequence.NewAllocator(s, nil), nil)
}

// ========================================
// Agents
// ========================================

func TestCreateAgent(t *testing.T) {
	s := store.NewMemoryStore()
	h := NewCreateAgentHandler(s)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/admin/agents",
		map[string]string{"agent_id": "A1", "secret": "pw"}))

	require.Equal(t, http.StatusCreated, rec.Code)
	data := dataOf(t, rec)
	assert.Equal(t, "A1", data["agent_id"])
	_, leaked := data["secret_hash"]
	assert.False(t, leaked)

	_, err := s.FindByCredentials(context.Background(), "A1", "pw")
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/admin/agents",
		map[string]string{"agent_id": "A1", "secret": "other"}))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", errCode(t, rec))
}

func TestCreateAgent_Invalid(t *testing.T) {
	rec := httptest.NewRecorder()
	NewCreateAgentHandler(store.NewMemoryStore()).ServeHTTP(rec, jsonReq(t, http.MethodPost,
		"/api/v1/admin/agents", map[string]string{"agent_id": "A1"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAgents(t *testing.T) {
	s := store.NewMemoryStore()
	for _, id := range []string{"B", "A"} {
		a, err := store.NewAgent(id, "pw")
		require.NoError(t, err)
		require.NoError(t, s.CreateAgent(context.Background(), a))
	}

	rec := httptest.NewRecorder()
	NewListAgentsHandler(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/agents", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Data []models.Agent `json:"data"`
		Meta struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.Len(t, env.Data, 2)
	assert.Equal(t, "A", env.Data[0].AgentID)
	assert.Equal(t, 2, env.Meta.Total)
}

func TestListAgents_Error(t *testing.T) {
	rec := httptest.NewRecorder()
	NewListAgentsHandler(failingRegistry{err: errors.New("db down")}).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/admin/agents", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ========================================
// Jobs
// ========================================

func TestImportJobs_JSON(t *testing.T) {
	s := store.NewMemoryStore()

	rec := httptest.NewRecorder()
	NewImportJobsHandler(newImporter(s)).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/admin/jobs",
		`[{"store_code":"S1","product_code":"P1","product_name":"Tea","price":"4.00","barcode":"123"}]`))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), dataOf(t, rec)["created"])

	counts, err := s.CountJobsByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.JobStatusReady])
}

func TestImportJobs_CSVMintsBarcodes(t *testing.T) {
	s := store.NewMemoryStore()
	pool, err := sequence.NewPool("100", "200")
	require.NoError(t, err)
	require.NoError(t, s.CreateSequencePool(context.Background(), pool))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/jobs",
		strings.NewReader("S1,P1,Tea,4.00\nS1,P2,Milk,1.10\n"))
	req.Header.Set("Content-Type", "text/csv; charset=utf-8")

	rec := httptest.NewRecorder()
	NewImportJobsHandler(newImporter(s)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	jobs := dataOf(t, rec)["jobs"].([]any)
	require.Len(t, jobs, 2)
	assert.Equal(t, "100", jobs[0].(map[string]any)["barcode"])
	assert.Equal(t, "101", jobs[1].(map[string]any)["barcode"])
}

func TestImportJobs_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"malformed json", `{"store_code":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad price", `[{"store_code":"S1","product_code":"P1","product_name":"Tea","price":"x","barcode":"1"}]`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"empty batch", `[]`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"no barcodes", `[{"store_code":"S1","product_code":"P1","product_name":"Tea","price":"1"}]`, http.StatusConflict, "BARCODES_EXHAUSTED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewImportJobsHandler(newImporter(store.NewMemoryStore())).ServeHTTP(rec,
				jsonReq(t, http.MethodPost, "/api/v1/admin/jobs", tt.body))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, errCode(t, rec))
		})
	}
}

func TestRequeueJob(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "A1", "pw")
	j := f.job(t)
	ctx := context.Background()
	_, err := f.svc.GetNextJob(ctx, "A1")
	require.NoError(t, err)
	_, err = f.svc.ReportJobResult(ctx, "A1", j.ID, models.JobStatusFailed, "timeout")
	require.NoError(t, err)

	h := routed(http.MethodPost, "/api/v1/admin/jobs/{jobID}/requeue", NewRequeueJobHandler(f.svc))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/jobs/"+j.ID.String()+"/requeue", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.JobStatusReady, dataOf(t, rec)["status"])

	// already Ready
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/jobs/"+j.ID.String()+"/requeue", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOT_REQUEUEABLE", errCode(t, rec))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/jobs/xyz/requeue", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobStats(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "A1", "pw")
	f.job(t)
	f.job(t)
	_, err := f.svc.GetNextJob(context.Background(), "A1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	NewJobStatsHandler(f.store).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/jobs/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataOf(t, rec)
	assert.Equal(t, float64(2), data["total"])
	byStatus := data["by_status"].(map[string]any)
	assert.Equal(t, float64(1), byStatus[models.JobStatusReady])
	assert.Equal(t, float64(1), byStatus[models.JobStatusAssigned])
	assert.Equal(t, float64(0), byStatus[models.JobStatusFailed])
}

// ========================================
// Sequence pools
// ========================================

func TestCreatePool(t *testing.T) {
	s := store.NewMemoryStore()
	h := NewCreatePoolHandler(s)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/admin/sequence-pools",
		map[string]string{"start": "0001", "end": "0999"}))

	require.Equal(t, http.StatusCreated, rec.Code)
	data := dataOf(t, rec)
	assert.Equal(t, "0001", data["current_next"])
	assert.Equal(t, float64(1), data["id"])

	pool, err := s.FirstOpenSequencePool(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0999", pool.EndValue)
}

func TestCreatePool_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"width mismatch": {"start": "1", "end": "100"},
		"reversed":       {"start": "900", "end": "100"},
		"not decimal":    {"start": "abc", "end": "xyz"},
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewCreatePoolHandler(store.NewMemoryStore()).ServeHTTP(rec,
				jsonReq(t, http.MethodPost, "/api/v1/admin/sequence-pools", body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

var _ JobRequeuer = failingRequeuer{}

type failingRequeuer struct{}

func (failingRequeuer) RequeueJob(context.Context, uuid.UUID) (bool, error) {
	return false, errors.New("db down")
}

func TestRequeueJob_Error(t *testing.T) {
	h := routed(http.MethodPost, "/api/v1/admin/jobs/{jobID}/requeue", NewRequeueJobHandler(failingRequeuer{}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/jobs/"+uuid.NewString()+"/requeue", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
