package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobleaser/internal/api/response"
	"github.com/kiranshivaraju/jobleaser/internal/ingest"
	"github.com/kiranshivaraju/jobleaser/internal/sequence"
	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/kiranshivaraju/jobleaser/pkg/models"
)

const maxImportBytes = 10 << 20

// JobImporter persists a validated batch of records as Ready jobs.
type JobImporter interface {
	Import(ctx context.Context, records []ingest.Record) ([]*models.Job, error)
}

// JobRequeuer returns a finished-with-error job to Ready.
type JobRequeuer interface {
	RequeueJob(ctx context.Context, jobID uuid.UUID) (bool, error)
}

// JobCounter reports how many jobs sit in each status.
type JobCounter interface {
	CountJobsByStatus(ctx context.Context) (map[string]int, error)
}

// AgentRegistry creates and lists agents.
type AgentRegistry interface {
	CreateAgent(ctx context.Context, agent *models.Agent) error
	ListAgents(ctx context.Context) ([]*models.Agent, error)
}

// PoolCreator stores a new sequence pool.
type PoolCreator interface {
	CreateSequencePool(ctx context.Context, pool *models.SequencePool) error
}

// NewCreateAgentHandler returns an http.HandlerFunc for
// POST /api/v1/admin/agents.
func NewCreateAgentHandler(agents AgentRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AgentID string `json:"agent_id"`
			Secret  string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		agent, err := store.NewAgent(req.AgentID, req.Secret)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		err = agents.CreateAgent(r.Context(), agent)
		if errors.Is(err, store.ErrDuplicateKey) {
			response.Error(w, http.StatusConflict, "CONFLICT", "Agent already exists", nil)
			return
		}
		if err != nil {
			slog.Error("create agent failed", "agent_id", agent.AgentID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create agent", nil)
			return
		}

		response.Created(w, agent)
	}
}

// NewListAgentsHandler returns an http.HandlerFunc for GET /api/v1/admin/agents.
func NewListAgentsHandler(agents AgentRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := agents.ListAgents(r.Context())
		if err != nil {
			slog.Error("list agents failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list agents", nil)
			return
		}
		if list == nil {
			list = []*models.Agent{}
		}
		response.Collection(w, list, response.ListMeta{Total: len(list)})
	}
}

// NewImportJobsHandler returns an http.HandlerFunc for POST /api/v1/admin/jobs.
// A text/csv body is parsed as CSV; anything else as a JSON array.
func NewImportJobsHandler(importer JobImporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := http.MaxBytesReader(w, r.Body, maxImportBytes)

		var (
			records []ingest.Record
			err     error
		)
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "text/csv" {
			records, err = ingest.ParseCSV(body)
		} else {
			records, err = ingest.ParseJSON(body)
		}
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		jobs, err := importer.Import(r.Context(), records)
		switch {
		case errors.Is(err, ingest.ErrInvalidRecord):
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		case errors.Is(err, ingest.ErrBarcodesExhausted):
			response.Error(w, http.StatusConflict, "BARCODES_EXHAUSTED", "No sequence pool has barcodes left", nil)
			return
		case errors.Is(err, store.ErrDuplicateKey):
			response.Error(w, http.StatusConflict, "CONFLICT", "Job already exists", nil)
			return
		case err != nil:
			slog.Error("import jobs failed", "records", len(records), "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to import jobs", nil)
			return
		}

		response.Created(w, map[string]any{
			"created": len(jobs),
			"jobs":    jobs,
		})
	}
}

// NewRequeueJobHandler returns an http.HandlerFunc for
// POST /api/v1/admin/jobs/{jobID}/requeue.
func NewRequeueJobHandler(svc JobRequeuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
			return
		}

		ok, err := svc.RequeueJob(r.Context(), jobID)
		if err != nil {
			slog.Error("requeue job failed", "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to requeue job", nil)
			return
		}
		if !ok {
			response.Error(w, http.StatusConflict, "NOT_REQUEUEABLE",
				"Only existing Failed or ReLoginNeeded jobs can be requeued", nil)
			return
		}

		response.JSON(w, map[string]string{
			"job_id": jobID.String(),
			"status": models.JobStatusReady,
		})
	}
}

// NewJobStatsHandler returns an http.HandlerFunc for
// GET /api/v1/admin/jobs/stats. Every status is present, zero or not.
func NewJobStatsHandler(jobs JobCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := jobs.CountJobsByStatus(r.Context())
		if err != nil {
			slog.Error("count jobs failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to count jobs", nil)
			return
		}

		stats := map[string]int{
			models.JobStatusReady:         0,
			models.JobStatusAssigned:      0,
			models.JobStatusSuccess:       0,
			models.JobStatusFailed:        0,
			models.JobStatusReLoginNeeded: 0,
		}
		total := 0
		for status, n := range counts {
			stats[status] = n
			total += n
		}
		response.JSON(w, map[string]any{
			"by_status": stats,
			"total":     total,
		})
	}
}

// NewCreatePoolHandler returns an http.HandlerFunc for
// POST /api/v1/admin/sequence-pools.
func NewCreatePoolHandler(pools PoolCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Start string `json:"start"`
			End   string `json:"end"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		pool, err := sequence.NewPool(req.Start, req.End)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		if err := pools.CreateSequencePool(r.Context(), pool); err != nil {
			slog.Error("create sequence pool failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create sequence pool", nil)
			return
		}

		response.Created(w, pool)
	}
}
