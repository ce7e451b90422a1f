package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobleaser/internal/ingest"
	"github.com/kiranshivaraju/jobleaser/internal/sequence"
	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/kiranshivaraju/jobleaser/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndListAgents(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	var buf bytes.Buffer

	require.NoError(t, createAgent(ctx, s, &buf, "A2", "pw"))
	require.NoError(t, createAgent(ctx, s, &buf, "A1", "pw"))
	assert.Contains(t, buf.String(), "created agent A2")

	err := createAgent(ctx, s, &buf, "A1", "other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	buf.Reset()
	require.NoError(t, listAgents(ctx, s, &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "AGENT"))
	assert.True(t, strings.HasPrefix(lines[1], "A1"))
	assert.True(t, strings.HasPrefix(lines[2], "A2"))
}

func TestImportFile(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	imp := ingest.NewImporter(s, sequence.NewAllocator(s, nil), nil)
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "jobs.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("S1,P1,Tea,4.00,111\nS1,P2,Milk,1.10,112\n"), 0o600))
	jsonPath := filepath.Join(dir, "jobs.json")
	require.NoError(t, os.WriteFile(jsonPath,
		[]byte(`[{"store_code":"S2","product_code":"P3","product_name":"Salt","price":"0.50","barcode":"113"}]`), 0o600))

	var buf bytes.Buffer
	require.NoError(t, importFile(ctx, imp, &buf, csvPath))
	require.NoError(t, importFile(ctx, imp, &buf, jsonPath))
	assert.Contains(t, buf.String(), "imported 2 jobs")
	assert.Contains(t, buf.String(), "imported 1 jobs")

	counts, err := s.CountJobsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.JobStatusReady])
}

func TestImportFile_Errors(t *testing.T) {
	imp := ingest.NewImporter(store.NewMemoryStore(), nil, nil)
	dir := t.TempDir()
	txt := filepath.Join(dir, "jobs.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o600))

	var buf bytes.Buffer
	assert.Error(t, importFile(context.Background(), imp, &buf, filepath.Join(dir, "missing.csv")))
	err := importFile(context.Background(), imp, &buf, txt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestRequeueJob(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	j := &models.Job{ID: uuid.New(), StoreCode: "S1", ProductCode: "P1", ProductName: "Tea",
		Price: "1.00", Barcode: "1", Status: models.JobStatusReady, CreatedAt: now, UpdatedAt: now}
	_, err := s.CreateJobs(ctx, []*models.Job{j})
	require.NoError(t, err)

	var buf bytes.Buffer
	err = requeueJob(ctx, s, &buf, j.ID.String())
	require.Error(t, err, "Ready jobs cannot be requeued")

	_, err = s.ClaimNextReady(ctx, "A1")
	require.NoError(t, err)
	_, err = s.ReportResult(ctx, j.ID, models.JobStatusFailed, "boom")
	require.NoError(t, err)

	require.NoError(t, requeueJob(ctx, s, &buf, j.ID.String()))
	assert.Contains(t, buf.String(), "requeued")

	assert.Error(t, requeueJob(ctx, s, &buf, "not-a-uuid"))
}

func TestJobStats(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	for i := range 3 {
		_, err := s.CreateJobs(ctx, []*models.Job{{ID: uuid.New(), StoreCode: "S", ProductCode: "P",
			ProductName: "N", Price: "1", Barcode: string(rune('a' + i)), Status: models.JobStatusReady,
			CreatedAt: now, UpdatedAt: now}})
		require.NoError(t, err)
	}
	_, err := s.ClaimNextReady(ctx, "A1")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, jobStats(ctx, s, &buf))
	out := buf.String()
	assert.Regexp(t, `Ready\s+2`, out)
	assert.Regexp(t, `Assigned\s+1`, out)
	assert.Regexp(t, `Total\s+3`, out)
}

func TestCreatePoolAndNext(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	var buf bytes.Buffer

	require.NoError(t, createPool(ctx, s, &buf, "01", "03"))
	assert.Contains(t, buf.String(), "created pool 1 [01, 03)")
	assert.Error(t, createPool(ctx, s, &buf, "9", "10"))

	buf.Reset()
	alloc := sequence.NewAllocator(s, nil)
	require.NoError(t, nextValues(ctx, alloc, &buf, 2))
	assert.Equal(t, "01\n02\n", buf.String())

	err := nextValues(ctx, alloc, &buf, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted")
}
