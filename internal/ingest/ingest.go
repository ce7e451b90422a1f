// Package ingest turns CSV or JSON job batches into Ready jobs.
package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/kiranshivaraju/jobleaser/pkg/models"
)

var (
	// ErrBarcodesExhausted is returned when a record needs a barcode and no
	// sequence pool has one left.
	ErrBarcodesExhausted = errors.New("no barcodes left in any sequence pool")
	ErrInvalidRecord     = errors.New("invalid record")
)

// pricePattern matches what the jobs.price NUMERIC(12,2) column accepts.
var pricePattern = regexp.MustCompile(`^\d{1,10}(\.\d{1,2})?$`)

var csvHeader = []string{"store_code", "product_code", "product_name", "price", "barcode"}

// Record is one job as supplied by an upstream batch.
type Record struct {
	StoreCode   string `json:"store_code"`
	ProductCode string `json:"product_code"`
	ProductName string `json:"product_name"`
	Price       string `json:"price"`
	Barcode     string `json:"barcode,omitempty"`
}

// Validate checks required fields and the price format.
func (r Record) Validate() error {
	switch {
	case strings.TrimSpace(r.StoreCode) == "":
		return fmt.Errorf("%w: store_code is required", ErrInvalidRecord)
	case strings.TrimSpace(r.ProductCode) == "":
		return fmt.Errorf("%w: product_code is required", ErrInvalidRecord)
	case strings.TrimSpace(r.ProductName) == "":
		return fmt.Errorf("%w: product_name is required", ErrInvalidRecord)
	case !pricePattern.MatchString(strings.TrimSpace(r.Price)):
		return fmt.Errorf("%w: price %q is not a non-negative decimal with at most 2 places", ErrInvalidRecord, r.Price)
	}
	return nil
}

// BarcodeSource hands out barcodes for records that arrive without one.
type BarcodeSource interface {
	Next(ctx context.Context) (string, bool, error)
}

// ParseCSV reads store_code,product_code,product_name,price[,barcode] rows.
// A header row matching those names is skipped.
func ParseCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var records []Record
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if line == 1 && isHeader(row) {
			continue
		}
		if len(row) < 4 || len(row) > 5 {
			return nil, fmt.Errorf("line %d: expected 4 or 5 fields, got %d", line, len(row))
		}
		rec := Record{
			StoreCode:   strings.TrimSpace(row[0]),
			ProductCode: strings.TrimSpace(row[1]),
			ProductName: strings.TrimSpace(row[2]),
			Price:       strings.TrimSpace(row[3]),
		}
		if len(row) == 5 {
			rec.Barcode = strings.TrimSpace(row[4])
		}
		records = append(records, rec)
	}
	return records, nil
}

func isHeader(row []string) bool {
	if len(row) < 4 {
		return false
	}
	for i, col := range row {
		if i >= len(csvHeader) || !strings.EqualFold(strings.TrimSpace(col), csvHeader[i]) {
			return false
		}
	}
	return true
}

// ParseJSON reads a JSON array of records.
func ParseJSON(r io.Reader) ([]Record, error) {
	var records []Record
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return records, nil
}

// Importer validates records and persists them as Ready jobs.
type Importer struct {
	jobs     store.JobStore
	barcodes BarcodeSource
	logger   *slog.Logger
}

// NewImporter creates an Importer. barcodes may be nil when every record is
// expected to carry its own barcode.
func NewImporter(jobs store.JobStore, barcodes BarcodeSource, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{jobs: jobs, barcodes: barcodes, logger: logger}
}

// Import validates every record before writing any, then inserts the batch
// in one call. It returns the created jobs.
func (i *Importer) Import(ctx context.Context, records []Record) ([]*models.Job, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records to import", ErrInvalidRecord)
	}
	for n, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", n+1, err)
		}
	}

	now := time.Now().UTC()
	jobs := make([]*models.Job, 0, len(records))
	minted := 0
	for _, rec := range records {
		barcode := strings.TrimSpace(rec.Barcode)
		if barcode == "" {
			var err error
			barcode, err = i.nextBarcode(ctx)
			if err != nil {
				i.logBurned(minted, err)
				return nil, err
			}
			minted++
		}
		jobs = append(jobs, &models.Job{
			ID:          uuid.New(),
			StoreCode:   strings.TrimSpace(rec.StoreCode),
			ProductCode: strings.TrimSpace(rec.ProductCode),
			ProductName: strings.TrimSpace(rec.ProductName),
			Price:       strings.TrimSpace(rec.Price),
			Barcode:     barcode,
			Status:      models.JobStatusReady,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if _, err := i.jobs.CreateJobs(ctx, jobs); err != nil {
		i.logBurned(minted, err)
		return nil, fmt.Errorf("create jobs: %w", err)
	}

	i.logger.Info("jobs imported", "count", len(jobs), "barcodes_minted", minted)
	return jobs, nil
}

// logBurned records barcodes taken from the pools for a batch that was not
// written. Pools never hand a value out twice, so these leave a gap.
func (i *Importer) logBurned(minted int, cause error) {
	if minted == 0 {
		return
	}
	i.logger.Warn("barcodes burned by failed import", "count", minted, "error", cause)
}

func (i *Importer) nextBarcode(ctx context.Context) (string, error) {
	if i.barcodes == nil {
		return "", ErrBarcodesExhausted
	}
	// The call that exhausts a pool reports none even when a later pool is
	// open, so one more attempt is made before giving up.
	for range 2 {
		code, ok, err := i.barcodes.Next(ctx)
		if err != nil {
			return "", fmt.Errorf("allocate barcode: %w", err)
		}
		if ok {
			return code, nil
		}
	}
	return "", ErrBarcodesExhausted
}
