// Package sequence hands out unique fixed-width decimal values from bounded
// pools stored in the database.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/kiranshivaraju/jobleaser/pkg/models"
)

var (
	// ErrMalformedValue is returned when a pool bound or cursor is not a
	// fixed-width unsigned decimal.
	ErrMalformedValue = errors.New("malformed sequence value")
	// ErrContention is returned when every compare-and-set attempt lost.
	ErrContention = errors.New("sequence pool contention")
)

const defaultMaxAttempts = 1000

// Allocator issues values from the lowest-id open pool. It holds no state of
// its own; concurrent callers in any number of processes are serialized by
// the store's compare-and-set on the pool cursor.
type Allocator struct {
	store       store.SequenceStore
	logger      *slog.Logger
	maxAttempts int
}

// NewAllocator creates an Allocator. A nil logger uses slog.Default().
func NewAllocator(s store.SequenceStore, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{store: s, logger: logger, maxAttempts: defaultMaxAttempts}
}

// Next returns the next value and true, or false when no open pool has a
// value left. The end value of a pool is never issued: reaching it marks the
// pool exhausted.
func (a *Allocator) Next(ctx context.Context) (string, bool, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		pool, err := a.store.FirstOpenSequencePool(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("load sequence pool: %w", err)
		}

		if err := checkWidth(pool.CurrentNext, pool.EndValue); err != nil {
			return "", false, fmt.Errorf("pool %d: %w", pool.ID, err)
		}

		if pool.CurrentNext >= pool.EndValue {
			ok, err := a.store.MarkSequencePoolExhausted(ctx, pool.ID, pool.CurrentNext)
			if err != nil {
				return "", false, fmt.Errorf("exhaust sequence pool %d: %w", pool.ID, err)
			}
			if !ok {
				continue
			}
			a.logger.Info("sequence pool exhausted", "pool_id", pool.ID, "end_value", pool.EndValue)
			return "", false, nil
		}

		next, err := Increment(pool.CurrentNext)
		if err != nil {
			return "", false, fmt.Errorf("pool %d: %w", pool.ID, err)
		}

		ok, err := a.store.AdvanceSequencePool(ctx, pool.ID, pool.CurrentNext, next)
		if err != nil {
			return "", false, fmt.Errorf("advance sequence pool %d: %w", pool.ID, err)
		}
		if ok {
			return pool.CurrentNext, true, nil
		}
	}
	return "", false, ErrContention
}

// Increment returns v+1 left-padded with zeros to the width of v.
func Increment(v string) (string, error) {
	n, err := parse(v)
	if err != nil {
		return "", err
	}
	next := fmt.Sprintf("%0*d", len(v), n+1)
	if len(next) != len(v) {
		return "", fmt.Errorf("%w: %q overflows its width", ErrMalformedValue, v)
	}
	return next, nil
}

// NewPool validates a range and returns an open pool positioned at start.
func NewPool(start, end string) (*models.SequencePool, error) {
	if err := checkWidth(start, end); err != nil {
		return nil, err
	}
	if start > end {
		return nil, fmt.Errorf("%w: start %q is after end %q", ErrMalformedValue, start, end)
	}
	return &models.SequencePool{
		StartValue:  start,
		EndValue:    end,
		CurrentNext: start,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// checkWidth verifies both values are decimals of the same width, so that
// string order equals numeric order.
func checkWidth(a, b string) error {
	if _, err := parse(a); err != nil {
		return err
	}
	if _, err := parse(b); err != nil {
		return err
	}
	if len(a) != len(b) {
		return fmt.Errorf("%w: %q and %q differ in width", ErrMalformedValue, a, b)
	}
	return nil
}

func parse(v string) (uint64, error) {
	if v == "" {
		return 0, fmt.Errorf("%w: empty value", ErrMalformedValue)
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrMalformedValue, v)
		}
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedValue, v)
	}
	return n, nil
}
