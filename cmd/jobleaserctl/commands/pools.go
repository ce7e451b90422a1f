package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/kiranshivaraju/jobleaser/internal/sequence"
	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/urfave/cli/v3"
)

// PoolCreateAction adds a sequence pool.
func PoolCreateAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	return createPool(ctx, app.Store, out(cmd), cmd.String("start"), cmd.String("end"))
}

// PoolNextAction allocates and prints values from the lowest open pool.
func PoolNextAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	return nextValues(ctx, sequence.NewAllocator(app.Store, nil), out(cmd), int(cmd.Int("count")))
}

func createPool(ctx context.Context, pools store.SequenceStore, w io.Writer, start, end string) error {
	pool, err := sequence.NewPool(start, end)
	if err != nil {
		return err
	}
	if err := pools.CreateSequencePool(ctx, pool); err != nil {
		return fmt.Errorf("create sequence pool: %w", err)
	}
	fmt.Fprintf(w, "created pool %d [%s, %s)\n", pool.ID, pool.StartValue, pool.EndValue)
	return nil
}

type allocator interface {
	Next(ctx context.Context) (string, bool, error)
}

func nextValues(ctx context.Context, alloc allocator, w io.Writer, count int) error {
	if count < 1 {
		count = 1
	}
	for range count {
		v, ok, err := alloc.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("all sequence pools are exhausted")
		}
		fmt.Fprintln(w, v)
	}
	return nil
}
