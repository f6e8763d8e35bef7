package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/probez"
	"golang.org/x/sync/errgroup"
)

// processBatch models a worker stage: a span per batch, a sample per item,
// and an event when an item is rejected.
func processBatch(ctx context.Context, p *probez.Probe, batch []float64) error {
	if err := p.Enter(ctx, "batch"); err != nil {
		return err
	}
	defer func() { _ = p.Exit(ctx, "batch") }()

	for _, v := range batch {
		if err := p.RecordVar(ctx, "item", "ms", 0, 100, v); err != nil {
			return err
		}
		if v > 100 {
			p.Trigger(ctx, "rejected")
		}
	}
	return nil
}

func TestWorkerPipelineTraces(t *testing.T) {
	p := probez.New()
	rec := NewTraceRecorder(t, p)
	defer p.Close()

	batches := [][]float64{{1, 2, 3}, {50, 150}, {99}, {101, 102, 5}}

	g, gctx := errgroup.WithContext(context.Background())
	for i, batch := range batches {
		g.Go(func() error {
			ctx, ec := p.Attach(gctx, fmt.Sprintf("worker-%d", i))
			defer ec.Close()

			if err := p.Enter(ctx, "job"); err != nil {
				return err
			}
			err := processBatch(ctx, p, batch)
			if exitErr := p.Exit(ctx, "job"); exitErr != nil {
				return exitErr
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	byContext := rec.ByContext()
	require.Len(t, byContext, len(batches))

	for i, batch := range batches {
		traces := byContext[fmt.Sprintf("worker-%d", i)]
		require.Len(t, traces, 1)
		trace := traces[0]
		RequireWellFormed(t, trace)

		assert.Equal(t, "job(batch)", Shape(trace))
		samples := trace.Samples()
		require.Len(t, samples, len(batch))

		rejected := 0
		for j, s := range samples {
			assert.Equal(t, batch[j], s.Value)
			assert.Equal(t, s.Value <= 100, s.InRange())
			if !s.InRange() {
				rejected++
			}
		}
		assert.Len(t, trace.Events(), rejected)
	}
}

func TestPipelineCancellationForcesOpenStages(t *testing.T) {
	p := probez.New()
	rec := NewTraceRecorder(t, p)
	defer p.Close()

	errStage := errors.New("stage failed")
	started := make(chan struct{})

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		<-started
		return errStage
	})
	g.Go(func() error {
		ctx, _ := p.Attach(gctx, "blocked")
		_ = p.Enter(ctx, "job")
		_ = p.Enter(ctx, "wait")
		close(started)
		<-ctx.Done()
		// Teardown may already have run; these calls must not panic.
		_ = p.Exit(ctx, "wait")
		_ = p.Exit(ctx, "job")
		return nil
	})

	require.ErrorIs(t, g.Wait(), errStage)

	traces := rec.WaitForTraces(1, time.Second)
	require.Len(t, traces, 1)
	assert.Equal(t, "blocked", traces[0].Context)
	assert.Equal(t, "job(wait)", Shape(traces[0]))
	RequireWellFormed(t, traces[0])
}

func TestRecursionShapes(t *testing.T) {
	p := probez.New()
	rec := NewTraceRecorder(t, p)
	defer p.Close()

	var walk func(ctx context.Context, depth, fanout int)
	walk = func(ctx context.Context, depth, fanout int) {
		_ = p.Enter(ctx, fmt.Sprintf("d%d", depth))
		if depth > 0 {
			for i := 0; i < fanout; i++ {
				walk(ctx, depth-1, fanout)
			}
		}
		_ = p.Exit(ctx, fmt.Sprintf("d%d", depth))
	}

	ctx, ec := p.Attach(context.Background(), "tree")
	defer ec.Close()
	walk(ctx, 2, 2)

	traces := rec.All()
	require.Len(t, traces, 1)
	assert.Equal(t, "d2(d1(d0,d0),d1(d0,d0))", Shape(traces[0]))
	assert.Equal(t, 3, traces[0].MaxDepth())
	assert.Len(t, traces[0].Spans, 7)
	RequireWellFormed(t, traces[0])
}
