package main

import (
	"context"

	"github.com/zoobzio/clockz"

	"github.com/zoobzio/probez"
	"github.com/zoobzio/probez/internal/config"
)

// runClient is the sample instrumented program: a main span, a bounded
// "stack" sample and a main_event per iteration, then a recursive span
// chain. Cancelling ctx tears the execution context down mid-run.
func runClient(ctx context.Context, p *probez.Probe, clock clockz.Clock, demo config.DemoConfig, name string) error {
	ctx, ec := p.Attach(ctx, name)
	defer ec.Close()

	if err := p.Enter(ctx, "main"); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	for i := 0; i < demo.Iterations; i++ {
		_ = p.RecordVar(ctx, "stack", "ms", 0, 1000, float64(1+i))
		p.Trigger(ctx, "main_event")

		recursive(ctx, p, 0, demo.RecursionDepth)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(demo.Pause):
		}
	}

	return p.Exit(ctx, "main")
}

func recursive(ctx context.Context, p *probez.Probe, counter, limit int) {
	if limit <= 0 {
		return
	}
	_ = p.Enter(ctx, "recursive")
	p.Trigger(ctx, "recursive")
	if counter < limit-1 {
		recursive(ctx, p, counter+1, limit)
	}
	_ = p.Exit(ctx, "recursive")
}
