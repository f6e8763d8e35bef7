package reliability

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/zoobzio/probez"
)

// Protocol abuse tests - clients that mismatch, underflow, or nest too deep
// must get errors back, never corrupt another context, and never panic.

func TestProtocolAbuse(t *testing.T) {
	config := getReliabilityConfig()

	switch config.Level {
	case "basic", "stress":
		t.Run("random_calls", func(t *testing.T) { testRandomCallStorm(t, config) })
		t.Run("depth_bomb", testDepthBomb)
	default:
		t.Skip("PROBEZ_RELIABILITY_LEVEL not set, skipping reliability tests")
	}
}

var names = []string{"a", "b", "c", "d"}

func testRandomCallStorm(t *testing.T, config ReliabilityConfig) {
	p, collector := newSyncProbe()
	defer collector.Close()
	defer p.Close()

	workers := config.workers(config.scaled(8, 64))
	calls := config.scaled(5000, 200000)

	var wg sync.WaitGroup
	var failures sync.Map
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					failures.Store(seed, r)
				}
			}()
			rng := rand.New(rand.NewSource(seed))
			ctx, ec := p.Attach(context.Background(), "")
			defer ec.Close()

			for i := 0; i < calls; i++ {
				name := names[rng.Intn(len(names))]
				switch rng.Intn(5) {
				case 0, 1:
					_ = p.Enter(ctx, name)
				case 2:
					err := p.Exit(ctx, name)
					if err != nil && !errors.Is(err, probez.ErrMismatchedSpan) && !errors.Is(err, probez.ErrUnbalancedSpan) {
						failures.Store(seed, err)
						return
					}
				case 3:
					p.Trigger(ctx, name)
				default:
					_ = p.RecordVar(ctx, name, "u", float64(rng.Intn(3)), float64(rng.Intn(3)), 1)
				}
			}
		}(int64(w))
	}
	wg.Wait()

	failures.Range(func(k, v any) bool {
		t.Errorf("Worker %v failed: %v", k, v)
		return true
	})

	for _, trace := range collector.Export() {
		ids := map[string]bool{}
		for _, s := range trace.Spans {
			ids[s.ID] = true
			if s.Duration < 0 {
				t.Errorf("Negative duration on %s", s.ID)
			}
		}
		for _, s := range trace.Spans[1:] {
			if !ids[s.ParentID] {
				t.Errorf("Span %s parent %s outside its trace", s.ID, s.ParentID)
			}
		}
		for _, ev := range trace.Events() {
			if ev.Context != trace.Context {
				t.Errorf("Event from %s leaked into %s", ev.Context, trace.Context)
			}
		}
	}
}

func testDepthBomb(t *testing.T) {
	p := probez.New(probez.WithMaxDepth(64))
	collector := probez.NewCollector(4)
	collector.SetSyncMode(true)
	defer collector.Close()
	p.AddSyncSink(collector)

	const attempts = 10000
	refused := 0
	for i := 0; i < attempts; i++ {
		if errors.Is(p.Enter(context.Background(), "deep"), probez.ErrSpanDepthExceeded) {
			refused++
		}
	}
	for i := 0; i < attempts; i++ {
		if err := p.Exit(context.Background(), "deep"); err != nil {
			t.Fatalf("Exit %d: unexpected error %v", i, err)
		}
	}
	p.Close()

	if refused != attempts-64 {
		t.Errorf("Expected %d refused enters, got %d", attempts-64, refused)
	}
	traces := collector.Export()
	if len(traces) != 1 || len(traces[0].Spans) != 64 {
		t.Fatalf("Expected one 64-span trace, got %d traces", len(traces))
	}
}
