package probez

import (
	"strconv"
	"sync"
	"testing"
)

func TestUnscopedLogEviction(t *testing.T) {
	log := NewUnscopedLog(2)

	for i := 0; i < 5; i++ {
		log.AddEvent(Event{Name: strconv.Itoa(i), Unscoped: true})
	}

	events := log.Events()
	if len(events) != 2 {
		t.Fatalf("Expected 2 retained events, got %d", len(events))
	}
	if events[0].Name != "3" || events[1].Name != "4" {
		t.Errorf("Expected newest events retained in order, got %s,%s", events[0].Name, events[1].Name)
	}
	if log.Evicted() != 3 {
		t.Errorf("Expected 3 evictions, got %d", log.Evicted())
	}
}

func TestUnscopedLogDrain(t *testing.T) {
	log := NewUnscopedLog(4)
	log.AddEvent(Event{Name: "e"})
	log.AddSample(Sample{Name: "s"})

	if log.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", log.Len())
	}

	events, samples := log.Drain()
	if len(events) != 1 || len(samples) != 1 {
		t.Errorf("Expected 1 event and 1 sample, got %d and %d", len(events), len(samples))
	}
	if log.Len() != 0 {
		t.Errorf("Expected empty log after drain, got %d", log.Len())
	}

	// Usable after drain.
	log.AddEvent(Event{Name: "again"})
	if got := log.Events(); len(got) != 1 || got[0].Name != "again" {
		t.Errorf("Unexpected events after drain: %+v", got)
	}
}

func TestUnscopedLogDefaultCapacity(t *testing.T) {
	log := NewUnscopedLog(0)
	for i := 0; i < DefaultUnscopedCapacity+1; i++ {
		log.AddSample(Sample{})
	}
	if log.Evicted() != 1 {
		t.Errorf("Expected 1 eviction at default capacity, got %d", log.Evicted())
	}
}

func TestUnscopedLogConcurrent(t *testing.T) {
	log := NewUnscopedLog(10000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				log.AddEvent(Event{Name: "e"})
				log.AddSample(Sample{Name: "s"})
			}
		}()
	}
	wg.Wait()

	if log.Len() != 4000 {
		t.Errorf("Expected 4000 entries, got %d", log.Len())
	}
}
