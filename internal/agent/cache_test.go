package agent

import (
	"sync"
	"testing"

	"github.com/freeeve/parley/internal/model"
)

func TestDecisionCacheHitAndMiss(t *testing.T) {
	c := NewDecisionCache()

	if _, ok := c.Get("fp1"); ok {
		t.Fatalf("empty cache reported a hit")
	}

	want := map[model.Power][]model.Order{"FRANCE": {"A PAR H"}}
	c.Put("fp1", want)

	got, ok := c.Get("fp1")
	if !ok {
		t.Fatalf("expected hit for stored fingerprint")
	}
	if len(got["FRANCE"]) != 1 || got["FRANCE"][0] != "A PAR H" {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, ok := c.Get("fp2"); ok {
		t.Errorf("different fingerprint reported a hit")
	}
}

func TestDecisionCacheReplacesWholesale(t *testing.T) {
	c := NewDecisionCache()
	c.Put("fp1", map[model.Power][]model.Order{"FRANCE": {"A PAR H"}})
	c.Put("fp2", map[model.Power][]model.Order{"GERMANY": {"A BER H"}})

	if _, ok := c.Get("fp1"); ok {
		t.Errorf("old entry survived replacement")
	}
	got, ok := c.Get("fp2")
	if !ok || len(got["GERMANY"]) != 1 {
		t.Errorf("new entry missing after replacement: %v", got)
	}
}

func TestDecisionCachePutFailure(t *testing.T) {
	c := NewDecisionCache()
	c.PutFailure("fp1")

	got, ok := c.Get("fp1")
	if !ok {
		t.Fatalf("failure entry should count as a hit for the same fingerprint")
	}
	if len(got) != 0 {
		t.Errorf("failure entry should be empty, got %v", got)
	}

	// A new fingerprint (new phase) must miss, forcing a retry.
	if _, ok := c.Get("fp2"); ok {
		t.Errorf("failure entry matched a different fingerprint")
	}
}

func TestDecisionCacheConcurrentReads(t *testing.T) {
	c := NewDecisionCache()
	c.Put("fp", map[model.Power][]model.Order{"FRANCE": {"A PAR H"}})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if v, ok := c.Get("fp"); ok && len(v["FRANCE"]) != 1 {
					t.Errorf("fingerprint matched but value was inconsistent")
					return
				}
				c.Put("fp", map[model.Power][]model.Order{"FRANCE": {"A PAR H"}})
			}
		}()
	}
	wg.Wait()
}
