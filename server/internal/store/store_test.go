package store

import (
	"sync"
	"testing"
	"time"

	"github.com/docship/docship/pkg/types"
)

func report(agent string) *types.RunReport {
	return &types.RunReport{AgentID: agent, RunID: agent + "-run", Disposition: types.DispositionCompleted}
}

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestPutAndGet(t *testing.T) {
	st := New(5 * time.Minute)
	st.Put(report("laptop-01"))

	e, ok := st.Get("laptop-01")
	if !ok {
		t.Fatal("Get: expected entry, got none")
	}
	if e.Report.AgentID != "laptop-01" {
		t.Errorf("AgentID: got %q, want laptop-01", e.Report.AgentID)
	}
}

func TestGet_Missing(t *testing.T) {
	st := New(5 * time.Minute)
	_, ok := st.Get("unknown")
	if ok {
		t.Fatal("Get on empty store: expected false, got true")
	}
}

func TestPut_Overwrites(t *testing.T) {
	st := New(5 * time.Minute)
	r1 := &types.RunReport{AgentID: "nas", RunID: "r1", Disposition: types.DispositionCompleted}
	r2 := &types.RunReport{AgentID: "nas", RunID: "r2", Disposition: types.DispositionAborted}

	st.Put(r1)
	st.Put(r2)

	e, ok := st.Get("nas")
	if !ok {
		t.Fatal("Get: expected entry after two Puts")
	}
	if e.Report.RunID != "r2" || e.Report.Disposition != types.DispositionAborted {
		t.Errorf("Report: got %+v, want latest run r2", e.Report)
	}
}

func TestList_ExcludesStale(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	// Put two entries at different times.
	st.now = fixedClock(base.Add(-10 * time.Minute)) // stale
	st.Put(report("old"))

	st.now = fixedClock(base) // live
	st.Put(report("new"))

	// List uses current time = base.
	st.now = fixedClock(base)
	entries := st.List()

	if len(entries) != 1 {
		t.Fatalf("List: got %d entries, want 1", len(entries))
	}
	if entries[0].Report.AgentID != "new" {
		t.Errorf("List[0].AgentID: got %q, want new", entries[0].Report.AgentID)
	}
}

func TestCount_IncludesStale(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.Put(report("old"))

	st.now = fixedClock(base)
	st.Put(report("new"))

	// Count includes both; stale not yet evicted.
	if n := st.Count(); n != 2 {
		t.Errorf("Count: got %d, want 2", n)
	}
}

func TestEvict_RemovesStale(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.Put(report("old1"))
	st.Put(report("old2"))

	st.now = fixedClock(base)
	st.Put(report("live"))

	removed := st.Evict(base)
	if removed != 2 {
		t.Errorf("Evict: removed %d, want 2", removed)
	}
	if st.Count() != 1 {
		t.Errorf("Count after evict: got %d, want 1", st.Count())
	}
}

func TestEvict_NoOp_AllLive(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	st.now = fixedClock(base)
	st.Put(report("src"))

	removed := st.Evict(base)
	if removed != 0 {
		t.Errorf("Evict on live entry: removed %d, want 0", removed)
	}
}

func TestMultipleSources(t *testing.T) {
	st := New(5 * time.Minute)
	ids := []string{"otel", "prom", "loki"}
	for _, id := range ids {
		st.Put(report(id))
	}

	entries := st.List()
	if len(entries) != 3 {
		t.Errorf("List: got %d entries, want 3", len(entries))
	}
}

func TestConcurrentPuts(t *testing.T) {
	st := New(5 * time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			st.Put(report("concurrent"))
		}(i)
	}
	wg.Wait()

	// Should have exactly one entry (all same agent ID).
	if st.Count() != 1 {
		t.Errorf("Count after concurrent puts: got %d, want 1", st.Count())
	}
}

func TestConcurrentMixedOps(t *testing.T) {
	st := New(5 * time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			st.Put(report("agent-a"))
		}()
		go func() {
			defer wg.Done()
			st.List()
		}()
	}
	wg.Wait()
}

func TestLive_ExcludesStale(t *testing.T) {
	base := time.Now()
	st := New(time.Minute)

	st.now = fixedClock(base.Add(-2 * time.Minute))
	st.Put(report("old"))
	st.now = fixedClock(base)
	st.Put(report("new"))

	if _, ok := st.Live("old"); ok {
		t.Error("Live(old): expected stale entry to be hidden")
	}
	if _, ok := st.Get("old"); !ok {
		t.Error("Get(old): expected stale entry to remain until eviction")
	}
	if e, ok := st.Live("new"); !ok || e.Report.AgentID != "new" {
		t.Errorf("Live(new): got %v, %v", e, ok)
	}
}
