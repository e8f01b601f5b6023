package observe

import (
	"fmt"
	"testing"
	"time"
)

// fakeClock advances a fixed amount per call sequence under test control.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCollector(opts ...CollectorOption) (*Collector, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts = append(opts, WithNow(clock.now))
	return NewCollector(opts...), clock
}

// runTurn records one complete turn with the given stage durations.
func runTurn(c *Collector, clock *fakeClock, id string, success bool, usedSearch bool, stages map[string]time.Duration) {
	c.StartRequest(id, "sess-1", "user-1")
	for stage, d := range stages {
		c.StartStage(id, stage)
		clock.advance(d)
		c.EndStage(id, stage)
	}
	errMsg := ""
	if !success {
		errMsg = "boom"
	}
	c.EndRequest(id, success, errMsg, usedSearch)
}

func TestCollectorStageTiming(t *testing.T) {
	c, clock := newTestCollector()

	runTurn(c, clock, "t1", true, false, map[string]time.Duration{
		StageSTT: 200 * time.Millisecond,
		StageLLM: 500 * time.Millisecond,
		StageTTS: 300 * time.Millisecond,
	})

	recent := c.Recent(10)
	if len(recent) != 1 {
		t.Fatalf("Recent() = %d records, want 1", len(recent))
	}
	r := recent[0]
	if r.StageMS[StageSTT] != 200 {
		t.Errorf("stt = %v ms, want 200", r.StageMS[StageSTT])
	}
	if r.StageMS[StageTotal] != 1000 {
		t.Errorf("total = %v ms, want 1000", r.StageMS[StageTotal])
	}

	// Stage sum never exceeds total.
	sum := r.StageMS[StageSTT] + r.StageMS[StageLLM] + r.StageMS[StageTTS]
	if sum > r.StageMS[StageTotal] {
		t.Errorf("stage sum %v exceeds total %v", sum, r.StageMS[StageTotal])
	}
}

func TestCollectorRepeatedStageAccumulates(t *testing.T) {
	c, clock := newTestCollector()

	c.StartRequest("t1", "s", "u")
	for i := 0; i < 3; i++ {
		c.StartStage("t1", StageTTS)
		clock.advance(100 * time.Millisecond)
		c.EndStage("t1", StageTTS)
	}
	c.EndRequest("t1", true, "", false)

	r := c.Recent(1)[0]
	if r.StageMS[StageTTS] != 300 {
		t.Errorf("tts = %v ms, want 300 (three sentences folded)", r.StageMS[StageTTS])
	}
}

func TestCollectorDiscard(t *testing.T) {
	c, _ := newTestCollector()

	c.StartRequest("t1", "s", "u")
	c.Discard("t1")

	if got := len(c.Recent(10)); got != 0 {
		t.Errorf("Recent() = %d records after discard, want 0", got)
	}
	stats := c.Stats(0)
	if stats.TotalTurns != 0 {
		t.Errorf("TotalTurns = %d after discard, want 0", stats.TotalTurns)
	}
	if stats.ErrorRate != 0 {
		t.Errorf("ErrorRate = %v after discard, want 0", stats.ErrorRate)
	}
}

func TestCollectorRingEviction(t *testing.T) {
	c, clock := newTestCollector(WithCapacity(3))

	for i := 0; i < 5; i++ {
		runTurn(c, clock, fmt.Sprintf("t%d", i), true, false, map[string]time.Duration{
			StageSTT: 10 * time.Millisecond,
		})
	}

	recent := c.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("Recent() = %d records, want 3", len(recent))
	}
	if recent[0].CorrelationID != "t2" || recent[2].CorrelationID != "t4" {
		t.Errorf("ring order = [%s..%s], want [t2..t4]",
			recent[0].CorrelationID, recent[2].CorrelationID)
	}
	if got := c.Stats(0).TotalTurns; got != 5 {
		t.Errorf("TotalTurns = %d, want 5 (eviction does not reset)", got)
	}
}

func TestCollectorStats(t *testing.T) {
	c, clock := newTestCollector()

	// 10 turns: 100..1000 ms LLM, two failures, three with search.
	for i := 1; i <= 10; i++ {
		id := fmt.Sprintf("t%d", i)
		runTurn(c, clock, id, i > 2, i <= 3, map[string]time.Duration{
			StageLLM: time.Duration(i*100) * time.Millisecond,
		})
	}

	stats := c.Stats(100)
	if stats.Window != 10 {
		t.Fatalf("Window = %d, want 10", stats.Window)
	}
	llm, ok := stats.Stages[StageLLM]
	if !ok {
		t.Fatal("llm stage missing from stats")
	}
	if llm.Samples != 10 {
		t.Errorf("llm samples = %d, want 10", llm.Samples)
	}
	// index = 10*50/100 = 5 → sixth value = 600 ms
	if llm.P50 != 600 {
		t.Errorf("llm p50 = %v, want 600", llm.P50)
	}
	// index = 10*95/100 = 9 → 1000 ms
	if llm.P95 != 1000 {
		t.Errorf("llm p95 = %v, want 1000", llm.P95)
	}
	if llm.Mean != 550 {
		t.Errorf("llm mean = %v, want 550", llm.Mean)
	}
	if stats.ErrorRate != 20 {
		t.Errorf("ErrorRate = %v, want 20", stats.ErrorRate)
	}
	if stats.SearchRate != 30 {
		t.Errorf("SearchRate = %v, want 30", stats.SearchRate)
	}
}

func TestCollectorStatsWindowLimits(t *testing.T) {
	c, clock := newTestCollector()

	for i := 0; i < 10; i++ {
		// First five fail, last five succeed.
		runTurn(c, clock, fmt.Sprintf("t%d", i), i >= 5, false, map[string]time.Duration{
			StageSTT: 10 * time.Millisecond,
		})
	}

	stats := c.Stats(5)
	if stats.Window != 5 {
		t.Fatalf("Window = %d, want 5", stats.Window)
	}
	if stats.ErrorRate != 0 {
		t.Errorf("ErrorRate over last 5 = %v, want 0", stats.ErrorRate)
	}
}

func TestCollectorEmptyStats(t *testing.T) {
	c, _ := newTestCollector()
	stats := c.Stats(0)
	if stats.Window != 0 || stats.TotalTurns != 0 || len(stats.Stages) != 0 {
		t.Errorf("empty stats = %+v, want zero shape", stats)
	}
}

func TestCollectorUnknownCorrelationIDsIgnored(t *testing.T) {
	c, _ := newTestCollector()
	c.StartStage("ghost", StageSTT)
	c.EndStage("ghost", StageSTT)
	c.EndRequest("ghost", true, "", false)
	if got := len(c.Recent(10)); got != 0 {
		t.Errorf("Recent() = %d records from ghost ops, want 0", got)
	}
}

func TestCollectorZeroStagesOmitted(t *testing.T) {
	c, clock := newTestCollector()
	runTurn(c, clock, "t1", true, false, map[string]time.Duration{
		StageSTT: 50 * time.Millisecond,
	})

	stats := c.Stats(0)
	if _, ok := stats.Stages[StageSearch]; ok {
		t.Error("search stage present in stats despite no samples")
	}
}
