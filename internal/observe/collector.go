package observe

import (
	"sort"
	"sync"
	"time"
)

// Stage names used by the turn pipeline. StageTotal is derived, not timed
// explicitly.
const (
	StageSTT    = "stt"
	StageLLM    = "llm"
	StageTTS    = "tts"
	StageSearch = "search"
	StageTotal  = "total"
)

// DefaultCapacity is how many completed turns the collector retains.
const DefaultCapacity = 1000

// DefaultStatsWindow is how many recent turns Stats aggregates by default.
const DefaultStatsWindow = 100

// TurnRecord is the latency record of one completed turn.
type TurnRecord struct {
	CorrelationID string    `json:"correlation_id"`
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`

	// StageMS maps stage name to duration in milliseconds. "total" is the
	// whole turn; the named stages never sum above it.
	StageMS map[string]float64 `json:"stage_ms"`

	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	UsedSearch bool   `json:"used_search"`
}

// StageStats aggregates one stage's latencies over a window of turns.
type StageStats struct {
	P50     float64 `json:"p50_ms"`
	P95     float64 `json:"p95_ms"`
	P99     float64 `json:"p99_ms"`
	Mean    float64 `json:"mean_ms"`
	Samples int     `json:"samples"`
}

// Stats is the aggregated view served by the /metrics admin endpoint.
type Stats struct {
	// Window is how many turns the aggregation covers.
	Window int `json:"window"`

	// TotalTurns counts every completed turn since startup (bounded
	// retention does not reset it).
	TotalTurns int `json:"total_turns"`

	// Stages maps stage name to its percentile aggregate. Stages with no
	// positive samples in the window are omitted.
	Stages map[string]StageStats `json:"stages"`

	// ErrorRate is the percentage of failed turns in the window.
	ErrorRate float64 `json:"error_rate_pct"`

	// SearchRate is the percentage of turns that ran a web search.
	SearchRate float64 `json:"search_usage_pct"`
}

// inflight tracks a turn between StartRequest and EndRequest.
type inflight struct {
	record      TurnRecord
	stageStarts map[string]time.Time
}

// Collector keeps a bounded ring of recent turn records and answers
// percentile queries over them. One turn has a single writer (its pipeline
// goroutine); readers snapshot under the same lock.
type Collector struct {
	capacity int
	now      func() time.Time

	mu       sync.Mutex
	records  []TurnRecord // ring, oldest first once full
	next     int
	full     bool
	total    int
	inflight map[string]*inflight
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithCapacity overrides the ring size.
func WithCapacity(n int) CollectorOption {
	return func(c *Collector) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithNow overrides the time source, for tests.
func WithNow(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates a Collector retaining the most recent
// [DefaultCapacity] turns.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		capacity: DefaultCapacity,
		now:      time.Now,
		inflight: make(map[string]*inflight),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.records = make([]TurnRecord, c.capacity)
	return c
}

// StartRequest opens a turn record under the given correlation ID.
func (c *Collector) StartRequest(correlationID, sessionID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[correlationID] = &inflight{
		record: TurnRecord{
			CorrelationID: correlationID,
			SessionID:     sessionID,
			UserID:        userID,
			Start:         c.now(),
			StageMS:       make(map[string]float64),
		},
		stageStarts: make(map[string]time.Time),
	}
}

// StartStage marks the beginning of a named stage for an in-flight turn.
// Unknown correlation IDs are ignored.
func (c *Collector) StartStage(correlationID, stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.inflight[correlationID]; ok {
		f.stageStarts[stage] = c.now()
	}
}

// EndStage closes a named stage, accumulating its duration. Repeated
// start/end pairs for the same stage add up, which is how the per-sentence
// TTS calls of one turn fold into a single "tts" figure.
func (c *Collector) EndStage(correlationID, stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.inflight[correlationID]
	if !ok {
		return
	}
	start, ok := f.stageStarts[stage]
	if !ok {
		return
	}
	delete(f.stageStarts, stage)
	f.record.StageMS[stage] += c.now().Sub(start).Seconds() * 1000
}

// EndRequest finalises a turn and commits it to the ring. The total stage is
// derived from wall-clock start to end.
func (c *Collector) EndRequest(correlationID string, success bool, errMsg string, usedSearch bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.inflight[correlationID]
	if !ok {
		return
	}
	delete(c.inflight, correlationID)

	f.record.End = c.now()
	f.record.Success = success
	f.record.Error = errMsg
	f.record.UsedSearch = usedSearch
	f.record.StageMS[StageTotal] = f.record.End.Sub(f.record.Start).Seconds() * 1000

	c.records[c.next] = f.record
	c.next++
	if c.next == c.capacity {
		c.next = 0
		c.full = true
	}
	c.total++
}

// Discard drops an in-flight turn without committing it. Used for turns that
// produced no transcript: they are not failures and must not skew counters.
func (c *Collector) Discard(correlationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, correlationID)
}

// StageDuration returns the accumulated duration of one stage for a committed
// or in-flight turn, in milliseconds. Mainly for tests.
func (c *Collector) StageDuration(correlationID, stage string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.inflight[correlationID]; ok {
		ms, ok := f.record.StageMS[stage]
		return ms, ok
	}
	for _, r := range c.recent(c.capacity) {
		if r.CorrelationID == correlationID {
			ms, ok := r.StageMS[stage]
			return ms, ok
		}
	}
	return 0, false
}

// Recent returns up to n most recent turn records, newest last.
func (c *Collector) Recent(n int) []TurnRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recent(n)
}

// recent must be called with c.mu held.
func (c *Collector) recent(n int) []TurnRecord {
	size := c.next
	if c.full {
		size = c.capacity
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]TurnRecord, 0, n)
	for i := size - n; i < size; i++ {
		idx := i
		if c.full {
			idx = (c.next + i) % c.capacity
		}
		out = append(out, c.records[idx])
	}
	return out
}

// Stats aggregates the last lastN turns (default [DefaultStatsWindow]). An
// empty collector yields the documented zero shape: zero window, empty stage
// map, zero rates.
func (c *Collector) Stats(lastN int) Stats {
	if lastN <= 0 {
		lastN = DefaultStatsWindow
	}
	window := c.Recent(lastN)

	c.mu.Lock()
	total := c.total
	c.mu.Unlock()

	stats := Stats{
		Window:     len(window),
		TotalTurns: total,
		Stages:     make(map[string]StageStats),
	}
	if len(window) == 0 {
		return stats
	}

	samples := make(map[string][]float64)
	failures, searches := 0, 0
	for _, r := range window {
		if !r.Success {
			failures++
		}
		if r.UsedSearch {
			searches++
		}
		for stage, ms := range r.StageMS {
			if ms > 0 {
				samples[stage] = append(samples[stage], ms)
			}
		}
	}

	for stage, vals := range samples {
		sort.Float64s(vals)
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		stats.Stages[stage] = StageStats{
			P50:     percentile(vals, 50),
			P95:     percentile(vals, 95),
			P99:     percentile(vals, 99),
			Mean:    round2(sum / float64(len(vals))),
			Samples: len(vals),
		}
	}

	stats.ErrorRate = round2(float64(failures) / float64(len(window)) * 100)
	stats.SearchRate = round2(float64(searches) / float64(len(window)) * 100)
	return stats
}

// percentile picks the p-th percentile from ascending vals by index,
// capped at the last element.
func percentile(vals []float64, p int) float64 {
	if len(vals) == 0 {
		return 0
	}
	idx := len(vals) * p / 100
	if idx >= len(vals) {
		idx = len(vals) - 1
	}
	return round2(vals[idx])
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
