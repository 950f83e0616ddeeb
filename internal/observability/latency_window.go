package observability

import (
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

// Stage names reported by the AI turn loop and the finalizer.
const (
	StageCompletion = "submit_to_reply"
	StageSynthesis  = "reply_to_audio"
	StagePlayback   = "playback"
	StageTurnTotal  = "turn_total"
	StageFinalize   = "finalize_job"
)

// stageBudgets is the p95 latency each stage should stay under, in ms.
var stageBudgets = map[string]float64{
	StageCompletion: 2500,
	StageSynthesis:  1500,
	StagePlayback:   20000,
	StageTurnTotal:  4500,
	StageFinalize:   30000,
}

type TurnStageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	MaxMS       float64 `json:"max_ms"`
	BudgetP95MS float64 `json:"budget_p95_ms,omitempty"`
	// OverBudget counts samples in the window slower than the budget.
	OverBudget int `json:"over_budget"`
}

type TurnStageSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Stages      []TurnStageStats `json:"stages"`
}

// Stage returns the stats for one stage, if it has samples.
func (s TurnStageSnapshot) Stage(name string) (TurnStageStats, bool) {
	for _, st := range s.Stages {
		if st.Stage == name {
			return st, true
		}
	}
	return TurnStageStats{}, false
}

// ring keeps the most recent samples of one stage.
type ring struct {
	buf  []float64
	n    int
	head int
	last float64
}

func (r *ring) push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
	r.last = v
}

func (r *ring) sorted() []float64 {
	out := slices.Clone(r.buf[:r.n])
	slices.Sort(out)
	return out
}

type latencyWindow struct {
	mu   sync.Mutex
	size int
	byID map[string]*ring
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	return &latencyWindow{size: size, byID: make(map[string]*ring)}
}

func (w *latencyWindow) observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.byID[stage]
	if !ok {
		r = &ring{buf: make([]float64, w.size)}
		w.byID[stage] = r
	}
	r.push(ms)
}

func (w *latencyWindow) snapshot() TurnStageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := TurnStageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]TurnStageStats, 0, len(w.byID)),
	}
	for stage, r := range w.byID {
		if r.n == 0 {
			continue
		}
		samples := r.sorted()
		budget := stageBudgets[stage]
		sum, over := 0.0, 0
		for _, v := range samples {
			sum += v
			if budget > 0 && v > budget {
				over++
			}
		}
		snap.Stages = append(snap.Stages, TurnStageStats{
			Stage:       stage,
			Samples:     len(samples),
			LastMS:      round2(r.last),
			AvgMS:       round2(sum / float64(len(samples))),
			P50MS:       round2(percentile(samples, 0.50)),
			P95MS:       round2(percentile(samples, 0.95)),
			MaxMS:       round2(samples[len(samples)-1]),
			BudgetP95MS: budget,
			OverBudget:  over,
		})
	}
	slices.SortFunc(snap.Stages, func(a, b TurnStageStats) int {
		return strings.Compare(a.Stage, b.Stage)
	})
	return snap
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
