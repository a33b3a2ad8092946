package budget

import (
	"sync"
	"unicode/utf8"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/internal/clock"
)

const (
	// DefaultMaxTokens is the assumed size of the model context window.
	DefaultMaxTokens = 200000
	// DefaultHistoryCapacity bounds the measurement history.
	DefaultHistoryCapacity = 100
	// DefaultGrowthWindow is how many recent samples feed GrowthRate.
	DefaultGrowthWindow = 10
)

// Level thresholds, as fractions of the context window.
const (
	YellowThreshold   = 0.60
	OrangeThreshold   = 0.70
	RedThreshold      = 0.80
	CriticalThreshold = 0.90
)

var warnings = map[core.ContextLevel]string{
	core.LevelOrange:   "Context window is over 70% full. Keep replies focused.",
	core.LevelRed:      "Context window is over 80% full. Wrap up open threads soon.",
	core.LevelCritical: "Context window is over 90% full. Saving state and handing off to a fresh session.",
}

// Options configures a Tracker.
type Options struct {
	MaxTokens       int
	HistoryCapacity int
	GrowthWindow    int
	Clock           clock.Clock
}

// Signal is the policy outcome for one measurement.
type Signal struct {
	Level   core.ContextLevel
	Warning string // empty below orange
	Handoff bool   // only at critical
}

// Tracker records context measurements for one working session.
type Tracker struct {
	maxTokens    int
	capacity     int
	growthWindow int
	clock        clock.Clock

	mu      sync.Mutex
	history []core.ContextMetrics
}

// NewTracker creates a Tracker with optional overrides.
func NewTracker(optFns ...func(o *Options)) *Tracker {
	opts := Options{
		MaxTokens:       DefaultMaxTokens,
		HistoryCapacity: DefaultHistoryCapacity,
		GrowthWindow:    DefaultGrowthWindow,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.HistoryCapacity <= 0 {
		opts.HistoryCapacity = DefaultHistoryCapacity
	}
	if opts.GrowthWindow < 2 {
		opts.GrowthWindow = DefaultGrowthWindow
	}
	return &Tracker{
		maxTokens:    opts.MaxTokens,
		capacity:     opts.HistoryCapacity,
		growthWindow: opts.GrowthWindow,
		clock:        clock.OrReal(opts.Clock),
	}
}

// EstimateTokens returns floor(characters * 0.30). Integer arithmetic keeps
// the floor exact for every length.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) * 3 / 10
}

// EstimateTokensList sums the per-item estimates. This is deliberately not
// the estimate of the concatenation; truncation happens per item.
func EstimateTokensList(texts []string) int {
	total := 0
	for _, t := range texts {
		total += EstimateTokens(t)
	}
	return total
}

// Classify maps a usage fraction to its level.
func Classify(percentage float64) core.ContextLevel {
	switch {
	case percentage >= CriticalThreshold:
		return core.LevelCritical
	case percentage >= RedThreshold:
		return core.LevelRed
	case percentage >= OrangeThreshold:
		return core.LevelOrange
	case percentage >= YellowThreshold:
		return core.LevelYellow
	default:
		return core.LevelGreen
	}
}

// Warning returns the fixed warning for level, if it carries one.
func Warning(level core.ContextLevel) (string, bool) {
	w, ok := warnings[level]
	return w, ok
}

// Evaluate applies the warning / handoff policy to a measurement.
func Evaluate(m core.ContextMetrics) Signal {
	w, _ := Warning(m.Level)
	return Signal{Level: m.Level, Warning: w, Handoff: m.Level == core.LevelCritical}
}

// MaxTokens returns the configured window size.
func (t *Tracker) MaxTokens() int { return t.maxTokens }

// Measure computes metrics for contextText without recording them.
func (t *Tracker) Measure(contextText string) core.ContextMetrics {
	tokens := EstimateTokens(contextText)
	pct := float64(tokens) / float64(t.maxTokens)
	return core.ContextMetrics{
		EstimatedTokens: tokens,
		MaxTokens:       t.maxTokens,
		Percentage:      pct,
		Level:           Classify(pct),
		Timestamp:       t.clock.Now(),
	}
}

// RecordMeasurement measures contextText and appends the result to the
// history, evicting the oldest entries beyond capacity.
func (t *Tracker) RecordMeasurement(contextText string) core.ContextMetrics {
	m := t.Measure(contextText)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, m)
	if over := len(t.history) - t.capacity; over > 0 {
		t.history = append(t.history[:0:0], t.history[over:]...)
	}
	return m
}

// History returns a copy of the recorded measurements, oldest first.
func (t *Tracker) History() []core.ContextMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]core.ContextMetrics, len(t.history))
	copy(out, t.history)
	return out
}

// Latest returns the newest measurement.
func (t *Tracker) Latest() (core.ContextMetrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.history) == 0 {
		return core.ContextMetrics{}, false
	}
	return t.history[len(t.history)-1], true
}

// Reset clears the history. Called on explicit session reset only.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = nil
}

// GrowthRate returns tokens per minute between the oldest and newest of the
// most recent samples. It is unknown with fewer than two samples or when no
// time has elapsed.
func (t *Tracker) GrowthRate() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.history)
	if n < 2 {
		return 0, false
	}
	window := t.history
	if n > t.growthWindow {
		window = t.history[n-t.growthWindow:]
	}
	first, last := window[0], window[len(window)-1]
	elapsed := last.Timestamp.Sub(first.Timestamp).Minutes()
	if elapsed <= 0 {
		return 0, false
	}
	return float64(last.EstimatedTokens-first.EstimatedTokens) / elapsed, true
}

// ForecastTimeToFull returns the minutes until the window fills at the
// current growth rate. It is only defined for a known, positive rate.
func (t *Tracker) ForecastTimeToFull(m core.ContextMetrics) (float64, bool) {
	rate, ok := t.GrowthRate()
	if !ok || rate <= 0 {
		return 0, false
	}
	return float64(m.RemainingTokens()) / rate, true
}
