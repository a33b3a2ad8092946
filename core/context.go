package core

import (
	"fmt"
	"time"
)

// ContextLevel is an ordered band of context window usage.
type ContextLevel int

const (
	LevelGreen ContextLevel = iota
	LevelYellow
	LevelOrange
	LevelRed
	LevelCritical
)

// String returns the lower-case level name.
func (l ContextLevel) String() string {
	switch l {
	case LevelGreen:
		return "green"
	case LevelYellow:
		return "yellow"
	case LevelOrange:
		return "orange"
	case LevelRed:
		return "red"
	case LevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ContextMetrics is a single context usage measurement.
type ContextMetrics struct {
	EstimatedTokens int          `json:"estimated_tokens"`
	MaxTokens       int          `json:"max_tokens"`
	Percentage      float64      `json:"percentage"` // 0..1, may exceed 1
	Level           ContextLevel `json:"level"`
	Timestamp       time.Time    `json:"timestamp"`
}

// RemainingTokens returns the tokens left before the window is full, never
// negative.
func (m ContextMetrics) RemainingTokens() int {
	if r := m.MaxTokens - m.EstimatedTokens; r > 0 {
		return r
	}
	return 0
}
