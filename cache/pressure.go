package cache

import (
	"fmt"
	"strings"
)

// Level is a memory-pressure signal.
type Level uint8

const (
	PressureLow Level = iota
	PressureMedium
	PressureHigh
	PressureCritical
)

func (l Level) String() string {
	switch l {
	case PressureLow:
		return "low"
	case PressureMedium:
		return "medium"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// ParseLevel maps "low", "medium", "high" or "critical" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PressureLow, nil
	case "medium":
		return PressureMedium, nil
	case "high":
		return PressureHigh, nil
	case "critical":
		return PressureCritical, nil
	default:
		return PressureLow, fmt.Errorf("cache: unknown pressure level %q", s)
	}
}

// PressureReport describes what a pressure signal removed.
type PressureReport struct {
	Level      Level
	HotEvicted []string
	WarmPurged int
}
