// Package behavior derives the idle behavior and target position for agents
// that have no live activity. Every choice is keyed on (agent id, cycle) so a
// reload reproduces identical output for the same wall-clock time.
package behavior

import (
	"strconv"
	"time"

	"agent_office/internal/domain"
	"agent_office/internal/seed"
)

type weightEntry struct {
	behavior domain.Behavior
	weight   int
}

// Weights are fixed percentages summing to 100.
var weightTable = []weightEntry{
	{domain.BehaviorDesk, 55},
	{domain.BehaviorCoffee, 12},
	{domain.BehaviorChat, 15},
	{domain.BehaviorLounge, 8},
	{domain.BehaviorStretch, 5},
	{domain.BehaviorWander, 5},
}

const totalWeight = 100

const (
	cycleMinSeconds = 20
	cycleMaxSeconds = 40
)

// CycleSeconds is the per-agent cycle length. Deriving it from the agent id
// keeps agents from changing behavior in lock-step.
func CycleSeconds(agentID string) int64 {
	return int64(seed.Range(agentID+":cycle-len", cycleMinSeconds, cycleMaxSeconds))
}

// CycleLength is CycleSeconds as a duration.
func CycleLength(agentID string) time.Duration {
	return time.Duration(CycleSeconds(agentID)) * time.Second
}

// Cycle buckets now into the agent's current cycle number.
func Cycle(agentID string, now time.Time) int64 {
	return now.Unix() / CycleSeconds(agentID)
}

// Select deterministically picks one idle behavior for (agentID, cycle).
func Select(agentID string, cycle int64) domain.Behavior {
	roll := seed.Roll(agentID+":"+strconv.FormatInt(cycle, 10), totalWeight)
	sum := 0
	for _, entry := range weightTable {
		sum += entry.weight
		if roll < sum {
			return entry.behavior
		}
	}
	return domain.BehaviorDesk
}
