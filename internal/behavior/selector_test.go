package behavior

import (
	"fmt"
	"testing"
	"time"

	"agent_office/internal/domain"
)

func TestSelectIsDeterministic(t *testing.T) {
	for cycle := int64(0); cycle < 50; cycle++ {
		first := Select("dev", cycle)
		for i := 0; i < 20; i++ {
			if got := Select("dev", cycle); got != first {
				t.Fatalf("cycle %d: behavior changed between calls: %s != %s", cycle, got, first)
			}
		}
	}
}

func TestSelectDistributionApproximatesWeights(t *testing.T) {
	const cycles = 10000
	counts := map[domain.Behavior]int{}
	for i := 0; i < cycles; i++ {
		counts[Select(fmt.Sprintf("agent-%d", i), int64(i))]++
	}
	wants := map[domain.Behavior]float64{
		domain.BehaviorDesk:    0.55,
		domain.BehaviorCoffee:  0.12,
		domain.BehaviorChat:    0.15,
		domain.BehaviorLounge:  0.08,
		domain.BehaviorStretch: 0.05,
		domain.BehaviorWander:  0.05,
	}
	for b, want := range wants {
		got := float64(counts[b]) / cycles
		if got < want-0.03 || got > want+0.03 {
			t.Fatalf("behavior %s frequency %.3f outside %.2f±0.03", b, got, want)
		}
	}
}

func TestCycleSecondsWithinRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("agent-%d", i)
		secs := CycleSeconds(id)
		if secs < 20 || secs > 40 {
			t.Fatalf("cycle length %d out of [20,40] for %s", secs, id)
		}
		if secs != CycleSeconds(id) {
			t.Fatalf("cycle length not stable for %s", id)
		}
	}
}

func TestCycleBucketsAdvanceWithTime(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	id := "dev"
	c0 := Cycle(id, base)
	if got := Cycle(id, base.Add(CycleLength(id))); got != c0+1 {
		t.Fatalf("cycle after one full length: got %d want %d", got, c0+1)
	}
}
