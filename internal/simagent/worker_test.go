package simagent

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"agent_office/internal/domain"
	"agent_office/internal/floorplan"
)

type capturePub struct {
	mu     sync.Mutex
	events []domain.PushEvent
}

func (c *capturePub) Publish(ev domain.PushEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *capturePub) all() []domain.PushEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.PushEvent(nil), c.events...)
}

func testWorker(t *testing.T, id string) (*Worker, *capturePub) {
	t.Helper()
	cfg, ok := floorplan.Default().Agent(id)
	if !ok {
		t.Fatalf("no agent %s in default floorplan", id)
	}
	pub := &capturePub{}
	return NewWorker(cfg, pub, time.Minute, log.New(io.Discard, "", 0)), pub
}

func TestObserveIsDeterministicForAnInstant(t *testing.T) {
	w, _ := testWorker(t, "dev")
	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

	first := w.observe(now)
	second := w.observe(now)

	if first.Status != second.Status || first.Task != second.Task {
		t.Fatalf("observations differ: %+v vs %+v", first, second)
	}
	if first.Agent != "dev" || first.Type != domain.PushEventActivity {
		t.Fatalf("unexpected observation %+v", first)
	}
}

func TestObserveCoversAllStatusesOverTime(t *testing.T) {
	w, _ := testWorker(t, "dev")
	base := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	seen := make(map[domain.AgentStatus]bool)
	for i := 0; i < 500; i++ {
		ev := w.observe(base.Add(time.Duration(i) * time.Duration(w.shiftSec) * time.Second))
		seen[ev.Status] = true
		if ev.Status == domain.AgentStatusActive && ev.Task == "" {
			t.Fatal("active observation without a task")
		}
	}
	for _, s := range []domain.AgentStatus{domain.AgentStatusActive, domain.AgentStatusRecent, domain.AgentStatusIdle} {
		if !seen[s] {
			t.Fatalf("status %s never observed across 500 shifts", s)
		}
	}
}

func TestPausedWorkerReportsIdle(t *testing.T) {
	w, _ := testWorker(t, "dev")
	base := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	var active time.Time
	for i := 0; i < 500; i++ {
		ts := base.Add(time.Duration(i) * time.Duration(w.shiftSec) * time.Second)
		if w.observe(ts).Status == domain.AgentStatusActive {
			active = ts
			break
		}
	}
	if active.IsZero() {
		t.Fatal("no active shift found in 500 shifts")
	}

	w.Pause()
	if ev := w.observe(active); ev.Status != domain.AgentStatusIdle {
		t.Fatalf("paused worker observed %s, want idle", ev.Status)
	}
	w.Resume()
	if ev := w.observe(active); ev.Status != domain.AgentStatusActive {
		t.Fatalf("resumed worker observed %s, want active", ev.Status)
	}
}

func TestDeliverWakesWorkerAndBumpsMessageCount(t *testing.T) {
	w, pub := testWorker(t, "dev")
	if err := w.Deliver(domain.TranscriptMessage{Author: "user", Body: "status?"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	// Drain the inbox directly instead of racing the loop.
	w.handleMessage(<-w.inbox)

	now := time.Now().UTC()
	ev := w.observe(now)
	if ev.Status != domain.AgentStatusActive {
		t.Fatalf("worker status after message = %s, want active", ev.Status)
	}
	if ev.MessageCount == 0 {
		t.Fatalf("message count not bumped: %+v", ev)
	}
	if len(pub.all()) == 0 {
		t.Fatal("handleMessage published nothing")
	}
}

func TestKilledWorkerStaysIdleAndRejectsDelivery(t *testing.T) {
	w, pub := testWorker(t, "dev")
	w.Kill()

	last := pub.all()[len(pub.all())-1]
	if last.Status != domain.AgentStatusIdle {
		t.Fatalf("final report = %+v, want idle", last)
	}
	if ev := w.observe(time.Now().UTC()); ev.Status != domain.AgentStatusIdle {
		t.Fatalf("killed worker observed %s, want idle", ev.Status)
	}
	if err := w.Deliver(domain.TranscriptMessage{Body: "hello"}); err == nil {
		t.Fatal("Deliver to killed worker succeeded")
	}
}

func TestStartPublishesObservations(t *testing.T) {
	cfg, _ := floorplan.Default().Agent("qa")
	pub := &capturePub{}
	w := NewWorker(cfg, pub, 10*time.Millisecond, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(pub.all()) >= 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("worker published only %d events", len(pub.all()))
}

func TestPoolRoutesControlByID(t *testing.T) {
	pub := &capturePub{}
	pool := NewPool(floorplan.Default().Agents, pub, time.Minute, log.New(io.Discard, "", 0))

	if err := pool.Pause("dev"); err != nil {
		t.Fatalf("Pause dev: %v", err)
	}
	if err := pool.Resume("dev"); err != nil {
		t.Fatalf("Resume dev: %v", err)
	}
	if err := pool.Deliver("qa", domain.TranscriptMessage{Body: "hi"}); err != nil {
		t.Fatalf("Deliver qa: %v", err)
	}
	if err := pool.Kill("ops"); err != nil {
		t.Fatalf("Kill ops: %v", err)
	}
	if err := pool.Pause("ghost"); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("Pause ghost err = %v, want ErrUnknownAgent", err)
	}
}
