package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"agent_office/internal/behavior"
	"agent_office/internal/domain"
	"agent_office/internal/floorplan"
)

type fakeFeed struct {
	mu     sync.Mutex
	items  []domain.ActivityItem
	err    error
	pulls  int
	events chan domain.PushEvent
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{events: make(chan domain.PushEvent, 8)}
}

func (f *fakeFeed) Pull(ctx context.Context) ([]domain.ActivityItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.ActivityItem(nil), f.items...), nil
}

func (f *fakeFeed) Events() <-chan domain.PushEvent { return f.events }

func (f *fakeFeed) set(items []domain.ActivityItem, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items
	f.err = err
}

func (f *fakeFeed) pullCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls
}

func newTestEngine(t *testing.T, cfg Config, feed Feed) *Engine {
	t.Helper()
	e := New(cfg, floorplan.Default(), feed, log.New(io.Discard, "", 0))
	t.Cleanup(e.Close)
	return e
}

func activeItem(id, task string, now time.Time) domain.ActivityItem {
	return domain.ActivityItem{AgentID: id, Status: domain.AgentStatusActive, Timestamp: now, Task: task}
}

func TestActiveAndRecentAgentsSitAtTheirDesks(t *testing.T) {
	feed := newFakeFeed()
	e := newTestEngine(t, Config{}, feed)
	now := time.Now().UTC()
	feed.set([]domain.ActivityItem{
		activeItem("dev", "refactor", now),
		{AgentID: "qa", Status: domain.AgentStatusRecent, Timestamp: now},
	}, nil)

	e.pullOnce(context.Background())

	snap := e.Snapshot()
	plan := floorplan.Default()
	devCfg, _ := plan.Agent("dev")
	dev := snap.States["dev"]
	if dev.VisualState != domain.VisualStateActive || dev.Position != devCfg.Desk {
		t.Fatalf("dev state = %+v, want active at %+v", dev, devCfg.Desk)
	}
	qaCfg, _ := plan.Agent("qa")
	qa := snap.States["qa"]
	if qa.VisualState != domain.VisualStateRecent || qa.Position != qaCfg.Desk {
		t.Fatalf("qa state = %+v, want recent at %+v", qa, qaCfg.Desk)
	}
}

func TestIdleCompositionIsIdempotent(t *testing.T) {
	e := newTestEngine(t, Config{}, newFakeFeed())
	now := time.Now().UTC()

	e.composeAndNotify(now)
	first := e.Snapshot()
	e.composeAndNotify(now)
	second := e.Snapshot()

	if len(first.States) != len(floorplan.Default().Agents) {
		t.Fatalf("composed %d agents, want %d", len(first.States), len(floorplan.Default().Agents))
	}
	for id, st := range first.States {
		if second.States[id] != st {
			t.Fatalf("agent %s changed between identical ticks: %+v vs %+v", id, st, second.States[id])
		}
	}
}

func TestMeetingPlacesOrchestratorAndParticipants(t *testing.T) {
	feed := newFakeFeed()
	e := newTestEngine(t, Config{OrchestratorID: "spec"}, feed)
	now := time.Now().UTC()
	feed.set([]domain.ActivityItem{
		activeItem("spec", "planning sync", now),
		activeItem("dev", "refactor", now),
	}, nil)

	e.pullOnce(context.Background())

	snap := e.Snapshot()
	if snap.Meeting == nil {
		t.Fatal("expected an active meeting")
	}
	if snap.Meeting.Topic != "planning sync" {
		t.Fatalf("topic = %q, want orchestrator task", snap.Meeting.Topic)
	}
	plan := floorplan.Default()
	spec := snap.States["spec"]
	if spec.VisualState != domain.VisualStateMeeting || spec.Position != plan.Meeting.Presenter {
		t.Fatalf("orchestrator state = %+v, want meeting at presenter %+v", spec, plan.Meeting.Presenter)
	}
	dev := snap.States["dev"]
	if dev.VisualState != domain.VisualStateMeeting || dev.Position != plan.Meeting.Chairs[0] {
		t.Fatalf("participant state = %+v, want meeting at chair %+v", dev, plan.Meeting.Chairs[0])
	}
	if bug := snap.States["bug"]; bug.VisualState == domain.VisualStateMeeting {
		t.Fatalf("non-participant bug joined the meeting: %+v", bug)
	}
}

func TestFailedPullKeepsLastKnownState(t *testing.T) {
	feed := newFakeFeed()
	e := newTestEngine(t, Config{}, feed)
	now := time.Now().UTC()
	feed.set([]domain.ActivityItem{activeItem("ops", "deploy", now)}, nil)
	e.pullOnce(context.Background())

	feed.set(nil, errors.New("connection refused"))
	e.pullOnce(context.Background())

	if st := e.Snapshot().States["ops"]; st.VisualState != domain.VisualStateActive {
		t.Fatalf("ops state after failed pull = %+v, want active retained", st)
	}
}

func TestActivityPushEventUpdatesStateImmediately(t *testing.T) {
	feed := newFakeFeed()
	e := newTestEngine(t, Config{}, feed)
	now := time.Now().UTC()

	e.handleEvent(context.Background(), domain.PushEvent{
		Type:      domain.PushEventActivity,
		Agent:     "qa",
		Status:    domain.AgentStatusActive,
		Timestamp: now,
		Task:      "regression run",
	})

	if st := e.Snapshot().States["qa"]; st.VisualState != domain.VisualStateActive {
		t.Fatalf("qa state = %+v, want active", st)
	}
}

func TestConnectedEventTriggersImmediateRepull(t *testing.T) {
	feed := newFakeFeed()
	e := newTestEngine(t, Config{}, feed)
	now := time.Now().UTC()
	feed.set([]domain.ActivityItem{activeItem("docs", "changelog", now)}, nil)

	e.handleEvent(context.Background(), domain.PushEvent{Type: domain.PushEventConnected})

	if got := feed.pullCount(); got != 1 {
		t.Fatalf("pull count = %d, want 1", got)
	}
	if st := e.Snapshot().States["docs"]; st.VisualState != domain.VisualStateActive {
		t.Fatalf("docs state = %+v, want active after reconnect pull", st)
	}
}

// findBehaviorShift scans forward for two adjacent idle cycles where the
// agent's behavior changes and the new target is far enough to walk.
func findBehaviorShift(t *testing.T, plan floorplan.Plan, id string) (int64, int64) {
	t.Helper()
	r := behavior.NewResolver(plan)
	for c := int64(1); c < 10000; c++ {
		b1 := behavior.Select(id, c)
		b2 := behavior.Select(id, c+1)
		if b1 == b2 {
			continue
		}
		p1 := r.Target(id, b1, c)
		p2 := r.Target(id, b2, c+1)
		if p2.ManhattanDistance(p1) > walkThreshold {
			return c, c + 1
		}
	}
	t.Fatalf("no behavior shift found for %s in 10000 cycles", id)
	return 0, 0
}

func cycleStart(id string, cycle int64) time.Time {
	return time.Unix(cycle*behavior.CycleSeconds(id), 0).UTC()
}

func TestBehaviorShiftWalksThenSettles(t *testing.T) {
	e := newTestEngine(t, Config{WalkSettleDelay: 30 * time.Millisecond}, newFakeFeed())
	c1, c2 := findBehaviorShift(t, floorplan.Default(), "bug")

	e.composeAndNotify(cycleStart("bug", c1))
	if st := e.Snapshot().States["bug"]; st.VisualState != domain.VisualStateIdle {
		t.Fatalf("first tick state = %+v, want idle", st)
	}

	e.composeAndNotify(cycleStart("bug", c2))
	if st := e.Snapshot().States["bug"]; st.VisualState != domain.VisualStateWalking {
		t.Fatalf("after shift state = %+v, want walking", st)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := e.Snapshot().States["bug"]; st.VisualState == domain.VisualStateIdle {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("bug never settled: %+v", e.Snapshot().States["bug"])
}

func TestGoingActiveMidWalkCancelsSettleTimer(t *testing.T) {
	// A single-agent plan keeps other agents' walk timers out of the count.
	plan := floorplan.Default()
	for _, a := range plan.Agents {
		if a.ID == "bug" {
			plan.Agents = []domain.AgentConfig{a}
			break
		}
	}
	feed := newFakeFeed()
	e := New(Config{WalkSettleDelay: time.Minute}, plan, feed, log.New(io.Discard, "", 0))
	t.Cleanup(e.Close)
	c1, c2 := findBehaviorShift(t, plan, "bug")

	e.composeAndNotify(cycleStart("bug", c1))
	e.composeAndNotify(cycleStart("bug", c2))
	if e.timers.pending() == 0 {
		t.Fatal("expected a pending settle timer")
	}

	feed.set([]domain.ActivityItem{activeItem("bug", "triage", time.Now().UTC())}, nil)
	e.pullOnce(context.Background())

	if got := e.timers.pending(); got != 0 {
		t.Fatalf("pending timers = %d, want 0 after agent went active", got)
	}
	if st := e.Snapshot().States["bug"]; st.VisualState != domain.VisualStateActive {
		t.Fatalf("bug state = %+v, want active", st)
	}
}

func TestSpawnRecordExpiresAfterTTL(t *testing.T) {
	e := newTestEngine(t, Config{SpawnTTL: 30 * time.Millisecond}, newFakeFeed())

	e.handleEvent(context.Background(), domain.PushEvent{
		Type:        domain.PushEventSpawn,
		Agent:       "dev-child",
		ParentAgent: "dev",
	})

	snap := e.Snapshot()
	if len(snap.Spawns) != 1 {
		t.Fatalf("spawn records = %d, want 1", len(snap.Spawns))
	}
	rec := snap.Spawns[0]
	if rec.ParentID != "dev" || rec.ChildID != "dev-child" || rec.ID == "" {
		t.Fatalf("unexpected spawn record %+v", rec)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(e.Snapshot().Spawns) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("spawn record never expired")
}

func TestConcurrentSpawnsAreIndependentRecords(t *testing.T) {
	e := newTestEngine(t, Config{SpawnTTL: time.Minute}, newFakeFeed())
	ev := domain.PushEvent{Type: domain.PushEventSpawn, Agent: "dev-child", ParentAgent: "dev"}

	e.handleEvent(context.Background(), ev)
	e.handleEvent(context.Background(), ev)

	snap := e.Snapshot()
	if len(snap.Spawns) != 2 {
		t.Fatalf("spawn records = %d, want 2", len(snap.Spawns))
	}
	if snap.Spawns[0].ID == snap.Spawns[1].ID {
		t.Fatal("spawn records share an id")
	}
}

func TestSpawnEventWithMissingAgentsIsIgnored(t *testing.T) {
	e := newTestEngine(t, Config{}, newFakeFeed())

	e.handleEvent(context.Background(), domain.PushEvent{Type: domain.PushEventSpawn, ParentAgent: "dev"})
	e.handleEvent(context.Background(), domain.PushEvent{Type: domain.PushEventSpawn, Agent: "dev-child"})

	if got := len(e.Snapshot().Spawns); got != 0 {
		t.Fatalf("spawn records = %d, want 0", got)
	}
}

func TestCloseCancelsOutstandingTimers(t *testing.T) {
	e := newTestEngine(t, Config{SpawnTTL: time.Minute, WalkSettleDelay: time.Minute}, newFakeFeed())
	e.handleEvent(context.Background(), domain.PushEvent{
		Type:        domain.PushEventSpawn,
		Agent:       "dev-child",
		ParentAgent: "dev",
	})
	if e.timers.pending() == 0 {
		t.Fatal("expected a pending spawn timer")
	}

	e.Close()

	if got := e.timers.pending(); got != 0 {
		t.Fatalf("pending timers after close = %d, want 0", got)
	}
	e.handleEvent(context.Background(), domain.PushEvent{
		Type:        domain.PushEventSpawn,
		Agent:       "qa-child",
		ParentAgent: "qa",
	})
	if got := e.timers.pending(); got != 0 {
		t.Fatalf("spawn accepted after close, %d timers pending", got)
	}
}

func TestUpdateHookFiresOnStateChange(t *testing.T) {
	e := newTestEngine(t, Config{}, newFakeFeed())
	var mu sync.Mutex
	var calls int
	e.SetUpdateHook(func(snap Snapshot) {
		mu.Lock()
		calls++
		mu.Unlock()
		if len(snap.States) == 0 {
			t.Error("hook received empty snapshot")
		}
	})

	e.composeAndNotify(time.Now().UTC())

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("hook calls = %d, want 1", calls)
	}
}

func TestErrorEventRetainsState(t *testing.T) {
	feed := newFakeFeed()
	e := newTestEngine(t, Config{}, feed)
	now := time.Now().UTC()
	feed.set([]domain.ActivityItem{activeItem("dev", "refactor", now)}, nil)
	e.pullOnce(context.Background())

	e.handleEvent(context.Background(), domain.PushEvent{
		Type:  domain.PushEventError,
		Error: "connection reset",
	})

	if st := e.Snapshot().States["dev"]; st.VisualState != domain.VisualStateActive {
		t.Fatalf("dev state after error event = %+v, want active retained", st)
	}
}

func TestActiveOrchestratorAloneMakesNoMeeting(t *testing.T) {
	feed := newFakeFeed()
	e := newTestEngine(t, Config{OrchestratorID: "spec"}, feed)
	now := time.Now().UTC()
	feed.set([]domain.ActivityItem{activeItem("spec", "planning sync", now)}, nil)

	e.pullOnce(context.Background())

	snap := e.Snapshot()
	if snap.Meeting != nil {
		t.Fatalf("meeting = %+v, want none without participants", snap.Meeting)
	}
	plan := floorplan.Default()
	specCfg, _ := plan.Agent("spec")
	if st := snap.States["spec"]; st.VisualState != domain.VisualStateActive || st.Position != specCfg.Desk {
		t.Fatalf("orchestrator state = %+v, want active at own desk", st)
	}

	// A participant arriving inside the window convenes the meeting.
	feed.set([]domain.ActivityItem{
		activeItem("spec", "planning sync", now),
		activeItem("bug", "triage", now),
	}, nil)
	e.pullOnce(context.Background())
	if e.Snapshot().Meeting == nil {
		t.Fatal("meeting never convened after participant arrived")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	feed := newFakeFeed()
	e := newTestEngine(t, Config{
		PullInterval:      10 * time.Millisecond,
		RecomposeInterval: 10 * time.Millisecond,
	}, feed)
	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine loops did not stop after cancel")
	}
	if feed.pullCount() == 0 {
		t.Fatal("pull loop never pulled")
	}
}
