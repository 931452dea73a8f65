// Package engine composes reconciled activity, meeting membership, and idle
// behavior into the per-agent runtime state the office renders from.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent_office/internal/behavior"
	"agent_office/internal/domain"
	"agent_office/internal/floorplan"
	"agent_office/internal/meeting"
	"agent_office/internal/policy"
	"agent_office/internal/reconcile"
)

// Feed supplies the engine with activity: a pullable full snapshot and a
// stream of push events. feed.Client implements it against officed.
type Feed interface {
	Pull(ctx context.Context) ([]domain.ActivityItem, error)
	Events() <-chan domain.PushEvent
}

type Config struct {
	OrchestratorID    string
	ExcludedRoles     []string
	ExcludedAgents    []string
	PullInterval      time.Duration
	RecomposeInterval time.Duration
	MeetingDuration   time.Duration
	WalkSettleDelay   time.Duration
	SpawnTTL          time.Duration
}

func (c Config) withDefaults() Config {
	if c.PullInterval <= 0 {
		c.PullInterval = 20 * time.Second
	}
	if c.RecomposeInterval <= 0 {
		c.RecomposeInterval = 5 * time.Second
	}
	if c.MeetingDuration <= 0 {
		c.MeetingDuration = meeting.DefaultDuration
	}
	if c.WalkSettleDelay <= 0 {
		c.WalkSettleDelay = 1500 * time.Millisecond
	}
	if c.SpawnTTL <= 0 {
		c.SpawnTTL = 10 * time.Second
	}
	return c
}

// An idle agent only visibly walks when its target moved further than this
// many cells.
const walkThreshold = 1

// Snapshot is one consistent view of the whole office.
type Snapshot struct {
	States  map[string]domain.AgentRuntimeState
	Meeting *domain.MeetingState
	Spawns  []domain.SpawnAnimationRecord
}

// Engine is one visualization instance. All mutable state lives on the
// struct so concurrent instances (and tests) never interfere.
type Engine struct {
	cfg    Config
	plan   floorplan.Plan
	feed   Feed
	logger *log.Logger

	resolver   *behavior.Resolver
	reconciler *reconcile.Reconciler
	detector   *meeting.Detector
	timers     *timerSet

	onUpdate func(Snapshot)

	mu           sync.Mutex
	states       map[string]domain.AgentRuntimeState
	prevBehavior map[string]domain.Behavior
	meetingState *domain.MeetingState
	spawns       map[string]domain.SpawnAnimationRecord
	closed       bool

	wg sync.WaitGroup
}

func New(cfg Config, plan floorplan.Plan, feed Feed, logger *log.Logger) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.Default()
	}
	rules := policy.New(cfg.ExcludedRoles, cfg.ExcludedAgents)
	return &Engine{
		cfg:          cfg,
		plan:         plan,
		feed:         feed,
		logger:       logger,
		resolver:     behavior.NewResolver(plan),
		reconciler:   reconcile.New(),
		detector:     meeting.NewDetector(cfg.OrchestratorID, cfg.MeetingDuration, rules, plan.Agents),
		timers:       newTimerSet(),
		states:       make(map[string]domain.AgentRuntimeState),
		prevBehavior: make(map[string]domain.Behavior),
		spawns:       make(map[string]domain.SpawnAnimationRecord),
	}
}

// SetUpdateHook registers a callback invoked (outside the engine lock) after
// every state change. Set it before Start.
func (e *Engine) SetUpdateHook(fn func(Snapshot)) {
	e.onUpdate = fn
}

func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(3)
	go func() {
		defer e.wg.Done()
		e.pullLoop(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.recomposeLoop(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.eventLoop(ctx)
	}()
}

func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close cancels every outstanding one-shot timer and freezes the state
// containers. It is safe to call more than once; the feed loops stop via
// their context.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.timers.stopAll()
}

// Snapshot returns a copy of the current office state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	states := make(map[string]domain.AgentRuntimeState, len(e.states))
	for id, st := range e.states {
		states[id] = st
	}
	spawns := make([]domain.SpawnAnimationRecord, 0, len(e.spawns))
	for _, rec := range e.spawns {
		spawns = append(spawns, rec)
	}
	var m *domain.MeetingState
	if e.meetingState != nil {
		copied := *e.meetingState
		m = &copied
	}
	return Snapshot{States: states, Meeting: m, Spawns: spawns}
}

func (e *Engine) pullLoop(ctx context.Context) {
	e.pullOnce(ctx)
	ticker := time.NewTicker(e.cfg.PullInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pullOnce(ctx)
		}
	}
}

// pullOnce fetches the full snapshot. A failed pull keeps the last known
// state; the next scheduled pull is the retry.
func (e *Engine) pullOnce(ctx context.Context) {
	items, err := e.feed.Pull(ctx)
	if err != nil {
		e.logger.Printf("activity pull failed: %v", err)
		return
	}
	e.reconciler.ApplySnapshot(items)
	e.composeAndNotify(time.Now().UTC())
}

func (e *Engine) recomposeLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.RecomposeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Idle cycles expire on wall clock, not on event arrival.
			e.composeAndNotify(time.Now().UTC())
		}
	}
}

func (e *Engine) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.feed.Events():
			if !ok {
				return
			}
			e.handleEvent(ctx, ev)
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev domain.PushEvent) {
	switch ev.Type {
	case domain.PushEventActivity:
		e.reconciler.ApplyItem(ev.ActivityItem())
		e.composeAndNotify(time.Now().UTC())
	case domain.PushEventSpawn:
		e.trackSpawn(ev.ParentAgent, ev.Agent, time.Now().UTC())
	case domain.PushEventConnected:
		// Re-pull immediately to correct drift accumulated while
		// disconnected.
		e.pullOnce(ctx)
	case domain.PushEventError:
		// Transport fault: keep the last known state, the feed retries.
		e.logger.Printf("push feed error: %s", ev.Error)
	case domain.PushEventPing:
	default:
		e.logger.Printf("unknown push event type %q ignored", ev.Type)
	}
}

// trackSpawn records a transient parent->child link and schedules its
// removal. Concurrent spawns are independent records even for a repeated
// parent/child pair.
func (e *Engine) trackSpawn(parentID, childID string, now time.Time) {
	if parentID == "" || childID == "" {
		return
	}
	rec := domain.SpawnAnimationRecord{
		ID:        uuid.NewString(),
		ParentID:  parentID,
		ChildID:   childID,
		CreatedAt: now,
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.spawns[rec.ID] = rec
	e.mu.Unlock()

	e.timers.schedule("spawn:"+rec.ID, e.cfg.SpawnTTL, func() {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return
		}
		delete(e.spawns, rec.ID)
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.notify(snap)
	})
	e.notify(e.Snapshot())
}

func (e *Engine) composeAndNotify(now time.Time) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.composeLocked(now)
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

func (e *Engine) notify(snap Snapshot) {
	if e.onUpdate != nil {
		e.onUpdate(snap)
	}
}

// composeLocked runs one composition tick over every configured agent. A
// problem with a single agent skips that agent (its previous state stays)
// rather than aborting the tick.
func (e *Engine) composeLocked(now time.Time) {
	status := e.reconciler.Current()
	m := e.detector.Evaluate(status, now)
	e.meetingState = m

	for _, agent := range e.plan.Agents {
		if agent.ID == "" {
			continue
		}
		next, ok := e.composeAgent(agent, status, m, now)
		if !ok {
			continue
		}
		e.states[agent.ID] = next
		e.prevBehavior[agent.ID] = next.Behavior
		if next.VisualState != domain.VisualStateWalking {
			e.timers.cancel("settle:" + agent.ID)
		}
	}
}

func (e *Engine) composeAgent(
	agent domain.AgentConfig,
	status map[string]domain.ActivityItem,
	m *domain.MeetingState,
	now time.Time,
) (domain.AgentRuntimeState, bool) {
	if m != nil {
		if agent.ID == m.OrchestratorID {
			return domain.AgentRuntimeState{
				Position:    e.plan.Meeting.Presenter,
				VisualState: domain.VisualStateMeeting,
				Behavior:    domain.BehaviorDesk,
			}, true
		}
		if idx := participantIndex(m.ParticipantIDs, agent.ID); idx >= 0 {
			chairs := e.plan.Meeting.Chairs
			if len(chairs) == 0 {
				return domain.AgentRuntimeState{}, false
			}
			return domain.AgentRuntimeState{
				Position:    chairs[idx%len(chairs)],
				VisualState: domain.VisualStateMeeting,
				Behavior:    domain.BehaviorDesk,
			}, true
		}
	}

	item, hasItem := status[agent.ID]
	if hasItem {
		switch item.Status {
		case domain.AgentStatusActive:
			return domain.AgentRuntimeState{
				Position:    agent.Desk,
				VisualState: domain.VisualStateActive,
				Behavior:    domain.BehaviorDesk,
			}, true
		case domain.AgentStatusRecent:
			return domain.AgentRuntimeState{
				Position:    agent.Desk,
				VisualState: domain.VisualStateRecent,
				Behavior:    domain.BehaviorDesk,
			}, true
		case domain.AgentStatusIdle:
		default:
			// Malformed entry: keep the previous state for this tick.
			return domain.AgentRuntimeState{}, false
		}
	}

	return e.composeIdle(agent, now), true
}

func (e *Engine) composeIdle(agent domain.AgentConfig, now time.Time) domain.AgentRuntimeState {
	cycle := behavior.Cycle(agent.ID, now)
	b := behavior.Select(agent.ID, cycle)
	target := e.resolver.Target(agent.ID, b, cycle)

	next := domain.AgentRuntimeState{
		Position:    target,
		VisualState: domain.VisualStateIdle,
		Behavior:    b,
	}
	if b == domain.BehaviorChat {
		if partner, bubble, ok := e.resolver.Chat(agent.ID, cycle); ok {
			next.ChatTarget = partner
			next.ChatBubble = bubble
		}
	}

	prev, hadPrev := e.states[agent.ID]
	prevB := e.prevBehavior[agent.ID]
	switch {
	case hadPrev && prevB != b && target.ManhattanDistance(prev.Position) > walkThreshold:
		next.VisualState = domain.VisualStateWalking
		e.scheduleSettle(agent.ID, b)
	case hadPrev && prev.VisualState == domain.VisualStateWalking && prevB == b:
		// Walk still in flight; the settle timer flips it back to idle.
		next.VisualState = domain.VisualStateWalking
	}
	return next
}

func (e *Engine) scheduleSettle(agentID string, b domain.Behavior) {
	e.timers.schedule("settle:"+agentID, e.cfg.WalkSettleDelay, func() {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return
		}
		st, ok := e.states[agentID]
		if !ok || st.VisualState != domain.VisualStateWalking || st.Behavior != b {
			e.mu.Unlock()
			return
		}
		st.VisualState = domain.VisualStateIdle
		e.states[agentID] = st
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.notify(snap)
	})
}

func participantIndex(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
