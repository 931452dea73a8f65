// Package reconcile merges the periodic full snapshot and the incremental
// push feed into one authoritative per-agent status map.
//
// The two feeds are not causally ordered relative to each other: the snapshot
// is a pull every 15-30 seconds, the push channel is a live delta stream.
// Naive last-write-wins across both would flicker an agent from active back
// to idle whenever a stale snapshot lands after a fresher push update. The
// merge is therefore status-priority biased: active > recent > idle, and the
// item with the lower priority wins only when it is strictly fresher. Both
// feeds go through the same rule, so applying them in either order produces
// the same final state.
package reconcile

import (
	"sync"

	"agent_office/internal/domain"
)

type Reconciler struct {
	mu    sync.Mutex
	items map[string]domain.ActivityItem
}

func New() *Reconciler {
	return &Reconciler{
		items: make(map[string]domain.ActivityItem),
	}
}

// ApplyItem folds one incremental push item into the current map.
func (r *Reconciler) ApplyItem(item domain.ActivityItem) {
	if item.AgentID == "" || !item.Status.Valid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.items[item.AgentID]
	if !ok {
		r.items[item.AgentID] = item
		return
	}
	r.items[item.AgentID] = merge(prev, item)
}

// ApplySnapshot replaces the map with a full snapshot. Duplicate items for
// one agent within the snapshot, and collisions with existing entries, all
// resolve through the same merge rule as the push path. Agents absent from
// the snapshot are dropped, so the pull feed stays authoritative for
// membership.
func (r *Reconciler) ApplySnapshot(items []domain.ActivityItem) {
	next := make(map[string]domain.ActivityItem, len(items))
	for _, item := range items {
		if item.AgentID == "" || !item.Status.Valid() {
			continue
		}
		if prev, ok := next[item.AgentID]; ok {
			next[item.AgentID] = merge(prev, item)
			continue
		}
		next[item.AgentID] = item
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, incoming := range next {
		if prev, ok := r.items[id]; ok {
			next[id] = merge(prev, incoming)
		}
	}
	r.items = next
}

// Get returns the reconciled item for one agent.
func (r *Reconciler) Get(agentID string) (domain.ActivityItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[agentID]
	return item, ok
}

// Current returns a copy of the authoritative map.
func (r *Reconciler) Current() map[string]domain.ActivityItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.ActivityItem, len(r.items))
	for id, item := range r.items {
		out[id] = item
	}
	return out
}

// merge resolves two observations of one agent. The outcome depends only on
// the pair, not on which one arrived first, except on equal priority where
// the most recently processed item wins for the non-priority fields. Either
// way a known task or message count is never regressed to empty by a partial
// update.
func merge(prev, incoming domain.ActivityItem) domain.ActivityItem {
	switch {
	case incoming.Status.Priority() > prev.Status.Priority():
		if incoming.Timestamp.Before(prev.Timestamp) {
			// Stale queued delta outranked by a fresher entry.
			return prev
		}
	case incoming.Status.Priority() < prev.Status.Priority():
		if !incoming.Timestamp.After(prev.Timestamp) {
			return prev
		}
		// Strictly fresher downgrade: the agent genuinely wound down.
	}
	return carryForward(prev, incoming)
}

func carryForward(prev, incoming domain.ActivityItem) domain.ActivityItem {
	if incoming.Task == "" {
		incoming.Task = prev.Task
	}
	if incoming.MessageCount == 0 {
		incoming.MessageCount = prev.MessageCount
	}
	return incoming
}
