// Package meeting turns the orchestrator agent's activity into a time-boxed
// standup signal for the office.
package meeting

import (
	"sort"
	"time"

	"agent_office/internal/domain"
)

// DefaultDuration bounds one standup. The meeting is a short visual signal
// that the orchestrator is coordinating, not a mirror of its whole active
// span, so the office returns to normal work quickly.
const DefaultDuration = 30 * time.Second

const defaultTopic = "standup"

// Policy filters which agents may appear as participants.
type Policy interface {
	CanAttend(agent domain.AgentConfig) bool
}

type phase int

const (
	phaseNone phase = iota
	phaseConvening
	// phaseExpired keeps the detector from restarting a standup within the
	// same orchestrator activation once the duration has elapsed.
	phaseExpired
)

// Detector is one instance of the meeting state machine. Instantiate one per
// visualization; all state lives on the struct.
type Detector struct {
	orchestratorID string
	duration       time.Duration
	policy         Policy
	agents         []domain.AgentConfig

	phase     phase
	startTime time.Time
}

func NewDetector(orchestratorID string, duration time.Duration, policy Policy, agents []domain.AgentConfig) *Detector {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Detector{
		orchestratorID: orchestratorID,
		duration:       duration,
		policy:         policy,
		agents:         agents,
	}
}

// Evaluate advances the state machine against the reconciled status map and
// returns the current meeting, or nil when no meeting should render. A
// missing orchestrator configuration degrades to no meeting; Evaluate never
// fails.
func (d *Detector) Evaluate(status map[string]domain.ActivityItem, now time.Time) *domain.MeetingState {
	if d.orchestratorID == "" {
		return nil
	}
	orch, ok := status[d.orchestratorID]
	if !ok || orch.Status != domain.AgentStatusActive {
		// Orchestrator left active: reset, re-arming detection.
		d.phase = phaseNone
		return nil
	}

	switch d.phase {
	case phaseNone:
		d.phase = phaseConvening
		d.startTime = now
	case phaseConvening:
		if now.Sub(d.startTime) > d.duration {
			d.phase = phaseExpired
			return nil
		}
	case phaseExpired:
		return nil
	}

	participants := d.participants(status)
	if len(participants) == 0 {
		// No empty meetings: the room stays dark until somebody else is
		// actually working. The clock keeps running regardless.
		return nil
	}

	topic := orch.Task
	if topic == "" {
		topic = defaultTopic
	}
	return &domain.MeetingState{
		Active:         true,
		OrchestratorID: d.orchestratorID,
		ParticipantIDs: participants,
		Topic:          topic,
		StartTime:      d.startTime,
	}
}

func (d *Detector) participants(status map[string]domain.ActivityItem) []string {
	out := make([]string, 0, len(d.agents))
	for _, agent := range d.agents {
		if agent.ID == d.orchestratorID {
			continue
		}
		if d.policy != nil && !d.policy.CanAttend(agent) {
			continue
		}
		item, ok := status[agent.ID]
		if !ok || item.Status != domain.AgentStatusActive {
			continue
		}
		out = append(out, agent.ID)
	}
	sort.Strings(out)
	return out
}
