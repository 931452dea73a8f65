package domain

import (
	"time"
)

type AgentStatus string

const (
	AgentStatusActive AgentStatus = "active"
	AgentStatusRecent AgentStatus = "recent"
	AgentStatusIdle   AgentStatus = "idle"
)

// Priority orders statuses for reconciliation. Unknown statuses rank below
// idle so a malformed item never displaces a known one.
func (s AgentStatus) Priority() int {
	switch s {
	case AgentStatusActive:
		return 3
	case AgentStatusRecent:
		return 2
	case AgentStatusIdle:
		return 1
	default:
		return 0
	}
}

func (s AgentStatus) Valid() bool {
	return s == AgentStatusActive || s == AgentStatusRecent || s == AgentStatusIdle
}

type VisualState string

const (
	VisualStateActive  VisualState = "active"
	VisualStateRecent  VisualState = "recent"
	VisualStateIdle    VisualState = "idle"
	VisualStateMeeting VisualState = "meeting"
	VisualStateWalking VisualState = "walking"
)

type Behavior string

const (
	BehaviorDesk    Behavior = "desk"
	BehaviorCoffee  Behavior = "coffee"
	BehaviorChat    Behavior = "chat"
	BehaviorLounge  Behavior = "lounge"
	BehaviorStretch Behavior = "stretch"
	BehaviorWander  Behavior = "wander"
)

type PushEventType string

const (
	PushEventActivity  PushEventType = "activity"
	PushEventSpawn     PushEventType = "spawn"
	PushEventConnected PushEventType = "connected"
	PushEventPing      PushEventType = "ping"
	PushEventError     PushEventType = "error"
)

// Position is a cell coordinate on the office floor.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// ManhattanDistance is the walk distance between two floor cells.
func (p Position) ManhattanDistance(other Position) int {
	dx := p.X - other.X
	if dx < 0 {
		dx = -dx
	}
	dy := p.Y - other.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// ActivityItem is one observation of one agent, produced by the activity
// source. An empty Task or zero MessageCount means the field was not
// reported, not that it reset; the reconciler carries the previous value
// forward.
type ActivityItem struct {
	AgentID      string      `json:"agent"`
	Status       AgentStatus `json:"status"`
	Timestamp    time.Time   `json:"timestamp"`
	Task         string      `json:"task,omitempty"`
	MessageCount int         `json:"message_count,omitempty"`
}

// AgentConfig is the static description of one agent. Loaded once from the
// floorplan, read-only afterwards.
type AgentConfig struct {
	ID          string   `json:"id" yaml:"id"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Role        string   `json:"role" yaml:"role"`
	Zone        string   `json:"zone" yaml:"zone"`
	IdleRoutine string   `json:"idle_routine" yaml:"idle_routine"`
	Desk        Position `json:"desk" yaml:"desk"`
}

// AgentRuntimeState is the fully derived per-agent output of one composer
// tick. It is overwritten wholesale each tick, never partially mutated.
type AgentRuntimeState struct {
	Position    Position    `json:"position"`
	VisualState VisualState `json:"visual_state"`
	Behavior    Behavior    `json:"behavior"`
	ChatBubble  string      `json:"chat_bubble,omitempty"`
	ChatTarget  string      `json:"chat_target,omitempty"`
}

type MeetingState struct {
	Active         bool      `json:"active"`
	OrchestratorID string    `json:"orchestrator_id"`
	ParticipantIDs []string  `json:"participant_ids"`
	Topic          string    `json:"topic"`
	StartTime      time.Time `json:"start_time"`
}

type SpawnAnimationRecord struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id"`
	ChildID   string    `json:"child_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PushEvent is one frame of the live push feed. The payload fields used
// depend on Type: activity events carry the ActivityItem fields, spawn
// events carry Agent and ParentAgent.
type PushEvent struct {
	Type         PushEventType `json:"type"`
	Agent        string        `json:"agent,omitempty"`
	ParentAgent  string        `json:"parent_agent,omitempty"`
	Status       AgentStatus   `json:"status,omitempty"`
	Timestamp    time.Time     `json:"timestamp,omitempty"`
	Task         string        `json:"task,omitempty"`
	MessageCount int           `json:"message_count,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ActivityItem converts an activity push event into the snapshot item shape.
func (e PushEvent) ActivityItem() ActivityItem {
	return ActivityItem{
		AgentID:      e.Agent,
		Status:       e.Status,
		Timestamp:    e.Timestamp,
		Task:         e.Task,
		MessageCount: e.MessageCount,
	}
}

// TranscriptMessage is one entry in an agent's session transcript, recorded
// by the activity source.
type TranscriptMessage struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
