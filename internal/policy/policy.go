// Package policy decides which agents are eligible to attend meetings.
package policy

import (
	"agent_office/internal/domain"
)

type Rules struct {
	excludedRoles  map[string]struct{}
	excludedAgents map[string]struct{}
}

func New(excludedRoles, excludedAgents []string) *Rules {
	r := &Rules{
		excludedRoles:  make(map[string]struct{}, len(excludedRoles)),
		excludedAgents: make(map[string]struct{}, len(excludedAgents)),
	}
	for _, role := range excludedRoles {
		r.excludedRoles[role] = struct{}{}
	}
	for _, id := range excludedAgents {
		r.excludedAgents[id] = struct{}{}
	}
	return r
}

// CanAttend reports whether the agent may appear in a meeting participant
// list.
func (r *Rules) CanAttend(agent domain.AgentConfig) bool {
	if _, ok := r.excludedAgents[agent.ID]; ok {
		return false
	}
	if _, ok := r.excludedRoles[agent.Role]; ok {
		return false
	}
	return true
}
