package behavior

import (
	"strconv"

	"agent_office/internal/domain"
	"agent_office/internal/floorplan"
	"agent_office/internal/seed"
)

var chatBubbles = []string{"💬", "☕", "📈", "🐛", "💡", "🔥", "🎯", "🤔"}

// Resolver maps a chosen behavior to a concrete floor coordinate.
type Resolver struct {
	plan floorplan.Plan
}

func NewResolver(plan floorplan.Plan) *Resolver {
	return &Resolver{plan: plan}
}

// Target returns the coordinate an idle agent should head to for the given
// behavior and cycle. A missing agent config or empty amenity list falls back
// to the office origin; Target never fails.
func (r *Resolver) Target(agentID string, b domain.Behavior, cycle int64) domain.Position {
	cfg, ok := r.plan.Agent(agentID)
	if !ok {
		return r.plan.Origin
	}
	switch b {
	case domain.BehaviorDesk:
		return cfg.Desk
	case domain.BehaviorStretch:
		return jitter(cfg.Desk, agentID, cycle)
	case domain.BehaviorCoffee:
		return r.amenity(r.plan.Coffee, agentID, cycle)
	case domain.BehaviorLounge:
		return r.amenity(r.plan.Lounge, agentID, cycle)
	case domain.BehaviorWander:
		return r.amenity(r.plan.Wander, agentID, cycle)
	case domain.BehaviorChat:
		partner, _, ok := r.Chat(agentID, cycle)
		if !ok {
			return cfg.Desk
		}
		partnerCfg, ok := r.plan.Agent(partner)
		if !ok {
			return cfg.Desk
		}
		return domain.Position{X: partnerCfg.Desk.X + 1, Y: partnerCfg.Desk.Y}
	default:
		return cfg.Desk
	}
}

// Chat picks the conversation partner and bubble emoji for a chat cycle. The
// same (agentID, cycle) always yields the same pair. ok is false when there
// is nobody else to talk to.
func (r *Resolver) Chat(agentID string, cycle int64) (partnerID, bubble string, ok bool) {
	others := make([]string, 0, len(r.plan.Agents))
	for _, a := range r.plan.Agents {
		if a.ID != agentID {
			others = append(others, a.ID)
		}
	}
	if len(others) == 0 {
		return "", "", false
	}
	key := agentID + ":chat:" + strconv.FormatInt(cycle, 10)
	partnerID = others[seed.Roll(key, len(others))]
	bubble = chatBubbles[seed.Roll(agentID+":bubble:"+strconv.FormatInt(cycle, 10), len(chatBubbles))]
	return partnerID, bubble, true
}

func (r *Resolver) amenity(spots []domain.Position, agentID string, cycle int64) domain.Position {
	if len(spots) == 0 {
		return r.plan.Origin
	}
	key := agentID + ":pos:" + strconv.FormatInt(cycle, 10)
	return spots[seed.Roll(key, len(spots))]
}

// jitter nudges a desk coordinate by at most one cell in each axis.
func jitter(p domain.Position, agentID string, cycle int64) domain.Position {
	key := agentID + ":jitter:" + strconv.FormatInt(cycle, 10)
	return domain.Position{
		X: p.X + seed.Range(key+":x", -1, 1),
		Y: p.Y + seed.Range(key+":y", -1, 1),
	}
}
