// Package floorplan holds the static office layout: desks, shared amenity
// spots, and the meeting room. The layout is loaded once and read-only.
package floorplan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"agent_office/internal/domain"
)

type Plan struct {
	Origin  domain.Position      `yaml:"origin"`
	Agents  []domain.AgentConfig `yaml:"agents"`
	Coffee  []domain.Position    `yaml:"coffee"`
	Lounge  []domain.Position    `yaml:"lounge"`
	Wander  []domain.Position    `yaml:"wander"`
	Meeting MeetingRoom          `yaml:"meeting_room"`
	Width   int                  `yaml:"width"`
	Height  int                  `yaml:"height"`
}

type MeetingRoom struct {
	Presenter domain.Position   `yaml:"presenter"`
	Chairs    []domain.Position `yaml:"chairs"`
}

func Load(path string) (Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read floorplan %s: %w", path, err)
	}
	var p Plan
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Plan{}, fmt.Errorf("decode floorplan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// LoadOrDefault loads the floorplan from path, falling back to the built-in
// office when path is empty.
func LoadOrDefault(path string) (Plan, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

func (p Plan) Validate() error {
	if len(p.Agents) == 0 {
		return fmt.Errorf("floorplan has no agents")
	}
	seen := make(map[string]bool, len(p.Agents))
	for _, a := range p.Agents {
		if a.ID == "" {
			return fmt.Errorf("floorplan agent with empty id")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %s", a.ID)
		}
		seen[a.ID] = true
	}
	if len(p.Meeting.Chairs) == 0 {
		return fmt.Errorf("meeting room has no chairs")
	}
	return nil
}

// Agent looks up the static config for one agent id.
func (p Plan) Agent(id string) (domain.AgentConfig, bool) {
	for _, a := range p.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return domain.AgentConfig{}, false
}

// Default is the built-in office used when no floorplan file is given.
func Default() Plan {
	return Plan{
		Origin: domain.Position{X: 2, Y: 2},
		Width:  56,
		Height: 20,
		Agents: []domain.AgentConfig{
			{ID: "spec", DisplayName: "Spec", Role: "planning", Zone: "north", IdleRoutine: "social", Desk: domain.Position{X: 8, Y: 4}},
			{ID: "dev", DisplayName: "Dev", Role: "coding", Zone: "north", IdleRoutine: "focused", Desk: domain.Position{X: 14, Y: 4}},
			{ID: "bug", DisplayName: "Bug", Role: "triage", Zone: "north", IdleRoutine: "restless", Desk: domain.Position{X: 20, Y: 4}},
			{ID: "docs", DisplayName: "Docs", Role: "writing", Zone: "south", IdleRoutine: "social", Desk: domain.Position{X: 8, Y: 10}},
			{ID: "ops", DisplayName: "Ops", Role: "infra", Zone: "south", IdleRoutine: "focused", Desk: domain.Position{X: 14, Y: 10}},
			{ID: "qa", DisplayName: "QA", Role: "testing", Zone: "south", IdleRoutine: "restless", Desk: domain.Position{X: 20, Y: 10}},
		},
		Coffee: []domain.Position{{X: 30, Y: 3}, {X: 31, Y: 3}},
		Lounge: []domain.Position{{X: 30, Y: 12}, {X: 32, Y: 12}, {X: 34, Y: 12}},
		Wander: []domain.Position{{X: 26, Y: 7}, {X: 36, Y: 7}, {X: 26, Y: 15}, {X: 36, Y: 15}},
		Meeting: MeetingRoom{
			Presenter: domain.Position{X: 46, Y: 5},
			Chairs: []domain.Position{
				{X: 44, Y: 7}, {X: 46, Y: 7}, {X: 48, Y: 7},
				{X: 44, Y: 9}, {X: 46, Y: 9}, {X: 48, Y: 9},
			},
		},
	}
}
