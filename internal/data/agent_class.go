package data

import (
	"fmt"
	"os"
	"sort"

	"github.com/holdfast/server/internal/component"
	"github.com/holdfast/server/internal/config"
	"gopkg.in/yaml.v3"
)

// AgentClass holds static tuning for one enemy type loaded from YAML.
// Zero distances and bands fall back to the simulation defaults.
type AgentClass struct {
	ClassID           int32   `yaml:"class_id"`
	Name              string  `yaml:"name"`
	PromotionDistance float64 `yaml:"promotion_distance"`
	DemotionDistance  float64 `yaml:"demotion_distance"`
	MoveSpeed         float64 `yaml:"move_speed"`
	NearBand          float64 `yaml:"near_band"`
	MidBand           float64 `yaml:"mid_band"`
}

type agentClassFile struct {
	Classes []AgentClass `yaml:"classes"`
}

// AgentClassTable holds all agent classes indexed by ClassID.
type AgentClassTable struct {
	classes map[int32]*AgentClass
}

// LoadAgentClassTable loads agent classes from a YAML file, fills unset
// fields from sim and validates each class's hysteresis band.
func LoadAgentClassTable(path string, sim config.SimulationConfig) (*AgentClassTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent_classes: %w", err)
	}
	var f agentClassFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse agent_classes: %w", err)
	}
	return NewAgentClassTable(f.Classes, sim)
}

// NewAgentClassTable builds a table from already-decoded classes.
func NewAgentClassTable(classes []AgentClass, sim config.SimulationConfig) (*AgentClassTable, error) {
	t := &AgentClassTable{classes: make(map[int32]*AgentClass, len(classes))}
	for i := range classes {
		c := classes[i]
		if _, dup := t.classes[c.ClassID]; dup {
			return nil, fmt.Errorf("%w: agent class %d defined twice", config.ErrConfigurationInvalid, c.ClassID)
		}
		if c.PromotionDistance == 0 {
			c.PromotionDistance = sim.PromotionDistance
		}
		if c.DemotionDistance == 0 {
			c.DemotionDistance = sim.DemotionDistance
		}
		if c.NearBand == 0 {
			c.NearBand = sim.NearBand
		}
		if c.MidBand == 0 {
			c.MidBand = sim.MidBand
		}
		if c.PromotionDistance >= c.DemotionDistance {
			return nil, fmt.Errorf("%w: agent class %d (%s): promotion_distance %g must be below demotion_distance %g",
				config.ErrConfigurationInvalid, c.ClassID, c.Name, c.PromotionDistance, c.DemotionDistance)
		}
		if c.MidBand < c.NearBand {
			return nil, fmt.Errorf("%w: agent class %d (%s): mid_band %g below near_band %g",
				config.ErrConfigurationInvalid, c.ClassID, c.Name, c.MidBand, c.NearBand)
		}
		t.classes[c.ClassID] = &c
	}
	return t, nil
}

// Get returns a class by ID, or nil if not found.
func (t *AgentClassTable) Get(classID int32) *AgentClass {
	return t.classes[classID]
}

// Count returns the number of loaded classes.
func (t *AgentClassTable) Count() int {
	return len(t.classes)
}

// IDs returns every class ID in ascending order.
func (t *AgentClassTable) IDs() []int32 {
	ids := make([]int32, 0, len(t.classes))
	for id := range t.classes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AgentConfig is the per-entity copy of this class's tuning.
func (c *AgentClass) AgentConfig() component.AgentConfig {
	return component.AgentConfig{
		ClassID:           c.ClassID,
		PromotionDistance: c.PromotionDistance,
		DemotionDistance:  c.DemotionDistance,
		TickTier:          component.TierFar,
		MoveSpeed:         c.MoveSpeed,
		NearBand:          c.NearBand,
		MidBand:           c.MidBand,
	}
}
