package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/warhost/simcore/internal/combat"
	"github.com/warhost/simcore/internal/npc"
	"github.com/warhost/simcore/pkg/core"
	"gopkg.in/yaml.v3"
)

// Scenario is a file of battles to resolve offline.
type Scenario struct {
	Battles []Battle `yaml:"battles"`
}

// Battle pits an attacker against either an explicit defender or a
// generated NPC garrison.
type Battle struct {
	Name          string                `yaml:"name"`
	Attacker      combat.ArmyForCombat  `yaml:"attacker"`
	Defender      *combat.ArmyForCombat `yaml:"defender"`
	NPC           *NPCDefender          `yaml:"npc"`
	DefenderStock *core.Resources       `yaml:"defenderStock"`
}

// NPCDefender describes a faction tile.
type NPCDefender struct {
	Strength   int  `yaml:"strength"`
	Aggression int  `yaml:"aggression"`
	Hideout    bool `yaml:"hideout"`
}

// Outcome is the JSON record printed for each battle.
type Outcome struct {
	Name     string               `json:"name"`
	Defender combat.ArmyForCombat `json:"defender"`
	Result   combat.Result        `json:"result"`
	PvPLoot  *core.Loot           `json:"pvpLoot,omitempty"`
}

func loadScenario(r io.Reader) (Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return s, errors.New("empty scenario")
		}
		return s, fmt.Errorf("decoding scenario: %w", err)
	}
	for i, b := range s.Battles {
		if err := b.validate(); err != nil {
			return s, fmt.Errorf("battle %d (%s): %w", i, b.Name, err)
		}
	}
	return s, nil
}

func (b Battle) validate() error {
	if (b.Defender == nil) == (b.NPC == nil) {
		return errors.New("exactly one of defender or npc is required")
	}
	groups := b.Attacker.Units
	if b.Defender != nil {
		groups = append(append([]core.UnitGroup(nil), groups...), b.Defender.Units...)
	}
	for _, g := range groups {
		if !g.UnitType.Valid() {
			return fmt.Errorf("unknown unit type %q", g.UnitType)
		}
		if g.Quantity < 0 {
			return fmt.Errorf("negative quantity for %s", g.UnitType)
		}
	}
	return nil
}

func simulate(s Scenario) []Outcome {
	out := make([]Outcome, 0, len(s.Battles))
	for _, b := range s.Battles {
		var defender combat.ArmyForCombat
		if b.NPC != nil {
			defender = npc.GenerateDefenders(npc.Faction{
				Strength:        b.NPC.Strength,
				AggressionLevel: b.NPC.Aggression,
			}, b.NPC.Hideout)
		} else {
			defender = *b.Defender
			defender.IsDefending = true
		}

		o := Outcome{
			Name:     b.Name,
			Defender: defender,
			Result:   combat.Resolve(b.Attacker, defender),
		}
		if b.DefenderStock != nil && o.Result.AttackerWins {
			loot := combat.PvPLoot(o.Result.AttackerSurvivors, *b.DefenderStock)
			o.PvPLoot = &loot
		}
		out = append(out, o)
	}
	return out
}
