// Package npc derives defending armies and scouting estimates for NPC
// factions from their strength.
package npc

import (
	"math"
	"math/rand/v2"

	"github.com/warhost/simcore/internal/balance"
	"github.com/warhost/simcore/internal/combat"
	"github.com/warhost/simcore/pkg/core"
)

// Faction is the part of an NPC faction the generator reads.
type Faction struct {
	Strength        int
	AggressionLevel int
}

func hideoutMultiplier(isHideout bool) float64 {
	if isHideout {
		return balance.NPCHideoutMultiplier
	}
	return 1.0
}

// GenerateDefenders builds the garrison an NPC faction fields on its tile.
// The result depends only on its inputs.
func GenerateDefenders(f Faction, isHideout bool) combat.ArmyForCombat {
	strength := max(f.Strength, 0)
	mult := hideoutMultiplier(isHideout)

	ratios := balance.NPCBaseRatios
	if strength >= balance.NPCHeavyThreshold {
		ratios = append(append([]balance.NPCRatio(nil), ratios...), balance.NPCHeavyRatio)
	}

	var units []core.UnitGroup
	for _, r := range ratios {
		q := int(math.Round(float64(strength) * r.PerStrength * mult))
		if q > 0 {
			units = append(units, core.UnitGroup{UnitType: r.UnitType, Quantity: q})
		}
	}

	army := combat.ArmyForCombat{
		Units:       units,
		Provisions:  float64(strength) * balance.NPCProvisionsPerStrength * mult,
		IsDefending: true,
	}
	if isHideout && strength > 0 {
		army.DefenseStructures = []core.DefenseStructure{
			{Type: core.DefenseWalls, Level: min(strength, balance.NPCHideoutMaxWallLevel)},
		}
	}
	return army
}

// GenerateScoutEstimate reports a faction's defenders with every unit count
// and resource value independently fuzzed.
func GenerateScoutEstimate(f Faction, isHideout bool) core.ScoutEstimate {
	army := GenerateDefenders(f, isHideout)
	est := EstimateGarrison(army.Units, core.Resources{Provisions: army.Provisions}, army.DefenseStructures)
	est.IsHideout = isHideout
	return est
}

// EstimateGarrison fuzzes an observed garrison. Defense levels are reported
// exactly; quantities and resources are not.
func EstimateGarrison(units []core.UnitGroup, stock core.Resources, defenses []core.DefenseStructure) core.ScoutEstimate {
	fuzzed := make([]core.UnitGroup, 0, len(units))
	for _, g := range units {
		fuzzed = append(fuzzed, core.UnitGroup{
			UnitType: g.UnitType,
			Quantity: int(math.Round(float64(g.Quantity) * fuzz())),
		})
	}
	return core.ScoutEstimate{
		Units: fuzzed,
		Resources: core.Resources{
			Ore:        math.Round(stock.Ore * fuzz()),
			Provisions: math.Round(stock.Provisions * fuzz()),
			Gold:       math.Round(stock.Gold * fuzz()),
			Lumber:     math.Round(stock.Lumber * fuzz()),
		},
		Defenses: append([]core.DefenseStructure(nil), defenses...),
	}
}

// fuzz draws a fresh multiplier in [0.8, 1.2] from the unseeded global source.
func fuzz() float64 {
	return 0.8 + rand.Float64()*0.4
}
