// Package balance holds the static game-balance tables consumed by the combat
// engine, the NPC generator and the tick engine. Everything here is read-only.
package balance

import "github.com/warhost/simcore/pkg/core"

// UnitStats is the stat line of one unit type.
type UnitStats struct {
	Attack        float64
	Defense       float64
	Speed         float64
	CarryCapacity float64
	Upkeep        float64 // provisions per tick
	Ranged        bool
}

var unitStats = map[core.UnitType]UnitStats{
	core.UnitInfantry:      {Attack: 10, Defense: 8, Speed: 5, CarryCapacity: 20, Upkeep: 1},
	core.UnitArcher:        {Attack: 12, Defense: 5, Speed: 5, CarryCapacity: 10, Upkeep: 1, Ranged: true},
	core.UnitCavalry:       {Attack: 15, Defense: 10, Speed: 10, CarryCapacity: 50, Upkeep: 2},
	core.UnitHeavyInfantry: {Attack: 18, Defense: 15, Speed: 3, CarryCapacity: 15, Upkeep: 2},
	core.UnitScout:         {Attack: 2, Defense: 2, Speed: 15, CarryCapacity: 0, Upkeep: 0.5},
	core.UnitCaravan:       {Attack: 0, Defense: 5, Speed: 4, CarryCapacity: 200, Upkeep: 1},
}

// Stats returns the stat line for t. Unknown types get the zero line.
func Stats(t core.UnitType) UnitStats {
	return unitStats[t]
}

// IsRanged reports whether t fires in the ranged sub-phase.
func IsRanged(t core.UnitType) bool {
	return unitStats[t].Ranged
}

// IsCaravan reports whether t counts toward loot carry capacity.
func IsCaravan(t core.UnitType) bool {
	return t == core.UnitCaravan
}

type matchup struct {
	attacker core.UnitType
	target   core.UnitType
}

var triangle = map[matchup]float64{
	{core.UnitArcher, core.UnitInfantry}:        1.25,
	{core.UnitArcher, core.UnitHeavyInfantry}:   0.75,
	{core.UnitInfantry, core.UnitCavalry}:       1.25,
	{core.UnitCavalry, core.UnitArcher}:         1.5,
	{core.UnitCavalry, core.UnitCaravan}:        1.25,
	{core.UnitCavalry, core.UnitHeavyInfantry}:  0.75,
	{core.UnitHeavyInfantry, core.UnitInfantry}: 1.25,
	{core.UnitHeavyInfantry, core.UnitCavalry}:  1.5,
}

// Triangle returns the damage multiplier of attacker against target. Every
// pair not listed is neutral.
func Triangle(attacker, target core.UnitType) float64 {
	if m, ok := triangle[matchup{attacker, target}]; ok {
		return m
	}
	return 1.0
}
