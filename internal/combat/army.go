// Package combat resolves a battle between an attacking army and a defender.
//
// Resolution is a pure function of its inputs: the same ArmyForCombat pair
// always yields the same casualties, phase breakdown and winner. Each round is
// a ranged sub-phase followed by a melee sub-phase, and every round is computed
// by step from the previous BattleState without any shared mutable state.
package combat

import (
	"fmt"

	"github.com/warhost/simcore/internal/balance"
	"github.com/warhost/simcore/pkg/core"
)

// Strict turns invariant violations into panics. Tests enable it; production
// leaves it off and clamps bad quantities to zero instead.
var Strict = false

// ArmyForCombat is the combat view of an army or garrison, built fresh for
// every battle and never persisted.
type ArmyForCombat struct {
	Units             []core.UnitGroup        `json:"units" yaml:"units"`
	Provisions        float64                 `json:"provisions" yaml:"provisions"`
	IsDefending       bool                    `json:"isDefending" yaml:"isDefending"`
	DefenseStructures []core.DefenseStructure `json:"defenseStructures,omitempty" yaml:"defenseStructures"`
	ManaReserve       float64                 `json:"manaReserve,omitempty" yaml:"manaReserve"`
}

// TotalUnits returns the number of units in the army.
func (a ArmyForCombat) TotalUnits() int {
	return core.TotalUnits(a.Units)
}

// UnitTracker is the mutable working copy of one UnitGroup during a battle.
// Quantity + Lost always equals the quantity the battle started with.
type UnitTracker struct {
	UnitType core.UnitType
	Quantity int
	Lost     int
	initial  int
}

// Initial returns the quantity the tracker started the battle with.
func (t UnitTracker) Initial() int {
	return t.initial
}

func invariant(ok bool, format string, args ...any) bool {
	if ok {
		return true
	}
	if Strict {
		panic(fmt.Sprintf("combat: "+format, args...))
	}
	return false
}

func newTrackers(groups []core.UnitGroup) []UnitTracker {
	trackers := make([]UnitTracker, 0, len(groups))
	for _, g := range groups {
		q := g.Quantity
		if !invariant(q >= 0, "negative quantity %d for %s", q, g.UnitType) {
			q = 0
		}
		trackers = append(trackers, UnitTracker{UnitType: g.UnitType, Quantity: q, initial: q})
	}
	return trackers
}

func cloneTrackers(src []UnitTracker) []UnitTracker {
	out := make([]UnitTracker, len(src))
	copy(out, src)
	return out
}

func alive(trackers []UnitTracker) int {
	total := 0
	for _, t := range trackers {
		total += t.Quantity
	}
	return total
}

// hpPool is the summed quantity × defense of live units with a known defense.
func hpPool(trackers []UnitTracker) float64 {
	pool := 0.0
	for _, t := range trackers {
		def := balance.Stats(t.UnitType).Defense
		if t.Quantity <= 0 || def <= 0 {
			continue
		}
		pool += float64(t.Quantity) * def
	}
	return pool
}

func rawPower(trackers []UnitTracker) float64 {
	power := 0.0
	for _, t := range trackers {
		power += balance.Stats(t.UnitType).Attack * float64(t.Quantity)
	}
	return power
}

// RawPower returns Σ attack × quantity across all groups, ranged and melee alike.
func RawPower(units []core.UnitGroup) float64 {
	return rawPower(newTrackers(units))
}

// CarryCapacity returns the loot capacity of the caravans among units.
func CarryCapacity(units []core.UnitGroup) float64 {
	capacity := 0.0
	for _, g := range units {
		if balance.IsCaravan(g.UnitType) && g.Quantity > 0 {
			capacity += balance.Stats(g.UnitType).CarryCapacity * float64(g.Quantity)
		}
	}
	return capacity
}

// ManaMultiplier returns the defender melee multiplier bought by a mana
// reserve: +1% per full 100 mana, capped at +25%.
func ManaMultiplier(mana float64) float64 {
	if mana <= 0 {
		return 1.0
	}
	bonus := float64(int(mana / balance.ManaPerBonusPercent))
	if bonus > balance.ManaBonusCapPercent {
		bonus = balance.ManaBonusCapPercent
	}
	return 1 + bonus/100
}

func survivors(trackers []UnitTracker) []core.UnitGroup {
	groups := make([]core.UnitGroup, 0, len(trackers))
	for _, t := range trackers {
		groups = append(groups, core.UnitGroup{UnitType: t.UnitType, Quantity: t.Quantity})
	}
	return core.MergeUnits(groups)
}

func losses(trackers []UnitTracker) []core.UnitGroup {
	groups := make([]core.UnitGroup, 0, len(trackers))
	for _, t := range trackers {
		groups = append(groups, core.UnitGroup{UnitType: t.UnitType, Quantity: t.Lost})
	}
	return core.MergeUnits(groups)
}
