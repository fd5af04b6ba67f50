package combat

import (
	"math"

	"github.com/warhost/simcore/internal/balance"
	"github.com/warhost/simcore/pkg/core"
)

// Result is the immutable outcome of a battle.
type Result struct {
	AttackerWins       bool             `json:"attackerWins"`
	AttackerLosses     []core.UnitGroup `json:"attackerLosses"`
	DefenderLosses     []core.UnitGroup `json:"defenderLosses"`
	AttackerSurvivors  []core.UnitGroup `json:"attackerSurvivors"`
	DefenderSurvivors  []core.UnitGroup `json:"defenderSurvivors"`
	Loot               core.Loot        `json:"loot"`
	Phases             core.Phases      `json:"phases"`
	Rounds             int              `json:"rounds"`
	WallHPRemaining    float64          `json:"wallHpRemaining"`
	WallDamageAbsorbed float64          `json:"wallDamageAbsorbed"`
}

// Resolve fights attacker against defender until one side is wiped, a round
// produces no casualties, or the round cap is reached.
func Resolve(attacker, defender ArmyForCombat) Result {
	b := newBattle(attacker, defender)
	s := b.initialState()
	if alive(s.Attacker) == 0 || alive(s.Defender) == 0 {
		s.Done = true
	}
	for !s.Done {
		s = b.step(s)
	}
	return b.result(s)
}

func (b battle) result(s BattleState) Result {
	atkAlive := alive(s.Attacker)
	defAlive := alive(s.Defender)

	var attackerWins bool
	switch {
	case atkAlive == 0:
		attackerWins = false
	case defAlive == 0:
		attackerWins = true
	default:
		// Attacker needs strictly more power; ties hold for the defender.
		attackerWins = rawPower(s.Attacker) > rawPower(s.Defender)
	}

	res := Result{
		AttackerWins:      attackerWins,
		AttackerLosses:    losses(s.Attacker),
		DefenderLosses:    losses(s.Defender),
		AttackerSurvivors: survivors(s.Attacker),
		DefenderSurvivors: survivors(s.Defender),
		Phases: core.Phases{
			Ranged: core.PhaseLosses{
				AttackerLosses: tallyGroups(s.Attacker, s.Ranged.Attacker),
				DefenderLosses: tallyGroups(s.Defender, s.Ranged.Defender),
			},
			Melee: core.PhaseLosses{
				AttackerLosses:     tallyGroups(s.Attacker, s.Melee.Attacker),
				DefenderLosses:     tallyGroups(s.Defender, s.Melee.Defender),
				WallDamageAbsorbed: s.WallDamageAbsorbed,
			},
		},
		Rounds:             s.Round,
		WallHPRemaining:    s.WallHPRemaining,
		WallDamageAbsorbed: s.WallDamageAbsorbed,
	}
	if attackerWins {
		res.Loot = ComputeLoot(res.AttackerSurvivors, b.defender.Provisions)
	}
	return res
}

func tallyGroups(trackers []UnitTracker, tally []int) []core.UnitGroup {
	groups := make([]core.UnitGroup, 0, len(trackers))
	for i, t := range trackers {
		groups = append(groups, core.UnitGroup{UnitType: t.UnitType, Quantity: tally[i]})
	}
	return core.MergeUnits(groups)
}

// ComputeLoot returns the plunder a winning attacker carries off from a
// defender that declared the given provisions. Without caravans nothing is
// taken. Lumber is never part of this pool.
func ComputeLoot(attacker []core.UnitGroup, defenderProvisions float64) core.Loot {
	capacity := CarryCapacity(attacker)
	if capacity <= 0 || defenderProvisions <= 0 {
		return core.Loot{}
	}
	pool := defenderProvisions * balance.LootPoolFraction
	actual := math.Min(pool, capacity)
	return core.Loot{
		Ore:        int(math.Floor(actual * balance.LootOreShare)),
		Provisions: int(math.Floor(actual * balance.LootProvisionsShare)),
		Gold:       int(math.Floor(actual * balance.LootGoldShare)),
	}
}

// PvPLoot returns the plunder taken from a defeated player's stockpile:
// PvPLootFraction of each resource, scaled down proportionally when the total
// exceeds the attacker's carry capacity.
func PvPLoot(attacker []core.UnitGroup, defender core.Resources) core.Loot {
	capacity := CarryCapacity(attacker)
	if capacity <= 0 {
		return core.Loot{}
	}
	raw := core.Resources{
		Ore:        math.Max(0, defender.Ore) * balance.PvPLootFraction,
		Provisions: math.Max(0, defender.Provisions) * balance.PvPLootFraction,
		Gold:       math.Max(0, defender.Gold) * balance.PvPLootFraction,
		Lumber:     math.Max(0, defender.Lumber) * balance.PvPLootFraction,
	}
	scale := 1.0
	if total := raw.Total(); total > capacity {
		scale = capacity / total
	}
	return core.Loot{
		Ore:        int(math.Floor(raw.Ore * scale)),
		Provisions: int(math.Floor(raw.Provisions * scale)),
		Gold:       int(math.Floor(raw.Gold * scale)),
		Lumber:     int(math.Floor(raw.Lumber * scale)),
	}
}
