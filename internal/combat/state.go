package combat

import (
	"math"
	"sort"

	"github.com/warhost/simcore/internal/balance"
	"github.com/warhost/simcore/pkg/core"
)

// phaseTally accumulates casualties per tracker index for one phase.
type phaseTally struct {
	Attacker []int
	Defender []int
}

func newPhaseTally(atk, def int) phaseTally {
	return phaseTally{Attacker: make([]int, atk), Defender: make([]int, def)}
}

func (p phaseTally) clone() phaseTally {
	out := phaseTally{Attacker: make([]int, len(p.Attacker)), Defender: make([]int, len(p.Defender))}
	copy(out.Attacker, p.Attacker)
	copy(out.Defender, p.Defender)
	return out
}

// BattleState is everything that changes between rounds.
type BattleState struct {
	Round              int
	Attacker           []UnitTracker
	Defender           []UnitTracker
	WallHPRemaining    float64
	WallDamageAbsorbed float64
	Ranged             phaseTally
	Melee              phaseTally
	Done               bool
}

func (s BattleState) clone() BattleState {
	next := s
	next.Attacker = cloneTrackers(s.Attacker)
	next.Defender = cloneTrackers(s.Defender)
	next.Ranged = s.Ranged.clone()
	next.Melee = s.Melee.clone()
	return next
}

// battle holds what stays fixed for the whole fight.
type battle struct {
	attacker         ArmyForCombat
	defender         ArmyForCombat
	guardTowerDamage float64
	manaMultiplier   float64
	wallHP           float64
}

func newBattle(attacker, defender ArmyForCombat) battle {
	return battle{
		attacker:         attacker,
		defender:         defender,
		guardTowerDamage: balance.GuardTowerDamagePerLevel * float64(core.DefenseLevel(defender.DefenseStructures, core.DefenseGuardTower)),
		manaMultiplier:   ManaMultiplier(defender.ManaReserve),
		wallHP:           balance.WallHPPerLevel * float64(core.DefenseLevel(defender.DefenseStructures, core.DefenseWalls)),
	}
}

func (b battle) initialState() BattleState {
	atk := newTrackers(b.attacker.Units)
	def := newTrackers(b.defender.Units)
	return BattleState{
		Attacker:        atk,
		Defender:        def,
		WallHPRemaining: b.wallHP,
		Ranged:          newPhaseTally(len(atk), len(def)),
		Melee:           newPhaseTally(len(atk), len(def)),
	}
}

// source is the raw damage one unit type contributes in a sub-phase.
type source struct {
	unitType core.UnitType
	damage   float64
}

func sumSources(sources []source) float64 {
	total := 0.0
	for _, s := range sources {
		total += s.damage
	}
	return total
}

// weightedMultiplier averages the triangle multiplier of every source against
// target, weighted by each source's share of the raw damage. With no unit
// sources the multiplier is neutral.
func weightedMultiplier(sources []source, target core.UnitType) float64 {
	total := sumSources(sources)
	if total <= 0 {
		return 1.0
	}
	m := 0.0
	for _, s := range sources {
		m += s.damage / total * balance.Triangle(s.unitType, target)
	}
	return m
}

func addSource(sources []source, t core.UnitType, damage float64) []source {
	if damage <= 0 {
		return sources
	}
	for i := range sources {
		if sources[i].unitType == t {
			sources[i].damage += damage
			return sources
		}
	}
	return append(sources, source{unitType: t, damage: damage})
}

func rangedSources(trackers []UnitTracker) []source {
	var sources []source
	for _, t := range trackers {
		if t.Quantity <= 0 || !balance.IsRanged(t.UnitType) {
			continue
		}
		sources = addSource(sources, t.UnitType, balance.Stats(t.UnitType).Attack*float64(t.Quantity))
	}
	return sources
}

func meleeSources(trackers []UnitTracker, charge bool) []source {
	var sources []source
	for _, t := range trackers {
		if t.Quantity <= 0 || balance.IsRanged(t.UnitType) {
			continue
		}
		dmg := balance.Stats(t.UnitType).Attack * float64(t.Quantity)
		if charge && t.UnitType == core.UnitCavalry {
			dmg *= balance.CavalryChargeMultiplier
		}
		sources = addSource(sources, t.UnitType, dmg)
	}
	return sources
}

func scaleSources(sources []source, factor float64) []source {
	out := make([]source, len(sources))
	for i, s := range sources {
		out[i] = source{unitType: s.unitType, damage: s.damage * factor}
	}
	return out
}

// distributeProportional splits damage over live targets by their share of
// the HP pool and returns the kills per target index.
func distributeProportional(targets []UnitTracker, damage float64, sources []source) []int {
	kills := make([]int, len(targets))
	if damage <= 0 {
		return kills
	}
	pool := hpPool(targets)
	if pool <= 0 {
		return kills
	}
	for i, t := range targets {
		def := balance.Stats(t.UnitType).Defense
		if t.Quantity <= 0 || def <= 0 {
			continue
		}
		share := float64(t.Quantity) * def / pool
		dealt := damage * share * weightedMultiplier(sources, t.UnitType)
		kills[i] = min(int(math.Floor(dealt/def)), t.Quantity)
	}
	return kills
}

// distributeSlowestFirst spends one damage pool on live targets in ascending
// speed order, wiping each group it can afford before moving on.
func distributeSlowestFirst(targets []UnitTracker, damage float64, sources []source) []int {
	kills := make([]int, len(targets))
	if damage <= 0 {
		return kills
	}
	order := make([]int, 0, len(targets))
	for i, t := range targets {
		if t.Quantity > 0 && balance.Stats(t.UnitType).Defense > 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return balance.Stats(targets[order[a]].UnitType).Speed < balance.Stats(targets[order[b]].UnitType).Speed
	})

	remaining := damage
	for _, i := range order {
		if remaining <= 0 {
			break
		}
		t := targets[i]
		def := balance.Stats(t.UnitType).Defense
		m := weightedMultiplier(sources, t.UnitType)
		if m <= 0 {
			continue
		}
		effective := remaining * m
		pool := float64(t.Quantity) * def
		if pool <= effective {
			kills[i] = t.Quantity
			remaining -= pool / m
			continue
		}
		kills[i] = min(int(math.Floor(effective/def)), t.Quantity)
		remaining = 0
	}
	return kills
}

// applyKills moves kills from Quantity to Lost and records them in tally.
// It returns the number of units removed.
func applyKills(trackers []UnitTracker, kills []int, tally []int) int {
	total := 0
	for i, k := range kills {
		if !invariant(k >= 0, "negative kills %d for %s", k, trackers[i].UnitType) || k == 0 {
			continue
		}
		if k > trackers[i].Quantity {
			k = trackers[i].Quantity
		}
		trackers[i].Quantity -= k
		trackers[i].Lost += k
		tally[i] += k
		total += k
	}
	return total
}

// step resolves one round and returns the following state.
func (b battle) step(s BattleState) BattleState {
	next := s.clone()
	charge := next.Round == 0

	// Ranged sub-phase. Both volleys are computed before either is applied.
	atkRanged := rangedSources(next.Attacker)
	defRanged := rangedSources(next.Defender)
	atkRangedDamage := sumSources(atkRanged)
	defRangedDamage := sumSources(defRanged) + b.guardTowerDamage

	defKills := distributeProportional(next.Defender, atkRangedDamage, atkRanged)
	atkKills := distributeSlowestFirst(next.Attacker, defRangedDamage, defRanged)
	casualties := applyKills(next.Defender, defKills, next.Ranged.Defender)
	casualties += applyKills(next.Attacker, atkKills, next.Ranged.Attacker)

	if alive(next.Attacker) == 0 || alive(next.Defender) == 0 {
		next.Round++
		next.Done = true
		return next
	}

	// Melee sub-phase against the post-volley snapshot.
	atkMelee := meleeSources(next.Attacker, charge)
	defMelee := scaleSources(meleeSources(next.Defender, false), b.manaMultiplier)
	atkRaw := sumSources(atkMelee)
	defRaw := sumSources(defMelee)

	absorbed := math.Min(next.WallHPRemaining, atkRaw)
	next.WallHPRemaining = math.Max(0, next.WallHPRemaining-absorbed)
	next.WallDamageAbsorbed += absorbed
	overflow := atkRaw - absorbed

	defKills = distributeProportional(next.Defender, overflow, atkMelee)
	atkKills = distributeProportional(next.Attacker, defRaw, defMelee)
	casualties += applyKills(next.Defender, defKills, next.Melee.Defender)
	casualties += applyKills(next.Attacker, atkKills, next.Melee.Attacker)

	next.Round++
	switch {
	case alive(next.Attacker) == 0 || alive(next.Defender) == 0:
		next.Done = true
	case casualties == 0:
		next.Done = true
	case next.Round >= balance.MaxRounds:
		next.Done = true
	}
	return next
}
