package balance

const (
	// MaxRounds caps the number of rounds a battle may run.
	MaxRounds = 50

	// CavalryChargeMultiplier scales attacking cavalry melee damage in round 0.
	CavalryChargeMultiplier = 1.5

	// WallHPPerLevel is the per-battle wall hit-point pool per WALLS level.
	WallHPPerLevel = 100.0

	// GuardTowerDamagePerLevel is the flat ranged damage per GUARD_TOWER level per round.
	GuardTowerDamagePerLevel = 25.0

	// ManaPerBonusPercent is how much mana reserve buys one percent of defender melee bonus.
	ManaPerBonusPercent = 100.0

	// ManaBonusCapPercent caps the mana melee bonus.
	ManaBonusCapPercent = 25.0

	// LootPoolFraction is the share of a defender's declared provisions that can be looted.
	LootPoolFraction = 0.20

	LootOreShare        = 0.4
	LootProvisionsShare = 0.4
	LootGoldShare       = 0.2

	// PvPLootFraction is the share of each defender resource a PvP victory plunders.
	PvPLootFraction = 0.15

	// ScoutLossPerAggression is the scout loss probability per faction aggression level.
	ScoutLossPerAggression = 0.05
)
