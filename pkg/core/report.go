// pkg/core/report.go
package core

import "time"

// ScoutEstimate is the deliberately imprecise view a scout brings back.
type ScoutEstimate struct {
	Units     []UnitGroup        `json:"units"`
	Resources Resources          `json:"resources"`
	Defenses  []DefenseStructure `json:"defenses,omitempty"`
	IsHideout bool               `json:"isHideout,omitempty"`
}

// BattleReport is the archived record of a resolved battle.
type BattleReport struct {
	ID               string       `json:"id"`
	ResolvedAt       time.Time    `json:"resolvedAt"`
	AttackerPlayerID uint         `json:"attackerPlayerId"`
	DefenderPlayerID uint         `json:"defenderPlayerId,omitempty"`
	AttackerWins     bool         `json:"attackerWins"`
	Detail           BattleDetail `json:"detail"`
}
