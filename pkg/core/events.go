// pkg/core/events.go
package core

import "time"

// EventType tags a game event written to a player's event log.
type EventType string

const (
	EventConstructionComplete EventType = "CONSTRUCTION_COMPLETE"
	EventResearchComplete     EventType = "RESEARCH_COMPLETE"
	EventTrainingComplete     EventType = "TRAINING_COMPLETE"
	EventArmyReturned         EventType = "ARMY_RETURNED"
	EventArmyArrived          EventType = "ARMY_ARRIVED"
	EventArmyDisbanded        EventType = "ARMY_DISBANDED"
	EventScoutLost            EventType = "SCOUT_LOST"
	EventScoutReport          EventType = "SCOUT_REPORT"
	EventBattleWon            EventType = "BATTLE_WON"
	EventBattleLost           EventType = "BATTLE_LOST"
	EventSettlementAttacked   EventType = "SETTLEMENT_ATTACKED"
	EventSettlementDefended   EventType = "SETTLEMENT_DEFENDED"
)

// EventPayload is implemented by every typed event body. The event type is
// derived from the payload so a body can never be filed under the wrong tag.
type EventPayload interface {
	EventType() EventType
}

// Event is a typed entry for a player's event log.
type Event struct {
	PlayerID  uint
	Message   string
	Payload   EventPayload
	CreatedAt time.Time
}

// ConstructionComplete is emitted when a building or defense finishes an upgrade.
type ConstructionComplete struct {
	SettlementID uint   `json:"settlementId"`
	Structure    string `json:"structure"`
	IsDefense    bool   `json:"isDefense"`
	Level        int    `json:"level"`
}

func (ConstructionComplete) EventType() EventType { return EventConstructionComplete }

// ResearchComplete is emitted when the active research finishes.
type ResearchComplete struct {
	Track ResearchTrack `json:"track"`
	Level int           `json:"level"`
}

func (ResearchComplete) EventType() EventType { return EventResearchComplete }

// TrainingComplete is emitted per finished training queue entry.
type TrainingComplete struct {
	SettlementID uint     `json:"settlementId"`
	UnitType     UnitType `json:"unitType"`
	Quantity     int      `json:"quantity"`
}

func (TrainingComplete) EventType() EventType { return EventTrainingComplete }

// ArmyReturned is emitted when an army is merged back into its garrison, or
// when it is turned back before reaching its target.
type ArmyReturned struct {
	ArmyID uint        `json:"armyId"`
	Units  []UnitGroup `json:"units,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

func (ArmyReturned) EventType() EventType { return EventArmyReturned }

// ArmyArrived is emitted for a peaceful arrival.
type ArmyArrived struct {
	ArmyID uint `json:"armyId"`
	TileID uint `json:"tileId"`
}

func (ArmyArrived) EventType() EventType { return EventArmyArrived }

// ArmyDisbanded is emitted when an army with no units reaches its target.
type ArmyDisbanded struct {
	ArmyID uint `json:"armyId"`
	TileID uint `json:"tileId"`
}

func (ArmyDisbanded) EventType() EventType { return EventArmyDisbanded }

// ScoutLost is emitted when a scouting army is caught.
type ScoutLost struct {
	ArmyID uint `json:"armyId"`
	TileID uint `json:"tileId"`
}

func (ScoutLost) EventType() EventType { return EventScoutLost }

// ScoutReport carries the fuzzed estimate brought back by a scout.
type ScoutReport struct {
	ArmyID   uint          `json:"armyId"`
	TileID   uint          `json:"tileId"`
	Estimate ScoutEstimate `json:"estimate"`
}

func (ScoutReport) EventType() EventType { return EventScoutReport }

// PhaseLosses are the casualties one phase inflicted across all rounds.
type PhaseLosses struct {
	AttackerLosses     []UnitGroup `json:"attackerLosses"`
	DefenderLosses     []UnitGroup `json:"defenderLosses"`
	WallDamageAbsorbed float64     `json:"wallDamageAbsorbed,omitempty"`
}

// Phases splits battle casualties into ranged and melee.
type Phases struct {
	Ranged PhaseLosses `json:"ranged"`
	Melee  PhaseLosses `json:"melee"`
}

// BattleDetail is the shared body of every battle event.
type BattleDetail struct {
	ArmyID            uint        `json:"armyId"`
	TileID            uint        `json:"tileId"`
	OpponentPlayerID  uint        `json:"opponentPlayerId,omitempty"`
	FactionID         uint        `json:"factionId,omitempty"`
	Rounds            int         `json:"rounds"`
	AttackerLosses    []UnitGroup `json:"attackerLosses"`
	DefenderLosses    []UnitGroup `json:"defenderLosses"`
	Phases            Phases      `json:"phases"`
	Loot              Loot        `json:"loot"`
	DefensesDestroyed int         `json:"defensesDestroyed,omitempty"`
}

// BattleWon is sent to a victorious attacker.
type BattleWon struct{ BattleDetail }

func (BattleWon) EventType() EventType { return EventBattleWon }

// BattleLost is sent to a defeated attacker.
type BattleLost struct{ BattleDetail }

func (BattleLost) EventType() EventType { return EventBattleLost }

// SettlementAttacked is sent to a defender whose settlement fell.
type SettlementAttacked struct{ BattleDetail }

func (SettlementAttacked) EventType() EventType { return EventSettlementAttacked }

// SettlementDefended is sent to a defender who repelled an attack.
type SettlementDefended struct{ BattleDetail }

func (SettlementDefended) EventType() EventType { return EventSettlementDefended }
