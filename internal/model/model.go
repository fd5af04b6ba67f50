package model

import (
	"time"

	"github.com/warhost/simcore/pkg/core"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&PlayerResources{},
	&Settlement{},
	&Building{},
	&Defense{},
	&ResearchState{},
	&ActiveResearch{},
	&UnitQueue{},
	&SettlementUnit{},
	&Army{},
	&ArmyUnit{},
	&MapTile{},
	&NPCFaction{},
	&GameEvent{},
}

////////////////////////
// ECONOMY
////////////////////////

// PlayerResources is a player's stockpile and the tick checkpoint.
// LastTickAt only ever moves forward.
type PlayerResources struct {
	PlayerID      uint      `json:"playerId" gorm:"primaryKey;autoIncrement:false"`
	Ore           float64   `json:"ore"`
	Provisions    float64   `json:"provisions"`
	Gold          float64   `json:"gold"`
	Lumber        float64   `json:"lumber"`
	Mana          float64   `json:"mana"`
	OreCap        float64   `json:"oreCap"`
	ProvisionsCap float64   `json:"provisionsCap"`
	GoldCap       float64   `json:"goldCap"`
	LumberCap     float64   `json:"lumberCap"`
	ManaCap       float64   `json:"manaCap"`
	LastTickAt    time.Time `json:"lastTickAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (*PlayerResources) TableName() string {
	return "player_resources"
}

// Stock returns the four lootable resources.
func (r *PlayerResources) Stock() core.Resources {
	return core.Resources{Ore: r.Ore, Provisions: r.Provisions, Gold: r.Gold, Lumber: r.Lumber}
}

// Settlement is a player-owned town on a map tile.
type Settlement struct {
	gorm.Model
	PlayerID       uint       `json:"playerId" gorm:"index"`
	Name           string     `json:"name" gorm:"size:64"`
	TileID         uint       `json:"tileId" gorm:"uniqueIndex"`
	ProtectedUntil *time.Time `json:"protectedUntil"`
}

func (*Settlement) TableName() string {
	return "settlements"
}

// IsProtected reports whether the settlement is inside a protection window at now.
func (s *Settlement) IsProtected(now time.Time) bool {
	return s.ProtectedUntil != nil && now.Before(*s.ProtectedUntil)
}

// Building is an economic building of a settlement.
type Building struct {
	gorm.Model
	SettlementID     uint              `json:"settlementId" gorm:"index"`
	Type             core.BuildingType `json:"type" gorm:"size:32"`
	Level            int               `json:"level"`
	UpgradeStartedAt *time.Time        `json:"upgradeStartedAt"`
	UpgradeEndsAt    *time.Time        `json:"upgradeEndsAt"`
}

func (*Building) TableName() string {
	return "buildings"
}

// Upgrading reports whether an upgrade is in progress.
func (b *Building) Upgrading() bool {
	return b.UpgradeEndsAt != nil
}

// Defense is a settlement defense structure.
type Defense struct {
	gorm.Model
	SettlementID     uint             `json:"settlementId" gorm:"index"`
	Type             core.DefenseType `json:"type" gorm:"size:32"`
	Level            int              `json:"level"`
	UpgradeStartedAt *time.Time       `json:"upgradeStartedAt"`
	UpgradeEndsAt    *time.Time       `json:"upgradeEndsAt"`
}

func (*Defense) TableName() string {
	return "defenses"
}

////////////////////////
// RESEARCH & TRAINING
////////////////////////

// ResearchState is the completed level of one research track.
type ResearchState struct {
	gorm.Model
	PlayerID uint               `json:"playerId" gorm:"uniqueIndex:idx_research_player_track"`
	Track    core.ResearchTrack `json:"track" gorm:"size:32;uniqueIndex:idx_research_player_track"`
	Level    int                `json:"level"`
}

func (*ResearchState) TableName() string {
	return "research_states"
}

// ActiveResearch is the single research in progress for a player.
type ActiveResearch struct {
	gorm.Model
	PlayerID  uint               `json:"playerId" gorm:"uniqueIndex"`
	Track     core.ResearchTrack `json:"track" gorm:"size:32"`
	StartedAt time.Time          `json:"startedAt"`
	EndsAt    time.Time          `json:"endsAt"`
}

func (*ActiveResearch) TableName() string {
	return "active_researches"
}

// UnitQueue is one training batch waiting to join a garrison.
type UnitQueue struct {
	gorm.Model
	SettlementID uint          `json:"settlementId" gorm:"index"`
	UnitType     core.UnitType `json:"unitType" gorm:"size:32"`
	Quantity     int           `json:"quantity"`
	StartedAt    time.Time     `json:"startedAt"`
	EndsAt       time.Time     `json:"endsAt"`
}

func (*UnitQueue) TableName() string {
	return "unit_queues"
}

// SettlementUnit is one garrison line of a settlement.
type SettlementUnit struct {
	gorm.Model
	SettlementID uint          `json:"settlementId" gorm:"uniqueIndex:idx_garrison_settlement_type"`
	UnitType     core.UnitType `json:"unitType" gorm:"size:32;uniqueIndex:idx_garrison_settlement_type"`
	Quantity     int           `json:"quantity"`
}

func (*SettlementUnit) TableName() string {
	return "settlement_units"
}

////////////////////////
// ARMIES & MAP
////////////////////////

// Army is a mobile force detached from a garrison.
type Army struct {
	gorm.Model
	OwnerID    uint            `json:"ownerId" gorm:"index"`
	Name       string          `json:"name" gorm:"size:64"`
	Status     core.ArmyStatus `json:"status" gorm:"size:16;index"`
	FromTileID uint            `json:"fromTileId"`
	ToTileID   *uint           `json:"toTileId"`
	DepartedAt *time.Time      `json:"departedAt"`
	ArrivesAt  *time.Time      `json:"arrivesAt" gorm:"index"`
	Provisions float64         `json:"provisions"`
	Units      []ArmyUnit      `json:"units" gorm:"foreignKey:ArmyID;constraint:OnDelete:CASCADE"`
}

func (*Army) TableName() string {
	return "armies"
}

// UnitGroups returns the army's units as combat groups.
func (a *Army) UnitGroups() []core.UnitGroup {
	groups := make([]core.UnitGroup, 0, len(a.Units))
	for _, u := range a.Units {
		groups = append(groups, core.UnitGroup{UnitType: u.UnitType, Quantity: u.Quantity})
	}
	return groups
}

// ArmyUnit is one unit line of an army.
type ArmyUnit struct {
	gorm.Model
	ArmyID   uint          `json:"armyId" gorm:"index"`
	UnitType core.UnitType `json:"unitType" gorm:"size:32"`
	Quantity int           `json:"quantity"`
}

func (*ArmyUnit) TableName() string {
	return "army_units"
}

// MapTile is one cell of the world map.
type MapTile struct {
	gorm.Model
	X            int    `json:"x" gorm:"uniqueIndex:idx_tile_xy"`
	Y            int    `json:"y" gorm:"uniqueIndex:idx_tile_xy"`
	Terrain      string `json:"terrain" gorm:"size:32"`
	NPCFactionID *uint  `json:"npcFactionId"`
	IsHideout    bool   `json:"isHideout"`
}

func (*MapTile) TableName() string {
	return "map_tiles"
}

// NPCFaction is a computer-controlled faction occupying tiles.
type NPCFaction struct {
	gorm.Model
	Name            string `json:"name" gorm:"size:64"`
	Strength        int    `json:"strength"`
	AggressionLevel int    `json:"aggressionLevel"`
}

func (*NPCFaction) TableName() string {
	return "npc_factions"
}

////////////////////////
// EVENT LOG
////////////////////////

// GameEvent is an append-only entry of a player's event log.
type GameEvent struct {
	ID        string         `json:"id" gorm:"primaryKey;size:36"`
	PlayerID  uint           `json:"playerId" gorm:"index"`
	Type      core.EventType `json:"type" gorm:"size:32;index"`
	Message   string         `json:"message" gorm:"size:255"`
	Data      datatypes.JSON `json:"data"`
	CreatedAt time.Time      `json:"createdAt" gorm:"index"`
	Read      bool           `json:"read"`
}

func (*GameEvent) TableName() string {
	return "game_events"
}
