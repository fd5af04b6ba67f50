// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/warhost/simcore/internal/model"
)

// ErrNotFound is returned by lookups that found no row.
var ErrNotFound = errors.New("not found")

// Store is the persistent collaborator of the tick engine. Every read and
// write of a tick happens through the Tx handed to InTx; returning an error
// from fn rolls the whole tick back.
type Store interface {
	ListPlayerIDs(ctx context.Context) ([]uint, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view of the store.
type Tx interface {
	// Resources
	GetResources(playerID uint) (*model.PlayerResources, error)
	SaveResources(r *model.PlayerResources) error

	// Settlements and structures
	ListSettlements(playerID uint) ([]model.Settlement, error)
	GetSettlementByTile(tileID uint) (*model.Settlement, error)
	SaveSettlement(s *model.Settlement) error
	ListBuildings(settlementID uint) ([]model.Building, error)
	SaveBuilding(b *model.Building) error
	ListDefenses(settlementID uint) ([]model.Defense, error)
	SaveDefense(d *model.Defense) error

	// Research
	GetActiveResearch(playerID uint) (*model.ActiveResearch, error)
	DeleteActiveResearch(a *model.ActiveResearch) error
	ListResearch(playerID uint) ([]model.ResearchState, error)
	SaveResearch(r *model.ResearchState) error

	// Training and garrisons
	ListUnitQueue(settlementID uint) ([]model.UnitQueue, error)
	DeleteUnitQueue(q *model.UnitQueue) error
	ListGarrison(settlementID uint) ([]model.SettlementUnit, error)
	SaveGarrisonUnit(u *model.SettlementUnit) error

	// Armies
	ListArmies(playerID uint) ([]model.Army, error)
	SaveArmy(a *model.Army) error
	DeleteArmy(a *model.Army) error
	SaveArmyUnit(u *model.ArmyUnit) error
	DeleteArmyUnit(u *model.ArmyUnit) error

	// Map
	GetTile(tileID uint) (*model.MapTile, error)
	SaveTile(t *model.MapTile) error
	GetFaction(factionID uint) (*model.NPCFaction, error)

	// Event log
	AppendEvent(e *model.GameEvent) error
}
