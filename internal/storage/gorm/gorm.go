// Package gormstorage implements storage.Store on GORM. It runs against
// PostgreSQL in production and SQLite in tests and single-node setups.
package gormstorage

import (
	"context"
	"errors"
	"fmt"

	"github.com/warhost/simcore/internal/model"
	"github.com/warhost/simcore/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements storage.Store on a *gorm.DB.
type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

// New returns a Store using db. The schema must already be migrated.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ListPlayerIDs returns every player that owns a resource row, in ID order.
func (s *Store) ListPlayerIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&model.PlayerResources{}).
		Order("player_id").
		Pluck("player_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return ids, nil
}

// InTx runs fn inside a database transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&txn{db: db})
	})
}

// txn implements storage.Tx on an open transaction.
type txn struct {
	db *gorm.DB
}

var _ storage.Tx = (*txn)(nil)

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// forUpdate locks the selected rows where the dialect supports it.
func (t *txn) forUpdate() *gorm.DB {
	if t.db.Dialector.Name() == "postgres" {
		return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.db
}

func (t *txn) GetResources(playerID uint) (*model.PlayerResources, error) {
	var r model.PlayerResources
	if err := t.forUpdate().Where("player_id = ?", playerID).First(&r).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (t *txn) SaveResources(r *model.PlayerResources) error {
	return t.db.Save(r).Error
}

func (t *txn) ListSettlements(playerID uint) ([]model.Settlement, error) {
	var out []model.Settlement
	err := t.db.Where("player_id = ?", playerID).Order("id").Find(&out).Error
	return out, err
}

func (t *txn) GetSettlementByTile(tileID uint) (*model.Settlement, error) {
	var s model.Settlement
	if err := t.db.Where("tile_id = ?", tileID).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (t *txn) SaveSettlement(s *model.Settlement) error {
	return t.db.Save(s).Error
}

func (t *txn) ListBuildings(settlementID uint) ([]model.Building, error) {
	var out []model.Building
	err := t.db.Where("settlement_id = ?", settlementID).Order("id").Find(&out).Error
	return out, err
}

func (t *txn) SaveBuilding(b *model.Building) error {
	return t.db.Save(b).Error
}

func (t *txn) ListDefenses(settlementID uint) ([]model.Defense, error) {
	var out []model.Defense
	err := t.db.Where("settlement_id = ?", settlementID).Order("id").Find(&out).Error
	return out, err
}

func (t *txn) SaveDefense(d *model.Defense) error {
	return t.db.Save(d).Error
}

func (t *txn) GetActiveResearch(playerID uint) (*model.ActiveResearch, error) {
	var a model.ActiveResearch
	if err := t.db.Where("player_id = ?", playerID).First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (t *txn) DeleteActiveResearch(a *model.ActiveResearch) error {
	return t.db.Unscoped().Delete(a).Error
}

func (t *txn) ListResearch(playerID uint) ([]model.ResearchState, error) {
	var out []model.ResearchState
	err := t.db.Where("player_id = ?", playerID).Order("id").Find(&out).Error
	return out, err
}

func (t *txn) SaveResearch(r *model.ResearchState) error {
	return t.db.Save(r).Error
}

func (t *txn) ListUnitQueue(settlementID uint) ([]model.UnitQueue, error) {
	var out []model.UnitQueue
	err := t.db.Where("settlement_id = ?", settlementID).Order("ends_at, id").Find(&out).Error
	return out, err
}

func (t *txn) DeleteUnitQueue(q *model.UnitQueue) error {
	return t.db.Unscoped().Delete(q).Error
}

func (t *txn) ListGarrison(settlementID uint) ([]model.SettlementUnit, error) {
	var out []model.SettlementUnit
	err := t.db.Where("settlement_id = ?", settlementID).Order("id").Find(&out).Error
	return out, err
}

func (t *txn) SaveGarrisonUnit(u *model.SettlementUnit) error {
	return t.db.Save(u).Error
}

// ListArmies returns the player's armies with their unit lines loaded.
func (t *txn) ListArmies(playerID uint) ([]model.Army, error) {
	var out []model.Army
	err := t.db.
		Preload("Units", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("owner_id = ?", playerID).
		Order("id").
		Find(&out).Error
	return out, err
}

// SaveArmy writes the army row only; unit lines go through SaveArmyUnit.
func (t *txn) SaveArmy(a *model.Army) error {
	return t.db.Omit(clause.Associations).Save(a).Error
}

// DeleteArmy removes the army and its unit lines.
func (t *txn) DeleteArmy(a *model.Army) error {
	if err := t.db.Unscoped().Where("army_id = ?", a.ID).Delete(&model.ArmyUnit{}).Error; err != nil {
		return err
	}
	return t.db.Unscoped().Delete(a).Error
}

func (t *txn) SaveArmyUnit(u *model.ArmyUnit) error {
	return t.db.Save(u).Error
}

func (t *txn) DeleteArmyUnit(u *model.ArmyUnit) error {
	return t.db.Unscoped().Delete(u).Error
}

func (t *txn) GetTile(tileID uint) (*model.MapTile, error) {
	var m model.MapTile
	if err := t.db.First(&m, tileID).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (t *txn) SaveTile(m *model.MapTile) error {
	return t.db.Save(m).Error
}

func (t *txn) GetFaction(factionID uint) (*model.NPCFaction, error) {
	var f model.NPCFaction
	if err := t.db.First(&f, factionID).Error; err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

func (t *txn) AppendEvent(e *model.GameEvent) error {
	return t.db.Create(e).Error
}
