package tick

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/warhost/simcore/internal/database"
	"github.com/warhost/simcore/internal/model"
	gormstorage "github.com/warhost/simcore/internal/storage/gorm"
	"github.com/warhost/simcore/pkg/core"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// recordingMetrics captures what the engine reports after commit.
type recordingMetrics struct {
	ticks   []Stats
	battles []core.BattleReport
}

func (m *recordingMetrics) RecordTick(_ uint, _ time.Duration, stats Stats) {
	m.ticks = append(m.ticks, stats)
}

func (m *recordingMetrics) RecordBattle(r core.BattleReport) {
	m.battles = append(m.battles, r)
}

type fixture struct {
	t       *testing.T
	db      *gorm.DB
	clock   *fakeClock
	metrics *recordingMetrics
	engine  *Engine
	roll    float64
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.GetSqliteDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newFixture(t *testing.T, reports ReportSink) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		db:      newTestDB(t),
		clock:   &fakeClock{now: t0},
		metrics: &recordingMetrics{},
		roll:    0.5,
	}
	engine, err := New(Dependencies{
		Store:   gormstorage.New(f.db),
		Clock:   f.clock,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Rand:    func() float64 { return f.roll },
		Reports: reports,
		Metrics: f.metrics,
	})
	require.NoError(t, err)
	f.engine = engine
	return f
}

func group(t core.UnitType, q int) core.UnitGroup {
	return core.UnitGroup{UnitType: t, Quantity: q}
}

func ptr[T any](v T) *T { return &v }

// player creates a resource record last ticked one interval before t0.
func (f *fixture) player(id uint, mutate ...func(*model.PlayerResources)) *model.PlayerResources {
	f.t.Helper()
	r := &model.PlayerResources{PlayerID: id, LastTickAt: t0.Add(-DefaultTickInterval)}
	for _, m := range mutate {
		m(r)
	}
	require.NoError(f.t, f.db.Create(r).Error)
	return r
}

func (f *fixture) tile(x, y int) *model.MapTile {
	f.t.Helper()
	tile := &model.MapTile{X: x, Y: y, Terrain: "plains"}
	require.NoError(f.t, f.db.Create(tile).Error)
	return tile
}

func (f *fixture) npcTile(x, y, strength, aggression int, hideout bool) (*model.MapTile, *model.NPCFaction) {
	f.t.Helper()
	faction := &model.NPCFaction{Name: "Bandits", Strength: strength, AggressionLevel: aggression}
	require.NoError(f.t, f.db.Create(faction).Error)
	tile := &model.MapTile{X: x, Y: y, Terrain: "forest", NPCFactionID: &faction.ID, IsHideout: hideout}
	require.NoError(f.t, f.db.Create(tile).Error)
	return tile, faction
}

func (f *fixture) settlement(playerID uint, name string, x, y int) *model.Settlement {
	f.t.Helper()
	tile := f.tile(x, y)
	s := &model.Settlement{PlayerID: playerID, Name: name, TileID: tile.ID}
	require.NoError(f.t, f.db.Create(s).Error)
	return s
}

func (f *fixture) garrison(settlementID uint, units ...core.UnitGroup) {
	f.t.Helper()
	for _, u := range units {
		require.NoError(f.t, f.db.Create(&model.SettlementUnit{
			SettlementID: settlementID, UnitType: u.UnitType, Quantity: u.Quantity,
		}).Error)
	}
}

// army creates an army that departed 30 minutes before t0 and arrived just
// before it.
func (f *fixture) army(owner uint, name string, status core.ArmyStatus, from, to uint, units ...core.UnitGroup) *model.Army {
	f.t.Helper()
	a := &model.Army{
		OwnerID:    owner,
		Name:       name,
		Status:     status,
		FromTileID: from,
		ToTileID:   &to,
		DepartedAt: ptr(t0.Add(-30 * time.Minute)),
		ArrivesAt:  ptr(t0.Add(-time.Second)),
	}
	for _, u := range units {
		a.Units = append(a.Units, model.ArmyUnit{UnitType: u.UnitType, Quantity: u.Quantity})
	}
	require.NoError(f.t, f.db.Create(a).Error)
	return a
}

func (f *fixture) tick(playerID uint) {
	f.t.Helper()
	require.NoError(f.t, f.engine.ProcessPlayerTick(f.t.Context(), playerID))
}

func (f *fixture) resources(playerID uint) model.PlayerResources {
	f.t.Helper()
	var r model.PlayerResources
	require.NoError(f.t, f.db.First(&r, "player_id = ?", playerID).Error)
	return r
}

func (f *fixture) loadArmy(id uint) (model.Army, bool) {
	f.t.Helper()
	var a model.Army
	err := f.db.Preload("Units").Unscoped().Where("id = ?", id).Limit(1).Find(&a).Error
	require.NoError(f.t, err)
	return a, a.ID != 0
}

func (f *fixture) garrisonOf(settlementID uint) map[core.UnitType]int {
	f.t.Helper()
	var lines []model.SettlementUnit
	require.NoError(f.t, f.db.Where("settlement_id = ?", settlementID).Find(&lines).Error)
	out := map[core.UnitType]int{}
	for _, l := range lines {
		out[l.UnitType] = l.Quantity
	}
	return out
}

func (f *fixture) events(playerID uint) []model.GameEvent {
	f.t.Helper()
	var events []model.GameEvent
	require.NoError(f.t, f.db.Where("player_id = ?", playerID).Order("rowid").Find(&events).Error)
	return events
}

func (f *fixture) eventTypes(playerID uint) []core.EventType {
	f.t.Helper()
	var types []core.EventType
	for _, e := range f.events(playerID) {
		types = append(types, e.Type)
	}
	return types
}

// payload decodes the only event of type et for playerID into out.
func (f *fixture) payload(playerID uint, et core.EventType, out any) {
	f.t.Helper()
	for _, e := range f.events(playerID) {
		if e.Type == et {
			require.NoError(f.t, json.Unmarshal(e.Data, out))
			return
		}
	}
	f.t.Fatalf("no %s event for player %d", et, playerID)
}
