package tick

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warhost/simcore/internal/model"
	"github.com/warhost/simcore/internal/storage"
	gormstorage "github.com/warhost/simcore/internal/storage/gorm"
	"github.com/warhost/simcore/pkg/core"
	"go.uber.org/mock/gomock"
)

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}

func TestNew_FillsDefaults(t *testing.T) {
	e, err := New(Dependencies{Store: gormstorage.New(newTestDB(t))})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), e.deps.Config)
	assert.NotNil(t, e.deps.Clock)
	assert.NotNil(t, e.deps.Rand)
}

func TestProcessPlayerTick_MissingResourcesIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	f.tick(42)
	assert.Empty(t, f.events(42))
	assert.Empty(t, f.metrics.ticks)
}

func TestProcessPlayerTick_DebounceIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.player(1)
	s := f.settlement(1, "Home", 0, 0)
	require.NoError(t, f.db.Create(&model.UnitQueue{
		SettlementID: s.ID, UnitType: core.UnitInfantry, Quantity: 4, EndsAt: t0.Add(time.Second),
	}).Error)

	f.tick(1)
	first := f.resources(1)
	assert.True(t, first.LastTickAt.Equal(t0))

	// The queue entry finishes inside the debounce window and must wait.
	f.clock.now = t0.Add(2 * time.Second)
	f.tick(1)
	second := f.resources(1)

	assert.Equal(t, first.Ore, second.Ore)
	assert.Equal(t, first.Provisions, second.Provisions)
	assert.True(t, second.LastTickAt.Equal(t0))
	assert.Empty(t, f.garrisonOf(s.ID))
	assert.Len(t, f.metrics.ticks, 1)
}

func TestAccrual_BaseProduction(t *testing.T) {
	f := newFixture(t, nil)
	f.player(1)
	f.settlement(1, "Home", 0, 0)

	f.tick(1)

	r := f.resources(1)
	assert.InDelta(t, 10.0, r.Ore, 1e-9)
	assert.InDelta(t, 12.0, r.Provisions, 1e-9)
	assert.InDelta(t, 3.0, r.Gold, 1e-9)
	assert.InDelta(t, 10.0, r.Lumber, 1e-9)
	assert.InDelta(t, 2.0, r.Mana, 1e-9)
}

func TestAccrual_FractionalTicks(t *testing.T) {
	f := newFixture(t, nil)
	f.player(1, func(r *model.PlayerResources) { r.LastTickAt = t0.Add(-90 * time.Second) })
	f.settlement(1, "Home", 0, 0)
	f.settlement(1, "Outpost", 1, 0)

	f.tick(1)

	// Two settlements over one and a half intervals.
	assert.InDelta(t, 30.0, f.resources(1).Ore, 1e-9)
}

func TestAccrual_MultipliersAndUpkeep(t *testing.T) {
	f := newFixture(t, nil)
	f.player(1, func(r *model.PlayerResources) {
		r.LastTickAt = t0.Add(-2 * DefaultTickInterval)
		r.Provisions = 100
	})
	s := f.settlement(1, "Home", 0, 0)
	require.NoError(t, f.db.Create(&model.Building{SettlementID: s.ID, Type: core.BuildingMine, Level: 2}).Error)
	require.NoError(t, f.db.Create(&model.Building{
		SettlementID: s.ID, Type: core.BuildingFarm, Level: 3,
		UpgradeStartedAt: ptr(t0.Add(-time.Hour)), UpgradeEndsAt: ptr(t0.Add(time.Hour)),
	}).Error)
	require.NoError(t, f.db.Create(&model.ResearchState{PlayerID: 1, Track: core.ResearchMetallurgy, Level: 1}).Error)
	f.garrison(s.ID, group(core.UnitInfantry, 10))
	idle := f.army(1, "Guard", core.ArmyIdle, s.TileID, s.TileID, group(core.UnitCavalry, 2))
	require.NoError(t, f.db.Model(idle).Update("arrives_at", nil).Error)

	f.tick(1)

	r := f.resources(1)
	assert.InDelta(t, 2*10*1.25*1.05, r.Ore, 1e-9)
	assert.InDelta(t, 20.0, r.Lumber, 1e-9)
	// Farm is upgrading, so only upkeep of 10 infantry and 2 cavalry applies.
	assert.InDelta(t, 100-2*(10+4), r.Provisions, 1e-9)
}

func TestAccrual_ProvisionsFloorAndCaps(t *testing.T) {
	f := newFixture(t, nil)
	f.player(1, func(r *model.PlayerResources) {
		r.Ore, r.OreCap = 10, 15
		r.Provisions = 5
	})
	s := f.settlement(1, "Home", 0, 0)
	f.garrison(s.ID, group(core.UnitHeavyInfantry, 100))

	f.tick(1)

	r := f.resources(1)
	assert.Equal(t, 15.0, r.Ore)
	assert.Equal(t, 0.0, r.Provisions)
}

func TestConstructionCompletes(t *testing.T) {
	f := newFixture(t, nil)
	f.player(1)
	s := f.settlement(1, "Home", 0, 0)
	mine := &model.Building{
		SettlementID: s.ID, Type: core.BuildingMine, Level: 1,
		UpgradeStartedAt: ptr(t0.Add(-time.Hour)), UpgradeEndsAt: ptr(t0.Add(-time.Second)),
	}
	require.NoError(t, f.db.Create(mine).Error)
	walls := &model.Defense{SettlementID: s.ID, Type: core.DefenseWalls, UpgradeEndsAt: ptr(t0)}
	require.NoError(t, f.db.Create(walls).Error)

	f.tick(1)

	var gotMine model.Building
	require.NoError(t, f.db.First(&gotMine, mine.ID).Error)
	assert.Equal(t, 2, gotMine.Level)
	assert.Nil(t, gotMine.UpgradeStartedAt)
	assert.Nil(t, gotMine.UpgradeEndsAt)

	var gotWalls model.Defense
	require.NoError(t, f.db.First(&gotWalls, walls.ID).Error)
	assert.Equal(t, 1, gotWalls.Level)

	// The mine was upgrading for the whole span.
	assert.Equal(t, 0.0, f.resources(1).Ore)

	assert.Equal(t, []core.EventType{core.EventConstructionComplete, core.EventConstructionComplete}, f.eventTypes(1))
}

func TestResearchCompletes(t *testing.T) {
	t.Run("creates track", func(t *testing.T) {
		f := newFixture(t, nil)
		f.player(1)
		require.NoError(t, f.db.Create(&model.ActiveResearch{
			PlayerID: 1, Track: core.ResearchCropMastery, StartedAt: t0.Add(-time.Hour), EndsAt: t0,
		}).Error)

		f.tick(1)

		var state model.ResearchState
		require.NoError(t, f.db.First(&state, "player_id = ? AND track = ?", 1, core.ResearchCropMastery).Error)
		assert.Equal(t, 1, state.Level)

		var active int64
		f.db.Unscoped().Model(&model.ActiveResearch{}).Count(&active)
		assert.Zero(t, active)

		var payload core.ResearchComplete
		f.payload(1, core.EventResearchComplete, &payload)
		assert.Equal(t, core.ResearchComplete{Track: core.ResearchCropMastery, Level: 1}, payload)
	})

	t.Run("increments track", func(t *testing.T) {
		f := newFixture(t, nil)
		f.player(1)
		require.NoError(t, f.db.Create(&model.ResearchState{PlayerID: 1, Track: core.ResearchForestry, Level: 2}).Error)
		require.NoError(t, f.db.Create(&model.ActiveResearch{
			PlayerID: 1, Track: core.ResearchForestry, EndsAt: t0.Add(-time.Minute),
		}).Error)

		f.tick(1)

		var state model.ResearchState
		require.NoError(t, f.db.First(&state, "player_id = ? AND track = ?", 1, core.ResearchForestry).Error)
		assert.Equal(t, 3, state.Level)
	})

	t.Run("unfinished stays active", func(t *testing.T) {
		f := newFixture(t, nil)
		f.player(1)
		require.NoError(t, f.db.Create(&model.ActiveResearch{
			PlayerID: 1, Track: core.ResearchForestry, EndsAt: t0.Add(time.Minute),
		}).Error)

		f.tick(1)

		var active int64
		f.db.Model(&model.ActiveResearch{}).Count(&active)
		assert.Equal(t, int64(1), active)
		assert.Empty(t, f.events(1))
	})
}

func TestTrainingCompletes(t *testing.T) {
	f := newFixture(t, nil)
	f.player(1)
	s := f.settlement(1, "Home", 0, 0)
	f.garrison(s.ID, group(core.UnitInfantry, 3))
	require.NoError(t, f.db.Create(&model.UnitQueue{
		SettlementID: s.ID, UnitType: core.UnitInfantry, Quantity: 5, EndsAt: t0.Add(-time.Minute),
	}).Error)
	require.NoError(t, f.db.Create(&model.UnitQueue{
		SettlementID: s.ID, UnitType: core.UnitArcher, Quantity: 2, EndsAt: t0.Add(-time.Second),
	}).Error)
	require.NoError(t, f.db.Create(&model.UnitQueue{
		SettlementID: s.ID, UnitType: core.UnitCavalry, Quantity: 2, EndsAt: t0.Add(time.Hour),
	}).Error)

	f.tick(1)

	assert.Equal(t, map[core.UnitType]int{core.UnitInfantry: 8, core.UnitArcher: 2}, f.garrisonOf(s.ID))

	var left []model.UnitQueue
	require.NoError(t, f.db.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, core.UnitCavalry, left[0].UnitType)

	assert.Equal(t, []core.EventType{core.EventTrainingComplete, core.EventTrainingComplete}, f.eventTypes(1))
	require.Len(t, f.metrics.ticks, 1)
	assert.Equal(t, 2, f.metrics.ticks[0].Completions)
}

// flakyStore fails every resource read of player fail and every resource
// save of player failSave.
type flakyStore struct {
	storage.Store
	fail     uint
	failSave uint
}

func (s flakyStore) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.Store.InTx(ctx, func(tx storage.Tx) error {
		return fn(flakyTx{Tx: tx, fail: s.fail, failSave: s.failSave})
	})
}

type flakyTx struct {
	storage.Tx
	fail     uint
	failSave uint
}

var errFlaky = errors.New("disk on fire")

func (t flakyTx) GetResources(playerID uint) (*model.PlayerResources, error) {
	if playerID == t.fail {
		return nil, errFlaky
	}
	return t.Tx.GetResources(playerID)
}

func (t flakyTx) SaveResources(r *model.PlayerResources) error {
	if r.PlayerID == t.failSave {
		return errFlaky
	}
	return t.Tx.SaveResources(r)
}

func TestProcessPlayerTick_WrapsFailure(t *testing.T) {
	db := newTestDB(t)
	e, err := New(Dependencies{
		Store: flakyStore{Store: gormstorage.New(db), fail: 1},
		Clock: &fakeClock{now: t0},
	})
	require.NoError(t, err)

	err = e.ProcessPlayerTick(context.Background(), 1)
	assert.ErrorIs(t, err, ErrTickFailed)
	assert.ErrorIs(t, err, errFlaky)
}

func TestProcessPlayerTick_LateFailureRollsBackEverything(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockReportSink(ctrl) // no Write expected

	f := newFixture(t, sink)
	before := f.player(1, func(r *model.PlayerResources) { r.Ore = 40 })
	home := f.settlement(1, "Home", 0, 0)
	tile, faction := f.npcTile(2, 2, 1, 1, false)
	raid := f.army(1, "Raiders", core.ArmyMarching, home.TileID, tile.ID,
		group(core.UnitHeavyInfantry, 200), group(core.UnitCaravan, 2))
	empty := f.tile(5, 5)
	settlers := f.army(1, "Settlers", core.ArmyMarching, home.TileID, empty.ID, group(core.UnitInfantry, 3))

	e, err := New(Dependencies{
		Store:   flakyStore{Store: gormstorage.New(f.db), failSave: 1},
		Clock:   f.clock,
		Rand:    func() float64 { return f.roll },
		Reports: sink,
		Metrics: f.metrics,
	})
	require.NoError(t, err)

	// accrual, the raid and the peaceful arrival all run before the final save
	err = e.ProcessPlayerTick(context.Background(), 1)
	require.ErrorIs(t, err, ErrTickFailed)
	require.ErrorIs(t, err, errFlaky)

	assert.Empty(t, f.events(1))

	r := f.resources(1)
	assert.Equal(t, 40.0, r.Ore)
	assert.Zero(t, r.Gold)
	assert.True(t, r.LastTickAt.Equal(before.LastTickAt))

	var stillHeld model.MapTile
	require.NoError(t, f.db.First(&stillHeld, tile.ID).Error)
	require.NotNil(t, stillHeld.NPCFactionID)
	assert.Equal(t, faction.ID, *stillHeld.NPCFactionID)

	for _, id := range []uint{raid.ID, settlers.ID} {
		got, ok := f.loadArmy(id)
		require.True(t, ok)
		assert.Equal(t, core.ArmyMarching, got.Status)
		require.NotNil(t, got.ArrivesAt)
		assert.True(t, got.ArrivesAt.Equal(t0.Add(-time.Second)))
	}
	got, _ := f.loadArmy(raid.ID)
	assert.Equal(t, 200, core.QuantityOf(got.UnitGroups(), core.UnitHeavyInfantry))

	assert.Empty(t, f.metrics.ticks)
	assert.Empty(t, f.metrics.battles)
}

func TestProcessWorldTick_IsolatesFailures(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(map[int]string{1: "sequential", 3: "pooled"}[workers], func(t *testing.T) {
			db := newTestDB(t)
			for _, id := range []uint{1, 2, 3} {
				require.NoError(t, db.Create(&model.PlayerResources{
					PlayerID: id, LastTickAt: t0.Add(-time.Minute),
				}).Error)
			}
			e, err := New(Dependencies{
				Store:  flakyStore{Store: gormstorage.New(db), fail: 2},
				Clock:  &fakeClock{now: t0},
				Config: Config{Workers: workers},
			})
			require.NoError(t, err)

			require.NoError(t, e.ProcessWorldTick(context.Background()))

			for id, want := range map[uint]time.Time{1: t0, 2: t0.Add(-time.Minute), 3: t0} {
				var r model.PlayerResources
				require.NoError(t, db.First(&r, "player_id = ?", id).Error)
				assert.True(t, r.LastTickAt.Equal(want), "player %d", id)
			}
		})
	}
}

func TestProcessWorldTick_CancelledContext(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.PlayerResources{PlayerID: 1, LastTickAt: t0.Add(-time.Minute)}).Error)
	e, err := New(Dependencies{Store: gormstorage.New(db), Clock: &fakeClock{now: t0}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.ProcessWorldTick(ctx), context.Canceled)
}
