package tick

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/warhost/simcore/internal/balance"
	"github.com/warhost/simcore/internal/model"
	"github.com/warhost/simcore/internal/storage"
	"github.com/warhost/simcore/pkg/core"
	"gorm.io/datatypes"
)

// playerTick is the working state of one player's tick inside its transaction.
type playerTick struct {
	engine   *Engine
	tx       storage.Tx
	playerID uint
	now      time.Time

	res         *model.PlayerResources
	settlements []model.Settlement

	skipped bool
	reports []core.BattleReport
	stats   Stats
}

func newPlayerTick(e *Engine, tx storage.Tx, playerID uint, now time.Time) *playerTick {
	return &playerTick{engine: e, tx: tx, playerID: playerID, now: now}
}

func (t *playerTick) run() error {
	res, err := t.tx.GetResources(t.playerID)
	if errors.Is(err, storage.ErrNotFound) {
		t.skipped = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load resources: %w", err)
	}
	elapsed := t.now.Sub(res.LastTickAt)
	if elapsed < t.engine.deps.Config.Debounce {
		t.skipped = true
		return nil
	}
	t.res = res

	t.settlements, err = t.tx.ListSettlements(t.playerID)
	if err != nil {
		return fmt.Errorf("failed to load settlements: %w", err)
	}
	armies, err := t.tx.ListArmies(t.playerID)
	if err != nil {
		return fmt.Errorf("failed to load armies: %w", err)
	}

	multiplier := float64(elapsed) / float64(t.engine.deps.Config.TickInterval)
	if err := t.accrue(armies, multiplier); err != nil {
		return fmt.Errorf("accrual: %w", err)
	}
	if err := t.completeConstruction(); err != nil {
		return fmt.Errorf("construction: %w", err)
	}
	if err := t.completeResearch(); err != nil {
		return fmt.Errorf("research: %w", err)
	}
	if err := t.completeTraining(); err != nil {
		return fmt.Errorf("training: %w", err)
	}
	if err := t.processArrivals(armies); err != nil {
		return fmt.Errorf("arrivals: %w", err)
	}

	t.res.LastTickAt = t.now
	if err := t.tx.SaveResources(t.res); err != nil {
		return fmt.Errorf("failed to save resources: %w", err)
	}
	return nil
}

// capAt clamps v to limit. A limit of zero or less means uncapped.
func capAt(v, limit float64) float64 {
	if limit > 0 && v > limit {
		return limit
	}
	return v
}

// buildingFactor is the production multiplier of the settlement's building of
// type bt, or zero while any building of that type is upgrading.
func buildingFactor(buildings []model.Building, bt core.BuildingType) float64 {
	level := 0
	for _, b := range buildings {
		if b.Type != bt {
			continue
		}
		if b.Upgrading() {
			return 0
		}
		level = max(level, b.Level)
	}
	return balance.BuildingMultiplier(bt, level)
}

func (t *playerTick) accrue(armies []model.Army, multiplier float64) error {
	states, err := t.tx.ListResearch(t.playerID)
	if err != nil {
		return err
	}
	research := make(map[core.ResearchTrack]int, len(states))
	for _, s := range states {
		research[s.Track] = s.Level
	}

	var produced core.Resources
	var mana, upkeep float64
	for _, s := range t.settlements {
		buildings, err := t.tx.ListBuildings(s.ID)
		if err != nil {
			return err
		}
		produced.Ore += balance.BaseOreRate *
			buildingFactor(buildings, core.BuildingMine) *
			balance.ResearchMultiplier(core.ResearchMetallurgy, research[core.ResearchMetallurgy])
		produced.Provisions += balance.BaseProvisionsRate *
			buildingFactor(buildings, core.BuildingFarm) *
			balance.ResearchMultiplier(core.ResearchCropMastery, research[core.ResearchCropMastery])
		produced.Lumber += balance.BaseLumberRate *
			buildingFactor(buildings, core.BuildingSawmill) *
			balance.ResearchMultiplier(core.ResearchForestry, research[core.ResearchForestry])
		produced.Gold += balance.BaseGoldRate
		mana += balance.BaseManaRate

		garrison, err := t.tx.ListGarrison(s.ID)
		if err != nil {
			return err
		}
		for _, u := range garrison {
			upkeep += balance.Upkeep(u.UnitType, u.Quantity)
		}
	}
	for _, a := range armies {
		for _, u := range a.Units {
			upkeep += balance.Upkeep(u.UnitType, u.Quantity)
		}
	}

	r := t.res
	r.Ore = capAt(r.Ore+produced.Ore*multiplier, r.OreCap)
	r.Gold = capAt(r.Gold+produced.Gold*multiplier, r.GoldCap)
	r.Lumber = capAt(r.Lumber+produced.Lumber*multiplier, r.LumberCap)
	r.Mana = capAt(r.Mana+mana*multiplier, r.ManaCap)
	net := r.Provisions + (produced.Provisions-upkeep)*multiplier
	r.Provisions = capAt(math.Max(0, net), r.ProvisionsCap)
	return nil
}

func (t *playerTick) completeConstruction() error {
	for _, s := range t.settlements {
		buildings, err := t.tx.ListBuildings(s.ID)
		if err != nil {
			return err
		}
		for i := range buildings {
			b := &buildings[i]
			if !t.finished(b.UpgradeEndsAt) {
				continue
			}
			b.Level++
			b.UpgradeStartedAt, b.UpgradeEndsAt = nil, nil
			if err := t.tx.SaveBuilding(b); err != nil {
				return err
			}
			if err := t.emit(t.playerID, fmt.Sprintf("%s in %s reached level %d", b.Type, s.Name, b.Level),
				core.ConstructionComplete{SettlementID: s.ID, Structure: string(b.Type), Level: b.Level}); err != nil {
				return err
			}
			t.stats.Completions++
		}

		defenses, err := t.tx.ListDefenses(s.ID)
		if err != nil {
			return err
		}
		for i := range defenses {
			d := &defenses[i]
			if !t.finished(d.UpgradeEndsAt) {
				continue
			}
			d.Level++
			d.UpgradeStartedAt, d.UpgradeEndsAt = nil, nil
			if err := t.tx.SaveDefense(d); err != nil {
				return err
			}
			if err := t.emit(t.playerID, fmt.Sprintf("%s in %s reached level %d", d.Type, s.Name, d.Level),
				core.ConstructionComplete{SettlementID: s.ID, Structure: string(d.Type), IsDefense: true, Level: d.Level}); err != nil {
				return err
			}
			t.stats.Completions++
		}
	}
	return nil
}

func (t *playerTick) completeResearch() error {
	active, err := t.tx.GetActiveResearch(t.playerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if t.now.Before(active.EndsAt) {
		return nil
	}

	states, err := t.tx.ListResearch(t.playerID)
	if err != nil {
		return err
	}
	state := &model.ResearchState{PlayerID: t.playerID, Track: active.Track}
	for i := range states {
		if states[i].Track == active.Track {
			state = &states[i]
			break
		}
	}
	state.Level++
	if err := t.tx.SaveResearch(state); err != nil {
		return err
	}
	if err := t.tx.DeleteActiveResearch(active); err != nil {
		return err
	}
	t.stats.Completions++
	return t.emit(t.playerID, fmt.Sprintf("Research %s reached level %d", state.Track, state.Level),
		core.ResearchComplete{Track: state.Track, Level: state.Level})
}

func (t *playerTick) completeTraining() error {
	for _, s := range t.settlements {
		queue, err := t.tx.ListUnitQueue(s.ID)
		if err != nil {
			return err
		}
		for i := range queue {
			q := &queue[i]
			if t.now.Before(q.EndsAt) {
				continue
			}
			if err := t.reinforce(s.ID, []core.UnitGroup{{UnitType: q.UnitType, Quantity: q.Quantity}}); err != nil {
				return err
			}
			if err := t.tx.DeleteUnitQueue(q); err != nil {
				return err
			}
			if err := t.emit(t.playerID, fmt.Sprintf("%d %s trained in %s", q.Quantity, q.UnitType, s.Name),
				core.TrainingComplete{SettlementID: s.ID, UnitType: q.UnitType, Quantity: q.Quantity}); err != nil {
				return err
			}
			t.stats.Completions++
		}
	}
	return nil
}

// finished reports whether a pending timestamp has passed.
func (t *playerTick) finished(endsAt *time.Time) bool {
	return endsAt != nil && !t.now.Before(*endsAt)
}

// reinforce adds units to a settlement garrison, creating lines as needed.
func (t *playerTick) reinforce(settlementID uint, units []core.UnitGroup) error {
	garrison, err := t.tx.ListGarrison(settlementID)
	if err != nil {
		return err
	}
	for _, g := range core.MergeUnits(units) {
		line := &model.SettlementUnit{SettlementID: settlementID, UnitType: g.UnitType}
		for i := range garrison {
			if garrison[i].UnitType == g.UnitType {
				line = &garrison[i]
				break
			}
		}
		line.Quantity += g.Quantity
		if err := t.tx.SaveGarrisonUnit(line); err != nil {
			return err
		}
	}
	return nil
}

// credit adds loot to the ticking player's stockpile, clamped at the caps.
func (t *playerTick) credit(loot core.Loot) {
	r := t.res
	r.Ore = capAt(r.Ore+float64(loot.Ore), r.OreCap)
	r.Provisions = capAt(r.Provisions+float64(loot.Provisions), r.ProvisionsCap)
	r.Gold = capAt(r.Gold+float64(loot.Gold), r.GoldCap)
	r.Lumber = capAt(r.Lumber+float64(loot.Lumber), r.LumberCap)
}

// emit appends a typed event to a player's event log.
func (t *playerTick) emit(playerID uint, message string, payload core.EventPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", payload.EventType(), err)
	}
	t.stats.Events++
	return t.tx.AppendEvent(&model.GameEvent{
		ID:        uuid.NewString(),
		PlayerID:  playerID,
		Type:      payload.EventType(),
		Message:   message,
		Data:      datatypes.JSON(data),
		CreatedAt: t.now,
	})
}
