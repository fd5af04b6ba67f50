package tick

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/warhost/simcore/internal/balance"
	"github.com/warhost/simcore/internal/combat"
	"github.com/warhost/simcore/internal/model"
	"github.com/warhost/simcore/internal/npc"
	"github.com/warhost/simcore/internal/storage"
	"github.com/warhost/simcore/pkg/core"
)

// ProtectedReason is the ArmyReturned reason for a bounced attack.
const ProtectedReason = "target settlement is under protection"

func (t *playerTick) processArrivals(armies []model.Army) error {
	for i := range armies {
		a := &armies[i]
		if a.Status != core.ArmyMarching && a.Status != core.ArmyReturning {
			continue
		}
		if !t.finished(a.ArrivesAt) {
			continue
		}
		t.stats.Arrivals++

		var err error
		if a.Status == core.ArmyReturning {
			err = t.returnHome(a)
		} else {
			err = t.arrive(a)
		}
		if err != nil {
			return fmt.Errorf("army %d: %w", a.ID, err)
		}
	}
	return nil
}

// returnHome merges a returning army into its origin garrison. When the origin
// is gone the player's first settlement takes it in; with no settlement left
// the units are lost.
func (t *playerTick) returnHome(a *model.Army) error {
	home, err := t.homeSettlement(a.FromTileID)
	if err != nil {
		return err
	}
	units := core.MergeUnits(a.UnitGroups())
	if home != nil {
		if err := t.reinforce(home.ID, units); err != nil {
			return err
		}
	}
	if a.Provisions > 0 {
		t.res.Provisions = capAt(t.res.Provisions+a.Provisions, t.res.ProvisionsCap)
	}
	if err := t.tx.DeleteArmy(a); err != nil {
		return err
	}
	return t.emit(t.playerID, fmt.Sprintf("%s returned home", a.Name),
		core.ArmyReturned{ArmyID: a.ID, Units: units})
}

func (t *playerTick) homeSettlement(tileID uint) (*model.Settlement, error) {
	s, err := t.tx.GetSettlementByTile(tileID)
	if err == nil && s.PlayerID == t.playerID {
		return s, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if len(t.settlements) == 0 {
		return nil, nil
	}
	return &t.settlements[0], nil
}

// arrive dispatches a marching army that reached its target tile.
func (t *playerTick) arrive(a *model.Army) error {
	var tileID uint
	if a.ToTileID != nil {
		tileID = *a.ToTileID
	}

	if core.TotalUnits(a.UnitGroups()) == 0 {
		if err := t.tx.DeleteArmy(a); err != nil {
			return err
		}
		return t.emit(t.playerID, fmt.Sprintf("%s disbanded with no units left", a.Name),
			core.ArmyDisbanded{ArmyID: a.ID, TileID: tileID})
	}

	tile, err := t.tx.GetTile(tileID)
	if errors.Is(err, storage.ErrNotFound) {
		return t.settle(a, tileID)
	}
	if err != nil {
		return err
	}

	var faction *model.NPCFaction
	if tile.NPCFactionID != nil {
		faction, err = t.tx.GetFaction(*tile.NPCFactionID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}

	var target *model.Settlement
	if faction == nil {
		target, err = t.tx.GetSettlementByTile(tile.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if target != nil && target.PlayerID == t.playerID {
			target = nil
		}
	}

	switch {
	case core.IsScoutMission(a.Name):
		return t.scout(a, tile, faction, target)
	case faction != nil:
		return t.raidNPC(a, tile, faction)
	case target != nil:
		return t.attackSettlement(a, tile, target)
	default:
		return t.settle(a, tile.ID)
	}
}

// settle is a peaceful arrival: the army idles at its destination. FromTileID
// is left alone, so the army still returns to the settlement it came from.
func (t *playerTick) settle(a *model.Army, tileID uint) error {
	a.Status = core.ArmyIdle
	a.ArrivesAt = nil
	if err := t.tx.SaveArmy(a); err != nil {
		return err
	}
	return t.emit(t.playerID, fmt.Sprintf("%s arrived", a.Name),
		core.ArmyArrived{ArmyID: a.ID, TileID: tileID})
}

// turnBack sends the army home with a trip as long as its outbound march.
func (t *playerTick) turnBack(a *model.Army) error {
	var outbound time.Duration
	if a.DepartedAt != nil && a.ArrivesAt != nil {
		outbound = max(a.ArrivesAt.Sub(*a.DepartedAt), 0)
	}

	departed := t.now
	arrives := t.now.Add(outbound)
	a.Status = core.ArmyReturning
	a.DepartedAt = &departed
	a.ArrivesAt = &arrives
	return t.tx.SaveArmy(a)
}

func (t *playerTick) scout(a *model.Army, tile *model.MapTile, faction *model.NPCFaction, target *model.Settlement) error {
	var estimate core.ScoutEstimate
	switch {
	case faction != nil:
		risk := float64(faction.AggressionLevel) * balance.ScoutLossPerAggression
		if t.engine.deps.Rand() < risk {
			if err := t.tx.DeleteArmy(a); err != nil {
				return err
			}
			return t.emit(t.playerID, fmt.Sprintf("%s was lost", a.Name),
				core.ScoutLost{ArmyID: a.ID, TileID: tile.ID})
		}
		estimate = npc.GenerateScoutEstimate(npcFaction(faction), tile.IsHideout)
	case target != nil:
		defender, err := t.loadDefender(target)
		if err != nil {
			return err
		}
		estimate = npc.EstimateGarrison(defender.army.Units, defender.stock(), defender.army.DefenseStructures)
	}

	if err := t.turnBack(a); err != nil {
		return err
	}
	return t.emit(t.playerID, fmt.Sprintf("%s reported back", a.Name),
		core.ScoutReport{ArmyID: a.ID, TileID: tile.ID, Estimate: estimate})
}

func npcFaction(f *model.NPCFaction) npc.Faction {
	return npc.Faction{Strength: f.Strength, AggressionLevel: f.AggressionLevel}
}

func (t *playerTick) raidNPC(a *model.Army, tile *model.MapTile, faction *model.NPCFaction) error {
	defender := npc.GenerateDefenders(npcFaction(faction), tile.IsHideout)
	result := combat.Resolve(attackerOf(a), defender)

	detail := battleDetail(a, tile.ID, result)
	detail.FactionID = faction.ID
	t.report(0, result.AttackerWins, detail)

	if !result.AttackerWins {
		if err := t.tx.DeleteArmy(a); err != nil {
			return err
		}
		return t.emit(t.playerID, fmt.Sprintf("%s was defeated by %s", a.Name, faction.Name),
			core.BattleLost{BattleDetail: detail})
	}

	if err := t.applyArmyLosses(a, result.AttackerSurvivors); err != nil {
		return err
	}
	t.credit(result.Loot)
	tile.NPCFactionID = nil
	tile.IsHideout = false
	if err := t.tx.SaveTile(tile); err != nil {
		return err
	}
	if err := t.turnBack(a); err != nil {
		return err
	}
	return t.emit(t.playerID, fmt.Sprintf("%s defeated %s", a.Name, faction.Name),
		core.BattleWon{BattleDetail: detail})
}

// defender is a player settlement assembled for combat or scouting.
type defender struct {
	settlement *model.Settlement
	resources  *model.PlayerResources
	garrison   []model.SettlementUnit
	defenses   []model.Defense
	army       combat.ArmyForCombat
}

func (d *defender) stock() core.Resources {
	if d.resources == nil {
		return core.Resources{}
	}
	return d.resources.Stock()
}

func (t *playerTick) loadDefender(s *model.Settlement) (*defender, error) {
	d := &defender{settlement: s}
	var err error

	d.resources, err = t.tx.GetResources(s.PlayerID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if d.garrison, err = t.tx.ListGarrison(s.ID); err != nil {
		return nil, err
	}
	if d.defenses, err = t.tx.ListDefenses(s.ID); err != nil {
		return nil, err
	}

	d.army = combat.ArmyForCombat{IsDefending: true}
	for _, g := range d.garrison {
		d.army.Units = append(d.army.Units, core.UnitGroup{UnitType: g.UnitType, Quantity: g.Quantity})
	}
	for _, df := range d.defenses {
		d.army.DefenseStructures = append(d.army.DefenseStructures, core.DefenseStructure{Type: df.Type, Level: df.Level})
	}
	if d.resources != nil {
		d.army.Provisions = d.resources.Provisions
		d.army.ManaReserve = d.resources.Mana
	}
	return d, nil
}

func (t *playerTick) attackSettlement(a *model.Army, tile *model.MapTile, s *model.Settlement) error {
	if s.IsProtected(t.now) {
		if err := t.turnBack(a); err != nil {
			return err
		}
		return t.emit(t.playerID, fmt.Sprintf("%s turned back from %s", a.Name, s.Name),
			core.ArmyReturned{ArmyID: a.ID, Reason: ProtectedReason})
	}

	d, err := t.loadDefender(s)
	if err != nil {
		return err
	}
	result := combat.Resolve(attackerOf(a), d.army)
	if err := t.applyGarrisonLosses(d.garrison, result.DefenderSurvivors); err != nil {
		return err
	}

	detail := battleDetail(a, tile.ID, result)
	detail.OpponentPlayerID = s.PlayerID
	defenderDetail := detail
	defenderDetail.OpponentPlayerID = t.playerID

	if !result.AttackerWins {
		t.report(s.PlayerID, false, detail)
		if err := t.tx.DeleteArmy(a); err != nil {
			return err
		}
		if err := t.emit(t.playerID, fmt.Sprintf("%s was repelled at %s", a.Name, s.Name),
			core.BattleLost{BattleDetail: detail}); err != nil {
			return err
		}
		return t.emit(s.PlayerID, fmt.Sprintf("%s repelled an attack", s.Name),
			core.SettlementDefended{BattleDetail: defenderDetail})
	}

	if err := t.applyArmyLosses(a, result.AttackerSurvivors); err != nil {
		return err
	}
	destroyed, err := t.sack(d.defenses)
	if err != nil {
		return err
	}
	protectedUntil := t.now.Add(t.engine.deps.Config.ProtectionWindow)
	s.ProtectedUntil = &protectedUntil
	if err := t.tx.SaveSettlement(s); err != nil {
		return err
	}

	loot := combat.PvPLoot(result.AttackerSurvivors, d.stock())
	if d.resources != nil {
		r := d.resources
		r.Ore = math.Max(0, r.Ore-float64(loot.Ore))
		r.Provisions = math.Max(0, r.Provisions-float64(loot.Provisions))
		r.Gold = math.Max(0, r.Gold-float64(loot.Gold))
		r.Lumber = math.Max(0, r.Lumber-float64(loot.Lumber))
		if err := t.tx.SaveResources(r); err != nil {
			return err
		}
	}
	t.credit(loot)

	detail.Loot, defenderDetail.Loot = loot, loot
	detail.DefensesDestroyed, defenderDetail.DefensesDestroyed = destroyed, destroyed
	t.report(s.PlayerID, true, detail)

	if err := t.turnBack(a); err != nil {
		return err
	}
	if err := t.emit(t.playerID, fmt.Sprintf("%s sacked %s", a.Name, s.Name),
		core.BattleWon{BattleDetail: detail}); err != nil {
		return err
	}
	return t.emit(s.PlayerID, fmt.Sprintf("%s was sacked", s.Name),
		core.SettlementAttacked{BattleDetail: defenderDetail})
}

// sack razes every defense structure and returns how many stood.
func (t *playerTick) sack(defenses []model.Defense) (int, error) {
	destroyed := 0
	for i := range defenses {
		d := &defenses[i]
		if d.Level > 0 {
			destroyed++
		}
		d.Level = 0
		d.UpgradeStartedAt, d.UpgradeEndsAt = nil, nil
		if err := t.tx.SaveDefense(d); err != nil {
			return 0, err
		}
	}
	return destroyed, nil
}

func attackerOf(a *model.Army) combat.ArmyForCombat {
	return combat.ArmyForCombat{Units: a.UnitGroups(), Provisions: a.Provisions}
}

func battleDetail(a *model.Army, tileID uint, r combat.Result) core.BattleDetail {
	return core.BattleDetail{
		ArmyID:         a.ID,
		TileID:         tileID,
		Rounds:         r.Rounds,
		AttackerLosses: r.AttackerLosses,
		DefenderLosses: r.DefenderLosses,
		Phases:         r.Phases,
		Loot:           r.Loot,
	}
}

func (t *playerTick) report(defenderID uint, attackerWins bool, detail core.BattleDetail) {
	t.stats.Battles++
	t.reports = append(t.reports, core.BattleReport{
		ID:               uuid.NewString(),
		ResolvedAt:       t.now,
		AttackerPlayerID: t.playerID,
		DefenderPlayerID: defenderID,
		AttackerWins:     attackerWins,
		Detail:           detail,
	})
}

// survivorPool hands out surviving quantities line by line.
type survivorPool map[core.UnitType]int

func newSurvivorPool(survivors []core.UnitGroup) survivorPool {
	p := survivorPool{}
	for _, g := range survivors {
		p[g.UnitType] += g.Quantity
	}
	return p
}

func (p survivorPool) take(t core.UnitType, want int) int {
	n := min(max(want, 0), p[t])
	p[t] -= n
	return n
}

// applyArmyLosses shrinks the army's unit lines to the survivors, deleting
// lines that reach zero.
func (t *playerTick) applyArmyLosses(a *model.Army, survivors []core.UnitGroup) error {
	pool := newSurvivorPool(survivors)
	kept := a.Units[:0]
	for i := range a.Units {
		u := a.Units[i]
		q := pool.take(u.UnitType, u.Quantity)
		if q == u.Quantity {
			kept = append(kept, u)
			continue
		}
		u.Quantity = q
		if q == 0 {
			if err := t.tx.DeleteArmyUnit(&u); err != nil {
				return err
			}
			continue
		}
		if err := t.tx.SaveArmyUnit(&u); err != nil {
			return err
		}
		kept = append(kept, u)
	}
	a.Units = kept
	return nil
}

// applyGarrisonLosses shrinks garrison lines to the survivors. Lines are kept
// at zero rather than deleted.
func (t *playerTick) applyGarrisonLosses(garrison []model.SettlementUnit, survivors []core.UnitGroup) error {
	pool := newSurvivorPool(survivors)
	for i := range garrison {
		g := &garrison[i]
		q := pool.take(g.UnitType, g.Quantity)
		if q == g.Quantity {
			continue
		}
		g.Quantity = q
		if err := t.tx.SaveGarrisonUnit(g); err != nil {
			return err
		}
	}
	return nil
}
