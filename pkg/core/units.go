// pkg/core/units.go
package core

// UnitType identifies a trainable unit. The set is closed; anything outside
// AllUnitTypes is treated as an unknown unit with zero stats.
type UnitType string

const (
	UnitInfantry      UnitType = "INFANTRY"
	UnitArcher        UnitType = "ARCHER"
	UnitCavalry       UnitType = "CAVALRY"
	UnitHeavyInfantry UnitType = "HEAVY_INFANTRY"
	UnitScout         UnitType = "SCOUT"
	UnitCaravan       UnitType = "CARAVAN"
)

// AllUnitTypes lists every known unit type in display order.
var AllUnitTypes = []UnitType{
	UnitInfantry,
	UnitArcher,
	UnitCavalry,
	UnitHeavyInfantry,
	UnitScout,
	UnitCaravan,
}

// Valid reports whether t is one of the known unit types.
func (t UnitType) Valid() bool {
	for _, known := range AllUnitTypes {
		if t == known {
			return true
		}
	}
	return false
}

// UnitGroup is a quantity of one unit type held by an army or garrison.
type UnitGroup struct {
	UnitType UnitType `json:"unitType" yaml:"unitType"`
	Quantity int      `json:"quantity" yaml:"quantity"`
}

// TotalUnits sums quantities across groups, ignoring negative entries.
func TotalUnits(groups []UnitGroup) int {
	total := 0
	for _, g := range groups {
		if g.Quantity > 0 {
			total += g.Quantity
		}
	}
	return total
}

// MergeUnits folds groups of the same type together, preserving first-seen
// order and dropping empty groups.
func MergeUnits(groups ...[]UnitGroup) []UnitGroup {
	index := make(map[UnitType]int)
	var out []UnitGroup
	for _, list := range groups {
		for _, g := range list {
			if g.Quantity <= 0 {
				continue
			}
			if i, ok := index[g.UnitType]; ok {
				out[i].Quantity += g.Quantity
				continue
			}
			index[g.UnitType] = len(out)
			out = append(out, g)
		}
	}
	return out
}

// QuantityOf returns the total quantity of t across groups.
func QuantityOf(groups []UnitGroup, t UnitType) int {
	total := 0
	for _, g := range groups {
		if g.UnitType == t && g.Quantity > 0 {
			total += g.Quantity
		}
	}
	return total
}
