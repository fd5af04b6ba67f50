package balance

import "github.com/warhost/simcore/pkg/core"

// Base production per tick for each settlement.
const (
	BaseOreRate        = 10.0
	BaseProvisionsRate = 12.0
	BaseGoldRate       = 3.0
	BaseLumberRate     = 10.0
	BaseManaRate       = 2.0
)

var (
	mineLevels    = []float64{1.0, 1.1, 1.25, 1.4, 1.6, 1.8, 2.05, 2.3, 2.6, 2.9, 3.25}
	farmLevels    = []float64{1.0, 1.1, 1.25, 1.4, 1.6, 1.8, 2.05, 2.3, 2.6, 2.9, 3.25}
	sawmillLevels = []float64{1.0, 1.1, 1.25, 1.4, 1.6, 1.8, 2.05, 2.3, 2.6, 2.9, 3.25}

	cropMasteryLevels = []float64{1.0, 1.05, 1.1, 1.15, 1.2, 1.3}
	forestryLevels    = []float64{1.0, 1.05, 1.1, 1.15, 1.2, 1.3}
	metallurgyLevels  = []float64{1.0, 1.05, 1.1, 1.15, 1.2, 1.3}
)

func lookup(table []float64, level int) float64 {
	if level < 0 {
		level = 0
	}
	if level >= len(table) {
		level = len(table) - 1
	}
	return table[level]
}

// BuildingMultiplier returns the production multiplier of a building at level.
// Buildings that produce nothing return 1.
func BuildingMultiplier(t core.BuildingType, level int) float64 {
	switch t {
	case core.BuildingMine:
		return lookup(mineLevels, level)
	case core.BuildingFarm:
		return lookup(farmLevels, level)
	case core.BuildingSawmill:
		return lookup(sawmillLevels, level)
	default:
		return 1.0
	}
}

// ResearchMultiplier returns the production multiplier of a research track at level.
func ResearchMultiplier(t core.ResearchTrack, level int) float64 {
	switch t {
	case core.ResearchCropMastery:
		return lookup(cropMasteryLevels, level)
	case core.ResearchForestry:
		return lookup(forestryLevels, level)
	case core.ResearchMetallurgy:
		return lookup(metallurgyLevels, level)
	default:
		return 1.0
	}
}

// Upkeep returns the provisions consumed per tick by quantity units of t.
func Upkeep(t core.UnitType, quantity int) float64 {
	return Stats(t).Upkeep * float64(quantity)
}
