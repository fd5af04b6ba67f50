// pkg/core/structures.go
package core

// DefenseType identifies a settlement defense structure.
type DefenseType string

const (
	DefenseWalls      DefenseType = "WALLS"
	DefenseGuardTower DefenseType = "GUARD_TOWER"
	DefenseWatchTower DefenseType = "WATCH_TOWER"
	DefenseBallista   DefenseType = "BALLISTA"
)

// AllDefenseTypes lists every defense structure type.
var AllDefenseTypes = []DefenseType{
	DefenseWalls,
	DefenseGuardTower,
	DefenseWatchTower,
	DefenseBallista,
}

// DefenseStructure is one defense of a settlement at a level.
type DefenseStructure struct {
	Type  DefenseType `json:"type" yaml:"type"`
	Level int         `json:"level" yaml:"level"`
}

// DefenseLevel returns the level of t in list, or 0 when absent.
func DefenseLevel(list []DefenseStructure, t DefenseType) int {
	for _, d := range list {
		if d.Type == t && d.Level > 0 {
			return d.Level
		}
	}
	return 0
}

// BuildingType identifies an economic building.
type BuildingType string

const (
	BuildingMine      BuildingType = "MINE"
	BuildingFarm      BuildingType = "FARM"
	BuildingSawmill   BuildingType = "SAWMILL"
	BuildingBarracks  BuildingType = "BARRACKS"
	BuildingWarehouse BuildingType = "WAREHOUSE"
)

// ResearchTrack identifies a research line.
type ResearchTrack string

const (
	ResearchCropMastery ResearchTrack = "CROP_MASTERY"
	ResearchForestry    ResearchTrack = "FORESTRY"
	ResearchMetallurgy  ResearchTrack = "METALLURGY"
)
