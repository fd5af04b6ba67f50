package balance

import "github.com/warhost/simcore/pkg/core"

// NPCRatio is how many units of a type an NPC faction fields per point of strength.
type NPCRatio struct {
	UnitType    core.UnitType
	PerStrength float64
}

// NPCBaseRatios are fielded by every faction.
var NPCBaseRatios = []NPCRatio{
	{UnitType: core.UnitInfantry, PerStrength: 10},
	{UnitType: core.UnitArcher, PerStrength: 4},
	{UnitType: core.UnitCavalry, PerStrength: 2},
}

// NPCHeavyRatio is only fielded at NPCHeavyThreshold strength and above.
var NPCHeavyRatio = NPCRatio{UnitType: core.UnitHeavyInfantry, PerStrength: 3}

const (
	NPCHeavyThreshold        = 5
	NPCHideoutMultiplier     = 1.5
	NPCProvisionsPerStrength = 200.0
	NPCHideoutMaxWallLevel   = 3
)
