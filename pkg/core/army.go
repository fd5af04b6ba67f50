// pkg/core/army.go
package core

import "strings"

// ArmyStatus is the lifecycle state of a mobile army.
type ArmyStatus string

const (
	ArmyIdle      ArmyStatus = "IDLE"
	ArmyMarching  ArmyStatus = "MARCHING"
	ArmyReturning ArmyStatus = "RETURNING"
)

// ScoutTag prefixes the name of an army sent on a scouting mission.
const ScoutTag = "Scout"

// IsScoutMission reports whether an army name carries the scout tag.
func IsScoutMission(name string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(name)), strings.ToLower(ScoutTag))
}
