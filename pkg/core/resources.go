// pkg/core/resources.go
package core

// Resources is a bundle of the four lootable resources.
type Resources struct {
	Ore        float64 `json:"ore"`
	Provisions float64 `json:"provisions"`
	Gold       float64 `json:"gold"`
	Lumber     float64 `json:"lumber"`
}

// Total returns the sum of all four resources.
func (r Resources) Total() float64 {
	return r.Ore + r.Provisions + r.Gold + r.Lumber
}

// IsZero reports whether nothing is held.
func (r Resources) IsZero() bool {
	return r.Ore == 0 && r.Provisions == 0 && r.Gold == 0 && r.Lumber == 0
}

// Loot is the integer plunder taken by a winning attacker.
type Loot struct {
	Ore        int `json:"ore"`
	Provisions int `json:"provisions"`
	Gold       int `json:"gold"`
	Lumber     int `json:"lumber"`
}

// Total returns the sum of all looted resources.
func (l Loot) Total() int {
	return l.Ore + l.Provisions + l.Gold + l.Lumber
}
