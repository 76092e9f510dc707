package sim

import "math"

// Distance is the Euclidean distance between two points.
func Distance(ax, ay, bx, by float64) float64 {
	dx := bx - ax
	dy := by - ay
	return math.Sqrt(dx*dx + dy*dy)
}

// InsideDanger reports whether a player at distance d from a danger zone's
// center is caught by it. The margin widens the zone so grazing the edge
// still counts.
func InsideDanger(d, radius, margin float64) bool {
	return d <= radius+margin
}

// InsideSoak reports whether a player at distance d is soaking the zone.
// The edge itself still counts as inside.
func InsideSoak(d, radius float64) bool {
	return d <= radius
}
