package route

import "math"

// Location is a named point. Two locations are the same location when their
// IDs match.
type Location struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description"`
}

// DistanceTo is the straight-line distance between the two coordinate pairs,
// treating latitude and longitude as a flat plane. It is not a geodesic
// distance; it only needs to be consistent between edges and the search
// heuristic.
func (l Location) DistanceTo(other Location) float64 {
	return math.Hypot(l.Latitude-other.Latitude, l.Longitude-other.Longitude)
}

// TotalDistance sums the leg distances of a route.
func TotalDistance(route []Location) float64 {
	total := 0.0
	for i := 1; i < len(route); i++ {
		total += route[i-1].DistanceTo(route[i])
	}
	return total
}
