package route

import "errors"

// ErrTooFewLocations is returned by Optimize when there is nothing to order.
var ErrTooFewLocations = errors.New("route optimization needs at least two locations")

// Optimizer orders a set of locations into a tour with the nearest-neighbour
// heuristic. The tour is not guaranteed to be the shortest one.
type Optimizer struct{}

func NewOptimizer() *Optimizer {
	return &Optimizer{}
}

// Optimize starts at the first location and repeatedly moves to the closest
// unvisited location, ties going to the one listed first. Legs are resolved
// with a PathFinder over the input set. The result contains every distinct
// input location (by ID) exactly once.
func (o *Optimizer) Optimize(locations []Location) ([]Location, error) {
	finder := NewPathFinder(NewGraph(locations))
	remaining := finder.Graph().Locations()
	if len(remaining) < 2 {
		return nil, ErrTooFewLocations
	}

	visited := make(map[int64]bool, len(remaining))
	tour := make([]Location, 0, len(remaining))
	visit := func(loc Location) {
		visited[loc.ID] = true
		tour = append(tour, loc)
	}

	current := remaining[0]
	visit(current)

	for len(tour) < len(remaining) {
		next, found := nearestUnvisited(current, remaining, visited)
		if !found {
			break
		}

		path := finder.FindPath(current.ID, next.ID)
		if len(path) == 0 {
			path = []Location{current, next}
		}
		// Intermediate stops are only possible when three locations are
		// collinear; they are consumed here so they are never listed twice.
		for _, loc := range path[1:] {
			if !visited[loc.ID] {
				visit(loc)
			}
		}
		current = next
	}

	return tour, nil
}

func nearestUnvisited(from Location, candidates []Location, visited map[int64]bool) (Location, bool) {
	var (
		best     Location
		bestDist float64
		found    bool
	)
	for _, loc := range candidates {
		if visited[loc.ID] {
			continue
		}
		d := from.DistanceTo(loc)
		if !found || d < bestDist {
			best, bestDist, found = loc, d, true
		}
	}
	return best, found
}
