package route

// Edge is a weighted connection to another location in the graph.
type Edge struct {
	To     int64
	Weight float64
}

// Graph is the complete graph over a set of locations, weighted by
// DistanceTo. A Graph is never modified after construction; a changed
// location set means building a new one.
type Graph struct {
	locations map[int64]Location
	order     []int64
	edges     map[int64][]Edge
}

// NewGraph connects every ordered pair of distinct locations. When several
// locations share an ID the first one wins.
func NewGraph(locations []Location) *Graph {
	g := &Graph{
		locations: make(map[int64]Location, len(locations)),
		order:     make([]int64, 0, len(locations)),
		edges:     make(map[int64][]Edge, len(locations)),
	}

	for _, loc := range locations {
		if _, dup := g.locations[loc.ID]; dup {
			continue
		}
		g.locations[loc.ID] = loc
		g.order = append(g.order, loc.ID)
	}

	for _, from := range g.order {
		edges := make([]Edge, 0, len(g.order)-1)
		for _, to := range g.order {
			if from == to {
				continue
			}
			edges = append(edges, Edge{
				To:     to,
				Weight: g.locations[from].DistanceTo(g.locations[to]),
			})
		}
		g.edges[from] = edges
	}

	return g
}

func (g *Graph) Len() int {
	return len(g.order)
}

func (g *Graph) Has(id int64) bool {
	_, ok := g.locations[id]
	return ok
}

func (g *Graph) Location(id int64) (Location, bool) {
	loc, ok := g.locations[id]
	return loc, ok
}

// Locations returns the graph's locations in construction order.
func (g *Graph) Locations() []Location {
	locs := make([]Location, len(g.order))
	for i, id := range g.order {
		locs[i] = g.locations[id]
	}
	return locs
}

// Neighbors returns the outgoing edges of id. The slice must not be modified.
func (g *Graph) Neighbors(id int64) []Edge {
	return g.edges[id]
}
