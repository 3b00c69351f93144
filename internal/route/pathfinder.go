package route

import (
	"container/heap"
	"sync"
)

// PathFinder runs A* searches over a Graph. The graph can be swapped with
// Rebuild while searches are running; each search uses the graph that was
// current when it started.
type PathFinder struct {
	mu    sync.RWMutex
	graph *Graph
}

func NewPathFinder(g *Graph) *PathFinder {
	if g == nil {
		g = NewGraph(nil)
	}
	return &PathFinder{graph: g}
}

// Rebuild replaces the graph with one built from locations.
func (p *PathFinder) Rebuild(locations []Location) {
	g := NewGraph(locations)

	p.mu.Lock()
	p.graph = g
	p.mu.Unlock()
}

func (p *PathFinder) Graph() *Graph {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.graph
}

// FindPath returns the shortest path from startID to goalID, both ends
// included. It returns [start] when the IDs are equal and an empty slice when
// either ID is unknown or the goal cannot be reached.
func (p *PathFinder) FindPath(startID, goalID int64) []Location {
	return findPath(p.Graph(), startID, goalID)
}

// searchNode is one arena slot. parent indexes the arena, -1 marks the start.
type searchNode struct {
	id     int64
	parent int
	g      float64
	h      float64
	closed bool
}

// openItem is a heap entry. An item is stale when its node has since been
// closed or reached with a lower g; stale items are skipped when popped.
type openItem struct {
	node int
	g    float64
	f    float64
	seq  int
}

type openSet []openItem

func (s openSet) Len() int { return len(s) }

func (s openSet) Less(i, j int) bool {
	if s[i].f != s[j].f {
		return s[i].f < s[j].f
	}
	return s[i].seq < s[j].seq
}

func (s openSet) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s *openSet) Push(x any) { *s = append(*s, x.(openItem)) }

func (s *openSet) Pop() any {
	old := *s
	n := len(old)
	item := old[n-1]
	*s = old[:n-1]
	return item
}

func findPath(g *Graph, startID, goalID int64) []Location {
	start, ok := g.Location(startID)
	if !ok {
		return []Location{}
	}
	goal, ok := g.Location(goalID)
	if !ok {
		return []Location{}
	}
	if startID == goalID {
		return []Location{start}
	}

	arena := []searchNode{{id: startID, parent: -1, g: 0, h: start.DistanceTo(goal)}}
	index := map[int64]int{startID: 0}
	open := &openSet{}
	seq := 0
	heap.Push(open, openItem{node: 0, g: 0, f: arena[0].h, seq: seq})

	for open.Len() > 0 {
		item := heap.Pop(open).(openItem)
		current := &arena[item.node]
		if current.closed || item.g > current.g {
			continue
		}

		if current.id == goalID {
			return reconstruct(g, arena, item.node)
		}
		current.closed = true
		currentIdx, currentG := item.node, current.g

		for _, edge := range g.Neighbors(current.id) {
			tentative := currentG + edge.Weight

			idx, seen := index[edge.To]
			if seen {
				n := &arena[idx]
				if n.closed || tentative >= n.g {
					continue
				}
				n.parent = currentIdx
				n.g = tentative
			} else {
				loc, _ := g.Location(edge.To)
				arena = append(arena, searchNode{
					id:     edge.To,
					parent: currentIdx,
					g:      tentative,
					h:      loc.DistanceTo(goal),
				})
				idx = len(arena) - 1
				index[edge.To] = idx
			}

			seq++
			heap.Push(open, openItem{node: idx, g: tentative, f: tentative + arena[idx].h, seq: seq})
		}
	}

	return []Location{}
}

func reconstruct(g *Graph, arena []searchNode, goal int) []Location {
	var path []Location
	for i := goal; i != -1; i = arena[i].parent {
		loc, _ := g.Location(arena[i].id)
		path = append(path, loc)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
