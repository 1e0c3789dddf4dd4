package network

import (
	"cmp"
	"slices"

	"github.com/arknettransit/dutyplan/pkg/polyline"
)

// OrderSegments joins unordered line segments into one path. Segments are
// linked where they share a point exactly; the result is the longest path,
// by great-circle distance, through the largest connected group. Spurs and
// disconnected pieces are dropped.
func OrderSegments(segments [][]polyline.Coordinate) []polyline.Coordinate {
	g := newSegmentGraph(segments)
	comp := g.largestComponent()
	if len(comp) == 0 {
		return nil
	}
	end, _ := g.farthest(comp[0])
	_, path := g.farthest(end)
	return path
}

// Termini returns the first and last point of path.
func Termini(path []polyline.Coordinate) (first, last polyline.Coordinate, ok bool) {
	if len(path) == 0 {
		return first, last, false
	}
	return path[0], path[len(path)-1], true
}

type segmentGraph struct {
	adj map[polyline.Coordinate][]polyline.Coordinate
	// nodes in first-seen order
	nodes []polyline.Coordinate
}

func newSegmentGraph(segments [][]polyline.Coordinate) *segmentGraph {
	g := &segmentGraph{adj: make(map[polyline.Coordinate][]polyline.Coordinate)}
	for _, seg := range segments {
		for i := 1; i < len(seg); i++ {
			g.link(seg[i-1], seg[i])
		}
	}
	for _, n := range g.nodes {
		slices.SortFunc(g.adj[n], compareCoordinates)
	}
	return g
}

func (g *segmentGraph) link(a, b polyline.Coordinate) {
	if a == b {
		return
	}
	g.add(a)
	g.add(b)
	if slices.Contains(g.adj[a], b) {
		return
	}
	g.adj[a] = append(g.adj[a], b)
	g.adj[b] = append(g.adj[b], a)
}

func (g *segmentGraph) add(c polyline.Coordinate) {
	if _, ok := g.adj[c]; ok {
		return
	}
	g.adj[c] = nil
	g.nodes = append(g.nodes, c)
}

// largestComponent returns the nodes of the biggest connected component,
// starting with its first-seen node. Ties go to the component seen first.
func (g *segmentGraph) largestComponent() []polyline.Coordinate {
	seen := make(map[polyline.Coordinate]bool, len(g.nodes))
	var best []polyline.Coordinate

	for _, n := range g.nodes {
		if seen[n] {
			continue
		}
		var comp []polyline.Coordinate
		stack := []polyline.Coordinate{n}
		seen[n] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, cur)
			for _, next := range g.adj[cur] {
				if !seen[next] {
					seen[next] = true
					stack = append(stack, next)
				}
			}
		}
		if len(comp) > len(best) {
			best = comp
		}
	}
	return best
}

// farthest walks the graph breadth-first from start, summing edge lengths
// along the walk, and returns the node with the greatest distance together
// with the path that reached it.
func (g *segmentGraph) farthest(start polyline.Coordinate) (polyline.Coordinate, []polyline.Coordinate) {
	type visit struct {
		dist float64
		prev polyline.Coordinate
		root bool
	}

	visits := map[polyline.Coordinate]visit{start: {root: true}}
	queue := []polyline.Coordinate{start}
	far, maxDist := start, 0.0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.adj[cur] {
			if _, ok := visits[next]; ok {
				continue
			}
			d := visits[cur].dist + polyline.Distance(cur, next)
			visits[next] = visit{dist: d, prev: cur}
			if d > maxDist {
				far, maxDist = next, d
			}
			queue = append(queue, next)
		}
	}

	var path []polyline.Coordinate
	for c := far; ; c = visits[c].prev {
		path = append(path, c)
		if visits[c].root {
			break
		}
	}
	slices.Reverse(path)
	return far, path
}

func compareCoordinates(a, b polyline.Coordinate) int {
	return cmp.Or(cmp.Compare(a.Lon, b.Lon), cmp.Compare(a.Lat, b.Lat))
}
