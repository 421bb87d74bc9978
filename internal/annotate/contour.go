package annotate

import (
	"sort"
)

// Point is a polygon vertex on the pixel-corner grid: (0,0) is the top-left
// corner of the top-left pixel, so a single pixel at (x,y) is bounded by the
// ring (x,y) (x+1,y) (x+1,y+1) (x,y+1).
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Ring is a closed polygon. The closing edge from the last vertex back to the
// first is implicit. Outer rings wind clockwise in screen coordinates
// (positive shoelace sum with Y pointing down); hole rings wind the other way.
type Ring []Point

// BBox is an axis-aligned bounding box in pixel coordinates.
type BBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// BinaryMask is a boolean raster marking the pixels of one instance.
type BinaryMask struct {
	W, H int
	bits []bool
}

// NewBinaryMask creates an empty w x h mask.
func NewBinaryMask(w, h int) *BinaryMask {
	return &BinaryMask{W: w, H: h, bits: make([]bool, w*h)}
}

// At reports whether (x, y) is set. Out-of-range coordinates are false,
// which lets boundary tracing treat the image edge as outside.
func (m *BinaryMask) At(x, y int) bool {
	if x < 0 || x >= m.W || y < 0 || y >= m.H {
		return false
	}
	return m.bits[y*m.W+x]
}

// Set marks or clears pixel (x, y).
func (m *BinaryMask) Set(x, y int, v bool) {
	m.bits[y*m.W+x] = v
}

// Count returns the number of set pixels.
func (m *BinaryMask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// Shape is the geometry extracted from one instance's binary mask: its
// bounding box, true pixel area, and boundary polygons. A mask split by
// occlusion yields several outer rings; a mask with enclosed gaps yields
// hole rings.
type Shape struct {
	BBox     BBox
	Area     int
	Polygons []Ring // outer boundaries, one per connected region
	Holes    []Ring // inner boundaries of enclosed gaps
}

// TraceShape extracts the boundary geometry of a binary mask.
//
// # Algorithm
//
// Connected regions are found with an iterative flood fill (8-connected).
// For each region, every pixel side facing a non-region pixel contributes a
// directed unit edge on the pixel-corner grid, oriented so the region
// interior lies to the edge's right. Chaining edges end-to-start yields
// closed rings; at corners where two region lobes touch diagonally, the
// chain prefers the sharpest right turn so rings hug their own lobe and
// never cross. Strictly collinear intermediate vertices are merged, which
// cannot reduce a ring below its 4 corner vertices (a 1-pixel mask yields
// exactly its pixel square).
//
// Ring orientation distinguishes outer boundaries from holes via the
// shoelace sum: positive means outer, negative means hole.
//
// Area is the set-pixel count, not a polygon-derived approximation, so holes
// are excluded exactly and no rounding bias accumulates.
//
// An empty mask returns a Shape with Area 0 and no polygons.
func TraceShape(m *BinaryMask) *Shape {
	shape := &Shape{}

	minX, minY := m.W, m.H
	maxX, maxY := -1, -1
	visited := make([]bool, m.W*m.H)

	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if !m.At(x, y) {
				continue
			}
			shape.Area++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
			if !visited[y*m.W+x] {
				region := floodFill(m, visited, x, y)
				outers, holes := traceRegion(region)
				shape.Polygons = append(shape.Polygons, outers...)
				shape.Holes = append(shape.Holes, holes...)
			}
		}
	}

	if shape.Area == 0 {
		return shape
	}
	shape.BBox = BBox{X: minX, Y: minY, W: maxX - minX + 1, H: maxY - minY + 1}
	return shape
}

// region holds one 8-connected component as a set of pixel coordinates.
type region struct {
	pixels map[Point]bool
}

func (r *region) has(x, y int) bool {
	return r.pixels[Point{X: x, Y: y}]
}

// floodFill collects the 8-connected region containing (startX, startY)
// using an explicit stack, so large regions cannot overflow the goroutine
// stack.
func floodFill(m *BinaryMask, visited []bool, startX, startY int) *region {
	r := &region{pixels: make(map[Point]bool)}
	stack := []Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !m.At(p.X, p.Y) || visited[p.Y*m.W+p.X] {
			continue
		}
		visited[p.Y*m.W+p.X] = true
		r.pixels[p] = true

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nx, ny := p.X+dx, p.Y+dy
				if nx >= 0 && nx < m.W && ny >= 0 && ny < m.H && m.At(nx, ny) && !visited[ny*m.W+nx] {
					stack = append(stack, Point{X: nx, Y: ny})
				}
			}
		}
	}
	return r
}

// Directions on the corner grid, indexed clockwise in screen coordinates.
var dirs = [4]Point{{1, 0}, {0, 1}, {-1, 0}, {0, -1}} // E, S, W, N

// crackEdge is one directed unit edge of a region boundary.
type crackEdge struct {
	from Point
	dir  int // index into dirs
}

// traceRegion converts one connected region into closed boundary rings.
func traceRegion(r *region) (outers, holes []Ring) {
	// Collect directed boundary edges with the interior on the right.
	edges := make(map[Point][]int) // corner -> outgoing direction indexes
	for p := range r.pixels {
		if !r.has(p.X, p.Y-1) { // top side, heading east
			addEdge(edges, Point{p.X, p.Y}, 0)
		}
		if !r.has(p.X+1, p.Y) { // right side, heading south
			addEdge(edges, Point{p.X + 1, p.Y}, 1)
		}
		if !r.has(p.X, p.Y+1) { // bottom side, heading west
			addEdge(edges, Point{p.X + 1, p.Y + 1}, 2)
		}
		if !r.has(p.X-1, p.Y) { // left side, heading north
			addEdge(edges, Point{p.X, p.Y + 1}, 3)
		}
	}

	// Deterministic starting order regardless of map iteration.
	starts := make([]Point, 0, len(edges))
	for c := range edges {
		starts = append(starts, c)
	}
	sort.Slice(starts, func(i, j int) bool {
		if starts[i].Y != starts[j].Y {
			return starts[i].Y < starts[j].Y
		}
		return starts[i].X < starts[j].X
	})

	for _, start := range starts {
		for len(edges[start]) > 0 {
			ring := chainRing(edges, start)
			if len(ring) < 3 {
				continue
			}
			if shoelace(ring) > 0 {
				outers = append(outers, ring)
			} else {
				holes = append(holes, ring)
			}
		}
	}
	return outers, holes
}

func addEdge(edges map[Point][]int, from Point, dir int) {
	edges[from] = append(edges[from], dir)
}

// chainRing follows boundary edges from start until the loop closes,
// consuming the edges it uses and merging collinear runs as it goes.
func chainRing(edges map[Point][]int, start Point) Ring {
	var ring Ring
	cur := start
	prevDir := -1

	for {
		dir, ok := takeEdge(edges, cur, prevDir)
		if !ok {
			break
		}
		if dir != prevDir {
			ring = append(ring, cur)
		}
		cur = Point{X: cur.X + dirs[dir].X, Y: cur.Y + dirs[dir].Y}
		prevDir = dir
		if cur == start {
			break
		}
	}

	// The implicit closing edge may be collinear with the first recorded run.
	if len(ring) >= 2 && prevDir >= 0 {
		firstDir := directionOf(ring[0], ring[1])
		if firstDir == prevDir {
			ring = ring[1:]
		}
	}
	return ring
}

// takeEdge pops the outgoing edge at corner c, preferring the sharpest right
// turn relative to the incoming direction. The right-turn preference keeps
// the trace hugging its own lobe when two lobes of a region touch at a
// corner, so rings touch but never cross there.
func takeEdge(edges map[Point][]int, c Point, prevDir int) (int, bool) {
	candidates := edges[c]
	if len(candidates) == 0 {
		return 0, false
	}

	best := -1
	if prevDir < 0 {
		// No incoming direction yet; pick the lowest direction index so the
		// choice does not depend on edge collection order.
		best = 0
		for i := 1; i < len(candidates); i++ {
			if candidates[i] < candidates[best] {
				best = i
			}
		}
	} else {
		// Preference: right turn, straight, left turn.
		for _, want := range []int{(prevDir + 1) % 4, prevDir, (prevDir + 3) % 4} {
			for i, d := range candidates {
				if d == want {
					best = i
					break
				}
			}
			if best >= 0 {
				break
			}
		}
		if best < 0 {
			best = 0
		}
	}

	dir := candidates[best]
	candidates[best] = candidates[len(candidates)-1]
	edges[c] = candidates[:len(candidates)-1]
	return dir, true
}

func directionOf(a, b Point) int {
	for i, d := range dirs {
		// Collinear runs were merged, so b-a may span several unit steps.
		dx, dy := sign(b.X-a.X), sign(b.Y-a.Y)
		if d.X == dx && d.Y == dy {
			return i
		}
	}
	return -1
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// shoelace computes twice the signed polygon area. With Y pointing down,
// rings traced with the interior on the right come out positive for outer
// boundaries and negative for holes.
func shoelace(ring Ring) int {
	sum := 0
	for i, p := range ring {
		q := ring[(i+1)%len(ring)]
		sum += p.X*q.Y - q.X*p.Y
	}
	return sum
}
