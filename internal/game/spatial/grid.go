// Package spatial provides the uniform-cell spatial index used by the
// simulation for neighbor queries on a toroidal (wrap-around) world.
//
// Entities are referenced by integer handles into a caller-owned arena (not
// pointers) so the grid never holds on to entity memory and rebuilding it
// every tick does not allocate.
package spatial

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfiguration is returned when a grid cannot be built from the
// given bounds and cell size. Callers must fix the configuration; retrying
// with the same values fails the same way.
var ErrInvalidConfiguration = errors.New("invalid spatial grid configuration")

// MaxCells caps cols*rows so a tiny cell size cannot exhaust memory.
const MaxCells = 1 << 22

// noCell marks a handle that is not stored in any cell.
const noCell = -1

// denseSlack is how far past the stored entity count a handle may lie and
// still get a slot in the dense location table. Larger handles are tracked
// in a map so memory follows the number of entities, not the handle values.
const denseSlack = 1024

// Handle identifies an entity by its index in the caller's entity slice.
// Handles are expected to be dense (0..n-1); any uint32 is accepted, but
// sparse handles are slower to track.
type Handle uint32

// CellSize is the width and height of one grid cell in world units.
type CellSize struct {
	W, H float64
}

// Entry is one (handle, position) pair fed to Rebuild.
type Entry struct {
	Handle Handle
	X, Y   float64
}

// SpatialGrid partitions Bounds into cols×rows cells and answers windowed
// neighbor queries. The grid topology is a torus: query windows that run
// past one edge continue on the opposite edge.
//
// Memory layout: cells are stored in row-major order (cells[cy*cols+cx]).
//
// Rebuild and Insert mutate the grid; QueryRadius, QueryRadiusInto, Cell and
// Stats only read it, so any number of goroutines may query concurrently once
// a rebuild has returned, provided no rebuild or insert runs at the same time.
type SpatialGrid struct {
	bounds     Bounds
	cell       CellSize
	cols, rows int
	maxX, maxY int
	cells      [][]Handle
	located    []int32          // located[h] = flat index of the cell holding h, or noCell
	sparse     map[Handle]int32 // Same, for handles beyond len(located)
	count      int              // Handles stored
}

// NewSpatialGrid allocates one empty bucket per cell of bounds.
//
// cols = floor(width/cell.W) and rows = floor(height/cell.H); both must be at
// least 1, so a cell larger than the domain is rejected.
func NewSpatialGrid(bounds Bounds, cell CellSize) (*SpatialGrid, error) {
	if err := bounds.validate(); err != nil {
		return nil, err
	}
	if !(cell.W > 0) || !(cell.H > 0) || math.IsInf(cell.W, 0) || math.IsInf(cell.H, 0) {
		return nil, fmt.Errorf("%w: cell size %gx%g must be positive", ErrInvalidConfiguration, cell.W, cell.H)
	}

	fc := math.Floor(bounds.Width() / cell.W)
	fr := math.Floor(bounds.Height() / cell.H)
	if fc < 1 || fr < 1 {
		return nil, fmt.Errorf("%w: cell %gx%g larger than domain %gx%g",
			ErrInvalidConfiguration, cell.W, cell.H, bounds.Width(), bounds.Height())
	}
	if fc*fr > MaxCells {
		return nil, fmt.Errorf("%w: %gx%g cells exceeds limit of %d",
			ErrInvalidConfiguration, fc, fr, MaxCells)
	}
	return newSpatialGrid(bounds, cell, int(fc), int(fr)), nil
}

// NewSpatialGridFromCounts builds a grid over [0,width]×[0,height] split into
// cellsX×cellsY cells.
func NewSpatialGridFromCounts(width, height float64, cellsX, cellsY int) (*SpatialGrid, error) {
	return NewSpatialGridWithCounts(Bounds{MinX: 0, MaxX: width, MinY: 0, MaxY: height}, cellsX, cellsY)
}

// NewSpatialGridWithCounts splits bounds into exactly cellsX×cellsY cells.
// The cell size is derived from the counts rather than the other way round,
// so rounding can never drop a column or row.
func NewSpatialGridWithCounts(bounds Bounds, cellsX, cellsY int) (*SpatialGrid, error) {
	if err := bounds.validate(); err != nil {
		return nil, err
	}
	if cellsX < 1 || cellsY < 1 {
		return nil, fmt.Errorf("%w: cell counts %dx%d must be positive", ErrInvalidConfiguration, cellsX, cellsY)
	}
	if cellsX > MaxCells/cellsY {
		return nil, fmt.Errorf("%w: %dx%d cells exceeds limit of %d", ErrInvalidConfiguration, cellsX, cellsY, MaxCells)
	}
	cell := CellSize{W: bounds.Width() / float64(cellsX), H: bounds.Height() / float64(cellsY)}
	return newSpatialGrid(bounds, cell, cellsX, cellsY), nil
}

func newSpatialGrid(bounds Bounds, cell CellSize, cols, rows int) *SpatialGrid {
	cells := make([][]Handle, cols*rows)
	for i := range cells {
		cells[i] = make([]Handle, 0, 4)
	}

	return &SpatialGrid{
		bounds: bounds,
		cell:   cell,
		cols:   cols,
		rows:   rows,
		maxX:   cols - 1,
		maxY:   rows - 1,
		cells:  cells,
	}
}

// Reserve grows every bucket so that roughly maxEntities spread over the grid
// fit without reallocating during a tick.
func (g *SpatialGrid) Reserve(maxEntities int) {
	perCell := maxEntities / len(g.cells)
	if perCell < 4 {
		perCell = 4
	}
	for i, c := range g.cells {
		if cap(c) < perCell {
			g.cells[i] = make([]Handle, len(c), perCell)
			copy(g.cells[i], c)
		}
	}
	g.growLocated(maxEntities - 1)
}

// Clear resets all cells without deallocating underlying memory.
func (g *SpatialGrid) Clear() {
	for i, c := range g.cells {
		for _, h := range c {
			if int(h) < len(g.located) {
				g.located[h] = noCell
			}
		}
		g.cells[i] = c[:0] // Keep capacity, reset length
	}
	clear(g.sparse)
	g.count = 0
}

// Rebuild clears the grid and inserts every entry. Entries whose position
// maps outside the grid are left out for this tick.
func (g *SpatialGrid) Rebuild(entries []Entry) {
	g.Clear()
	for _, e := range entries {
		g.Insert(e.Handle, e.X, e.Y)
	}
}

// RebuildFunc clears the grid and inserts handles 0..n-1 at the positions
// reported by pos.
func (g *SpatialGrid) RebuildFunc(n int, pos func(i int) (x, y float64)) {
	g.Clear()
	g.growLocated(n - 1)
	for i := 0; i < n; i++ {
		x, y := pos(i)
		g.Insert(Handle(i), x, y)
	}
}

// Insert stores h in the cell containing (x, y) and reports whether it was
// stored. A handle occupies at most one cell: inserting it again elsewhere
// moves it, inserting it again into the same cell does nothing, and
// inserting it at an out-of-range position removes it from the grid.
func (g *SpatialGrid) Insert(h Handle, x, y float64) bool {
	prev := g.locate(h)

	cx, cy := g.CellIndex(x, y)
	if cx < 0 || cx > g.maxX || cy < 0 || cy > g.maxY {
		if prev != noCell {
			g.remove(int(prev), h)
			g.setLocation(h, noCell)
		}
		return false
	}
	idx := cy*g.cols + cx

	switch {
	case prev == int32(idx):
		return true
	case prev != noCell:
		g.remove(int(prev), h)
	}

	g.cells[idx] = append(g.cells[idx], h)
	g.count++
	g.setLocation(h, int32(idx))
	return true
}

// remove deletes h from cell idx by swapping in the last element.
func (g *SpatialGrid) remove(idx int, h Handle) {
	c := g.cells[idx]
	for i, v := range c {
		if v == h {
			last := len(c) - 1
			c[i] = c[last]
			g.cells[idx] = c[:last]
			g.count--
			return
		}
	}
}

func (g *SpatialGrid) locate(h Handle) int32 {
	if int(h) < len(g.located) {
		return g.located[h]
	}
	if idx, ok := g.sparse[h]; ok {
		return idx
	}
	return noCell
}

func (g *SpatialGrid) setLocation(h Handle, idx int32) {
	if int(h) >= len(g.located) && int(h) < g.count+denseSlack {
		g.growLocated(int(h))
	}
	if int(h) < len(g.located) {
		g.located[h] = idx
		return
	}
	if idx == noCell {
		delete(g.sparse, h)
		return
	}
	if g.sparse == nil {
		g.sparse = make(map[Handle]int32)
	}
	g.sparse[h] = idx
}

func (g *SpatialGrid) growLocated(h int) {
	if h < len(g.located) {
		return
	}
	n := len(g.located)
	if want := h + 1; want > 2*n {
		n = want
	} else {
		n = 2 * n
	}
	grown := make([]int32, n)
	copy(grown, g.located)
	for i := len(g.located); i < n; i++ {
		grown[i] = noCell
	}
	for h, idx := range g.sparse {
		if int(h) < n {
			grown[h] = idx
			delete(g.sparse, h)
		}
	}
	g.located = grown
}

// CellIndex maps a world position to integer cell coordinates using floor
// division, so positions left of or above the bounds give negative indices.
// The result may lie outside the grid; NaN coordinates map to -1.
func (g *SpatialGrid) CellIndex(x, y float64) (cx, cy int) {
	return floorIndex((x - g.bounds.MinX) / g.cell.W), floorIndex((y - g.bounds.MinY) / g.cell.H)
}

// floorIndex converts a cell-space coordinate to an int, saturating far
// out-of-range values instead of overflowing.
func floorIndex(v float64) int {
	f := math.Floor(v)
	switch {
	case math.IsNaN(f):
		return -1
	case f < math.MinInt32:
		return math.MinInt32
	case f > math.MaxInt32:
		return math.MaxInt32
	}
	return int(f)
}

// QueryRadius returns the handles stored in every cell touched by the square
// window [x-radius, x+radius]×[y-radius, y+radius], wrapping around the grid
// edges. The result is a fresh slice.
//
// The returned candidates may include entities outside the radius and the
// querying entity itself; the caller must perform a precise distance check.
func (g *SpatialGrid) QueryRadius(x, y, radius float64) []Handle {
	return g.QueryRadiusInto(nil, x, y, radius)
}

// QueryRadiusInto is QueryRadius appending into dst, so hot loops can reuse
// one buffer per worker.
func (g *SpatialGrid) QueryRadiusInto(dst []Handle, x, y, radius float64) []Handle {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsNaN(radius) {
		return dst
	}

	ix0, iy0 := g.CellIndex(x-radius, y-radius)
	ix1, iy1 := g.CellIndex(x+radius, y+radius)

	var colBuf, rowBuf [16]int
	cols := wrapSpan(colBuf[:0], ix0, ix1, g.maxX)
	rows := wrapSpan(rowBuf[:0], iy0, iy1, g.maxY)

	for _, cx := range cols {
		for _, cy := range rows {
			dst = append(dst, g.cells[cy*g.cols+cx]...)
		}
	}
	return dst
}

// wrapSpan appends the cell indices lo..hi after folding each one back onto
// [0, last] by a single wrap. Indices still out of range after one wrap are
// skipped, as are repeats (only possible when the span is wider than the grid).
func wrapSpan(dst []int, lo, hi, last int) []int {
	n := last + 1
	// Anything beyond one grid width past either edge never wraps into range.
	if lo < -n {
		lo = -n
	}
	if hi > 2*n-1 {
		hi = 2*n - 1
	}
	wide := hi-lo+1 > n

	for i := lo; i <= hi; i++ {
		c := i
		if c < 0 {
			c += n
		} else if c > last {
			c -= n
		}
		if c < 0 || c > last {
			continue
		}
		if wide && contains(dst, c) {
			continue
		}
		dst = append(dst, c)
	}
	return dst
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Cell returns the bucket of cell (cx, cy), or nil if the cell does not
// exist. The slice aliases grid storage and is only valid until the next
// rebuild.
func (g *SpatialGrid) Cell(cx, cy int) []Handle {
	if cx < 0 || cx > g.maxX || cy < 0 || cy > g.maxY {
		return nil
	}
	return g.cells[cy*g.cols+cx]
}

// CellRect returns the world-space rectangle covered by cell (cx, cy).
func (g *SpatialGrid) CellRect(cx, cy int) (x, y, w, h float64) {
	return g.bounds.MinX + g.cell.W*float64(cx), g.bounds.MinY + g.cell.H*float64(cy), g.cell.W, g.cell.H
}

// Occupancy appends the entity count of every cell in row-major order.
func (g *SpatialGrid) Occupancy(dst []int) []int {
	for _, c := range g.cells {
		dst = append(dst, len(c))
	}
	return dst
}

// Stats returns grid statistics for debugging/profiling.
func (g *SpatialGrid) Stats() GridStats {
	var totalEntities, maxInCell, nonEmpty int
	for _, cell := range g.cells {
		count := len(cell)
		totalEntities += count
		if count > maxInCell {
			maxInCell = count
		}
		if count > 0 {
			nonEmpty++
		}
	}

	avgPerCell := 0.0
	if nonEmpty > 0 {
		avgPerCell = float64(totalEntities) / float64(nonEmpty)
	}

	return GridStats{
		TotalCells:     len(g.cells),
		NonEmptyCells:  nonEmpty,
		TotalEntities:  totalEntities,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avgPerCell,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	TotalCells     int     `json:"totalCells" msgpack:"totalCells"`
	NonEmptyCells  int     `json:"nonEmptyCells" msgpack:"nonEmptyCells"`
	TotalEntities  int     `json:"totalEntities" msgpack:"totalEntities"`
	MaxInCell      int     `json:"maxInCell" msgpack:"maxInCell"`
	AvgPerNonEmpty float64 `json:"avgPerNonEmpty" msgpack:"avgPerNonEmpty"`
}

// Dimensions returns the grid dimensions.
func (g *SpatialGrid) Dimensions() (cols, rows int, cell CellSize) {
	return g.cols, g.rows, g.cell
}

// MaxIndex returns the last valid column and row index.
func (g *SpatialGrid) MaxIndex() (maxX, maxY int) {
	return g.maxX, g.maxY
}

// Bounds returns the world rectangle covered by the grid.
func (g *SpatialGrid) Bounds() Bounds {
	return g.bounds
}
