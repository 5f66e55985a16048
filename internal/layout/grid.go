package layout

import (
	"sort"

	"parkingo-client/internal/model"
)

// Position is a (row, col) coordinate in a layout grid.
type Position struct {
	Row int
	Col int
}

// Grid is a facility layout with its slot catalog indexed by position.
type Grid struct {
	cells [][]model.LayoutCell
	slots []model.Slot
	index map[Position]int // position -> index into slots, -1 when ambiguous
}

// New builds a grid. Slots sharing a position are kept in the catalog but
// never resolve from the grid.
func New(cells [][]model.LayoutCell, slots []model.Slot) *Grid {
	g := &Grid{
		cells: cells,
		slots: slots,
		index: make(map[Position]int, len(slots)),
	}
	for i, s := range slots {
		pos := Position{Row: s.Row, Col: s.Col}
		if _, taken := g.index[pos]; taken {
			g.index[pos] = -1
			continue
		}
		g.index[pos] = i
	}
	return g
}

// FromParking builds the grid of a facility. A facility without a layout yields an empty grid.
func FromParking(p *model.Parking) *Grid {
	if p == nil {
		return New(nil, nil)
	}
	return New(p.Layout, p.Slots)
}

// Rows returns the number of rows.
func (g *Grid) Rows() int {
	return len(g.cells)
}

// Cols returns the number of columns of the given row. Rows may be ragged.
func (g *Grid) Cols(row int) int {
	if row < 0 || row >= len(g.cells) {
		return 0
	}
	return len(g.cells[row])
}

// Cell returns the cell kind at (row, col).
func (g *Grid) Cell(row, col int) (model.LayoutCell, bool) {
	if row < 0 || row >= len(g.cells) || col < 0 || col >= len(g.cells[row]) {
		return "", false
	}
	return g.cells[row][col], true
}

// Resolve returns the slot at (row, col). It succeeds only when the cell is a
// slot cell and exactly one catalog entry sits at that position.
func (g *Grid) Resolve(row, col int) (*model.Slot, bool) {
	cell, ok := g.Cell(row, col)
	if !ok || cell != model.CellSlot {
		return nil, false
	}
	i, ok := g.index[Position{Row: row, Col: col}]
	if !ok || i < 0 {
		return nil, false
	}
	return &g.slots[i], true
}

// Interactive reports whether the cell at (row, col) can be tapped to select a slot.
func (g *Grid) Interactive(row, col int) bool {
	slot, ok := g.Resolve(row, col)
	return ok && slot.IsAvailable()
}

// SlotByName returns the first catalog slot with the given display name.
func (g *Grid) SlotByName(name string) (*model.Slot, bool) {
	for i := range g.slots {
		if g.slots[i].Name == name {
			return &g.slots[i], true
		}
	}
	return nil, false
}

// SlotByID returns the catalog slot with the given ID.
func (g *Grid) SlotByID(id int64) (*model.Slot, bool) {
	for i := range g.slots {
		if g.slots[i].ID == id {
			return &g.slots[i], true
		}
	}
	return nil, false
}

// Slots returns the catalog.
func (g *Grid) Slots() []model.Slot {
	return g.slots
}

// Duplicates returns the positions claimed by more than one slot, sorted.
func (g *Grid) Duplicates() []Position {
	var out []Position
	for pos, i := range g.index {
		if i < 0 {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Row != out[b].Row {
			return out[a].Row < out[b].Row
		}
		return out[a].Col < out[b].Col
	})
	return out
}

// Walk visits every cell in row-major order. slot is nil for cells that do not resolve.
func (g *Grid) Walk(fn func(row, col int, cell model.LayoutCell, slot *model.Slot)) {
	for r, row := range g.cells {
		for c, cell := range row {
			slot, _ := g.Resolve(r, c)
			fn(r, c, cell, slot)
		}
	}
}

// Find is the unindexed lookup: it scans the catalog for a slot at (row, col).
// It is O(len(slots)); renderers should use a Grid instead.
func Find(slots []model.Slot, row, col int) (*model.Slot, bool) {
	var found *model.Slot
	for i := range slots {
		if slots[i].Row == row && slots[i].Col == col {
			if found != nil {
				return nil, false
			}
			found = &slots[i]
		}
	}
	return found, found != nil
}
