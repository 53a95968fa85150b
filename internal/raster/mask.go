package raster

// Mask is a row-major validity grid: true marks a cell inside the region of
// interest.
type Mask struct {
	Rows  int
	Cols  int
	cells []bool
}

// NewMask creates an all-false mask with the given dimensions.
func NewMask(rows, cols int) *Mask {
	return &Mask{Rows: rows, Cols: cols, cells: make([]bool, rows*cols)}
}

// At returns the mask value at (row, col).
// Returns false for coordinates outside the mask bounds.
func (m *Mask) At(row, col int) bool {
	if row < 0 || row >= m.Rows || col < 0 || col >= m.Cols {
		return false
	}
	return m.cells[row*m.Cols+col]
}

// Set sets the mask value at (row, col).
// Coordinates outside the mask bounds are ignored.
func (m *Mask) Set(row, col int, v bool) {
	if row < 0 || row >= m.Rows || col < 0 || col >= m.Cols {
		return
	}
	m.cells[row*m.Cols+col] = v
}

// Count returns the number of true cells.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.cells {
		if v {
			n++
		}
	}
	return n
}

// Any reports whether at least one cell is true.
func (m *Mask) Any() bool {
	for _, v := range m.cells {
		if v {
			return true
		}
	}
	return false
}

// Equal reports whether both masks have the same shape and cells.
func (m *Mask) Equal(o *Mask) bool {
	if m.Rows != o.Rows || m.Cols != o.Cols {
		return false
	}
	for i := range m.cells {
		if m.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

// row returns the slice backing one mask row.
func (m *Mask) row(r int) []bool {
	return m.cells[r*m.Cols : (r+1)*m.Cols]
}
