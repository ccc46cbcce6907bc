// Package a1 parses and formats A1-style spreadsheet references.
package a1

import (
	"fmt"
	"strconv"
	"strings"
)

// Rect is a rectangular block of cells with zero-based, inclusive bounds.
type Rect struct {
	Row1, Col1 int
	Row2, Col2 int
}

// Rows returns the number of rows covered.
func (r Rect) Rows() int { return r.Row2 - r.Row1 + 1 }

// Cols returns the number of columns covered.
func (r Rect) Cols() int { return r.Col2 - r.Col1 + 1 }

// Intersects reports whether the two rectangles share at least one cell.
func (r Rect) Intersects(o Rect) bool {
	return r.Row1 <= o.Row2 && o.Row1 <= r.Row2 && r.Col1 <= o.Col2 && o.Col1 <= r.Col2
}

// Contains reports whether the cell is inside the rectangle.
func (r Rect) Contains(row, col int) bool {
	return row >= r.Row1 && row <= r.Row2 && col >= r.Col1 && col <= r.Col2
}

// TopLeft returns the name of the first cell.
func (r Rect) TopLeft() string { return CellName(r.Row1, r.Col1) }

// String formats the rectangle as "A1" or "A1:C3".
func (r Rect) String() string {
	if r.Row1 == r.Row2 && r.Col1 == r.Col2 {
		return CellName(r.Row1, r.Col1)
	}
	return CellName(r.Row1, r.Col1) + ":" + CellName(r.Row2, r.Col2)
}

// Translate returns a rectangle of the same size anchored at the given cell.
func (r Rect) Translate(row, col int) Rect {
	return Rect{Row1: row, Col1: col, Row2: row + r.Rows() - 1, Col2: col + r.Cols() - 1}
}

// ParseRange parses "A1", "$B$2" or "A1:C3" (in either corner order).
func ParseRange(addr string) (Rect, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Rect{}, fmt.Errorf("empty range")
	}
	first, second, isRange := strings.Cut(addr, ":")
	r1, c1, err := ParseCell(first)
	if err != nil {
		return Rect{}, err
	}
	if !isRange {
		return Rect{Row1: r1, Col1: c1, Row2: r1, Col2: c1}, nil
	}
	r2, c2, err := ParseCell(second)
	if err != nil {
		return Rect{}, err
	}
	return Rect{
		Row1: min(r1, r2), Col1: min(c1, c2),
		Row2: max(r1, r2), Col2: max(c1, c2),
	}, nil
}

// ParseCell parses a single cell name into zero-based row and column.
func ParseCell(name string) (row, col int, err error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "$", ""))
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		col = col*26 + int(s[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(s) {
		return 0, 0, fmt.Errorf("invalid cell reference %q", name)
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil || n < 1 {
		return 0, 0, fmt.Errorf("invalid cell reference %q", name)
	}
	return n - 1, col - 1, nil
}

// ColumnName converts a zero-based column index to letters (0 -> "A").
func ColumnName(col int) string {
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// CellName formats a zero-based row and column as "A1".
func CellName(row, col int) string {
	return ColumnName(col) + strconv.Itoa(row+1)
}

// SplitRef splits "Sheet1!A1" or "'My Sheet'!A1:B2" into sheet and address.
// A reference without "!" has an empty sheet.
func SplitRef(ref string) (sheet, addr string) {
	idx := strings.LastIndex(ref, "!")
	if idx < 0 {
		return "", ref
	}
	sheet = ref[:idx]
	if len(sheet) >= 2 && sheet[0] == '\'' && sheet[len(sheet)-1] == '\'' {
		sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
	}
	return sheet, ref[idx+1:]
}

// JoinRef formats a sheet and address, quoting the sheet name when needed.
func JoinRef(sheet, addr string) string {
	if sheet == "" {
		return addr
	}
	return QuoteSheet(sheet) + "!" + addr
}

// QuoteSheet quotes a sheet name that contains anything but letters, digits
// and underscores.
func QuoteSheet(sheet string) string {
	for _, r := range sheet {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z') {
			return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
		}
	}
	return sheet
}
