// Package hilbert maps address blocks onto a Hilbert curve.
//
// The top prefix defines a square grid of side 2^order, where
// order = (width - top.Bits()) / 2. Every address inside the top prefix
// lands on exactly one grid cell, and every even-length sub-block covers a
// square of cells. Odd-length blocks cover the rectangle formed by their two
// halves.
//
// Coordinates are exact uint64 grid cells. The only conversion to floating
// point is Box.Fractions, which divides by 2^order; callers must not compare
// fractions computed against different top prefixes.
package hilbert

import (
	"math"

	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"

	"lukechampine.com/uint128"
)

// Lookup tables for the bit-serial decoder. Each row is 4*state|quadrant.
const (
	xBits      = 0x936C
	yBits      = 0x39C6
	nextStates = 0x3E6B94C1
)

// diagonal is 1010... across 128 bits. Shifted right by a prefix length it
// is the offset from a square block's first address to its opposite corner.
var diagonal = uint128.New(0xAAAAAAAAAAAAAAAA, 0xAAAAAAAAAAAAAAAA)

// D2XY decodes curve index s into grid coordinates for a curve of the given
// order. Bits of s above 2*order are ignored.
func D2XY(s uint128.Uint128, order int) (x, y uint64) {
	var state uint64
	for i := 2*order - 2; i >= 0; i -= 2 {
		row := 4*state | s.Rsh(uint(i)).Lo&3
		x = x<<1 | (xBits>>row)&1
		y = y<<1 | (yBits>>row)&1
		state = (nextStates >> (2 * row)) & 3
	}
	return x, y
}

// Order returns the curve order implied by a top prefix.
func Order(top prefix.Prefix) int {
	return (top.Width() - top.Bits()) / 2
}

// XYFromIP places address value ip on the grid of top. Addresses outside the
// top prefix return (0, 0); callers that care must range-check first.
func XYFromIP(ip uint128.Uint128, top prefix.Prefix) (x, y uint64) {
	if ip.Cmp(top.Base()) < 0 || ip.Cmp(top.Last()) > 0 {
		return 0, 0
	}
	return D2XY(ip.Sub(top.Base()), Order(top))
}

// BoundingBox returns the grid cells covered by the block of length bits
// starting at first.
func BoundingBox(first uint128.Uint128, bits int, top prefix.Prefix) Box {
	width := top.Width()

	if bits >= width {
		x, y := XYFromIP(first, top)
		return Box{XMin: x, YMin: y, XMax: x, YMax: y}
	}

	if bits%2 == 0 {
		corner := first.Add(diagonal.Rsh(uint(128 - width + bits)))
		x1, y1 := XYFromIP(first, top)
		x2, y2 := XYFromIP(corner, top)
		return Box{
			XMin: min(x1, x2),
			YMin: min(y1, y2),
			XMax: max(x1, x2),
			YMax: max(y1, y2),
		}
	}

	half := bits + 1
	b1 := BoundingBox(first, half, top)
	b2 := BoundingBox(first.Add(prefix.BlockSize(width, half)), half, top)
	return b1.Union(b2)
}

// BoxOf is BoundingBox for a parsed prefix.
func BoxOf(p, top prefix.Prefix) Box {
	return BoundingBox(p.Base(), p.Bits(), top)
}

// Box is an inclusive rectangle of grid cells.
type Box struct {
	XMin uint64 `json:"xmin"`
	YMin uint64 `json:"ymin"`
	XMax uint64 `json:"xmax"`
	YMax uint64 `json:"ymax"`
}

// Union returns the smallest box holding both b and o.
func (b Box) Union(o Box) Box {
	return Box{
		XMin: min(b.XMin, o.XMin),
		YMin: min(b.YMin, o.YMin),
		XMax: max(b.XMax, o.XMax),
		YMax: max(b.YMax, o.YMax),
	}
}

// Intersects reports whether b and o share at least one cell.
func (b Box) Intersects(o Box) bool {
	return b.XMin <= o.XMax && o.XMin <= b.XMax &&
		b.YMin <= o.YMax && o.YMin <= b.YMax
}

// Covers reports whether every cell of o lies in b.
func (b Box) Covers(o Box) bool {
	return b.XMin <= o.XMin && o.XMax <= b.XMax &&
		b.YMin <= o.YMin && o.YMax <= b.YMax
}

// Less orders boxes top-to-bottom, then left-to-right.
func (b Box) Less(o Box) bool {
	if b.YMin != o.YMin {
		return b.YMin < o.YMin
	}
	return b.XMin < o.XMin
}

// Fractions scales b to the unit square of a grid of the given order. The
// returned rectangle is half-open: x0 <= x < x1.
func (b Box) Fractions(order int) (x0, y0, x1, y1 float64) {
	x0 = math.Ldexp(float64(b.XMin), -order)
	y0 = math.Ldexp(float64(b.YMin), -order)
	x1 = math.Ldexp(float64(b.XMax)+1, -order)
	y1 = math.Ldexp(float64(b.YMax)+1, -order)
	return x0, y0, x1, y1
}

// Center returns the midpoint of b as a fraction of the grid.
func (b Box) Center(order int) (cx, cy float64) {
	cx = math.Ldexp(float64(b.XMin)+float64(b.XMax)+1, -order-1)
	cy = math.Ldexp(float64(b.YMin)+float64(b.YMax)+1, -order-1)
	return cx, cy
}
