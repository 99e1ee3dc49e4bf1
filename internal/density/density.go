// Package density measures how much of an address block is covered by a set
// of announced prefixes.
//
// IPv4 is tracked as one bit per /24. IPv6 is tracked in /48 units over a
// deduplicated, base-sorted list of prefixes, so coverage of any block is a
// binary search plus a short scan.
package density

import (
	"math"
	"math/bits"
	"slices"

	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"

	"lukechampine.com/uint128"
)

const (
	v4Unit    = 24
	v6Unit    = 48
	v4Buckets = 1 << v4Unit
)

// Index answers coverage queries. The zero value is not usable; call Build.
type Index struct {
	v4      []uint64
	v4Count int

	v6    []prefix.Prefix
	v6Set map[prefix.Prefix]struct{}
}

// Build indexes prefixes. Duplicates and blocks nested in other blocks are
// folded.
func Build(prefixes []prefix.Prefix) *Index {
	ix := &Index{
		v4:    make([]uint64, v4Buckets/64),
		v6Set: make(map[prefix.Prefix]struct{}),
	}

	var v6 []prefix.Prefix
	for _, p := range prefixes {
		switch {
		case !p.IsValid():
		case p.Is4():
			ix.mark4(p)
		default:
			v6 = append(v6, p)
		}
	}
	ix.index6(v6)
	return ix
}

func slash24(p prefix.Prefix) uint64 {
	return p.Base().Lo >> (prefix.WidthV4 - v4Unit)
}

// span4 returns the /24 bucket range [lo, hi) of a v4 block.
func span4(p prefix.Prefix) (lo, hi uint64) {
	lo = slash24(p)
	if p.Bits() >= v4Unit {
		return lo, lo + 1
	}
	return lo, lo + 1<<(v4Unit-p.Bits())
}

func (ix *Index) mark4(p prefix.Prefix) {
	lo, hi := span4(p)
	for i := lo; i < hi; {
		w, b := i/64, i%64
		if b == 0 && hi-i >= 64 {
			ix.v4Count += 64 - bits.OnesCount64(ix.v4[w])
			ix.v4[w] = ^uint64(0)
			i += 64
			continue
		}
		if ix.v4[w]&(1<<b) == 0 {
			ix.v4[w] |= 1 << b
			ix.v4Count++
		}
		i++
	}
}

func (ix *Index) count4(lo, hi uint64) int {
	n := 0
	for i := lo; i < hi; {
		w, b := i/64, i%64
		if b == 0 && hi-i >= 64 {
			n += bits.OnesCount64(ix.v4[w])
			i += 64
			continue
		}
		if ix.v4[w]&(1<<b) != 0 {
			n++
		}
		i++
	}
	return n
}

func (ix *Index) index6(v6 []prefix.Prefix) {
	slices.SortFunc(v6, func(a, b prefix.Prefix) int {
		if a.Bits() != b.Bits() {
			return a.Bits() - b.Bits()
		}
		return a.Compare(b)
	})

	for _, p := range v6 {
		if ix.covered6(p) {
			continue
		}
		ix.v6Set[p] = struct{}{}
		ix.v6 = append(ix.v6, p)
	}
	slices.SortFunc(ix.v6, prefix.Prefix.Compare)
}

// covered6 reports whether p or one of its supernets is indexed.
func (ix *Index) covered6(p prefix.Prefix) bool {
	for b := 0; b <= p.Bits(); b++ {
		if _, ok := ix.v6Set[p.Supernet(b)]; ok {
			return true
		}
	}
	return false
}

func units6(n int) float64 {
	if n >= v6Unit {
		return 1
	}
	return math.Exp2(float64(v6Unit - n))
}

// Coverage returns the covered share of p in [0, 1].
func (ix *Index) Coverage(p prefix.Prefix) float64 {
	if ix == nil || !p.IsValid() {
		return 0
	}
	if p.Is4() {
		lo, hi := span4(p)
		if p.Bits() > v4Unit {
			return float64(ix.count4(lo, hi))
		}
		return float64(ix.count4(lo, hi)) / float64(hi-lo)
	}

	if ix.covered6(p) {
		return 1
	}
	first, _ := slices.BinarySearchFunc(ix.v6, p.Base(), func(d prefix.Prefix, v uint128.Uint128) int {
		return d.Base().Cmp(v)
	})
	last := p.Last()
	var sum float64
	for _, d := range ix.v6[first:] {
		if d.Base().Cmp(last) > 0 {
			break
		}
		sum += units6(d.Bits())
	}
	return min(sum/units6(p.Bits()), 1)
}

// Slash24s returns the number of IPv4 /24 networks marked.
func (ix *Index) Slash24s() int { return ix.v4Count }

// Prefixes6 returns the number of IPv6 prefixes kept after folding.
func (ix *Index) Prefixes6() int { return len(ix.v6) }
