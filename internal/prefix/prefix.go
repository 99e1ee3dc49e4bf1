// Package prefix models IPv4 and IPv6 address blocks as fixed-width
// unsigned integers.
//
// A Prefix stores its network address as a 128-bit value (IPv4 uses the
// low 32 bits), its prefix length, and its address width (32 or 128).
// Host bits are always masked off, so two prefixes are equal exactly when
// their canonical strings match.
package prefix

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"lukechampine.com/uint128"
)

// Address widths.
const (
	WidthV4 = 32
	WidthV6 = 128
)

// ErrInvalid is returned for input that is not a CIDR block or address.
var ErrInvalid = errors.New("invalid prefix")

// Prefix is a masked address block.
type Prefix struct {
	base  uint128.Uint128
	bits  int
	width int
}

// Parse reads a dotted-decimal or colon-hex CIDR string. A bare address
// parses as a single-address prefix. Host bits are cleared.
func Parse(s string) (Prefix, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Prefix{}, fmt.Errorf("%w: empty input", ErrInvalid)
	}

	if !strings.Contains(s, "/") {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return Prefix{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
		}
		return FromAddr(addr, addr.BitLen()), nil
	}

	p, err := netip.ParsePrefix(s)
	if err != nil {
		return Prefix{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
	}
	return FromAddr(p.Addr(), p.Bits()), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Prefix {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// FromAddr builds a prefix from an address and a prefix length.
func FromAddr(addr netip.Addr, bits int) Prefix {
	addr = addr.WithZone("")
	if addr.Is4() {
		return New(AddrValue(addr), bits, WidthV4)
	}
	return New(AddrValue(addr), bits, WidthV6)
}

// New builds a prefix from a raw base value. The base is masked to bits and
// bits is clamped to [0, width].
func New(base uint128.Uint128, bits, width int) Prefix {
	if width != WidthV4 {
		width = WidthV6
	}
	if bits < 0 {
		bits = 0
	}
	if bits > width {
		bits = width
	}
	return Prefix{
		base:  base.And(NetMask(width, bits)),
		bits:  bits,
		width: width,
	}
}

// AddrValue converts an address to its integer value.
func AddrValue(addr netip.Addr) uint128.Uint128 {
	if addr.Is4() {
		b := addr.As4()
		return uint128.From64(uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[2])<<8 | uint64(b[3]))
	}
	b := addr.As16()
	return uint128.FromBytesBE(b[:])
}

// ValueAddr converts an integer value back to an address of the given width.
func ValueAddr(v uint128.Uint128, width int) netip.Addr {
	if width == WidthV4 {
		lo := uint32(v.Lo)
		return netip.AddrFrom4([4]byte{byte(lo >> 24), byte(lo >> 16), byte(lo >> 8), byte(lo)})
	}
	var b [16]byte
	v.PutBytesBE(b[:])
	return netip.AddrFrom16(b)
}

// HostMask returns a value with the low width-bits bits set.
func HostMask(width, bits int) uint128.Uint128 {
	n := width - bits
	switch {
	case n <= 0:
		return uint128.Zero
	case n >= 128:
		return uint128.Max
	}
	return uint128.From64(1).Lsh(uint(n)).Sub64(1)
}

// NetMask returns the network mask for bits within an address of width.
func NetMask(width, bits int) uint128.Uint128 {
	return HostMask(width, 0).Xor(HostMask(width, bits))
}

// BlockSize returns 2^(width-bits), the number of addresses in a block of
// the given length. It is only defined when width-bits < 128.
func BlockSize(width, bits int) uint128.Uint128 {
	return uint128.From64(1).Lsh(uint(width - bits))
}

// Base returns the network address as an integer.
func (p Prefix) Base() uint128.Uint128 { return p.base }

// Bits returns the prefix length.
func (p Prefix) Bits() int { return p.bits }

// Width returns the address width, 32 or 128.
func (p Prefix) Width() int { return p.width }

// IsValid reports whether p was built by this package.
func (p Prefix) IsValid() bool { return p.width == WidthV4 || p.width == WidthV6 }

// Is4 reports whether p is an IPv4 block.
func (p Prefix) Is4() bool { return p.width == WidthV4 }

// Family returns 4 or 6.
func (p Prefix) Family() int {
	if p.Is4() {
		return 4
	}
	return 6
}

// Addr returns the network address.
func (p Prefix) Addr() netip.Addr { return ValueAddr(p.base, p.width) }

// Last returns the highest address value in the block.
func (p Prefix) Last() uint128.Uint128 { return p.base.Or(HostMask(p.width, p.bits)) }

// LastAddr returns the highest address in the block.
func (p Prefix) LastAddr() netip.Addr { return ValueAddr(p.Last(), p.width) }

// String returns the canonical "address/length" form.
func (p Prefix) String() string {
	if !p.IsValid() {
		return "invalid prefix"
	}
	return netip.PrefixFrom(p.Addr(), p.bits).String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Prefix) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Prefix) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ContainsAddr reports whether the address value v lies inside p.
func (p Prefix) ContainsAddr(v uint128.Uint128) bool {
	return v.And(NetMask(p.width, p.bits)).Equals(p.base)
}

// Contains reports whether q is p or a sub-block of p.
func (p Prefix) Contains(q Prefix) bool {
	if p.width != q.width || q.bits < p.bits {
		return false
	}
	return p.ContainsAddr(q.base)
}

// Supernet returns the enclosing block of length bits. Lengths longer than
// p are clamped to p itself.
func (p Prefix) Supernet(bits int) Prefix {
	if bits > p.bits {
		bits = p.bits
	}
	return New(p.base, bits, p.width)
}

// Children returns the four sub-blocks at length bits+2 in address order.
// ok is false when p is too long to split.
func (p Prefix) Children() (children [4]Prefix, ok bool) {
	childBits := p.bits + 2
	if childBits > p.width {
		return children, false
	}
	step := BlockSize(p.width, childBits)
	for i := 0; i < 4; i++ {
		children[i] = Prefix{
			base:  p.base.Add(step.Mul64(uint64(i))),
			bits:  childBits,
			width: p.width,
		}
	}
	return children, true
}

// Compare orders prefixes by width, base address, then length.
func (p Prefix) Compare(q Prefix) int {
	if p.width != q.width {
		if p.width < q.width {
			return -1
		}
		return 1
	}
	if c := p.base.Cmp(q.base); c != 0 {
		return c
	}
	switch {
	case p.bits < q.bits:
		return -1
	case p.bits > q.bits:
		return 1
	}
	return 0
}
