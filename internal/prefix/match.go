// Package prefix parses dotted-quad IPv4 addresses and CIDR prefixes and
// decides whether a prefix covers an address.
package prefix

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrParse is wrapped by every address or prefix parse failure.
var ErrParse = errors.New("parse failure")

// Address is an IPv4 address in host byte order.
type Address uint32

// Prefix is an IPv4 base address with a prefix length in [0,32].
type Prefix struct {
	base   Address
	length int
}

// ParseAddress parses exactly four dotted decimal octets.
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("%w: address %q: want 4 dotted octets, got %d", ErrParse, s, len(parts))
	}
	var a uint32
	for _, part := range parts {
		o, err := parseOctet(part)
		if err != nil {
			return 0, fmt.Errorf("%w: address %q: %v", ErrParse, s, err)
		}
		a = a<<8 | uint32(o)
	}
	return Address(a), nil
}

// ParsePrefix parses "A.B.C.D/len". The base may carry host bits; they are
// ignored by Contains.
func ParsePrefix(s string) (Prefix, error) {
	addr, lenStr, ok := strings.Cut(s, "/")
	if !ok {
		return Prefix{}, fmt.Errorf("%w: prefix %q: missing /length", ErrParse, s)
	}
	base, err := ParseAddress(addr)
	if err != nil {
		return Prefix{}, fmt.Errorf("%w: prefix %q: bad base address", ErrParse, s)
	}
	n, err := strconv.Atoi(lenStr)
	if err != nil || n < 0 || n > 32 {
		return Prefix{}, fmt.Errorf("%w: prefix %q: length must be 0..32", ErrParse, s)
	}
	return Prefix{base: base, length: n}, nil
}

func parseOctet(s string) (uint8, error) {
	if s == "" || len(s) > 3 {
		return 0, fmt.Errorf("octet %q out of range", s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("octet %q is not decimal", s)
		}
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("octet %q out of range", s)
	}
	return uint8(v), nil
}

// Octets returns the four octets, most significant first.
func (a Address) Octets() [4]uint8 {
	return [4]uint8{uint8(a >> 24), uint8(a >> 16), uint8(a >> 8), uint8(a)}
}

func (a Address) String() string {
	o := a.Octets()
	return fmt.Sprintf("%d.%d.%d.%d", o[0], o[1], o[2], o[3])
}

// Len returns the prefix length.
func (p Prefix) Len() int { return p.length }

// Base returns the prefix base address as written, host bits included.
func (p Prefix) Base() Address { return p.base }

func (p Prefix) String() string {
	return fmt.Sprintf("%s/%d", p.base, p.length)
}

func (p Prefix) mask() uint32 {
	if p.length == 0 {
		return 0
	}
	return ^uint32(0) << uint(32-p.length)
}

// Contains reports whether the first Len() bits of a equal those of the base.
func (p Prefix) Contains(a Address) bool {
	m := p.mask()
	return uint32(a)&m == uint32(p.base)&m
}

// Matches reports whether the CIDR prefix covers addr. A parse failure of
// either operand is returned as an error, never as a false match.
func Matches(addr, cidr string) (bool, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return false, err
	}
	p, err := ParsePrefix(cidr)
	if err != nil {
		return false, err
	}
	return p.Contains(a), nil
}
