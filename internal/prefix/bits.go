package prefix

import "strings"

// Wildcard marks prefix bits beyond the prefix length in a bit string.
const Wildcard = '?'

// OctetBits renders an octet as 8 '0'/'1' characters, most significant bit first.
func OctetBits(v uint8) string {
	var b [8]byte
	for i := 7; i >= 0; i-- {
		if v&(1<<uint(i)) != 0 {
			b[7-i] = '1'
		} else {
			b[7-i] = '0'
		}
	}
	return string(b[:])
}

// Bits returns the 32-character bit string of the address.
func (a Address) Bits() string {
	var sb strings.Builder
	sb.Grow(32)
	for _, o := range a.Octets() {
		sb.WriteString(OctetBits(o))
	}
	return sb.String()
}

// Bits returns the 32-character bit string of the prefix base with every
// position past the prefix length replaced by Wildcard.
func (p Prefix) Bits() string {
	b := []byte(p.base.Bits())
	for i := p.length; i < 32; i++ {
		b[i] = Wildcard
	}
	return string(b)
}

// MatchBits compares an address bit string against a prefix bit string.
// Wildcard positions in the prefix never participate in the comparison.
func MatchBits(addrBits, prefixBits string) bool {
	if len(addrBits) != 32 || len(prefixBits) != 32 {
		return false
	}
	for i := 0; i < 32; i++ {
		if prefixBits[i] == Wildcard {
			continue
		}
		if addrBits[i] != prefixBits[i] {
			return false
		}
	}
	return true
}
