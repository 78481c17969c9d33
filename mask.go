package lattice

import (
	"github.com/kelindar/bitmap"
)

// Mask is a bitmask over the registered component list. For every live
// entity, bit j is set iff the storage of component j currently holds a
// value for that entity.
type Mask struct {
	bits bitmap.Bitmap
}

// NewMask creates an empty mask.
func NewMask() Mask {
	return Mask{bits: bitmap.Bitmap{}}
}

// maskOf builds a mask with the given component indices set.
func maskOf(indices ...int) Mask {
	m := NewMask()
	for _, i := range indices {
		m.Set(i)
	}
	return m
}

// Set sets the bit for component index i.
func (m *Mask) Set(i int) {
	m.bits.Set(uint32(i))
}

// Unset clears the bit for component index i.
func (m *Mask) Unset(i int) {
	m.bits.Remove(uint32(i))
}

// Test reports whether the bit for component index i is set.
func (m Mask) Test(i int) bool {
	return m.bits.Contains(uint32(i))
}

// Count returns the number of set bits.
func (m Mask) Count() int {
	return m.bits.Count()
}

// SubsetOf reports whether every bit set in m is also set in other.
func (m Mask) SubsetOf(other Mask) bool {
	for i, word := range m.bits {
		if word == 0 {
			continue
		}
		if i >= len(other.bits) || word&^other.bits[i] != 0 {
			return false
		}
	}
	return true
}

// Equal reports whether both masks have exactly the same bits set.
// Trailing zero words are ignored so masks built in different orders
// still compare equal.
func (m Mask) Equal(other Mask) bool {
	return m.SubsetOf(other) && other.SubsetOf(m)
}

// Clone returns an independent copy of the mask.
func (m Mask) Clone() Mask {
	return Mask{bits: m.bits.Clone(nil)}
}

// Key returns a canonical string form of the mask, usable as a map key.
// Trailing zero words are trimmed so equal masks always produce equal keys.
func (m Mask) Key() string {
	end := len(m.bits)
	for end > 0 && m.bits[end-1] == 0 {
		end--
	}
	buf := make([]byte, 0, end*8)
	for _, word := range m.bits[:end] {
		for shift := 0; shift < 64; shift += 8 {
			buf = append(buf, byte(word>>shift))
		}
	}
	return string(buf)
}

// Range calls fn for every set bit in ascending order.
func (m Mask) Range(fn func(i int)) {
	m.bits.Range(func(x uint32) {
		fn(int(x))
	})
}
