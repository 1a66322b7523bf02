// Package pattern implements byte signatures with wildcard slots and the
// matcher that locates them in a buffer.
package pattern

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrEmpty = errors.New("pattern is empty")

// A Slot is a single position of a Pattern: either an exact byte or a
// wildcard that accepts any byte.
type Slot struct {
	value byte
	any   bool
}

// Any matches every byte.
var Any = Slot{any: true}

// Byte returns a slot that only matches b.
func Byte(b byte) Slot {
	return Slot{value: b}
}

func (s Slot) IsAny() bool { return s.any }

// Value returns the exact byte of the slot and false for wildcards.
func (s Slot) Value() (byte, bool) {
	return s.value, !s.any
}

func (s Slot) String() string {
	if s.any {
		return "?"
	}
	return fmt.Sprintf("%02X", s.value)
}

// Pattern is an immutable, non-empty sequence of slots.
type Pattern struct {
	slots []Slot
	// index of the first exact slot, -1 when every slot is a wildcard
	anchor int
}

// New copies slots into a Pattern.
func New(slots ...Slot) (Pattern, error) {
	if len(slots) == 0 {
		return Pattern{}, ErrEmpty
	}
	p := Pattern{slots: make([]Slot, len(slots)), anchor: -1}
	copy(p.slots, slots)
	for i, s := range p.slots {
		if !s.any {
			p.anchor = i
			break
		}
	}
	return p, nil
}

// FromBytes returns a pattern without wildcards.
func FromBytes(b []byte) (Pattern, error) {
	slots := make([]Slot, len(b))
	for i, v := range b {
		slots[i] = Byte(v)
	}
	return New(slots...)
}

// Parse reads the conventional hex notation, e.g. "48 8B 05 ?? ?? ?? ??".
// Each token is two hex digits or one of "?", "??".
func Parse(s string) (Pattern, error) {
	var slots []Slot
	for _, tok := range strings.Fields(s) {
		switch tok {
		case "?", "??":
			slots = append(slots, Any)
			continue
		}
		if len(tok) != 2 {
			return Pattern{}, fmt.Errorf("bad token %q", tok)
		}
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return Pattern{}, fmt.Errorf("bad hex %q: %w", tok, err)
		}
		slots = append(slots, Byte(byte(v)))
	}
	return New(slots...)
}

// MustParse is like Parse but panics on malformed input. It is intended for
// package level signature declarations.
func MustParse(s string) Pattern {
	p, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("pattern: %q: %v", s, err))
	}
	return p
}

func (p Pattern) Len() int { return len(p.slots) }

func (p Pattern) Empty() bool { return len(p.slots) == 0 }

func (p Pattern) At(i int) Slot { return p.slots[i] }

// Slots returns a copy of the slots.
func (p Pattern) Slots() []Slot {
	res := make([]Slot, len(p.slots))
	copy(res, p.slots)
	return res
}

// Match reports whether p matches buf at off.
func (p Pattern) Match(buf []byte, off int) bool {
	if off < 0 || off+len(p.slots) > len(buf) {
		return false
	}
	for i, s := range p.slots {
		if s.any {
			continue
		}
		if buf[off+i] != s.value {
			return false
		}
	}
	return true
}

// String renders p in the notation accepted by Parse, using "?" for
// wildcards.
func (p Pattern) String() string {
	parts := make([]string, len(p.slots))
	for i, s := range p.slots {
		parts[i] = s.String()
	}
	return strings.Join(parts, " ")
}
