package pattern

import "bytes"

// Find returns the offset of the first position in haystack where p matches
// contiguously.
func Find(haystack []byte, p Pattern) (int, bool) {
	n := len(p.slots)
	if n == 0 || n > len(haystack) {
		return 0, false
	}
	last := len(haystack) - n
	if p.anchor < 0 {
		return 0, true
	}
	anchor := p.slots[p.anchor].value
	for off := 0; off <= last; {
		// candidate positions are those where the anchor byte lines up
		i := bytes.IndexByte(haystack[off+p.anchor:last+p.anchor+1], anchor)
		if i < 0 {
			return 0, false
		}
		off += i
		if p.Match(haystack, off) {
			return off, true
		}
		off++
	}
	return 0, false
}
