// Package module locates loaded modules in a process and their images on
// disk.
package module

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"
)

var (
	ErrModuleNotFound  = errors.New("module not found")
	ErrModuleNotLoaded = errors.New("module not loaded")
	ErrImageNotFound   = errors.New("module image not found")
	ErrUnsupported     = errors.New("unsupported on this platform")
	ErrOutOfRange      = errors.New("address outside of module region")
)

// Provider gives access to the live memory and to the file image of named
// modules.
type Provider interface {
	// Dynamic returns the live memory region of the module, mapping it first
	// when load is set and the module is not present yet.
	Dynamic(name string, load bool) (Region, error)
	// Static returns the raw bytes of the module's file image.
	Static(name string) ([]byte, error)
}

// Span is the address range [Start, End).
type Span struct {
	Start, End uint64
}

func (s Span) Len() uint64 { return s.End - s.Start }

// Region is the span of a module mapped into a process. Reads are addressed
// by absolute address and only succeed inside the readable spans of the
// module. Holes between mappings and pages without read access fail with
// ErrOutOfRange.
type Region struct {
	Module string
	Path   string
	Base   uint64
	Size   uint64

	readable []Span
	mem      io.ReaderAt
}

// NewRegion returns a region backed by mem, which is read at absolute
// addresses. readable lists the spans that may be read, nil means the whole
// region. Spans are clipped to the region, sorted and merged.
func NewRegion(module, path string, base, size uint64, readable []Span, mem io.ReaderAt) Region {
	if readable == nil {
		readable = []Span{{Start: base, End: base + size}}
	}
	return Region{
		Module:   module,
		Path:     path,
		Base:     base,
		Size:     size,
		readable: mergeSpans(readable, Span{Start: base, End: base + size}),
		mem:      mem,
	}
}

// NewMemoryRegion returns a region whose memory is data, placed at base.
// Without readable spans all of data can be read.
func NewMemoryRegion(module string, base uint64, data []byte, readable ...Span) Region {
	return NewRegion(module, "", base, uint64(len(data)), readable, &bufferAt{base: base, data: data})
}

func mergeSpans(spans []Span, bounds Span) []Span {
	res := make([]Span, 0, len(spans))
	for _, s := range spans {
		s.Start, s.End = max(s.Start, bounds.Start), min(s.End, bounds.End)
		if s.Start < s.End {
			res = append(res, s)
		}
	}
	slices.SortFunc(res, func(a, b Span) int { return cmp.Compare(a.Start, b.Start) })
	merged := res[:0]
	for _, s := range res {
		if n := len(merged); n > 0 && s.Start <= merged[n-1].End {
			merged[n-1].End = max(merged[n-1].End, s.End)
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func (r Region) Valid() bool {
	return r.mem != nil && r.Size != 0
}

func (r Region) End() uint64 {
	return r.Base + r.Size
}

func (r Region) Contains(addr uint64) bool {
	return addr >= r.Base && addr < r.End()
}

// Readable returns the sorted, non-adjacent spans of the region that can be
// read.
func (r Region) Readable() []Span {
	return slices.Clone(r.readable)
}

// canRead reports whether all of [addr, addr+n) lies in one readable span.
func (r Region) canRead(addr, n uint64) bool {
	for _, s := range r.readable {
		if addr >= s.Start && addr < s.End {
			return n <= s.End-addr
		}
	}
	return false
}

// ReadAt reads len(p) bytes at the absolute address addr.
func (r Region) ReadAt(p []byte, addr uint64) (int, error) {
	if r.mem == nil {
		return 0, fmt.Errorf("%s: %w", r.Module, ErrModuleNotLoaded)
	}
	if !r.canRead(addr, uint64(len(p))) {
		return 0, fmt.Errorf("%s: 0x%x+%d: %w", r.Module, addr, len(p), ErrOutOfRange)
	}
	return r.mem.ReadAt(p, int64(addr))
}

// ByteAt reads the byte at offset off from the region base.
func (r Region) ByteAt(off uint64) (byte, error) {
	if off >= r.Size {
		return 0, fmt.Errorf("%s: offset 0x%x size 0x%x: %w", r.Module, off, r.Size, ErrOutOfRange)
	}
	var b [1]byte
	if _, err := r.ReadAt(b[:], r.Base+off); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Bytes reads the span s of the region.
func (r Region) Bytes(s Span) ([]byte, error) {
	res := make([]byte, s.Len())
	if _, err := r.ReadAt(res, s.Start); err != nil {
		return nil, err
	}
	return res, nil
}

func (r Region) String() string {
	return fmt.Sprintf("%s [0x%x-0x%x]", r.Module, r.Base, r.End())
}

type bufferAt struct {
	base uint64
	data []byte
}

func (b *bufferAt) ReadAt(p []byte, off int64) (int, error) {
	addr := uint64(off)
	if addr < b.base || addr-b.base > uint64(len(b.data)) {
		return 0, ErrOutOfRange
	}
	n := copy(p, b.data[addr-b.base:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func errorType(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrModuleNotFound):
		return "not_found"
	case errors.Is(err, ErrImageNotFound):
		return "not_found"
	case errors.Is(err, ErrModuleNotLoaded):
		return "not_loaded"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, fs.ErrPermission):
		return "permission"
	}
	return "other"
}
