package signature

import (
	"fmt"
	"strconv"
)

const kindStatic = "static"

// Triple is the output of the build-time resolver: the module, the offset of
// the location from the module base and the byte found there when the
// offset was computed.
type Triple struct {
	Module string
	Offset uint64
	Sanity byte
}

// GoString renders t as a Go composite literal, the form emitted by sigc.
func (t Triple) GoString() string {
	return fmt.Sprintf("signature.Triple{Module: %s, Offset: 0x%x, Sanity: 0x%02x}",
		strconv.Quote(t.Module), t.Offset, t.Sanity)
}

// Static is a signature resolved ahead of time. Resolve only reads the
// sanity byte at base+offset, so it breaks (returns false) when the target
// changes layout, rather than pointing at the wrong code.
type Static struct {
	triple Triple
	addr   cache
	opts   options
}

func NewStatic(t Triple, opts ...Option) *Static {
	return &Static{
		triple: t,
		opts:   newOptions(opts),
	}
}

func (s *Static) Triple() Triple { return s.triple }

func (s *Static) Resolve() (Address, bool) {
	if addr, ok := s.addr.get(); ok {
		return addr, true
	}
	addr, err := s.resolve()
	s.opts.observe(kindStatic, s.triple.Module, err)
	if err != nil {
		return 0, false
	}
	return s.addr.set(addr), true
}

func (s *Static) resolve() (Address, error) {
	region, err := s.opts.region(s.triple.Module)
	if err != nil {
		return 0, err
	}
	// ByteAt refuses offsets past the end of the region
	b, err := region.ByteAt(s.triple.Offset)
	if err != nil {
		return 0, err
	}
	if b != s.triple.Sanity {
		return 0, fmt.Errorf("%s+0x%x: got 0x%02x, want 0x%02x: %w",
			s.triple.Module, s.triple.Offset, b, s.triple.Sanity, ErrSanityMismatch)
	}
	addr := Address(region.Base + s.triple.Offset)
	if addr == 0 {
		return 0, errNullAddress
	}
	return addr, nil
}

func (s *Static) String() string {
	return fmt.Sprintf("Static [ 0x%X/%02X ] @ %s => %s", s.triple.Offset, s.triple.Sanity, s.triple.Module, s.addr.String())
}
