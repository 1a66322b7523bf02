package signature

import (
	"fmt"

	"github.com/unknowntrojan/signature/pkg/pattern"
)

const kindDynamic = "dynamic"

// Dynamic is a signature that scans the live module for its pattern.
//
// The scan covers the whole module and happens on the first successful
// Resolve only. It keeps working across updates of the target as long as the
// bytes around the location do not change.
type Dynamic struct {
	module  string
	pattern pattern.Pattern
	addr    cache
	opts    options
}

func NewDynamic(moduleName string, p pattern.Pattern, opts ...Option) *Dynamic {
	return &Dynamic{
		module:  moduleName,
		pattern: p,
		opts:    newOptions(opts),
	}
}

// MustDynamic parses text with pattern.Parse and panics if it is malformed.
//
//	var present = signature.MustDynamic("libgame.so", "48 8B 05 ?? ?? ?? ?? 48 85 C0")
func MustDynamic(moduleName, text string, opts ...Option) *Dynamic {
	return NewDynamic(moduleName, pattern.MustParse(text), opts...)
}

func (s *Dynamic) Module() string { return s.module }

func (s *Dynamic) Pattern() pattern.Pattern { return s.pattern }

func (s *Dynamic) Resolve() (Address, bool) {
	if addr, ok := s.addr.get(); ok {
		return addr, true
	}
	addr, err := s.resolve()
	s.opts.observe(kindDynamic, s.module, err)
	if err != nil {
		return 0, false
	}
	return s.addr.set(addr), true
}

func (s *Dynamic) resolve() (Address, error) {
	if s.pattern.Empty() {
		return 0, fmt.Errorf("%s: %w", s.module, pattern.ErrEmpty)
	}
	region, err := s.opts.region(s.module)
	if err != nil {
		return 0, err
	}
	// matches never span a gap between readable parts of the module
	for _, span := range region.Readable() {
		memory, err := region.Bytes(span)
		if err != nil {
			return 0, err
		}
		s.opts.metrics().ScannedBytes.WithLabelValues(s.module).Add(float64(len(memory)))
		if off, ok := pattern.Find(memory, s.pattern); ok {
			addr := Address(span.Start + uint64(off))
			if addr == 0 {
				return 0, errNullAddress
			}
			return addr, nil
		}
	}
	return 0, fmt.Errorf("%s in %s: %w", s.pattern, region, ErrPatternNotFound)
}

func (s *Dynamic) String() string {
	return fmt.Sprintf("Dynamic [ %s ] @ %s => %s", s.pattern, s.module, s.addr.String())
}
