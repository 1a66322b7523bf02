// Package moduletest provides an in-memory module.Provider for tests.
package moduletest

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/unknowntrojan/signature/pkg/module"
)

// Module describes one fake module.
type Module struct {
	// Base is where Memory starts in the fake address space.
	Base uint64
	// Memory is the live content of the mapped module.
	Memory []byte
	// Image is the on-disk content of the module, nil if it has none.
	Image []byte
	// Loaded reports whether the module is mapped before anyone asks for a
	// load.
	Loaded bool
	// Unloadable makes every load attempt fail.
	Unloadable bool
	// Unreadable are ranges of Memory, as offsets from Base, that behave
	// like unmapped or no-access pages.
	Unreadable []module.Span
}

// readable returns the parts of the module outside m.Unreadable, as
// absolute addresses.
func (m *Module) readable() []module.Span {
	end := m.Base + uint64(len(m.Memory))
	res := []module.Span{}
	start := m.Base
	holes := slices.Clone(m.Unreadable)
	slices.SortFunc(holes, func(a, b module.Span) int { return cmp.Compare(a.Start, b.Start) })
	for _, h := range holes {
		if lo := m.Base + h.Start; lo > start {
			res = append(res, module.Span{Start: start, End: min(lo, end)})
		}
		start = max(start, m.Base+h.End)
	}
	if start < end {
		res = append(res, module.Span{Start: start, End: end})
	}
	return res
}

// Provider is a module.Provider over a set of fake modules. It is safe for
// concurrent use.
type Provider struct {
	mu      sync.Mutex
	modules map[string]*Module
	loads   map[string]int
	lookups map[string]int
}

func New() *Provider {
	return &Provider{
		modules: make(map[string]*Module),
		loads:   make(map[string]int),
		lookups: make(map[string]int),
	}
}

// Add registers m under name, replacing any previous module with that name.
func (p *Provider) Add(name string, m Module) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modules[name] = &m
	return p
}

// Poke overwrites live memory of a module at off.
func (p *Provider) Poke(name string, off int, data ...byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.modules[name]
	if m == nil {
		panic(fmt.Sprintf("moduletest: unknown module %s", name))
	}
	copy(m.Memory[off:], data)
}

// Loads returns how many times name was mapped on request.
func (p *Provider) Loads(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads[name]
}

// Lookups returns how many times Dynamic was called for name.
func (p *Provider) Lookups(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookups[name]
}

func (p *Provider) Dynamic(name string, load bool) (module.Region, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups[name]++
	m := p.modules[name]
	if m == nil {
		return module.Region{}, fmt.Errorf("%s: %w", name, module.ErrModuleNotFound)
	}
	if !m.Loaded {
		if !load {
			return module.Region{}, fmt.Errorf("%s: %w", name, module.ErrModuleNotLoaded)
		}
		if m.Unloadable {
			return module.Region{}, fmt.Errorf("load %s: %w", name, module.ErrModuleNotFound)
		}
		m.Loaded = true
		p.loads[name]++
	}
	return module.NewMemoryRegion(name, m.Base, m.Memory, m.readable()...), nil
}

func (p *Provider) Static(name string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.modules[name]
	if m == nil || m.Image == nil {
		return nil, fmt.Errorf("%s: %w", name, module.ErrImageNotFound)
	}
	return m.Image, nil
}

var _ module.Provider = (*Provider)(nil)
