//go:build windows

package module

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"golang.org/x/sys/windows"
)

// Process provides modules of a running process through the toolhelp module
// snapshot and ReadProcessMemory.
type Process struct {
	logger  log.Logger
	pid     uint32
	self    bool
	handle  windows.Handle
	images  *Images
	metrics *Metrics

	mu     sync.Mutex
	loaded map[string]windows.Handle
}

type moduleEntry struct {
	name string
	path string
	base uint64
	size uint64
}

const readableProtect = windows.PAGE_READONLY | windows.PAGE_READWRITE | windows.PAGE_WRITECOPY |
	windows.PAGE_EXECUTE_READ | windows.PAGE_EXECUTE_READWRITE | windows.PAGE_EXECUTE_WRITECOPY

func NewProcess(logger log.Logger, cfg Config, reg prometheus.Registerer) (*Process, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	current := windows.GetCurrentProcessId()
	pid := uint32(cfg.PID)
	self := pid == 0 || pid == current
	if pid == 0 {
		pid = current
	}
	handle := windows.CurrentProcess()
	if !self {
		h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, pid)
		if err != nil {
			return nil, fmt.Errorf("open process %d: %w", pid, err)
		}
		handle = h
	}
	metrics := NewMetrics(reg)
	images, err := NewImages(logger, afero.NewOsFs(), cfg, metrics)
	if err != nil {
		if !self {
			_ = windows.CloseHandle(handle)
		}
		return nil, err
	}
	return &Process{
		logger:  logger,
		pid:     pid,
		self:    self,
		handle:  handle,
		images:  images,
		metrics: metrics,
		loaded:  make(map[string]windows.Handle),
	}, nil
}

func (p *Process) Dynamic(name string, load bool) (Region, error) {
	e, ok, err := p.find(name)
	if err != nil {
		return Region{}, err
	}
	if !ok {
		if !load {
			return Region{}, fmt.Errorf("%s: %w", name, ErrModuleNotLoaded)
		}
		if e, err = p.load(name); err != nil {
			return Region{}, err
		}
	}
	readable, err := p.readable(e.base, e.base+e.size)
	if err != nil {
		return Region{}, err
	}
	return NewRegion(e.name, e.path, e.base, e.size, readable, processMemory{handle: p.handle}), nil
}

func (p *Process) Static(name string) ([]byte, error) {
	e, ok, err := p.find(name)
	if err == nil && ok && e.path != "" {
		return p.images.Read(e.path)
	}
	return p.images.Static(name)
}

// Close releases the modules loaded by Dynamic and the process handle.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for name, h := range p.loaded {
		if err := windows.FreeLibrary(h); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("free %s: %w", name, err)
		}
		delete(p.loaded, name)
	}
	if !p.self && p.handle != 0 {
		if err := windows.CloseHandle(p.handle); err != nil && firstErr == nil {
			firstErr = err
		}
		p.handle = 0
	}
	return firstErr
}

// find looks name up in a module snapshot of the process. Names are
// compared without case against the module name and the full image path.
func (p *Process) find(name string) (moduleEntry, bool, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, p.pid)
	if err != nil {
		return moduleEntry{}, false, fmt.Errorf("snapshot modules of %d: %w", p.pid, err)
	}
	defer windows.CloseHandle(snap)

	var me windows.ModuleEntry32
	me.Size = uint32(unsafe.Sizeof(me))
	for err = windows.Module32First(snap, &me); err == nil; err = windows.Module32Next(snap, &me) {
		e := moduleEntry{
			name: windows.UTF16ToString(me.Module[:]),
			path: windows.UTF16ToString(me.ExePath[:]),
			base: uint64(me.ModBaseAddr),
			size: uint64(me.ModBaseSize),
		}
		if strings.EqualFold(e.name, name) || strings.EqualFold(e.path, name) {
			return e, true, nil
		}
	}
	if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return moduleEntry{}, false, nil
	}
	return moduleEntry{}, false, fmt.Errorf("walk modules of %d: %w", p.pid, err)
}

// load maps name with LoadLibrary. An image found in the configured search
// paths is preferred over the system search order.
func (p *Process) load(name string) (moduleEntry, error) {
	if !p.self {
		return moduleEntry{}, fmt.Errorf("load %s into pid %d: %w", name, p.pid, ErrUnsupported)
	}
	path := name
	if located, err := p.images.Locate(name); err == nil {
		path = located
	}

	p.mu.Lock()
	h, err := windows.LoadLibrary(path)
	if err == nil {
		if prev, ok := p.loaded[name]; ok {
			// keep one reference per module
			_ = windows.FreeLibrary(prev)
		}
		p.loaded[name] = h
	}
	p.mu.Unlock()
	if err != nil {
		p.metrics.Loads.WithLabelValues(errorType(ErrModuleNotFound)).Inc()
		level.Error(p.logger).Log("msg", "failed to load module", "module", name, "path", path, "err", err)
		return moduleEntry{}, fmt.Errorf("%w: load %s: %w", ErrModuleNotFound, path, err)
	}
	p.metrics.Loads.WithLabelValues(errorType(nil)).Inc()

	e, ok, err := p.find(name)
	if err == nil && !ok {
		e, ok, err = p.find(path)
	}
	if err != nil {
		return moduleEntry{}, err
	}
	if !ok {
		return moduleEntry{}, fmt.Errorf("%s loaded but not listed: %w", name, ErrModuleNotFound)
	}
	level.Debug(p.logger).Log("msg", "loaded module", "module", name, "path", e.path,
		"base", fmt.Sprintf("0x%x", e.base), "size", e.size)
	return e, nil
}

// readable returns the committed pages in [start, end) that can be read.
// Guard and no-access pages are left out.
func (p *Process) readable(start, end uint64) ([]Span, error) {
	spans := []Span{}
	for addr := start; addr < end; {
		var mbi windows.MemoryBasicInformation
		if err := windows.VirtualQueryEx(p.handle, uintptr(addr), &mbi, unsafe.Sizeof(mbi)); err != nil {
			return nil, fmt.Errorf("query 0x%x: %w", addr, err)
		}
		next := uint64(mbi.BaseAddress) + uint64(mbi.RegionSize)
		if next <= addr {
			break
		}
		if mbi.State == windows.MEM_COMMIT && mbi.Protect&readableProtect != 0 && mbi.Protect&windows.PAGE_GUARD == 0 {
			spans = append(spans, Span{Start: addr, End: min(next, end)})
		}
		addr = next
	}
	return spans, nil
}

type processMemory struct {
	handle windows.Handle
}

func (m processMemory) ReadAt(b []byte, off int64) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	var n uintptr
	if err := windows.ReadProcessMemory(m.handle, uintptr(off), &b[0], uintptr(len(b)), &n); err != nil {
		return int(n), fmt.Errorf("read 0x%x+%d: %w: %w", off, len(b), ErrOutOfRange, err)
	}
	if int(n) < len(b) {
		return int(n), fmt.Errorf("read 0x%x+%d: short read: %w", off, len(b), ErrOutOfRange)
	}
	return len(b), nil
}
