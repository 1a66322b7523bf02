//go:build linux

package module

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// Process provides modules of a running process by reading its
// /proc/<pid>/maps and /proc/<pid>/mem.
type Process struct {
	logger   log.Logger
	proc     procfs.Proc
	procRoot string
	pid      int
	self     bool
	images   *Images
	metrics  *Metrics

	mu     sync.Mutex
	mem    *os.File
	loaded map[string]*mapping
}

// mapping is an image mapped by Process itself.
type mapping struct {
	path string
	data []byte
}

type segment struct {
	start, end uint64
	readable   bool
}

func NewProcess(logger log.Logger, cfg Config, reg prometheus.Registerer) (*Process, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fs, err := procfs.NewFS(cfg.ProcRoot)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", cfg.ProcRoot, err)
	}
	pid := cfg.PID
	self := pid == 0 || pid == os.Getpid()
	if pid == 0 {
		pid = os.Getpid()
	}
	proc, err := fs.Proc(pid)
	if err != nil {
		return nil, fmt.Errorf("open process %d: %w", pid, err)
	}
	metrics := NewMetrics(reg)
	images, err := NewImages(logger, afero.NewOsFs(), cfg, metrics)
	if err != nil {
		return nil, err
	}
	return &Process{
		logger:   logger,
		proc:     proc,
		procRoot: cfg.ProcRoot,
		pid:      pid,
		self:     self,
		images:   images,
		metrics:  metrics,
		loaded:   make(map[string]*mapping),
	}, nil
}

func (p *Process) Dynamic(name string, load bool) (Region, error) {
	path, segs, err := p.segments(name)
	if err != nil {
		return Region{}, err
	}
	if len(segs) == 0 {
		if !load {
			return Region{}, fmt.Errorf("%s: %w", name, ErrModuleNotLoaded)
		}
		m, err := p.load(name)
		if err != nil {
			return Region{}, err
		}
		path = m.path
		segs = []segment{m.segment()}
	}
	return p.region(name, path, segs), nil
}

func (p *Process) Static(name string) ([]byte, error) {
	path, segs, err := p.segments(name)
	if err == nil && len(segs) != 0 && path != "" {
		if !p.self {
			path = filepath.Join(p.procRoot, strconv.Itoa(p.pid), "root", path)
		}
		return p.images.Read(path)
	}
	return p.images.Static(name)
}

// Close unmaps the images loaded by Dynamic and closes the memory file.
// Regions obtained before are no longer readable.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for name, m := range p.loaded {
		if err := unix.Munmap(m.data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("munmap %s: %w", name, err)
		}
		delete(p.loaded, name)
	}
	if p.mem != nil {
		if err := p.mem.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.mem = nil
	}
	return firstErr
}

func (p *Process) segments(name string) (string, []segment, error) {
	p.mu.Lock()
	m := p.loaded[name]
	p.mu.Unlock()
	if m != nil {
		return m.path, []segment{m.segment()}, nil
	}

	maps, err := p.proc.ProcMaps()
	if err != nil {
		return "", nil, fmt.Errorf("read maps of %d: %w", p.pid, err)
	}
	var (
		path string
		segs []segment
	)
	for _, pm := range maps {
		pathname := strings.TrimSuffix(pm.Pathname, " (deleted)")
		if !matchName(pathname, name) {
			continue
		}
		if path == "" {
			path = pathname
		} else if path != pathname {
			// two different files share the base name, only the first one
			// mapped is considered
			continue
		}
		segs = append(segs, segment{
			start:    uint64(pm.StartAddr),
			end:      uint64(pm.EndAddr),
			readable: pm.Perms != nil && pm.Perms.Read,
		})
	}
	return path, segs, nil
}

func matchName(pathname, name string) bool {
	if pathname == "" || strings.HasPrefix(pathname, "[") {
		return false
	}
	return pathname == name || filepath.Base(pathname) == name
}

func (p *Process) load(name string) (*mapping, error) {
	if !p.self {
		return nil, fmt.Errorf("load %s into pid %d: %w", name, p.pid, ErrUnsupported)
	}
	path, err := p.images.Locate(name)
	if err != nil {
		p.metrics.Loads.WithLabelValues(errorType(err)).Inc()
		return nil, fmt.Errorf("%w: %w", ErrModuleNotFound, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if m := p.loaded[name]; m != nil {
		return m, nil
	}
	data, err := mmapFile(path)
	p.metrics.Loads.WithLabelValues(errorType(err)).Inc()
	if err != nil {
		level.Error(p.logger).Log("msg", "failed to map module", "module", name, "path", path, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrModuleNotFound, err)
	}
	m := &mapping{path: path, data: data}
	p.loaded[name] = m
	level.Debug(p.logger).Log("msg", "mapped module", "module", name, "path", path,
		"base", fmt.Sprintf("0x%x", m.segment().start), "size", len(data))
	return m, nil
}

func mmapFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("%s: empty image", path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return data, nil
}

func (m *mapping) segment() segment {
	start := uint64(uintptr(unsafe.Pointer(unsafe.SliceData(m.data))))
	return segment{start: start, end: start + uint64(len(m.data)), readable: true}
}

func (p *Process) region(name, path string, segs []segment) Region {
	base, end := segs[0].start, segs[0].end
	var readable []Span
	for _, s := range segs {
		base = min(base, s.start)
		end = max(end, s.end)
		if s.readable {
			readable = append(readable, Span{Start: s.start, End: s.end})
		}
	}
	if readable == nil {
		readable = []Span{}
	}
	return NewRegion(name, path, base, end-base, readable, &procMem{p: p, segs: segs})
}

func (p *Process) memFile() (*os.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mem != nil {
		return p.mem, nil
	}
	f, err := os.Open(filepath.Join(p.procRoot, strconv.Itoa(p.pid), "mem"))
	if err != nil {
		return nil, fmt.Errorf("open mem: %w", err)
	}
	p.mem = f
	return f, nil
}

// procMem reads the mapped segments of one module. A read touching a gap
// between segments or a segment without read access fails as a whole.
type procMem struct {
	p    *Process
	segs []segment
}

func (m *procMem) ReadAt(b []byte, off int64) (int, error) {
	start := uint64(off)
	end := start + uint64(len(b))
	var covered uint64
	for _, s := range m.segs {
		if lo, hi := max(start, s.start), min(end, s.end); s.readable && lo < hi {
			covered += hi - lo
		}
	}
	if covered != end-start {
		return 0, fmt.Errorf("read 0x%x-0x%x: %w", start, end, ErrOutOfRange)
	}
	f, err := m.p.memFile()
	if err != nil {
		return 0, err
	}
	for _, s := range m.segs {
		lo, hi := max(start, s.start), min(end, s.end)
		if !s.readable || lo >= hi {
			continue
		}
		if _, err := f.ReadAt(b[lo-start:hi-start], int64(lo)); err != nil && err != io.EOF {
			return 0, fmt.Errorf("read 0x%x-0x%x: %w", lo, hi, err)
		}
	}
	return len(b), nil
}
