//go:build !linux && !windows

package module

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Process is only implemented on Linux and Windows.
type Process struct{}

func NewProcess(logger log.Logger, cfg Config, reg prometheus.Registerer) (*Process, error) {
	return nil, ErrUnsupported
}

func (p *Process) Dynamic(name string, load bool) (Region, error) {
	return Region{}, ErrUnsupported
}

func (p *Process) Static(name string) ([]byte, error) {
	return nil, ErrUnsupported
}

func (p *Process) Close() error {
	return nil
}
