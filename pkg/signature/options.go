package signature

import (
	"errors"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/unknowntrojan/signature/pkg/module"
)

type Option func(*options)

// options is usable as its zero value, which is what a Static or Dynamic
// declared without a constructor carries.
type options struct {
	provider module.Provider
	logger   log.Logger
	m        *Metrics
}

// WithProvider sets where modules are looked up. The default is
// module.Self().
func WithProvider(p module.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets where resolutions are counted. nil keeps the default,
// unregistered metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.m = m
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) metrics() *Metrics {
	if o.m == nil {
		return defaultMetrics
	}
	return o.m
}

func (o *options) log() log.Logger {
	if o.logger == nil {
		return log.NewNopLogger()
	}
	return o.logger
}

func (o *options) region(name string) (module.Region, error) {
	p := o.provider
	if p == nil {
		var err error
		if p, err = module.Self(); err != nil {
			return module.Region{}, err
		}
	}
	return p.Dynamic(name, true)
}

func (o *options) observe(kind, name string, err error) {
	o.metrics().Resolutions.WithLabelValues(kind, resultType(err)).Inc()
	if err != nil {
		level.Debug(o.log()).Log("msg", "signature not resolved", "kind", kind, "module", name, "err", err)
	}
}

func resultType(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, ErrPatternNotFound):
		return "pattern_not_found"
	case errors.Is(err, ErrSanityMismatch):
		return "sanity_mismatch"
	case errors.Is(err, module.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, module.ErrModuleNotFound), errors.Is(err, module.ErrImageNotFound):
		return "module_not_found"
	case errors.Is(err, module.ErrModuleNotLoaded):
		return "module_not_loaded"
	case errors.Is(err, module.ErrUnsupported):
		return "unsupported"
	}
	return "error"
}
