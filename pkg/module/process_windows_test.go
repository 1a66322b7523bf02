//go:build windows

package module

import (
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestProcess(t *testing.T, cfg Config) (*Process, *Metrics) {
	p, err := NewProcess(log.NewNopLogger(), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p, p.metrics
}

func TestProcessKernel32(t *testing.T) {
	p, _ := newTestProcess(t, DefaultConfig())

	for _, name := range []string{"kernel32.dll", "KERNEL32.DLL"} {
		r, err := p.Dynamic(name, false)
		require.NoError(t, err)
		require.NotZero(t, r.Base)
		require.NotEmpty(t, r.Readable())
		require.Equal(t, r.Base, r.Readable()[0].Start)

		magic := make([]byte, 2)
		_, err = r.ReadAt(magic, r.Base)
		require.NoError(t, err)
		require.Equal(t, []byte("MZ"), magic)
		for _, s := range r.Readable() {
			require.True(t, r.Contains(s.Start))
			require.LessOrEqual(t, s.End, r.End())
		}
	}

	image, err := p.Static("kernel32.dll")
	require.NoError(t, err)
	require.Equal(t, []byte("MZ"), image[:2])
}

func TestProcessLoadLibrary(t *testing.T) {
	p, metrics := newTestProcess(t, DefaultConfig())

	_, err := p.Dynamic("sig-missing-module.dll", false)
	require.ErrorIs(t, err, ErrModuleNotLoaded)
	_, err = p.Dynamic("sig-missing-module.dll", true)
	require.ErrorIs(t, err, ErrModuleNotFound)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Loads.WithLabelValues("not_found")))

	r, err := p.Dynamic("version.dll", true)
	require.NoError(t, err)
	b, err := r.ByteAt(0)
	require.NoError(t, err)
	require.Equal(t, byte('M'), b)

	present, err := p.Dynamic("version.dll", false)
	require.NoError(t, err)
	require.Equal(t, r.Base, present.Base)
}

func TestProcessReadOutsideModule(t *testing.T) {
	p, _ := newTestProcess(t, DefaultConfig())
	r, err := p.Dynamic("kernel32.dll", false)
	require.NoError(t, err)
	_, err = r.ByteAt(r.Size)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = r.ReadAt(make([]byte, 2), r.End()-1)
	require.ErrorIs(t, err, ErrOutOfRange)
}
