package signature

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/unknowntrojan/signature/pkg/module/moduletest"
	"github.com/unknowntrojan/signature/pkg/pattern"
)

var mzHeader = []byte{0xB8, 0x4D, 0x5A, 0x00, 0x00}

func newTestProvider() *moduletest.Provider {
	return moduletest.New().
		Add("mtxex.dll", moduletest.Module{
			Base:   0x7ff600000000,
			Memory: moduletest.Mapped(0xC00, moduletest.Image(0x2000, 0x90, 0x500, mzHeader)),
		})
}

func TestDynamicResolve(t *testing.T) {
	provider := newTestProvider()
	metrics := NewMetrics(prometheus.NewRegistry())
	sig := MustDynamic("mtxex.dll", "B8 4D 5A 00 00", WithProvider(provider), WithMetrics(metrics))

	require.Equal(t, "Dynamic [ B8 4D 5A 00 00 ] @ mtxex.dll => [NOT LOADED]", sig.String())

	addr, ok := sig.Resolve()
	require.True(t, ok)
	require.Equal(t, Address(0x7ff600000000+0x1100), addr)
	require.Equal(t, 1, provider.Loads("mtxex.dll"))
	require.Equal(t, "Dynamic [ B8 4D 5A 00 00 ] @ mtxex.dll => 0x7ff600001100", sig.String())

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Resolutions.WithLabelValues(kindDynamic, "resolved")))
	require.Equal(t, float64(0xC00+0x2000), testutil.ToFloat64(metrics.ScannedBytes.WithLabelValues("mtxex.dll")))
}

func TestDynamicIsSticky(t *testing.T) {
	provider := newTestProvider()
	sig := MustDynamic("mtxex.dll", "B8 4D ? 00 00", WithProvider(provider))
	first, ok := sig.Resolve()
	require.True(t, ok)

	// move the bytes, the cached address must not change
	provider.Poke("mtxex.dll", 0x1100, 0x90, 0x90, 0x90, 0x90, 0x90)
	provider.Poke("mtxex.dll", 0x1800, mzHeader...)

	second, ok := sig.Resolve()
	require.True(t, ok)
	require.Equal(t, first, second)
	require.Equal(t, 1, provider.Lookups("mtxex.dll"))
}

func TestDynamicAllWildcards(t *testing.T) {
	provider := newTestProvider()
	p, err := pattern.New(pattern.Any, pattern.Any, pattern.Any)
	require.NoError(t, err)
	sig := NewDynamic("mtxex.dll", p, WithProvider(provider))
	addr, ok := sig.Resolve()
	require.True(t, ok)
	require.Equal(t, Address(0x7ff600000000), addr)
}

func TestDynamicFailures(t *testing.T) {
	provider := newTestProvider().
		Add("broken.dll", moduletest.Module{Base: 0x1000, Unloadable: true})
	testcases := []struct {
		name   string
		module string
		text   string
		result string
	}{
		{"pattern absent", "mtxex.dll", "B8 4D 5A 00 01", "pattern_not_found"},
		{"module missing", "nothere.dll", "B8 4D", "module_not_found"},
		{"module fails to load", "broken.dll", "B8 4D", "module_not_found"},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := NewMetrics(nil)
			sig := MustDynamic(tc.module, tc.text, WithProvider(provider), WithMetrics(metrics), WithLogger(moduletest.Logger(t)))
			addr, ok := sig.Resolve()
			require.False(t, ok)
			require.Zero(t, addr)
			require.Contains(t, sig.String(), "[NOT LOADED]")
			require.Equal(t, 1.0, testutil.ToFloat64(metrics.Resolutions.WithLabelValues(kindDynamic, tc.result)))
		})
	}
}

func TestDynamicFailureIsNotCached(t *testing.T) {
	provider := moduletest.New().Add("late.dll", moduletest.Module{Base: 0x1000, Unloadable: true})
	sig := MustDynamic("late.dll", "B8 4D", WithProvider(provider))
	_, ok := sig.Resolve()
	require.False(t, ok)

	provider.Add("late.dll", moduletest.Module{Base: 0x2000, Memory: []byte{0, 0xB8, 0x4D}})
	addr, ok := sig.Resolve()
	require.True(t, ok)
	require.Equal(t, Address(0x2001), addr)
}

func TestDynamicEmptyPattern(t *testing.T) {
	sig := NewDynamic("mtxex.dll", pattern.Pattern{}, WithProvider(newTestProvider()))
	_, ok := sig.Resolve()
	require.False(t, ok)
}
