// Package signature resolves byte signatures to addresses inside loaded
// modules.
//
// Two strategies are provided. A Dynamic signature keeps its pattern and
// scans the live module on first use. A Static signature carries an offset
// and a sanity byte computed ahead of time by the gen package (usually via
// the sigc tool and go:generate); it only checks that the byte at
// base+offset is still the expected one.
//
// Both cache the first successful result for the rest of the process
// lifetime, failures are not cached.
package signature

import (
	"errors"
	"fmt"

	"go.uber.org/atomic"
)

var (
	ErrPatternNotFound = errors.New("pattern not found")
	ErrSanityMismatch  = errors.New("sanity byte mismatch")
	errNullAddress     = errors.New("resolved to null address")
)

// Address is an absolute address in the inspected process.
type Address uintptr

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uintptr(a))
}

// Signature resolves to the address of a location in a module.
type Signature interface {
	// Resolve returns the address and true, or false when the module is not
	// available or the location could not be confirmed. Once it returned an
	// address it keeps returning the same one.
	Resolve() (Address, bool)
	String() string
}

// cache holds an address that is written at most once. Concurrent first
// resolutions may race to compute it, the first stored value wins.
type cache struct {
	addr atomic.Uintptr
}

func (c *cache) get() (Address, bool) {
	a := c.addr.Load()
	return Address(a), a != 0
}

func (c *cache) set(a Address) Address {
	c.addr.CompareAndSwap(0, uintptr(a))
	return Address(c.addr.Load())
}

func (c *cache) String() string {
	if a, ok := c.get(); ok {
		return a.String()
	}
	return "[NOT LOADED]"
}

// ResolveAll resolves every signature and returns the ones that failed. It is
// meant to be called once during initialisation.
func ResolveAll(sigs ...Signature) []Signature {
	var failed []Signature
	for _, s := range sigs {
		if _, ok := s.Resolve(); !ok {
			failed = append(failed, s)
		}
	}
	return failed
}
