package module

import (
	"sync"

	"github.com/go-kit/log"
)

var (
	selfOnce     sync.Once
	selfProvider Provider
	selfErr      error
)

// Self returns the shared provider for the current process, created with
// DefaultConfig on first use.
func Self() (Provider, error) {
	selfOnce.Do(func() {
		p, err := NewProcess(log.NewNopLogger(), DefaultConfig(), nil)
		if err != nil {
			selfErr = err
			return
		}
		selfProvider = p
	})
	return selfProvider, selfErr
}
