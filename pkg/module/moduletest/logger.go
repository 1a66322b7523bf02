package moduletest

import (
	"strings"
	"testing"

	"github.com/go-kit/log"
)

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// Logger returns a logfmt logger that writes through t.Log, so output only
// shows up for failed or verbose tests.
func Logger(t testing.TB) log.Logger {
	return log.NewLogfmtLogger(testWriter{t: t})
}
