package logger

import (
	"testing"

	"go.uber.org/zap/zaptest"
)

// UseTestLogger routes package logging to t for the duration of the test.
func UseTestLogger(t testing.TB) {
	t.Helper()
	restore := Replace(zaptest.NewLogger(t))
	t.Cleanup(restore)
}
