package shutdown

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withExit(t *testing.T) *int {
	t.Helper()
	code := -1
	origExit, origHooks := ExitFunc, hooks
	ExitFunc = func(c int) { code = c }
	hooks = nil
	t.Cleanup(func() {
		ExitFunc, hooks = origExit, origHooks
	})
	return &code
}

func TestShutdownWithError_RunsHooksAndExitsNonZero(t *testing.T) {
	code := withExit(t)
	var order []string
	OnShutdown(func() { order = append(order, "ledger") })
	OnShutdown(func() { order = append(order, "metrics") })

	ShutdownWithError(errors.New("bad config"), "Invalid configuration")

	assert.Equal(t, 1, *code)
	assert.Equal(t, []string{"ledger", "metrics"}, order)
}

func TestShutdown_ExitsZero(t *testing.T) {
	code := withExit(t)

	Shutdown()

	assert.Equal(t, 0, *code)
}
