package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// ExitFunc is swapped out in tests.
var ExitFunc = os.Exit

// hooks run in registration order before the process exits.
var hooks []func()

// OnShutdown registers cleanup to run before a fatal exit, such as closing the
// ledger or flushing metrics.
func OnShutdown(fn func()) {
	hooks = append(hooks, fn)
}

func Shutdown() {
	for _, fn := range hooks {
		fn()
	}
	log.Info().Msg("Light controller stopped")
	ExitFunc(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	for _, fn := range hooks {
		fn()
	}
	ExitFunc(1)
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
