package waiter

import (
	"os"
)

type Option func(*waiterCfg)

// WithSignals replaces the default SIGINT and SIGTERM.
func WithSignals(signals ...os.Signal) Option {
	return func(cfg *waiterCfg) {
		cfg.signals = signals
	}
}
