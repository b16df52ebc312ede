// Package metrics provides counter/meter/timer factories for the
// organizer's submission pipeline, gated behind an Enabled flag.
package metrics

import (
	"os"
	"strings"

	"github.com/rcrowley/go-metrics"

	"github.com/noxproject/forkd/log"
)

// EnabledFlag is the CLI flag name that turns metrics collection on.
const EnabledFlag = "metrics"

// Enabled reports whether metrics collection is active.
var Enabled = false

func init() {
	for _, arg := range os.Args {
		if strings.TrimLeft(arg, "-") == EnabledFlag {
			log.Logger.Info("Enabling metrics collection")
			Enabled = true
		}
	}
}

// NewCounter returns a registered Counter, or a no-op stub when metrics
// are disabled.
func NewCounter(name string) metrics.Counter {
	if !Enabled {
		return new(metrics.NilCounter)
	}
	return metrics.GetOrRegisterCounter(name, metrics.DefaultRegistry)
}

// NewMeter returns a registered Meter, or a no-op stub when metrics are
// disabled.
func NewMeter(name string) metrics.Meter {
	if !Enabled {
		return new(metrics.NilMeter)
	}
	return metrics.GetOrRegisterMeter(name, metrics.DefaultRegistry)
}

// NewTimer returns a registered Timer, or a no-op stub when metrics are
// disabled.
func NewTimer(name string) metrics.Timer {
	if !Enabled {
		return new(metrics.NilTimer)
	}
	return metrics.GetOrRegisterTimer(name, metrics.DefaultRegistry)
}
