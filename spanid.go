// SPDX-License-Identifier: GPL-3.0-or-later

package asyncproxy

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 identifying one [*Proxy]'s lifetime, from
// construction through the pump's exit.
//
// Attach it to a logger with [*slog.Logger.With] before passing the
// logger to [Config.Logger], so every log entry emitted by that proxy's
// pump — span events and per-I/O events alike — carries the same
// spanID, enabling correlation across the two direction goroutines.
//
// The span terminology is borrowed from OTel.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
