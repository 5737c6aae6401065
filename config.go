// SPDX-License-Identifier: GPL-3.0-or-later

package asyncproxy

import (
	"net"
	"time"
)

// DefaultBufferSize is the default capacity of each direction's I/O
// staging buffer (spec design value: 16 KiB).
const DefaultBufferSize = 16 * 1024

// Config holds common configuration for a [*Proxy].
//
// Pass this to [New] to pre-wire dependencies. All fields have sensible
// defaults set by [NewConfig].
type Config struct {
	// Dialer is used to connect to Host destinations.
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to a classifier backed by internal/errclass.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or
	// custom logging).
	//
	// Set by [NewConfig] to [DefaultSLogger].
	Logger SLogger

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time

	// BufferSize is the capacity, in bytes, of each direction's I/O
	// staging buffer.
	//
	// Set by [NewConfig] to [DefaultBufferSize].
	BufferSize int

	// StatsObserver, if non-nil, is notified after every successful
	// recv on both the source and sink endpoints (sends update the
	// counters but do not notify it).
	//
	// Set by [NewConfig] to nil (no observer).
	StatsObserver StatsObserver
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:        &net.Dialer{},
		ErrClassifier: DefaultErrClassifier,
		Logger:        DefaultSLogger(),
		TimeNow:       time.Now,
		BufferSize:    DefaultBufferSize,
	}
}
