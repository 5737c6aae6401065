// SPDX-License-Identifier: GPL-3.0-or-later

package asyncproxy

import "github.com/bassosimone/asyncproxy/internal/errclass"

// ErrClassifier classifies errors into categorical strings for analysis.
//
// Implementations map errors to short, descriptive labels (e.g.,
// "ETIMEDOUT", "ECONNRESET") that facilitate systematic analysis of
// pump termination causes in structured logs.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier classifies errors using internal/errclass.New,
// which recognizes EOF, context cancellation/deadline, [net.ErrClosed],
// and platform errno values embedded in wrapped [*net.OpError] /
// [*os.SyscallError] values. It returns "EGENERIC" for anything else
// and "" for a nil error.
var DefaultErrClassifier = ErrClassifierFunc(errclass.New)
