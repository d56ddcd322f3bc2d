// SPDX-License-Identifier: GPL-3.0-or-later

package ormos

import "github.com/bassosimone/errclass"

// ErrClassifier classifies errors into categorical strings for analysis.
//
// Implementations map errors to short, descriptive labels (e.g., "ETIMEDOUT",
// "ECONNRESET") that let operators triage connection failures from structured
// logs without parsing error strings.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
//
// This allows using simple functions as classifiers:
//
//	op.ErrClassifier = ErrClassifierFunc(errclass.New)
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier classifies errors using [errclass.New], which maps
// common unix/windows syscall errors (ETIMEDOUT, ECONNREFUSED, ECONNRESET,
// ...) to their errno names and falls back to [errclass.EGENERIC] for
// anything else. It returns the empty string for a nil error.
var DefaultErrClassifier = ErrClassifierFunc(errclass.New)
