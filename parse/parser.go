// SPDX-License-Identifier: GPL-3.0-or-later

// Package parse implements the parser registry (§4.1): given raw peeked
// connection bytes, it identifies the application protocol and extracts a
// service name.
package parse

import (
	"github.com/Lainera/ormos/name"
)

// Status is the outcome of a single [Parser.Extract] call.
type Status int

const (
	// StatusOk means Extract produced a [name.ServiceName] and the number
	// of bytes it consumed.
	StatusOk Status = iota

	// StatusNeedMore means the declared record/extension length exceeds
	// the bytes available so far; the caller should peek more bytes and
	// retry the same parser.
	StatusNeedMore

	// StatusNotMine means the bytes are not this parser's protocol; the
	// registry tries the next configured parser.
	StatusNotMine

	// StatusMalformed means the bytes are this parser's protocol but
	// violate the protocol's own framing (length overflow, invalid
	// field); the connection should be closed.
	StatusMalformed
)

// String returns the canonical lowercase status name used in structured
// logs.
func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusNeedMore:
		return "needMore"
	case StatusNotMine:
		return "notMine"
	case StatusMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Result is the outcome of [Parser.Extract]: a tagged union discriminated
// by Status. Name and Consumed are meaningful only when Status is
// [StatusOk]; Err, when set, explains a [StatusMalformed] result.
type Result struct {
	Status   Status
	Name     name.ServiceName
	Consumed int
	Err      error
}

// Parser identifies an application protocol from peeked connection bytes
// and extracts the declared service name (§4.1).
type Parser interface {
	// Protocol returns the parser's name as it appears in configuration
	// and structured logs ("tls", "http/1").
	Protocol() string

	// MinimumBytes returns the smallest peek that can reveal whether this
	// parser matches at all (e.g. 5 for a TLS record header).
	MinimumBytes() int

	// Extract attempts to parse data, which holds every byte peeked from
	// the connection so far (not necessarily a complete message).
	Extract(data []byte) Result
}
