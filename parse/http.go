// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on the request-line handling idiom in
// other_examples/e53df284_patdowney-tcpproxy__sni.go.go (peek, don't
// consume), adapted to HTTP/1's Host header instead of TLS SNI.
//

package parse

import (
	"bufio"
	"bytes"
	"fmt"
	"net/textproto"
	"strings"

	"github.com/Lainera/ormos/name"
)

// httpHardCap bounds how many bytes the HTTP/1 parser will inspect
// looking for the end of the request headers (§4.1). This is the
// parser's own limit, distinct from the listener's overall 16 KiB peek
// cap (§4.4).
const httpHardCap = 8 * 1024

// httpMinimumBytes is the smallest peek worth attempting: a minimal
// request line plus a blank line, e.g. the 16 bytes "M / HTTP/1.1\r\n\r\n".
const httpMinimumBytes = 16

var errHTTPMalformed = fmt.Errorf("parse: malformed HTTP/1 request")

// HTTP1Parser extracts the Host header from an HTTP/1 request (§4.1).
type HTTP1Parser struct{}

var _ Parser = HTTP1Parser{}

// Protocol implements [Parser].
func (HTTP1Parser) Protocol() string { return "http/1" }

// MinimumBytes implements [Parser].
func (HTTP1Parser) MinimumBytes() int { return httpMinimumBytes }

// Extract implements [Parser]: it reads until CRLF-CRLF or [httpHardCap],
// validates the request-line's method token, then locates a
// case-insensitive Host header.
func (HTTP1Parser) Extract(data []byte) Result {
	end := bytes.Index(data, []byte("\r\n\r\n"))
	if end < 0 {
		// Bytes that cannot begin a method token are not HTTP/1 at all.
		if method, _, _ := bytes.Cut(data, []byte(" ")); len(method) > 0 && !isValidMethodToken(string(method)) {
			return Result{Status: StatusNotMine}
		}
		if len(data) >= httpHardCap {
			return Result{Status: StatusMalformed, Err: fmt.Errorf("%w: headers exceed %d bytes", errHTTPMalformed, httpHardCap)}
		}
		return Result{Status: StatusNeedMore}
	}
	headerBytes := data[:end+len("\r\n\r\n")]

	reader := bufio.NewReader(bytes.NewReader(headerBytes))
	requestLine, err := reader.ReadString('\n')
	if err != nil {
		return Result{Status: StatusMalformed, Err: fmt.Errorf("%w: %v", errHTTPMalformed, err)}
	}
	if !looksLikeRequestLine(requestLine) {
		return Result{Status: StatusNotMine}
	}

	tp := textproto.NewReader(reader)
	header, err := tp.ReadMIMEHeader()
	if err != nil && len(header) == 0 {
		return Result{Status: StatusMalformed, Err: fmt.Errorf("%w: %v", errHTTPMalformed, err)}
	}

	host := header.Get("Host")
	if host == "" {
		return Result{Status: StatusMalformed, Err: fmt.Errorf("%w: missing Host header", errHTTPMalformed)}
	}
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}

	sn, err := name.Parse(host)
	if err != nil {
		return Result{Status: StatusMalformed, Err: fmt.Errorf("%w: invalid Host header %q: %v", errHTTPMalformed, host, err)}
	}
	return Result{Status: StatusOk, Name: sn, Consumed: len(headerBytes)}
}

// looksLikeRequestLine reports whether line has the shape
// "METHOD SP target SP HTTP/x.y\r\n" with a valid method token. This is
// the signal that distinguishes "not HTTP/1 at all" ([StatusNotMine])
// from "HTTP/1, but broken" ([StatusMalformed]).
func looksLikeRequestLine(line string) bool {
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return false
	}
	if !isValidMethodToken(parts[0]) {
		return false
	}
	return strings.HasPrefix(parts[2], "HTTP/")
}

// isValidMethodToken reports whether s is a non-empty RFC 7230 token:
// visible ASCII excluding delimiters such as space, parens, or slashes.
func isValidMethodToken(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c <= 0x20 || c >= 0x7f {
			return false
		}
		if strings.ContainsRune(`()<>@,;:\"/[]?={}`, c) {
			return false
		}
	}
	return true
}
