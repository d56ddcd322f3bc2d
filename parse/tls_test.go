// SPDX-License-Identifier: GPL-3.0-or-later

package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// For any well-formed ClientHello containing SNI S, the TLS parser
// returns exactly S lowercased (§8 "Universal invariants").
func TestTLSParserExtractOk(t *testing.T) {
	record := buildClientHello("Foo.Example.COM")

	res := TLSParser{}.Extract(record)

	require.Equal(t, StatusOk, res.Status)
	assert.Equal(t, "foo.example.com", res.Name.String())
	assert.Equal(t, len(record), res.Consumed)
}

func TestTLSParserNeedMoreOnShortHeader(t *testing.T) {
	res := TLSParser{}.Extract([]byte{0x16, 0x03})
	assert.Equal(t, StatusNeedMore, res.Status)
}

func TestTLSParserNeedMoreOnIncompleteRecord(t *testing.T) {
	record := buildClientHello("foo.example.com")
	res := TLSParser{}.Extract(record[:len(record)-10])
	assert.Equal(t, StatusNeedMore, res.Status)
}

func TestTLSParserNotMineOnWrongContentType(t *testing.T) {
	res := TLSParser{}.Extract([]byte{0x17, 0x03, 0x03, 0x00, 0x05, 1, 2, 3, 4, 5})
	assert.Equal(t, StatusNotMine, res.Status)
}

func TestTLSParserMalformedOnMissingSNI(t *testing.T) {
	record := buildClientHello("foo.example.com")
	// Zero out the extensions length so the ClientHello has no extensions
	// block, simulating a valid handshake that simply carries no SNI.
	chBodyStart := tlsRecordHeaderLen + 4 // record header + handshake type/length
	extLenOffset := chBodyStart + 2 + 32 + 1 + 2 + 1
	record[extLenOffset] = 0
	record[extLenOffset+1] = 0
	record = record[:extLenOffset+2]

	// Patch the outer lengths to match the truncated record.
	newRecLen := len(record) - tlsRecordHeaderLen
	record[3] = byte(newRecLen >> 8)
	record[4] = byte(newRecLen)
	newHsLen := newRecLen - 4
	record[6] = byte(newHsLen >> 16)
	record[7] = byte(newHsLen >> 8)
	record[8] = byte(newHsLen)

	res := TLSParser{}.Extract(record)
	assert.Equal(t, StatusMalformed, res.Status)
}

func TestTLSParserMinimumBytes(t *testing.T) {
	assert.Equal(t, 5, TLSParser{}.MinimumBytes())
}
