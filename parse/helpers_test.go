// SPDX-License-Identifier: GPL-3.0-or-later

package parse

import "encoding/binary"

// buildClientHello constructs the bytes of a minimal TLS record carrying a
// ClientHello with a single server_name extension of type host_name. It
// exists purely to exercise [TLSParser.Extract] without driving a real TLS
// stack, mirroring the handcrafted-bytes style of low-level wire-format
// tests elsewhere in the retrieved pack.
func buildClientHello(sni string) []byte {
	serverNameEntry := append([]byte{tlsServerNameTypeHostName}, u16(uint16(len(sni)))...)
	serverNameEntry = append(serverNameEntry, sni...)

	serverNameList := append(u16(uint16(len(serverNameEntry))), serverNameEntry...)

	sniExtension := append([]byte{}, u16(tlsExtensionServerName)...)
	sniExtension = append(sniExtension, u16(uint16(len(serverNameList)))...)
	sniExtension = append(sniExtension, serverNameList...)

	extensions := sniExtension

	chBody := []byte{}
	chBody = append(chBody, 0x03, 0x03) // client_version
	chBody = append(chBody, make([]byte, 32)...) // random
	chBody = append(chBody, 0x00)       // session_id length 0
	chBody = append(chBody, u16(0)...)  // cipher_suites length 0
	chBody = append(chBody, 0x00)       // compression_methods length 0
	chBody = append(chBody, u16(uint16(len(extensions)))...)
	chBody = append(chBody, extensions...)

	handshake := append([]byte{tlsHandshakeTypeClientHello}, u24(uint32(len(chBody)))...)
	handshake = append(handshake, chBody...)

	record := append([]byte{tlsContentTypeHandshake, 0x03, 0x03}, u16(uint16(len(handshake)))...)
	record = append(record, handshake...)
	return record
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func u24(v uint32) []byte {
	return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
}
