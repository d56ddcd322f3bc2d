// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

// PeekBuffer accumulates bytes read from a client connection without
// advancing its logical read cursor from the caller's point of view
// (§4.6 "Peek-and-replay contract"). Since this codebase has no true
// MSG_PEEK primitive wired through [net.Conn], it implements the
// spec-sanctioned alternative: read the bytes into Data, then prepend
// Data ahead of any further live reads when relaying to the upstream.
// The two approaches are behaviorally identical from the upstream's
// perspective.
type PeekBuffer struct {
	// Data holds every byte read from the client so far, in order. The
	// splicer writes Data to the upstream before copying any further
	// bytes read live from the client connection.
	Data []byte
}

// Grow appends chunk to Data.
func (b *PeekBuffer) Grow(chunk []byte) {
	b.Data = append(b.Data, chunk...)
}

// Len returns the number of bytes accumulated so far.
func (b *PeekBuffer) Len() int {
	return len(b.Data)
}
