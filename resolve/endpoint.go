// SPDX-License-Identifier: GPL-3.0-or-later

package resolve

import (
	"net/netip"

	"github.com/Lainera/ormos"
)

// Endpoint is a resolved network address: an IP address plus a port.
//
// A [Resolver] turns a service name into zero or more Endpoints; the
// listener's dial step then connects to one of them.
type Endpoint = netip.AddrPort

// NewEndpointFunc returns a [ormos.Func] that always returns the given
// [netip.AddrPort].
//
// This is a convenience wrapper around [ormos.ConstFunc] for the common
// case of injecting a fixed upstream DNS server address into a dial
// pipeline (see the dnsOverUDP/dnsOverTLS examples).
func NewEndpointFunc(endpoint netip.AddrPort) ormos.Func[ormos.Unit, netip.AddrPort] {
	return ormos.ConstFunc(endpoint)
}
