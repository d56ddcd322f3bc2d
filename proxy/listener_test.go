// SPDX-License-Identifier: GPL-3.0-or-later

package proxy

import (
	"context"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/Lainera/ormos"
	"github.com/Lainera/ormos/parse"
	"github.com/Lainera/ormos/resolve"
	"github.com/Lainera/ormos/rule"
	"github.com/stretchr/testify/require"
)

// startEcho starts a loopback TCP listener that echoes every byte it
// receives back to the sender, and returns its address.
func startEcho(t *testing.T) netip.AddrPort {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				io.Copy(conn, conn)
				conn.Close()
			}()
		}
	}()

	return netip.MustParseAddrPort(ln.Addr().String())
}

func newTestDial() ormos.Func[netip.AddrPort, net.Conn] {
	cfg := ormos.NewConfig()
	logger := ormos.DefaultSLogger()
	return ormos.Compose2(ormos.NewConnectFunc(cfg, "tcp", logger), ormos.NewObserveConnFunc(cfg, logger))
}

func TestListenerRoutesHTTPRequestToUpstream(t *testing.T) {
	upstream := startEcho(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	localPort := uint16(ln.Addr().(*net.TCPAddr).Port)

	constant := rule.NewConstantRule("api.svc", []netip.Addr{upstream.Addr()}, rule.PortMap{localPort: upstream.Port()})
	fallback := rule.NewFallbackRule(resolve.Endpoint{})
	pipeline := rule.NewPipeline([]*rule.Rule{constant, fallback}, ormos.DefaultSLogger())

	registry := parse.NewRegistry(parse.TLSParser{}, parse.HTTP1Parser{})
	splicer := &Splicer{IdleTimeout: 2 * time.Second, Logger: ormos.DefaultSLogger(), TimeNow: time.Now}

	l := NewListener("127.0.0.1:0", registry, pipeline, newTestDial(), splicer, ormos.DefaultSLogger())
	l.ln = ln
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		l.acceptLoop(ctx)
	}()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	req := "GET / HTTP/1.1\r\nHost: api.svc\r\n\r\n"
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	echoed := make([]byte, len(req))
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, err = io.ReadFull(conn, echoed)
	require.NoError(t, err)
	require.Equal(t, req, string(echoed))

	cancel()
	ln.Close()
	<-served
}

func TestListenerClosesConnectionOnMalformedPeek(t *testing.T) {
	registry := parse.NewRegistry(parse.TLSParser{}, parse.HTTP1Parser{})
	pipeline := rule.NewPipeline([]*rule.Rule{rule.NewFallbackRule(resolve.Endpoint{})}, ormos.DefaultSLogger())
	splicer := &Splicer{IdleTimeout: time.Second, Logger: ormos.DefaultSLogger(), TimeNow: time.Now}

	l := NewListener("127.0.0.1:0", registry, pipeline, newTestDial(), splicer, ormos.DefaultSLogger())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	l.ln = ln
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		l.acceptLoop(ctx)
	}()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not a protocol this registry knows about\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1)
	_, readErr := conn.Read(buf)
	require.Error(t, readErr)

	cancel()
	ln.Close()
	<-served
}
