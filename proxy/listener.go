// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on jroosing-HydraDNS/internal/server/tcp_server.go's accept-loop /
// per-connection-goroutine / sync.WaitGroup-plus-timeout-drain shape,
// adapted from DNS-message framing to opaque byte splicing.
//

package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/Lainera/ormos"
	"github.com/Lainera/ormos/name"
	"github.com/Lainera/ormos/parse"
	"github.com/Lainera/ormos/rule"
)

// Error kinds a connection can terminate with before ever reaching the
// splicer (§7).
var (
	// ErrParseMalformed indicates the peeked bytes were syntactically
	// invalid for every configured parser.
	ErrParseMalformed = errors.New("proxy: peeked bytes are malformed")

	// ErrParseIncomplete indicates the hard peek cap was reached without
	// any parser committing to a match.
	ErrParseIncomplete = errors.New("proxy: hard peek cap reached without a match")

	// ErrDialFailed indicates the upstream connect failed.
	ErrDialFailed = errors.New("proxy: upstream dial failed")
)

const (
	// defaultPeekHardCap bounds how many bytes the listener will
	// accumulate trying to recognize a protocol (§4.4 step 1).
	defaultPeekHardCap = 16 * 1024

	// defaultConnectTimeout bounds the upstream dial (§4.4 step 4).
	defaultConnectTimeout = 10 * time.Second

	// defaultDrainTimeout bounds graceful shutdown (§5).
	defaultDrainTimeout = 30 * time.Second

	// defaultPeekTimeout bounds each read performed while peeking, so a
	// client that opens a connection and never sends anything cannot pin
	// a listener goroutine open indefinitely.
	defaultPeekTimeout = 10 * time.Second
)

// Listener accepts TCP connections on a configured address, peeks the
// handshake via a registered parser, drives the routing pipeline, dials
// the chosen upstream, and hands off to a [*Splicer] (§4.4).
//
// One Listener owns exactly one accept loop and one [*rule.Pipeline];
// [*rule.Rule]s are shared by reference across all concurrently accepted
// connections (§3 "Ownership").
type Listener struct {
	// Addr is the TCP address to listen on ("host:port").
	Addr string

	// Registry identifies the application protocol and extracts the
	// service name from peeked bytes.
	Registry *parse.Registry

	// Pipeline is this listener's immutable routing pipeline.
	Pipeline *rule.Pipeline

	// Splicer relays bytes between client and upstream once a route is
	// chosen.
	Splicer *Splicer

	// Logger receives accept/parse/dial structured events (§6).
	Logger ormos.SLogger

	// PeekHardCap bounds how many bytes are accumulated while peeking.
	// Defaults to [defaultPeekHardCap] via [NewListener].
	PeekHardCap int

	// PeekTimeout bounds each individual peek read.
	PeekTimeout time.Duration

	// ConnectTimeout bounds the upstream dial.
	ConnectTimeout time.Duration

	// DrainTimeout bounds how long [*Listener.Serve] waits for in-flight
	// connections to finish after the context is cancelled, before
	// returning anyway.
	DrainTimeout time.Duration

	dial ormos.Func[netip.AddrPort, net.Conn]

	ln net.Listener
	wg sync.WaitGroup
}

// NewListener returns a [*Listener] with sensible defaults. dial is the
// pipeline used to connect to a chosen upstream endpoint — typically
// [ormos.ConnectFunc] composed with [ormos.ObserveConnFunc] and
// [ormos.CancelWatchFunc], mirroring the resolver's own dial pipelines.
func NewListener(addr string, registry *parse.Registry, pipeline *rule.Pipeline,
	dial ormos.Func[netip.AddrPort, net.Conn], splicer *Splicer, logger ormos.SLogger) *Listener {
	if logger == nil {
		logger = ormos.DefaultSLogger()
	}
	return &Listener{
		Addr:           addr,
		Registry:       registry,
		Pipeline:       pipeline,
		Splicer:        splicer,
		Logger:         logger,
		PeekHardCap:    defaultPeekHardCap,
		PeekTimeout:    defaultPeekTimeout,
		ConnectTimeout: defaultConnectTimeout,
		DrainTimeout:   defaultDrainTimeout,
		dial:           dial,
	}
}

// Serve binds Addr and accepts connections until ctx is done, then stops
// accepting and waits up to DrainTimeout for in-flight connections before
// returning. Each accepted connection is handled by its own goroutine; no
// mutable state is shared between them apart from the immutable Pipeline
// and Registry (§4.4 "Listener concurrency").
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return err
	}
	l.ln = ln

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	l.acceptLoop(ctx)

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(l.DrainTimeout):
		l.Logger.Info("listenerDrainTimeout", slog.String("localAddr", l.Addr))
	}
	return nil
}

func (l *Listener) acceptLoop(ctx context.Context) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		spanID := ormos.NewSpanID()
		connLogger := l.Logger.With(slog.String("spanID", spanID))
		connLogger.Info("accept",
			slog.String("localAddr", conn.LocalAddr().String()),
			slog.String("remoteAddr", conn.RemoteAddr().String()),
		)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConnection(ctx, conn, connLogger)
		}()
	}
}

// handleConnection drives one accepted connection from peek through
// splice, per §4.4. logger already carries this connection's spanID
// (§A "every connection's log lines share a span ID"), so every event
// below — parse, rule decisions, dial, splice — correlates back to the
// same accept line.
func (l *Listener) handleConnection(ctx context.Context, conn net.Conn, logger ormos.SLogger) {
	buf := &PeekBuffer{}
	result, err := l.peek(conn, buf)
	if err != nil {
		logger.Info("parseFailed", slog.Any("err", err))
		conn.Close()
		return
	}
	logger.Info("parseMatch",
		slog.String("protocol", result.Protocol),
		slog.String("name", result.Name.Name),
	)

	serviceName := name.ServiceName(result.Name.Name)
	rc := rule.NewRoutingContext(serviceName, l.peerPort(conn))

	pipeline := rule.NewPipeline(l.Pipeline.Rules, logger)
	decision := pipeline.Run(ctx, rc)
	switch decision.Action {
	case rule.ActionFail:
		logger.Info("routeFailed", slog.Any("err", decision.Err))
		conn.Close()
		return
	case rule.ActionTerminate:
		l.dialAndSplice(ctx, conn, buf, decision.Endpoint, logger)
	}
}

// peek progressively reads from conn, trying the registry against every
// accumulated byte count, until a parser commits, the hard cap is
// reached, or every parser definitively rejects the bytes (§4.4 step 1,
// §4.1).
func (l *Listener) peek(conn net.Conn, buf *PeekBuffer) (parse.RegistryResult, error) {
	defer conn.SetReadDeadline(time.Time{})

	for {
		if buf.Len() >= l.PeekHardCap {
			return parse.RegistryResult{}, ErrParseIncomplete
		}

		want := l.Registry.MinimumBytes() - buf.Len()
		if want < 1 {
			want = 1
		}
		if buf.Len()+want > l.PeekHardCap {
			want = l.PeekHardCap - buf.Len()
		}

		conn.SetReadDeadline(time.Now().Add(l.PeekTimeout))
		chunk := make([]byte, want)
		n, readErr := conn.Read(chunk)
		if n > 0 {
			buf.Grow(chunk[:n])
		}

		res := l.Registry.Extract(buf.Data)
		switch res.Status {
		case parse.StatusOk:
			return res, nil
		case parse.StatusNeedMore:
			if readErr != nil {
				return parse.RegistryResult{}, ErrParseIncomplete
			}
			continue
		default:
			return parse.RegistryResult{}, ErrParseMalformed
		}
	}
}

// peerPort returns the local TCP port the client connected to — the
// "port on which the client landed at the listener" (§3).
func (l *Listener) peerPort(conn net.Conn) uint16 {
	if tcpAddr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		return uint16(tcpAddr.Port)
	}
	if addrPort, err := netip.ParseAddrPort(conn.LocalAddr().String()); err == nil {
		return addrPort.Port()
	}
	return 0
}

func (l *Listener) dialAndSplice(ctx context.Context, client net.Conn, buf *PeekBuffer, endpoint netip.AddrPort, logger ormos.SLogger) {
	dialCtx, cancel := context.WithTimeout(ctx, l.ConnectTimeout)
	defer cancel()

	upstream, err := l.dial.Call(dialCtx, endpoint)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrDialFailed, err)
		logger.Info("dialFailed", slog.String("remoteAddr", endpoint.String()), slog.Any("err", err))
		client.Close()
		return
	}

	splicer := *l.Splicer
	splicer.Logger = logger
	splicer.Splice(ctx, client, upstream, buf.Data)
}
