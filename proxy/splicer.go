// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on ObserveConnFunc/CancelWatchFunc's SetDeadline and
// close-on-cancellation idioms (observeconn.go, cancelwatch.go), adapted
// from single-connection observability to a two-connection full-duplex
// relay.
//

package proxy

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Lainera/ormos"
	"github.com/bassosimone/safeconn"
)

// defaultIdleTimeout is the splice idle timeout absent an explicit
// [Splicer.IdleTimeout] (§4.5).
const defaultIdleTimeout = 60 * time.Second

// copyBufferSize is the chunk size used by the splice loops.
const copyBufferSize = 32 * 1024

// closeWriter is implemented by connections that support half-close (see
// [*ormos.observedConn] and [*net.TCPConn]).
type closeWriter interface {
	CloseWrite() error
}

// SpliceResult summarizes a finished splice for structured logging (§6).
type SpliceResult struct {
	BytesUp   int64
	BytesDown int64
	Duration  time.Duration
}

// Splicer is a full-duplex byte relay between a client and an upstream
// connection (§4.5). It writes the already-peeked buffer to the upstream
// before any further client bytes, then concurrently copies both
// directions until each read side reaches EOF, at which point it performs
// a half-close on the corresponding write side. An idle timeout (default
// [defaultIdleTimeout], no bytes in either direction) aborts the splice;
// any copy error closes both ends immediately.
type Splicer struct {
	// IdleTimeout bounds how long the splice may go without activity in
	// either direction before both ends are closed. Zero disables the
	// timeout. Defaults to [defaultIdleTimeout] via [NewSplicer].
	IdleTimeout time.Duration

	// Logger receives a spliceDone event when the relay ends.
	Logger ormos.SLogger

	// TimeNow is the function to get the current time (configurable for
	// testing).
	TimeNow func() time.Time
}

// NewSplicer returns a [*Splicer] with [defaultIdleTimeout] and the given
// logger. A nil logger is replaced with [ormos.DefaultSLogger].
func NewSplicer(cfg *ormos.Config, logger ormos.SLogger) *Splicer {
	if logger == nil {
		logger = ormos.DefaultSLogger()
	}
	return &Splicer{
		IdleTimeout: defaultIdleTimeout,
		Logger:      logger,
		TimeNow:     cfg.TimeNow,
	}
}

// Splice relays bytes between client and upstream until both directions
// close or either fails. peeked is written to upstream before any further
// client bytes are copied, satisfying the peek-and-replay contract
// (§4.6).
func (s *Splicer) Splice(ctx context.Context, client, upstream net.Conn, peeked []byte) (SpliceResult, error) {
	t0 := s.now()
	s.logSpliceStart(client, upstream, len(peeked))

	if len(peeked) > 0 {
		s.touch(client, upstream)
		if _, err := upstream.Write(peeked); err != nil {
			result := SpliceResult{Duration: s.now().Sub(t0)}
			s.logSpliceDone(client, upstream, result, err)
			return result, err
		}
	}

	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			client.Close()
			upstream.Close()
		})
	}

	// Closing the client socket promptly cancels the connection task
	// (§5 "Cancellation"); closing both ends when the caller's context is
	// done has the same effect.
	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var wg sync.WaitGroup
	var upBytes, downBytes int64
	var upErr, downErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		upBytes, upErr = s.copyDirection(client, upstream)
		halfClose(upstream)
		if upErr != nil {
			closeBoth()
		}
	}()
	go func() {
		defer wg.Done()
		downBytes, downErr = s.copyDirection(upstream, client)
		halfClose(client)
		if downErr != nil {
			closeBoth()
		}
	}()
	wg.Wait()
	closeBoth()

	result := SpliceResult{BytesUp: upBytes, BytesDown: downBytes, Duration: s.now().Sub(t0)}
	err := upErr
	if err == nil {
		err = downErr
	}
	s.logSpliceDone(client, upstream, result, err)
	return result, err
}

// copyDirection copies src to dst until src's read side returns EOF,
// extending the idle deadline on both connections after every read and
// write so the pair shares one idle clock regardless of which direction
// is active.
func (s *Splicer) copyDirection(dst, src net.Conn) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var total int64
	for {
		s.touch(dst, src)
		n, readErr := src.Read(buf)
		if n > 0 {
			s.touch(dst, src)
			wn, writeErr := dst.Write(buf[:n])
			total += int64(wn)
			if writeErr != nil {
				return total, writeErr
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return total, nil
			}
			return total, readErr
		}
	}
}

// touch extends both connections' deadlines by IdleTimeout. A zero
// IdleTimeout disables the deadline entirely.
func (s *Splicer) touch(a, b net.Conn) {
	if s.IdleTimeout <= 0 {
		return
	}
	deadline := s.now().Add(s.IdleTimeout)
	a.SetDeadline(deadline)
	b.SetDeadline(deadline)
}

func (s *Splicer) now() time.Time {
	if s.TimeNow != nil {
		return s.TimeNow()
	}
	return time.Now()
}

// halfClose signals EOF to the peer on conn's write side, if supported,
// leaving the read side usable for the other direction's remaining
// in-flight bytes.
func halfClose(conn net.Conn) {
	if cw, ok := conn.(closeWriter); ok {
		cw.CloseWrite()
	}
}

func (s *Splicer) logSpliceStart(client, upstream net.Conn, peekedLen int) {
	s.Logger.Info(
		"spliceStart",
		slog.String("localAddr", safeconn.LocalAddr(client)),
		slog.String("remoteAddr", safeconn.RemoteAddr(client)),
		slog.String("upstreamAddr", safeconn.RemoteAddr(upstream)),
		slog.Int("peekedBytes", peekedLen),
		slog.Time("t", s.now()),
	)
}

func (s *Splicer) logSpliceDone(client, upstream net.Conn, result SpliceResult, err error) {
	s.Logger.Info(
		"spliceDone",
		slog.String("localAddr", safeconn.LocalAddr(client)),
		slog.String("remoteAddr", safeconn.RemoteAddr(client)),
		slog.String("upstreamAddr", safeconn.RemoteAddr(upstream)),
		slog.Int64("bytesUp", result.BytesUp),
		slog.Int64("bytesDown", result.BytesDown),
		slog.Duration("duration", result.Duration),
		slog.Any("err", err),
	)
}
