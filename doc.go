// SPDX-License-Identifier: GPL-3.0-or-later

// Package ormos provides the composable primitives shared by an SNI/Host-aware
// layer-4 reverse proxy: connection establishment, cancellation, observability,
// and structured logging. Higher-level packages build on top of it:
//
//   - [github.com/Lainera/ormos/name]: validated, normalized service names.
//   - [github.com/Lainera/ormos/resolve]: DNS resolution (A/AAAA/SRV) over
//     UDP, TCP, or TLS.
//   - [github.com/Lainera/ormos/rule]: the routing pipeline (filter, rewrite,
//     constant, dns, fallback rules).
//   - [github.com/Lainera/ormos/parse]: TLS ClientHello SNI and HTTP/1 Host
//     extraction from peeked connection bytes.
//   - [github.com/Lainera/ormos/proxy]: the listener and splicer that tie the
//     above together around one accepted connection.
//   - [github.com/Lainera/ormos/config]: the YAML configuration format.
//
// # Core Abstraction
//
// This package is built around a single interface:
//
//	type Func[A, B any] interface {
//		Call(ctx context.Context, input A) (B, error)
//	}
//
// Each Func represents an atomic network operation with exactly one success
// mode and one failure mode. This design enables type-safe composition via
// [Compose2], [Compose3], etc., where the compiler verifies that outputs
// match inputs across pipeline stages. The proxy's upstream-dial step and the
// resolver's transport-dial step are both built this way.
//
// # Available Primitives
//
//   - [ConnectFunc]: dials TCP or UDP endpoints
//   - [ObserveConnFunc]: observes connections for logging I/O operations and
//     counting bytes transferred (used by the splicer for bytes_up/bytes_down)
//   - [CancelWatchFunc]: closes connection on context cancellation, so closing
//     the client socket promptly cancels the whole connection task
//
// Composition utilities:
//   - [Compose2] through [Compose8]: chain Funcs into pipelines
//   - [FuncAdapter]: wrap a function as a Func for ad-hoc custom behavior
//   - [Apply]: bind a fixed input to a Func
//   - [ConstFunc]: lift a pure value into a Func
//
// # Connection Lifecycle
//
// [ConnectFunc] creates connections and transfers ownership to the next
// pipeline stage on success. On error, it returns no connection. Wrapper
// Funcs such as [ObserveConnFunc] and [CancelWatchFunc] return a [net.Conn]
// that wraps the input: closing the returned value unregisters any watchers
// and closes the underlying connection.
//
// # Observability
//
// All primitives support structured logging via [SLogger] (compatible with
// [log/slog] through [NewSLogger]). By default, logging is disabled; pass a
// logger built with [NewSLogger] to enable it. Error classification is
// configurable via [ErrClassifier]; by default, [NewConfig] installs
// [DefaultErrClassifier], which maps syscall errors to errno names.
//
// Primitives emit *Start/*Done event pairs carrying timing and success/failure
// information, sharing a common set of fields: localAddr, remoteAddr,
// protocol, and t (timestamp). Completion events additionally include t0
// (start time), err, and errClass. I/O-level events (read, write, deadline
// changes) are emitted at [slog.LevelDebug]; all other events use
// [slog.LevelInfo].
//
// Use [NewSpanID] to generate a unique, time-ordered identifier (UUIDv7) for
// each connection, then attach it to the logger with [SLogger.With]. All
// log entries from that connection share the same spanID, enabling
// correlation across the parser, pipeline, resolver, and splicer. The
// proxy listener does exactly this once per accepted connection.
//
// # Timeout and Context Philosophy
//
// This package is context-transparent: operations never modify the context
// they receive. The caller controls timeouts externally via
// [context.WithTimeout], [context.WithDeadline], or [signal.NotifyContext].
// Connection lifecycle requires [CancelWatchFunc] to bind the context
// lifecycle to the connection: when the context is done, the connection is
// closed immediately, causing any in-progress I/O to fail.
package ormos
