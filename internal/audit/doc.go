// Package audit carries security events from the engine to their sinks.
//
// # Components
//
//   - [Event]: one structured record (type, user, acting admin, session, IP, outcome).
//   - [Sink]: event consumer. [StoreSink] persists to the credential store so admins can
//     query it; [LogSink] writes through zerolog; [JSONWriterSink], [ChannelSink] and
//     [NoOpSink] cover tests and simple deployments; [MultiSink] fans out.
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//
// The engine decides which events exist. This package never filters them.
package audit
