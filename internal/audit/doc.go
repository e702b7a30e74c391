// Package audit delivers security events to sinks without blocking the
// request path.
//
// A [Dispatcher] owns a bounded queue and one delivery goroutine. When the
// queue is full it either drops the event or waits for the caller's context,
// and it recovers from sinks that panic. Sinks compose: [MultiSink] fans out,
// [TypeFilter] narrows by event type, and [ChannelSink] and [JSONWriterSink]
// cover in-process consumers and log files.
//
// The engine decides which events exist. This package only moves them.
package audit
