// Package progress carries capture progress events from workers to sinks
// (console, log, metrics) through a non-blocking batching hub.
package progress
