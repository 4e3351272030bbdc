// Package sinks implements progress consumers: console lines, structured logs
// and Prometheus metrics.
package sinks
