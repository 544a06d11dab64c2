/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package trace is jacobin's leveled logging surface kept intact
// (Trace/Warning/Error, the same three call sites every other package
// reaches for) but backed by glog instead of a hand-rolled writer, so
// verbosity, flushing, and severity routing come from a library rather
// than a bespoke implementation.
package trace

import (
	"github.com/golang/glog"
)

// Init flushes any buffered glog output on VM shutdown; call via
// `defer trace.Init()()` at the top of main.
func Init() func() {
	return glog.Flush
}

// Trace logs an informational line. Corresponds to jacobin's log.TRACE_INST level.
func Trace(msg string) {
	glog.InfoDepth(1, msg)
}

// Warning logs a recoverable anomaly.
func Warning(msg string) {
	glog.WarningDepth(1, msg)
}

// Error logs an error that the caller is about to turn into a Java
// exception or a fatal shutdown.
func Error(msg string) {
	glog.ErrorDepth(1, msg)
}
