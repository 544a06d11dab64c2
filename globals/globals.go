/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package globals holds the VM-wide singleton configuration jacobin calls
// "Global": the handful of settings and counters that every subsystem
// needs to see (classpath, heap size, trace switches, the exception
// thrower indirection used to break import cycles between jvm-adjacent
// packages and the loader).
package globals

import (
	"sync"
)

// GCStrategy selects the collector's marking algorithm (spec §4.2); the
// observable collection outcome is identical between the two, so this is
// purely a build/runtime choice, never a correctness axis.
type GCStrategy int

const (
	RecursiveMarking GCStrategy = iota
	PointerReversalMarking
)

// ThreadBackend selects the thread & monitor manager's native backend
// (spec §4.6).
type ThreadBackend int

const (
	NativeThreads ThreadBackend = iota
	GreenThreads
	NoThreads
)

// Globals is the VM-wide configuration and counter block.
type Globals struct {
	JacobinName string // retained from the teacher for log/diagnostic prefixes
	JavaHome    string
	Classpath   []string
	BootClasspath []string
	StartingJar string

	HeapSizeBytes   int
	PermSizeBytes   int
	GCStrategy      GCStrategy
	ThreadBackend   ThreadBackend

	TraceClass  bool
	TraceCloadi bool
	TraceInst   bool
	StrictJDK   bool

	JvmFrameStackShown bool

	// FuncThrowException is a hook for raising a Java-level exception
	// without importing the interpreter package, breaking what would
	// otherwise be an import cycle. No package in this module calls or
	// replaces it; InitGlobals installs a no-op.
	FuncThrowException func(excClassName string, msg string)

	LoaderWg sync.WaitGroup
}

var global Globals
var globalMu sync.Mutex

// InitGlobals resets the singleton to defaults; name is stashed for
// log-line prefixes the way jacobin's JacobinName was used.
func InitGlobals(name string) *Globals {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = Globals{
		JacobinName:   name,
		HeapSizeBytes: 16 * 1024 * 1024,
		PermSizeBytes: 2 * 1024 * 1024,
		GCStrategy:    RecursiveMarking,
		ThreadBackend: NativeThreads,
		FuncThrowException: func(string, string) {
			// a no-op, so a caller that never expects a throw
			// doesn't nil-panic.
		},
	}
	return &global
}

// GetGlobalRef returns the process-wide Globals, initializing it with
// defaults on first use.
func GetGlobalRef() *Globals {
	globalMu.Lock()
	needsInit := global.JacobinName == ""
	globalMu.Unlock()
	if needsInit {
		InitGlobals("jelatine")
	}
	return &global
}
