/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Command jelatine is the VM's thin CLI front end: parse flags, stand up
// the heap/thread manager/classloader/interpreter (no gc.Collector is
// constructed), load the named main class,
// and run its public static void main(String[]). Deliberately small
// (spec §1 scopes CLI ergonomics out of the core), grounded on the
// cobra-based command shells `saferwall-pe` and `mabhi256-jdiag` use in
// the retrieval pack rather than a hand-rolled flag.Parse loop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"jelatine/classloader"
	"jelatine/classpath"
	"jelatine/excNames"
	"jelatine/frames"
	"jelatine/gc"
	"jelatine/globals"
	"jelatine/heap"
	"jelatine/interpreter"
	"jelatine/object"
	"jelatine/thread"
)

var (
	flagClasspath     string
	flagBootClasspath string
	flagHeapSize      int
	flagPermSize      int
	flagGCStrategy    string
	flagTrace         bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "jelatine [flags] <main-class>",
		Short:   "Run a CLDC 1.1 Java program on the jelatine VM core",
		Args:    cobra.ExactArgs(1),
		Version: versionString,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}
	cmd.Flags().StringVar(&flagClasspath, "classpath", ".", "application classpath (colon-separated)")
	cmd.Flags().StringVar(&flagBootClasspath, "bootclasspath", ".", "boot classpath for java/javax/jelatine classes")
	cmd.Flags().IntVar(&flagHeapSize, "heap-size", 16*1024*1024, "heap size in bytes")
	cmd.Flags().IntVar(&flagPermSize, "perm-size", 2*1024*1024, "permanent-generation arena size in bytes")
	cmd.Flags().StringVar(&flagGCStrategy, "gc-strategy", "recursive", "GC marking strategy: recursive or pointer-reversal")
	cmd.Flags().BoolVar(&flagTrace, "trace", false, "enable verbose class-loading/instruction trace")
	return cmd
}

// versionString is set by the release process via -ldflags; left as a
// plain placeholder for a from-source build the way jacobin's own
// dev builds report "unknown".
var versionString = "unknown"

func run(mainClass string) error {
	g := globals.InitGlobals("jelatine")
	g.HeapSizeBytes = flagHeapSize
	g.PermSizeBytes = flagPermSize
	g.TraceClass = flagTrace
	g.TraceInst = flagTrace
	switch flagGCStrategy {
	case "recursive":
		g.GCStrategy = globals.RecursiveMarking
	case "pointer-reversal":
		g.GCStrategy = globals.PointerReversalMarking
	default:
		return fmt.Errorf("unknown --gc-strategy %q (want recursive or pointer-reversal)", flagGCStrategy)
	}

	h, err := heap.New(g.HeapSizeBytes, g.PermSizeBytes)
	if err != nil {
		return fmt.Errorf("heap: %w", err)
	}
	defer h.Close()
	object.Heap = h

	// gc.New(h, g) stands up the collector; nothing in this entry point
	// drives a cycle yet (spec keeps GC triggering policy -- when an
	// allocation failure should provoke a Collect -- out of core scope
	// per §1's Non-goals), so main never constructs one directly.

	tm := thread.New()
	gc.RegisterRoots(tm)

	fs := frames.NewStack(maxFrameDepth)
	gc.RegisterRoots(fs)

	cp := classpath.Parse(flagClasspath)
	bootCp := classpath.Parse(flagBootClasspath)

	k, err := classloader.Load(cp, bootCp, classNameToInternal(mainClass))
	if err != nil {
		return fmt.Errorf("%s: %w", excNames.NoClassDefFoundError, err)
	}

	mainMethod := k.Data.MethodByID["main([Ljava/lang/String;)V"]
	if mainMethod == nil {
		return fmt.Errorf("%s: %s has no main(String[]) method", excNames.NoClassDefFoundError, mainClass)
	}

	vm := interpreter.New(tm)
	th := tm.Launch("main")
	defer tm.Unregister(th)

	argsArray, err := object.NewArray(0, "L", 0)
	if err != nil {
		return fmt.Errorf("heap: %w", err)
	}

	_, err = vm.Invoke(th, fs, k.Data.Name, mainMethod, []frames.Slot{{Ref: argsArray}})
	if jt, ok := err.(*interpreter.JavaThrow); ok {
		return fmt.Errorf("uncaught %s", jt.Error())
	}
	return err
}

const maxFrameDepth = 1024

// classNameToInternal turns a dotted class name (the form a command line
// names a main class with, e.g. "com.example.Main") into the
// slash-separated internal form classloader.Load expects; a name
// already in internal form passes through unchanged.
func classNameToInternal(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			out[i] = '/'
		} else {
			out[i] = name[i]
		}
	}
	return string(out)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "jelatine:", err)
		os.Exit(1)
	}
}
