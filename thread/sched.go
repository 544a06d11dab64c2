/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package thread

import "runtime"

// runtimeGoschedImpl yields the calling goroutine, standing in for
// native_thread_yield()'s sched_yield()/pthread_yield() call.
func runtimeGoschedImpl() {
	runtime.Gosched()
}
