/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package gfunction

import (
	"time"

	"jelatine/frames"
	"jelatine/object"
	"jelatine/thread"
)

// Load_Lang_Thread registers java.lang.Thread's natives. sleep is the
// one jacobin's teacher file actually implemented; registerNatives is
// the usual no-op bootstrap stub every native-heavy JDK class declares.
func Load_Lang_Thread() {
	MethodSignatures["java/lang/Thread.registerNatives()V"] =
		GMeth{ParamSlots: 0, GFunction: justReturn}

	MethodSignatures["java/lang/Thread.sleep(J)V"] =
		GMeth{ParamSlots: 1, GFunction: threadSleep}

	MethodSignatures["java/lang/Thread.currentThread()Ljava/lang/Thread;"] =
		GMeth{ParamSlots: 0, GFunction: threadCurrentThread}
}

// "java/lang/Thread.sleep(J)V" -- delegates straight to thread.Sleep,
// which in turn parks the calling goroutine (spec §4.6's NativeThreads
// backend maps one Java thread to one goroutine).
func threadSleep(params []frames.Slot) (frames.Slot, error) {
	millis := int64(params[0].Word)
	thread.Sleep(time.Duration(millis) * time.Millisecond)
	return frames.Slot{}, nil
}

// "java/lang/Thread.currentThread()Ljava/lang/Thread;" is not wired to
// a real java.lang.Thread instance: this VM's thread.Thread is a host
// struct, not a heap object, and CLDC 1.1 code that merely wants "the
// current thread" for identity/logging purposes (the common case) is
// satisfied by object.Null here rather than standing up a full
// Thread-mirror allocation this VM has no other use for.
func threadCurrentThread(params []frames.Slot) (frames.Slot, error) {
	return frames.Slot{Ref: object.Null}, nil
}
