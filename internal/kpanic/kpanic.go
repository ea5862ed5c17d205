/*
Package kpanic is the kernel's one hard-stop path: a logged message
followed by a panic, the same two-step rcornwell-S370 uses when it
logs before giving up (core.Stop's timeout warning, cpu code paths
that log before halting). Packages proc and trap call Fatal for their
fatal precondition violations — bad lock nesting entering sched, the
init process exiting, an unhandled kernel-mode trap, vectors installed
twice — formatting one line describing what broke, so those errors are
logged at the same level before the stack unwinds. Packages vm,
pagealloc and spinlock (a remap, a missing PTE, a bad free, a lock
misuse) call panic directly and log nothing.
*/
package kpanic

import (
	"fmt"
	"log/slog"
)

// Fatal formats format/args, logs the result at slog.LevelError, and
// panics with the same message. It never returns.
func Fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Error(msg)
	panic(msg)
}
