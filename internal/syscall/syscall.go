/*
Package syscall decodes a trapped process's syscall number and
arguments out of its trapframe and calls into package proc, per
spec.md §4.5. It is wired into the trap dispatch via
proc.RegisterSyscallHandler rather than proc importing this package
directly, since proc already needs to be imported the other way
(Fork, Exit, Wait, Kill, Getpid, Sbrk, SleepTicks, Ticks).
*/
package syscall

import (
	"github.com/patha454/xv6-rpi2-port/internal/proc"
	"github.com/patha454/xv6-rpi2-port/internal/trap"
)

// Syscall numbers (spec.md §4.5's minimum surface).
const (
	SysFork = iota + 1
	SysExit
	SysWait
	SysKill
	SysGetpid
	SysSbrk
	SysSleep
	SysUptime
)

var handlers = map[uint32]func(tf *trap.Trapframe) int32{
	SysFork:   sysFork,
	SysExit:   sysExit,
	SysWait:   sysWait,
	SysKill:   sysKill,
	SysGetpid: sysGetpid,
	SysSbrk:   sysSbrk,
	SysSleep:  sysSleep,
	SysUptime: sysUptime,
}

func init() {
	proc.RegisterSyscallHandler(Dispatch)
}

// Dispatch reads the syscall number from tf.R7 and the first four
// arguments from tf.R0-tf.R3, runs the matching handler, and writes
// its result back into tf.R0. An out-of-range number returns -1
// without touching process state (spec.md §7 taxonomy item 4).
func Dispatch(tf *trap.Trapframe) {
	fn, ok := handlers[tf.SyscallNo()]
	if !ok {
		tf.SetReturn(^uint32(0)) // -1
		return
	}
	tf.SetReturn(uint32(fn(tf)))
}

func sysFork(tf *trap.Trapframe) int32 {
	return int32(proc.Fork())
}

func sysExit(tf *trap.Trapframe) int32 {
	proc.Exit()
	return 0 // unreachable: Exit never returns
}

func sysWait(tf *trap.Trapframe) int32 {
	return int32(proc.Wait())
}

func sysKill(tf *trap.Trapframe) int32 {
	var pid uint32
	if !trap.ArgInt(tf, 0, &pid) {
		return -1
	}
	return int32(proc.Kill(int(int32(pid))))
}

func sysGetpid(tf *trap.Trapframe) int32 {
	return int32(proc.Getpid())
}

func sysSbrk(tf *trap.Trapframe) int32 {
	var n uint32
	if !trap.ArgInt(tf, 0, &n) {
		return -1
	}
	return proc.Sbrk(int32(n))
}

func sysSleep(tf *trap.Trapframe) int32 {
	var n uint32
	if !trap.ArgInt(tf, 0, &n) {
		return -1
	}
	proc.SleepTicks(n)
	return 0
}

func sysUptime(tf *trap.Trapframe) int32 {
	return int32(proc.Ticks())
}
