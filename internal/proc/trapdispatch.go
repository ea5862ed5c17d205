package proc

import (
	"github.com/patha454/xv6-rpi2-port/internal/kpanic"
	"github.com/patha454/xv6-rpi2-port/internal/trap"
)

// syscallDispatch is wired up by package syscall's own init(), via
// RegisterSyscallHandler — avoiding an import cycle, since syscall
// must import proc (to call Fork/Exit/Wait/Kill/...) and proc must
// call into whatever decodes a syscall number, but trap dispatch
// itself belongs here: spec.md §9 treats it as scheduler state
// ("current.killed", "current.state == RUNNING"), not pure ABI.
var syscallDispatch func(tf *trap.Trapframe)

// RegisterSyscallHandler wires the syscall layer's dispatcher into
// Trap. Must be called once, at boot, before the first trap.
func RegisterSyscallHandler(fn func(tf *trap.Trapframe)) {
	syscallDispatch = fn
}

// TicksChannel is the wait token for processes sleeping on the tick
// counter (spec.md §4.5's sleep(n_ticks), §5's ticks_lock). It lies
// above every chanOf value (1..NPROC), so it never names a PCB.
const TicksChannel Chan = NPROC + 1

// Ticks returns the current tick count under ticksLock.
func Ticks() uint32 {
	ticksLock.Acquire()
	t := ticks
	ticksLock.Release()
	return t
}

// SleepTicks blocks the calling process for n timer ticks (spec.md
// §4.5's sys_sleep). The source's documented intent — "sleep for n
// ticks" — is implemented directly as ticks-t0 < n, resolving the
// `while (ticks - (ticks0 < n))` typo spec.md §9 flags rather than
// reproducing it.
func SleepTicks(n uint32) {
	ticksLock.Acquire()
	t0 := ticks
	for ticks-t0 < n {
		if current.Killed {
			ticksLock.Release()
			return
		}
		Sleep(TicksChannel, &ticksLock)
	}
	ticksLock.Release()
}

// TimerTick is the external timer_tick() collaborator spec.md §6
// names: the IRQ dispatcher below calls it once per timer interrupt.
// It advances the monotonic counter and wakes anyone sleeping on it.
func TimerTick() {
	ticksLock.Acquire()
	ticks++
	ticksLock.Release()
	Wakeup(TicksChannel)
}

// Trap is the hosted equivalent of spec.md §4.3's trap() dispatch: it
// runs once per exception, on whatever trapframe the (simulated)
// exception-entry path built.
func Trap(tf *trap.Trapframe, ic *trap.IntController) {
	if tf.TrapNo == trap.SYSCALL {
		handleSyscall(tf)
		return
	}

	isTimer := false
	switch tf.TrapNo {
	case trap.IRQ:
		handleIRQ(ic, &isTimer)
	default:
		handleBadTrap(tf)
	}

	if current != nil {
		if current.Killed && tf.FromUser() {
			Exit()
		}
		if current.State == RUNNING && isTimer {
			Yield()
		}
		if current.Killed && tf.FromUser() {
			Exit()
		}
	}
}

// handleSyscall runs a process's syscall to completion: checked for
// a kill both before dispatch (so a process killed while blocked
// doesn't get to run one more syscall) and after (so a syscall that
// itself slept and woke up killed still dies promptly).
func handleSyscall(tf *trap.Trapframe) {
	if current != nil && current.Killed {
		Exit()
	}
	current.TF = *tf
	if syscallDispatch == nil {
		kpanic.Fatal("proc: trap: no syscall handler registered")
	}
	syscallDispatch(&current.TF)
	*tf = current.TF
	if current.Killed {
		Exit()
	}
}

// handleIRQ drains every pending, enabled interrupt source, per
// spec.md §4.3's dispatch pseudocode: the timer bit advances ticks
// and sets isTimer so the caller knows to consider a yield; the
// mini-UART bit would call into a driver this core does not own.
func handleIRQ(ic *trap.IntController, isTimer *bool) {
	for ic.AnyPending() {
		if ic.Pending[0]&ic.Enable[0]&trap.IRQTimerBit != 0 {
			TimerTick()
			*isTimer = true
			ic.Ack(0, trap.IRQTimerBit)
		}
		if ic.Pending[0]&ic.Enable[0]&trap.IRQMiniUARTBit != 0 {
			ic.Ack(0, trap.IRQMiniUARTBit)
		}
	}
}

// handleBadTrap deals with anything that is neither a syscall nor a
// recognized IRQ. From kernel mode this is fatal (spec.md §7 taxonomy
// item 1); from user mode it marks the process killed (item 3).
func handleBadTrap(tf *trap.Trapframe) {
	if !tf.FromUser() {
		kpanic.Fatal("proc: unhandled trap from kernel mode: trapno=%#x pc=%#x ifar=%#x", tf.TrapNo, tf.PC, tf.IFAR)
	}
	if current != nil {
		current.Killed = true
	}
}
