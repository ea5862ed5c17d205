package proc

import (
	"runtime"

	"github.com/patha454/xv6-rpi2-port/internal/kpanic"
	"github.com/patha454/xv6-rpi2-port/internal/spinlock"
	"github.com/patha454/xv6-rpi2-port/internal/vm"
)

// sched hands control from the calling process back to the
// scheduler, per spec.md §4.4's preconditions: the ptable lock held,
// exactly one nested interrupt-disable, and the caller not RUNNING.
//
// Hosting note: real switch_context leaves the ptable lock's
// "held" bookkeeping in place across the stack swap, to be released
// by whichever code resumes next (forkret, or the line after the
// previous sched() call). A channel handoff has no stack to carry
// that bookkeeping across, so sched itself drops the lock before
// parking and re-takes it on resume; every caller (Yield, Sleep,
// Wait, Exit) still acquires and releases around its own call to
// sched exactly as spec.md §4.4 describes, so the externally visible
// locking discipline — and every invariant in spec.md §8 — is
// unchanged.
func sched() {
	if !ptableLock.Holding() {
		kpanic.Fatal("proc: sched: ptable lock not held")
	}
	if spinlock.CurrCPU().NCli() != 1 {
		kpanic.Fatal("proc: sched: ncli = %d, want 1", spinlock.CurrCPU().NCli())
	}
	if current.State == RUNNING {
		kpanic.Fatal("proc: sched: pid %d is RUNNING", current.Pid)
	}

	p := current
	zombie := p.State == ZOMBIE
	resume := p.resume
	ptableLock.Release()
	p.parked <- struct{}{}
	if zombie {
		// The scheduler goroutine is free to touch table/current/locks
		// the instant it receives on p.parked, so this goroutine must
		// not execute another line past that send: an ordinary return
		// would unwind back through Exit/handleSyscall/body and read
		// shared state concurrently with the scheduler. Goexit ends
		// the goroutine here instead of returning to any caller.
		runtime.Goexit()
	}
	<-resume
	ptableLock.Acquire()
}

// Yield gives up the CPU for one scheduler round: spec.md §4.4.
func Yield() {
	ptableLock.Acquire()
	current.State = RUNNABLE
	sched()
	ptableLock.Release()
}

// Sleep puts the calling process to sleep on chan_, releasing lk
// first (spec.md §4.4's lock-atomicity rule: once ptableLock is held,
// a wakeup sequenced after the decision to sleep cannot be missed).
// On resume, lk is reacquired if it had been swapped out.
func Sleep(chan_ Chan, lk *spinlock.Lock) {
	if lk != &ptableLock {
		ptableLock.Acquire()
		lk.Release()
	}
	current.Channel = chan_
	current.State = SLEEPING
	sched()
	current.Channel = 0
	if lk != &ptableLock {
		ptableLock.Release()
		lk.Acquire()
	}
}

// run is a process's own goroutine: the hosted equivalent of
// fork_return falling through trapret into user mode. It blocks for
// its first turn, runs the process's simulated body (exec and the
// ELF loader are out of scope, so there is no real user program to
// interpret here), and exits the process if the body returns without
// doing so itself.
func (p *Proc) run() {
	<-p.resume
	if p.body != nil {
		p.body(p)
	}
	if current == p && p.State != ZOMBIE {
		Exit()
	}
}

// ScheduleOnce performs one round-robin scan of the process table,
// giving every RUNNABLE process in turn the CPU until it yields,
// sleeps or exits (spec.md §4.4's scheduler loop, one pass). Returns
// the number of processes given a turn. Exposed directly so tests can
// drive the scheduler deterministically, one pass at a time, instead
// of racing an infinite background loop.
func ScheduleOnce() int {
	n := 0
	ptableLock.Acquire()
	for i := range table {
		p := &table[i]
		if p.State != RUNNABLE {
			continue
		}
		current = p
		if p.Pgdir != nil {
			vm.SwitchUVM(p.Pgdir)
		}
		p.State = RUNNING
		if !p.started {
			p.started = true
			go p.run()
		}
		ptableLock.Release()

		p.resume <- struct{}{}
		<-p.parked

		ptableLock.Acquire()
		vm.SwitchKVM()
		current = nil
		n++
	}
	ptableLock.Release()
	return n
}

// RunScheduler is the per-CPU scheduler of spec.md §4.4: it never
// returns. cmd/kcore runs it as its own goroutine; tests use
// ScheduleOnce instead for deterministic, single-pass control.
func RunScheduler() {
	for {
		ScheduleOnce()
	}
}
