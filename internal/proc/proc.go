/*
Package proc implements spec.md §4.4: the process table, PID
allocation, fork/exit/wait/kill, and the cooperative scheduler, plus
the trap dispatch that ties the scheduler to the trap subsystem
(spec.md §4.3's dispatch pseudocode). It is the busiest of the four
core subsystems (~35% of the documented budget).

Hosting note: there is no real hardware stack to swap between a
paused process and the scheduler, so "context switch" (spec.md §9,
"context switching across a stack boundary") is modeled as a channel
handoff between the scheduler's own goroutine and one goroutine per
process, rather than a register/stack swap. See sched.go for the
mechanics and the accompanying design-ledger note on why the ptable
lock is not held continuously across a handoff the way the original
assembly-level switch_context leaves it held.
*/
package proc

import (
	"github.com/patha454/xv6-rpi2-port/internal/kpanic"
	"github.com/patha454/xv6-rpi2-port/internal/pagealloc"
	"github.com/patha454/xv6-rpi2-port/internal/spinlock"
	"github.com/patha454/xv6-rpi2-port/internal/trap"
	"github.com/patha454/xv6-rpi2-port/internal/vm"
)

// NPROC bounds the process table (spec.md §3).
const NPROC = 64

// NOFILE bounds a process's open-file table (spec.md §3).
const NOFILE = 16

// State is one of the six PCB lifecycle states (spec.md §3, §4.4).
type State int

const (
	UNUSED State = iota
	EMBRYO
	SLEEPING
	RUNNABLE
	RUNNING
	ZOMBIE
)

func (s State) String() string {
	switch s {
	case UNUSED:
		return "UNUSED"
	case EMBRYO:
		return "EMBRYO"
	case SLEEPING:
		return "SLEEPING"
	case RUNNABLE:
		return "RUNNABLE"
	case RUNNING:
		return "RUNNING"
	case ZOMBIE:
		return "ZOMBIE"
	default:
		return "?"
	}
}

// Chan is an opaque wait-channel token (spec.md's "channel" field):
// any nonzero value may be used, by convention the address of
// whatever object processes are waiting on. In this hosted model
// there are no real addresses, so wait tokens are small integers
// derived from a PCB's table slot or from package-level singletons
// (see TicksChannel).
type Chan uint32

// File is the opaque file-table entry spec.md §3's ofile[NOFILE]
// names; package inode supplies the concrete implementation. Declared
// here (not imported from inode) because proc is a lower layer than
// the file subsystem — the file subsystem depends on proc's PCB
// shape, not the reverse.
type File interface {
	Dup() File
	Close()
}

// Proc is the process control block of spec.md §3.
type Proc struct {
	Sz      uint32
	Pgdir   *vm.PageDirectory
	Kstack  uint32 // kernel-window address of the process's one kernel-stack page
	State   State
	Pid     int
	Parent  *Proc
	TF      trap.Trapframe
	Context trap.Context
	Channel Chan
	Killed  bool
	Ofile   [NOFILE]File
	Cwd     any // weak reference to an inode owned by the filesystem
	Name    string

	idx int // stable table slot, used to build this PCB's wait channel

	body    func(p *Proc)
	resume  chan struct{}
	parked  chan struct{}
	started bool
}

var (
	table      [NPROC]Proc
	ptableLock spinlock.Lock
	nextPid    = 1
	initProc   *Proc
	current    *Proc

	phys *pagealloc.Allocator

	ticks     uint32
	ticksLock spinlock.Lock
)

func init() {
	ptableLock.Init("ptable")
	ticksLock.Init("ticks")
	for i := range table {
		table[i].idx = i
	}
}

// Init installs the physical page allocator used for kernel stacks.
// Must run once at boot, after pagealloc and vm are initialized.
func Init(alloc *pagealloc.Allocator) { phys = alloc }

// ResetForTests restores the process table to its boot-time empty
// state. Exported for test isolation between independent test cases
// sharing this package's singletons; production boot code never
// calls this.
func ResetForTests() {
	ptableLock.Acquire()
	for i := range table {
		table[i] = Proc{idx: i}
	}
	nextPid = 1
	initProc = nil
	current = nil
	ptableLock.Release()

	ticksLock.Acquire()
	ticks = 0
	ticksLock.Release()
}

// Current returns the PCB the scheduler most recently dispatched, or
// nil if none is running. Safe to call without the ptable lock in
// this hosted model: exactly one goroutine is ever actively executing
// kernel logic at a time (see sched.go), so there is no genuine data
// race to guard against, only the documented discipline of not
// relying on a stale snapshot across a yield point.
func Current() *Proc { return current }

// chanOf derives a PCB's own wait channel — used by wait()/exit() to
// let a parent sleep "on itself" and have exit() wake exactly that
// parent.
func chanOf(p *Proc) Chan { return Chan(p.idx + 1) }

// allocProc scans for an UNUSED slot, promotes it to EMBRYO, assigns
// a PID, and gives it a kernel stack and a pair of handoff channels.
// Returns nil if the table is full or the allocator is exhausted.
func allocProc() *Proc {
	ptableLock.Acquire()
	var p *Proc
	for i := range table {
		if table[i].State == UNUSED {
			p = &table[i]
			break
		}
	}
	if p == nil {
		ptableLock.Release()
		return nil
	}
	p.State = EMBRYO
	p.Pid = nextPid
	nextPid++
	ptableLock.Release()

	kva := phys.Alloc()
	if kva == 0 {
		ptableLock.Acquire()
		p.State = UNUSED
		p.Pid = 0
		ptableLock.Release()
		return nil
	}
	p.Kstack = kva
	p.TF = trap.Trapframe{}
	p.Context = trap.Context{}
	p.Name = ""
	p.Killed = false
	p.Channel = 0
	p.Parent = nil
	p.Cwd = nil
	p.Ofile = [NOFILE]File{}
	p.resume = make(chan struct{})
	p.parked = make(chan struct{})
	p.started = false
	return p
}

// UserInit builds the initial process: a fresh kernel+user pgdir, the
// linked-in initcode blob mapped at VA 0, and a trapframe that enters
// user mode at PC 0 (spec.md §4.4). body is this hosted model's
// stand-in for "whatever the initial process's code does" — exec and
// the ELF loader are out of scope, so there is no real user program
// to interpret; body lets a boot sequence or test supply one.
func UserInit(initcode []byte, body func(p *Proc)) *Proc {
	p := allocProc()
	if p == nil {
		kpanic.Fatal("proc: user_init: alloc_proc failed")
	}
	pd := vm.SetupKVM()
	if pd == nil {
		kpanic.Fatal("proc: user_init: setup_kvm failed")
	}
	p.Pgdir = pd
	vm.InitUVM(pd, initcode, uint32(len(initcode)))
	p.Sz = vm.PGSize
	p.TF.SPSR = 0x10
	p.TF.PC = 0
	p.TF.SPUser = uint32(vm.PGSize)
	p.Name = "initcode"
	p.body = body

	ptableLock.Acquire()
	p.State = RUNNABLE
	ptableLock.Release()
	initProc = p
	return p
}

// Fork copies the calling (current) process's address space and
// trapframe into a new child, per spec.md §4.4. Returns the child's
// PID to the parent, or -1 on resource exhaustion.
func Fork() int {
	parent := current
	child := allocProc()
	if child == nil {
		return -1
	}

	pd := vm.CopyUVM(parent.Pgdir, parent.Sz)
	if pd == nil {
		ptableLock.Acquire()
		child.State = UNUSED
		ptableLock.Release()
		phys.Free(child.Kstack)
		child.Kstack = 0
		child.Pid = 0
		return -1
	}

	child.Pgdir = pd
	child.Sz = parent.Sz
	child.Parent = parent
	child.TF = parent.TF
	child.TF.SetReturn(0) // child's fork() returns 0
	for i, f := range parent.Ofile {
		if f != nil {
			child.Ofile[i] = f.Dup()
		}
	}
	child.Cwd = parent.Cwd
	child.Name = parent.Name
	child.body = parent.body

	pid := child.Pid
	ptableLock.Acquire()
	child.State = RUNNABLE
	ptableLock.Release()
	return pid
}

// Exit tears down the calling process's files and cwd, reparents any
// live children to the init process, marks self ZOMBIE, and hands
// control to the scheduler for the last time. Forbidden for the init
// process (spec.md: "exiting it is fatal").
func Exit() {
	p := current
	if p == initProc {
		kpanic.Fatal("proc: exit: init process cannot exit")
	}

	for i, f := range p.Ofile {
		if f != nil {
			f.Close()
			p.Ofile[i] = nil
		}
	}
	p.Cwd = nil

	ptableLock.Acquire()
	wakeupLocked(chanOf(p.Parent))
	for i := range table {
		q := &table[i]
		if q.Parent == p {
			q.Parent = initProc
			if q.State == ZOMBIE {
				wakeupLocked(chanOf(initProc))
			}
		}
	}
	p.State = ZOMBIE
	sched()
	// Not reached in the normal hosted model: sched() does not resume
	// a ZOMBIE process's goroutine, so this function's remaining
	// instructions never execute.
}

// Wait reaps one ZOMBIE child of the calling process: frees its
// kernel stack and page directory, resets its slot to UNUSED, and
// returns its PID. Returns -1 if the caller has no children, or has
// been killed, without ever seeing one become ZOMBIE.
func Wait() int {
	p := current
	ptableLock.Acquire()
	for {
		haveChildren := false
		for i := range table {
			q := &table[i]
			if q.Parent != p {
				continue
			}
			haveChildren = true
			if q.State == ZOMBIE {
				pid := q.Pid
				phys.Free(q.Kstack)
				vm.FreeVM(q.Pgdir)
				idx := q.idx
				*q = Proc{idx: idx}
				ptableLock.Release()
				return pid
			}
		}
		if !haveChildren || p.Killed {
			ptableLock.Release()
			return -1
		}
		Sleep(chanOf(p), &ptableLock)
	}
}

// Kill marks the process with the given PID killed; if it is
// SLEEPING it is lifted to RUNNABLE so it can observe the flag at its
// next trap or wakeup. Returns 0 on success, -1 if no such PID.
func Kill(pid int) int {
	ptableLock.Acquire()
	defer ptableLock.Release()
	for i := range table {
		p := &table[i]
		if p.Pid == pid && p.State != UNUSED {
			p.Killed = true
			if p.State == SLEEPING {
				p.State = RUNNABLE
			}
			return 0
		}
	}
	return -1
}

// Getpid returns the calling process's PID.
func Getpid() int { return current.Pid }

// Sbrk grows (n >= 0) or shrinks (n < 0) the calling process's user
// memory by n bytes and returns the previous break, or -1 on failure.
func Sbrk(n int32) int32 {
	p := current
	old := p.Sz
	var newsz uint32
	if n >= 0 {
		newsz = vm.AllocUVM(p.Pgdir, p.Sz, p.Sz+uint32(n))
		if newsz == 0 {
			return -1
		}
	} else {
		shrink := uint32(-n)
		if shrink > p.Sz {
			return -1
		}
		newsz = vm.DeallocUVM(p.Pgdir, p.Sz, p.Sz-shrink)
	}
	p.Sz = newsz
	vm.SwitchUVM(p.Pgdir)
	return int32(old)
}

// wakeupLocked promotes every SLEEPING process waiting on chan_ to
// RUNNABLE. Caller must hold ptableLock.
func wakeupLocked(chan_ Chan) {
	for i := range table {
		p := &table[i]
		if p.State == SLEEPING && p.Channel == chan_ {
			p.State = RUNNABLE
		}
	}
}

// Wakeup is the ptable-lock-acquiring wrapper around wakeupLocked.
func Wakeup(chan_ Chan) {
	ptableLock.Acquire()
	wakeupLocked(chan_)
	ptableLock.Release()
}

// Snapshot copies out the PCB for pid, for tests and the monitor
// console to inspect without holding the ptable lock themselves.
func Snapshot(pid int) (Proc, bool) {
	ptableLock.Acquire()
	defer ptableLock.Release()
	for i := range table {
		if table[i].Pid == pid {
			return table[i], true
		}
	}
	return Proc{}, false
}

// Table returns a snapshot of every PCB, in table order, for the
// monitor's "ps" command.
func Table() [NPROC]Proc {
	ptableLock.Acquire()
	defer ptableLock.Release()
	return table
}
