/*
Package trap implements the hardware-facing half of spec.md §4.3: the
Trapframe/Context record layouts, the ARMv7 trap-number constants, and
the IRQ-pending-register decode. The dispatch logic that interprets a
Trapframe against the running process (package proc's Trap function)
is deliberately kept out of this package — spec.md's §9 design note on
"trapframe/ABI coupling" calls the trapframe layout hardware-and-ABI
defined, but dispatch itself is scheduler state, not ABI.
*/
package trap

// Trapno identifies the exception class that built a Trapframe.
type Trapno uint32

const (
	UND     Trapno = 0x01 // undefined instruction
	PABT    Trapno = 0x02 // prefetch abort
	DABT    Trapno = 0x04 // data abort
	SYSCALL Trapno = 0x40 // software interrupt (SWI)
	IRQ     Trapno = 0x80 // IRQ
)

// Trapframe is the on-stack record exception-entry assembly builds
// and Trap() consumes, in the exact field order spec.md §3 specifies.
type Trapframe struct {
	SPUser uint32    // banked user-mode SP, saved via the `^` form
	R      [15]uint32 // r0-r14 at trap entry (r13/r14 here are the *trapped* mode's, not user's)
	TrapNo Trapno
	IFAR   uint32 // instruction-fault-address register
	CPSR   uint32 // CPSR at trap
	SPSR   uint32 // mode the trap was taken from
	PC     uint32 // return PC
}

// R0..R3 name the first four registers, which double as syscall
// argument registers (spec.md §4.5).
func (tf *Trapframe) R0() uint32 { return tf.R[0] }
func (tf *Trapframe) R1() uint32 { return tf.R[1] }
func (tf *Trapframe) R2() uint32 { return tf.R[2] }
func (tf *Trapframe) R3() uint32 { return tf.R[3] }

// SetReturn sets the syscall return value register (r0).
func (tf *Trapframe) SetReturn(v uint32) { tf.R[0] = v }

// SyscallNo reads the syscall number out of r7, following the ARM
// EABI convention the original xv6 ARM port's trap stub uses: r7
// carries the syscall number, r0-r3 carry the first four arguments
// (so the number is not one of the four ArgInt slots).
func (tf *Trapframe) SyscallNo() uint32 { return tf.R[7] }

// ArgInt copies syscall argument i (0-3) into out. Spec.md §4.5: the
// trapframe's r0..r3 carry the first four syscall arguments.
func ArgInt(tf *Trapframe, i int, out *uint32) bool {
	if i < 0 || i > 3 {
		return false
	}
	*out = tf.R[i]
	return true
}

// FromUser reports whether tf was taken while running in user mode —
// SPSR's mode bits are 0x10 (USR) when the trap came from user space.
func (tf *Trapframe) FromUser() bool {
	const modeMask = 0x1f
	const modeUSR = 0x10
	return tf.SPSR&modeMask == modeUSR
}

// Context is the callee-save register record the context-switch
// primitive saves onto a paused kernel stack (spec.md §3).
type Context struct {
	R  [9]uint32 // r4-r12
	LR uint32
	PC uint32
}
