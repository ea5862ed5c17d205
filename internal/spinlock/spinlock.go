/*
Package spinlock implements spec.md §4.1's interrupt-masking,
non-blocking lock: on this uniprocessor target a "spinlock" guards
data against interrupt handlers, not against other CPUs, so there is
no spin loop — acquiring disables IRQs and releasing potentially
re-enables them.

The single CPU record lives here too (curr_cpu is a fixed index per
spec.md §9 — no dynamic CPU lookup).
*/
package spinlock

import "fmt"

// CPU is the uniprocessor CPU record: a scheduler context pointer
// lives one layer up (package proc); this package only owns the
// interrupt-disable nesting state spec.md §4.1 describes.
type CPU struct {
	ID                  int
	ncli                int  // nested push_cli count
	irqEnabledBeforeCli bool // IRQ-enable state at the outermost push_cli
	irqEnabled          bool // the simulated IRQ-enable bit itself
}

// cpu0 is the only CPU this kernel ever runs on.
var cpu0 = &CPU{ID: 0, irqEnabled: true}

// CurrCPU returns the current CPU record. Always cpu0: spec.md §9
// directs against building SMP-ready indirection for a uniprocessor
// target.
func CurrCPU() *CPU { return cpu0 }

// NCli reports the current nesting depth, for tests and invariant
// checks (spec.md §8 property 3: ncli == 0 iff IRQs are enabled).
func (c *CPU) NCli() int { return c.ncli }

// IRQEnabled reports the simulated IRQ-enable bit.
func (c *CPU) IRQEnabled() bool { return c.irqEnabled }

// PushCli disables IRQs and increments the nesting counter, saving
// the pre-disable IRQ state the first time the counter goes from 0 to
// 1 so PopCli can restore it once fully unwound.
func PushCli() {
	c := cpu0
	enabled := c.irqEnabled
	c.irqEnabled = false
	if c.ncli == 0 {
		c.irqEnabledBeforeCli = enabled
	}
	c.ncli++
}

// PopCli requires IRQs to currently be disabled — calling it without
// a matching PushCli is a precondition violation the caller made, and
// panics per spec.md §7 taxonomy item 1.
func PopCli() {
	c := cpu0
	if c.irqEnabled {
		panic("spinlock: pop_cli called with interrupts enabled")
	}
	c.ncli--
	if c.ncli < 0 {
		panic("spinlock: pop_cli: nesting count went negative")
	}
	if c.ncli == 0 && c.irqEnabledBeforeCli {
		c.irqEnabled = true
	}
}

// Lock is the interrupt-masking spinlock of spec.md §4.1.
type Lock struct {
	locked bool
	name   string
	cpu    *CPU // owning CPU while locked, nil otherwise
}

// Init names the lock. The zero value is otherwise ready to use.
func (l *Lock) Init(name string) {
	l.name = name
	l.locked = false
	l.cpu = nil
}

// Holding reports whether the current CPU holds l.
func (l *Lock) Holding() bool {
	return l.locked && l.cpu == cpu0
}

// Acquire disables interrupts (nested via PushCli) and takes the
// lock. Re-entrant acquisition from the same CPU is a kernel bug —
// it panics rather than deadlocking, since there is no queue to wait
// on in a uniprocessor spinlock.
func (l *Lock) Acquire() {
	PushCli()
	if l.Holding() {
		panic(fmt.Sprintf("spinlock: %s: already holding", l.name))
	}
	l.locked = true
	l.cpu = cpu0
}

// Release requires the current CPU to hold l, clears ownership, and
// unwinds one level of interrupt disable.
func (l *Lock) Release() {
	if !l.Holding() {
		panic(fmt.Sprintf("spinlock: %s: release of unheld lock", l.name))
	}
	l.cpu = nil
	l.locked = false
	PopCli()
}
