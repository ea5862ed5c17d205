package trap

// IntController models the MMIO interrupt controller spec.md §6
// names (INT_REGS_BASE: irq_pending[0..2], irq_enable[0..2],
// irq_disable[0..2], fiq_control). Real hardware exposes these as
// memory-mapped registers; this hosted simulation keeps the same
// three-bank shape so the dispatch loop in package proc reads exactly
// the structure spec.md §4.3 describes.
type IntController struct {
	Pending [3]uint32
	Enable  [3]uint32
	Disable [3]uint32
	FIQControl uint32
}

// Bit positions within bank 0, per spec.md §4.3's dispatch pseudocode.
const (
	IRQTimerBit    = 1 << 0
	IRQMiniUARTBit = 1 << 29
)

// Raise sets a pending bit on the named bank, as a device's interrupt
// line would on real hardware.
func (c *IntController) Raise(bank int, bit uint32) {
	c.Pending[bank] |= bit
}

// AnyPending reports whether any bank has a pending, enabled bit set.
func (c *IntController) AnyPending() bool {
	for i := range c.Pending {
		if c.Pending[i]&c.Enable[i] != 0 {
			return true
		}
	}
	return false
}

// Ack clears a pending bit once its handler has serviced it.
func (c *IntController) Ack(bank int, bit uint32) {
	c.Pending[bank] &^= bit
}

// NewIntController returns the boot-time default: every source enabled, nothing
// pending, FIQ left disabled (spec.md's non-goal: "FIQ handling beyond
// disabling").
func NewIntController() *IntController {
	c := &IntController{}
	for i := range c.Enable {
		c.Enable[i] = ^uint32(0)
	}
	return c
}
