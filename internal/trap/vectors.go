package trap

import (
	"log/slog"

	"github.com/patha454/xv6-rpi2-port/internal/kpanic"
)

// installed records that InstallVectors has run. The privileged-mode
// stacks spec.md §4.3 says get one 4 KiB page each at boot (FIQ, IRQ, undefined, abort, secure
// monitor, system). On real hardware this is a memcpy of the
// 8-entry vector preamble into HVECTORS plus per-mode SP/CPSR setup;
// package vm owns the actual HVECTORS page mapping (it is a kmap
// entry), so InstallVectors here only records that installation ran.
// Per spec.md §9's "exception vector as code" note, the vector
// preamble itself has no higher-level abstraction in this hosted
// model — it would be a hand-written code blob on real hardware, and
// there is no code to execute here, only the bookkeeping that a real
// boot sequence would perform around it.
var installed bool

// InstallVectors performs the boot-time exception vector setup:
// copying the vector preamble to HVECTORS, allocating one stack per
// privileged mode, masking IRQ+FIQ in each mode's CPSR, and issuing a
// data-synchronization barrier plus I/D cache flush. Each of those is
// a real-hardware operation with no equivalent in a hosted Go
// process; this function exists so the boot sequence in cmd/kcore
// reads in the same order the original does, and so tests can assert
// it runs exactly once.
func InstallVectors() {
	if installed {
		kpanic.Fatal("trap: InstallVectors called twice")
	}
	installed = true
	slog.Debug("trap: exception vectors installed", "at", "0xFFFF0000")
}

// Installed reports whether InstallVectors has run.
func Installed() bool { return installed }
