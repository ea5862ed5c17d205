package syscall_test

import (
	"testing"

	"github.com/patha454/xv6-rpi2-port/internal/proc"
	"github.com/patha454/xv6-rpi2-port/internal/syscall"
	"github.com/patha454/xv6-rpi2-port/internal/trap"
)

// TestDispatchUnknownSyscallReturnsMinusOne checks spec.md §7's
// out-of-range-syscall-number taxonomy item: an unrecognized number
// returns -1 without touching any process state.
func TestDispatchUnknownSyscallReturnsMinusOne(t *testing.T) {
	proc.ResetForTests()
	tf := trap.Trapframe{TrapNo: trap.SYSCALL}
	tf.R[7] = 0xff
	syscall.Dispatch(&tf)
	if int32(tf.R[0]) != -1 {
		t.Fatalf("R0 = %d, want -1", int32(tf.R[0]))
	}
}

func TestDispatchKillNoSuchPid(t *testing.T) {
	proc.ResetForTests()
	tf := trap.Trapframe{TrapNo: trap.SYSCALL}
	tf.R[7] = uint32(syscall.SysKill)
	tf.R[0] = 999
	syscall.Dispatch(&tf)
	if int32(tf.R[0]) != -1 {
		t.Fatalf("kill(999) = %d, want -1", int32(tf.R[0]))
	}
}

func TestSyscallNumbersAreDistinct(t *testing.T) {
	nums := []uint32{
		uint32(syscall.SysFork), uint32(syscall.SysExit), uint32(syscall.SysWait),
		uint32(syscall.SysKill), uint32(syscall.SysGetpid), uint32(syscall.SysSbrk),
		uint32(syscall.SysSleep), uint32(syscall.SysUptime),
	}
	seen := map[uint32]bool{}
	for _, n := range nums {
		if n == 0 {
			t.Fatal("syscall number 0 is reserved (SyscallNo() of an untrapped frame reads as 0)")
		}
		if seen[n] {
			t.Fatalf("duplicate syscall number %d", n)
		}
		seen[n] = true
	}
}

// TestDispatchUptimeReadsTicks exercises sys_uptime against the real
// tick counter without needing a scheduled process, since uptime
// reads package-level state rather than the calling PCB.
func TestDispatchUptimeReadsTicks(t *testing.T) {
	proc.ResetForTests()
	proc.TimerTick()
	proc.TimerTick()
	proc.TimerTick()

	tf := trap.Trapframe{TrapNo: trap.SYSCALL}
	tf.R[7] = uint32(syscall.SysUptime)
	syscall.Dispatch(&tf)
	if tf.R[0] != 3 {
		t.Fatalf("uptime = %d, want 3", tf.R[0])
	}
}
