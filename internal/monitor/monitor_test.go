package monitor_test

import (
	"testing"

	"github.com/patha454/xv6-rpi2-port/internal/monitor"
	"github.com/patha454/xv6-rpi2-port/internal/pagealloc"
	"github.com/patha454/xv6-rpi2-port/internal/proc"
	"github.com/patha454/xv6-rpi2-port/internal/vm"
)

func setup(t *testing.T) {
	t.Helper()
	proc.ResetForTests()
	alloc := pagealloc.New(0, 8*1024*1024)
	vm.Init(alloc)
	proc.Init(alloc)
}

// TestProcessCommandUnknown checks an unrecognised command name is
// reported rather than silently ignored.
func TestProcessCommandUnknown(t *testing.T) {
	setup(t)
	_, err := monitor.ProcessCommand("frobnicate")
	if err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}

// TestProcessCommandAbbreviation exercises minimum-abbreviation
// command matching: "q" is long enough and unambiguous, so it should
// resolve uniquely to "quit".
func TestProcessCommandAbbreviation(t *testing.T) {
	setup(t)
	quit, err := monitor.ProcessCommand("q")
	if err != nil {
		t.Fatalf("abbreviated quit: %v", err)
	}
	if !quit {
		t.Fatal("abbreviated quit should signal quit")
	}
}

// TestProcessCommandBelowMinimumAbbreviation checks that an
// abbreviation shorter than its command's minimum is rejected outright
// rather than resolved.
func TestProcessCommandBelowMinimumAbbreviation(t *testing.T) {
	setup(t)
	// "s" is long enough to be unambiguous (only "step" starts with
	// s), but shorter than step's minimum abbreviation of 2.
	if _, err := monitor.ProcessCommand("s"); err == nil {
		t.Fatal("expected an error: 's' is below step's minimum abbreviation length")
	}
}

// TestProcessCommandBlankLine checks an empty line is a silent no-op,
// the same as pressing enter at an idle kcore prompt.
func TestProcessCommandBlankLine(t *testing.T) {
	setup(t)
	quit, err := monitor.ProcessCommand("   ")
	if err != nil || quit {
		t.Fatalf("blank line: quit=%v err=%v, want false/nil", quit, err)
	}
}

// TestKillNoSuchPid checks the monitor surfaces proc.Kill's failure
// as an error rather than swallowing it.
func TestKillNoSuchPid(t *testing.T) {
	setup(t)
	if _, err := monitor.ProcessCommand("kill 999"); err == nil {
		t.Fatal("expected an error killing a nonexistent pid")
	}
}

// TestKillRequiresArgument checks a bare "kill" with no pid is
// rejected instead of panicking on strconv.Atoi of an empty string.
func TestKillRequiresArgument(t *testing.T) {
	setup(t)
	if _, err := monitor.ProcessCommand("kill"); err == nil {
		t.Fatal("expected an error for kill with no pid")
	}
}

// TestKillExistingPid drives a real process through UserInit and
// confirms "kill <pid>" against it succeeds.
func TestKillExistingPid(t *testing.T) {
	setup(t)
	body := func(p *proc.Proc) { select {} }
	proc.UserInit([]byte{0}, body)

	if _, err := monitor.ProcessCommand("kill 1"); err != nil {
		t.Fatalf("kill 1: %v", err)
	}
}

// TestCompleteCmdListsCandidates checks tab completion over a partial
// command name returns every matching candidate, and none once a
// space has already started the argument.
func TestCompleteCmdListsCandidates(t *testing.T) {
	setup(t)
	matches := monitor.CompleteCmd("s")
	if len(matches) != 1 || matches[0] != "step" {
		t.Fatalf("CompleteCmd(%q) = %v, want [step]", "s", matches)
	}

	if got := monitor.CompleteCmd("kill 1"); got != nil {
		t.Fatalf("CompleteCmd with an argument already started = %v, want nil", got)
	}
}

// TestCompleteCmdNoMatch checks a prefix matching nothing returns an
// empty (not nil-but-panicking) slice.
func TestCompleteCmdNoMatch(t *testing.T) {
	setup(t)
	matches := monitor.CompleteCmd("zz")
	if len(matches) != 0 {
		t.Fatalf("CompleteCmd(%q) = %v, want none", "zz", matches)
	}
}

// TestStepRunsAtMostOneRound checks "step" advances the scheduler by
// one pass rather than running to completion the way "continue" does.
func TestStepRunsAtMostOneRound(t *testing.T) {
	setup(t)
	ran := make(chan struct{}, 1)
	body := func(p *proc.Proc) {
		ran <- struct{}{}
		proc.Yield()
		select {}
	}
	proc.UserInit([]byte{0}, body)

	if _, err := monitor.ProcessCommand("step"); err != nil {
		t.Fatalf("step: %v", err)
	}
	select {
	case <-ran:
	default:
		t.Fatal("step should have run the runnable init process at least once")
	}
}

func TestQuitStopsTheLoop(t *testing.T) {
	setup(t)
	quit, err := monitor.ProcessCommand("quit")
	if err != nil || !quit {
		t.Fatalf("quit: quit=%v err=%v, want true/nil", quit, err)
	}
}

// TestProcessCommandTrimsArguments checks surrounding whitespace
// around the argument half of a command line does not leak into
// strconv.Atoi (a bare "999" must parse, not " 999 ").
func TestProcessCommandTrimsArguments(t *testing.T) {
	setup(t)
	body := func(p *proc.Proc) { select {} }
	proc.UserInit([]byte{0}, body)

	if _, err := monitor.ProcessCommand("kill   1  "); err != nil {
		t.Fatalf("kill with padded whitespace: %v", err)
	}
}
