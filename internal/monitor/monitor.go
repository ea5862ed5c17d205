/*
Package monitor is the interactive kernel console: ps/kill/step/cont/
quit over the process table, the same shape rcornwell-S370's
command/reader and command/parser packages give its monitor
(liner-backed prompt, tab completion, a minimum-abbreviation command
table), repurposed from channel-device commands to scheduler commands.
*/
package monitor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/patha454/xv6-rpi2-port/internal/proc"
)

type cmd struct {
	name     string
	min      int // minimum unambiguous abbreviation length
	process  func(args string) (quit bool, err error)
	complete func() []string
}

var cmdList = []cmd{
	{name: "ps", min: 1, process: cmdPs},
	{name: "kill", min: 1, process: cmdKill},
	{name: "step", min: 2, process: cmdStep},
	{name: "continue", min: 1, process: cmdContinue},
	{name: "quit", min: 1, process: cmdQuit},
}

func matchCommand(c cmd, name string) bool {
	if len(name) > len(c.name) {
		return false
	}
	for i := range name {
		if name[i] != c.name[i] {
			return false
		}
	}
	return len(name) >= c.min
}

func matchList(name string) []cmd {
	if name == "" {
		return nil
	}
	var matches []cmd
	for _, c := range cmdList {
		if matchCommand(c, name) {
			matches = append(matches, c)
		}
	}
	return matches
}

// ProcessCommand runs a single command line, returning true once the
// user has asked to quit the monitor.
func ProcessCommand(line string) (bool, error) {
	name, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	if name == "" {
		return false, nil
	}
	match := matchList(name)
	switch len(match) {
	case 0:
		return false, fmt.Errorf("command not found: %s", name)
	case 1:
		return match[0].process(strings.TrimSpace(rest))
	default:
		return false, fmt.Errorf("ambiguous command: %s", name)
	}
}

// CompleteCmd implements liner's tab-completion callback: every
// command name that starts with the typed prefix, whether or not the
// prefix reaches that command's minimum abbreviation.
func CompleteCmd(line string) []string {
	name, _, found := strings.Cut(line, " ")
	if found {
		return nil
	}
	out := []string{}
	for _, c := range cmdList {
		if name != "" && strings.HasPrefix(c.name, name) {
			out = append(out, c.name)
		}
	}
	return out
}

func cmdPs(string) (bool, error) {
	for _, p := range proc.Table() {
		if p.State == proc.UNUSED {
			continue
		}
		fmt.Printf("%5d %-9s %-16s sz=%d\n", p.Pid, p.State, p.Name, p.Sz)
	}
	return false, nil
}

func cmdKill(args string) (bool, error) {
	if args == "" {
		return false, errors.New("kill requires a pid")
	}
	pid, err := strconv.Atoi(args)
	if err != nil {
		return false, fmt.Errorf("kill: %w", err)
	}
	if proc.Kill(pid) != 0 {
		return false, fmt.Errorf("kill: no such process %d", pid)
	}
	return false, nil
}

func cmdStep(string) (bool, error) {
	n := proc.ScheduleOnce()
	fmt.Printf("ran %d process(es)\n", n)
	return false, nil
}

func cmdContinue(string) (bool, error) {
	for i := 0; i < 1<<20; i++ {
		if proc.ScheduleOnce() == 0 {
			break
		}
	}
	return false, nil
}

func cmdQuit(string) (bool, error) {
	return true, nil
}

// Run drives the monitor prompt until the user quits or closes input.
// Grounded on command/reader/reader.go's liner loop.
func Run() {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(CompleteCmd)

	for {
		command, err := line.Prompt("kcore> ")
		if err == nil {
			line.AppendHistory(command)
			quit, err := ProcessCommand(command)
			if err != nil {
				fmt.Println("error: " + err.Error())
			}
			if quit {
				return
			}
			continue
		}
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return
		}
		slog.Error("monitor: error reading line", "err", err)
		return
	}
}
