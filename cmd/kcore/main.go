/*
kcore is the boot entry point: parse flags, load the configuration
file, bring up the page allocator/MMU/process table, install the trap
vectors, start the scheduler and the initial process, and hand control
to the monitor console. Grounded on main.go's shape: getopt flags, a
slog handler wired through before anything else logs, config load,
then "create the CPU, start it, wait for a signal, shut down cleanly".
*/
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/patha454/xv6-rpi2-port/internal/console"
	"github.com/patha454/xv6-rpi2-port/internal/inode"
	"github.com/patha454/xv6-rpi2-port/internal/kconfig"
	"github.com/patha454/xv6-rpi2-port/internal/klog"
	"github.com/patha454/xv6-rpi2-port/internal/monitor"
	"github.com/patha454/xv6-rpi2-port/internal/pagealloc"
	"github.com/patha454/xv6-rpi2-port/internal/proc"
	ksyscall "github.com/patha454/xv6-rpi2-port/internal/syscall"
	"github.com/patha454/xv6-rpi2-port/internal/trap"
	"github.com/patha454/xv6-rpi2-port/internal/vm"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "kcore.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optConsole := getopt.StringLong("console", 0, "", "Telnet console address, e.g. :6176")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		var err error
		file, err = os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "kcore: ", err)
			os.Exit(1)
		}
	}
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	klog.Init(slog.New(klog.NewHandler(file, &slog.HandlerOptions{Level: level})))

	klog.Logger().Info("kcore started")

	cfg := kconfig.Default()
	if _, err := os.Stat(*optConfig); err == nil {
		cfg, err = kconfig.Load(*optConfig)
		if err != nil {
			klog.Logger().Error("loading configuration", "err", err)
			os.Exit(1)
		}
	} else {
		klog.Logger().Warn("no configuration file found, using defaults", "path", *optConfig)
	}

	boot(cfg)

	if *optConsole != "" {
		srv, err := console.Start(*optConsole)
		if err != nil {
			klog.Logger().Error("starting console listener", "err", err)
			os.Exit(1)
		}
		defer srv.Stop()
		klog.Logger().Info("console listening", "addr", *optConsole)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		monitor.Run()
		close(done)
	}()

	select {
	case <-sigChan:
		klog.Logger().Info("received shutdown signal")
	case <-done:
		klog.Logger().Info("monitor exited")
	}
}

// boot brings the kernel core up to the point init() is runnable:
// the physical allocator, the two-level MMU, the process table, the
// trap vectors and the scheduler goroutine, in the dependency order
// spec.md §2-4 requires (allocator before any page table, vectors
// before any trap can legally occur, init after everything else it
// depends on exists).
func boot(cfg kconfig.Config) {
	alloc := pagealloc.New(0, cfg.MemoryBytes)
	vm.Init(alloc)
	proc.Init(alloc)

	vm.MMUInitStage1()
	vm.MMUInitStage2(cfg.MemoryBytes)
	trap.InstallVectors()

	initcode := loadInitcode(cfg.InitCode)
	proc.UserInit(initcode, initBody)

	go proc.RunScheduler()

	klog.Logger().Info("boot complete", "memory", cfg.MemoryBytes, "nproc", cfg.NProc)
}

// loadInitcode reads the linked-in initial program from cfg.InitCode,
// or falls back to a single zero byte if none is configured or it
// cannot be read: there is no ELF loader in this core
// (spec.md §1's explicit non-goal), so whatever bytes UserInit maps at
// VA 0 are never actually fetched and decoded by a real CPU; they only
// exist so vm.InitUVM has something to copy into the first page.
func loadInitcode(path string) []byte {
	if path == "" {
		return []byte{0}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		klog.Logger().Error("reading initcode, falling back to empty page", "path", path, "err", err)
		return []byte{0}
	}
	ip := inode.Register(path, data)
	inode.Iput(ip)
	return data
}

// initBody stands in for PID 1's user-mode program: fork a worker,
// wait for it to exit, and repeat forever, the same "orphan reaper"
// shape real xv6 init falls back to once its shell exits. A hosted
// core with no filesystem and no exec has nothing else for init to
// run.
func initBody(p *proc.Proc) {
	if p.Pid != 1 {
		// A forked worker runs this body from the top, not from fork's
		// return; returning here lets the process's run loop Exit it.
		return
	}
	for {
		forkWorker()
		proc.Wait()
	}
}

// forkWorker issues the fork syscall trap on the calling (init)
// process and returns the child's PID, or -1 if fork failed. The
// child never returns from it: its goroutine starts initBody afresh.
func forkWorker() int32 {
	tf := trap.Trapframe{TrapNo: trap.SYSCALL}
	tf.R[7] = uint32(ksyscall.SysFork)
	proc.Trap(&tf, trap.NewIntController())
	return int32(tf.R[0])
}
