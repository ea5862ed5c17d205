/*
Package kconfig parses the kernel boot configuration file: physical
memory size, the process table size, the path to the linked-in initial
user program, and per-subsystem debug flags. The grammar mirrors
rcornwell-S370's device-configuration file: '#' starts a comment, each
non-blank line is "key value [, value]*", and keys are matched
case-insensitively.
*/
package kconfig

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Config holds the boot-time parameters the kernel core needs.
type Config struct {
	MemoryBytes uint32          // physical RAM size, bytes
	NProc       int             // process table size
	InitCode    string          // path to the linked initcode blob
	Debug       map[string]bool // enabled debug facilities
}

// Default returns the out-of-the-box configuration.
func Default() Config {
	return Config{
		MemoryBytes: 128 * 1024 * 1024,
		NProc:       64,
		Debug:       map[string]bool{},
	}
}

// Load reads a boot configuration file and applies it on top of Default().
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		key := strings.ToLower(fields[0])
		rest := fields[1:]
		if err := applyOption(&cfg, key, rest); err != nil {
			return Config{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyOption(cfg *Config, key string, values []string) error {
	switch key {
	case "memory":
		if len(values) != 1 {
			return errors.New("memory requires one value")
		}
		n, err := parseSize(values[0])
		if err != nil {
			return err
		}
		cfg.MemoryBytes = n
	case "nproc":
		if len(values) != 1 {
			return errors.New("nproc requires one value")
		}
		n, err := strconv.Atoi(values[0])
		if err != nil {
			return err
		}
		cfg.NProc = n
	case "kernel", "initcode":
		if len(values) != 1 {
			return errors.New("kernel requires one value")
		}
		cfg.InitCode = values[0]
	case "debug":
		for _, v := range values {
			for _, facility := range strings.Split(v, ",") {
				facility = strings.TrimSpace(facility)
				if facility != "" {
					cfg.Debug[facility] = true
				}
			}
		}
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	return nil
}

// parseSize accepts a decimal number optionally suffixed K or M.
func parseSize(s string) (uint32, error) {
	mult := uint32(1)
	switch {
	case strings.HasSuffix(s, "K") || strings.HasSuffix(s, "k"):
		mult = 1024
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M") || strings.HasSuffix(s, "m"):
		mult = 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n) * mult, nil
}
