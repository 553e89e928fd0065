package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// reapStalePID implements spec.md §6's process-files contract: a pid
// file left behind by a crashed prior instance is removed at startup.
// If the recorded pid is still alive, startup fails rather than
// silently running two daemons against the same store.
func reapStalePID(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		// unparseable pid file is unambiguously stale.
		return os.Remove(path)
	}

	if processAlive(pid) {
		return fmt.Errorf("likesyncd is already running (pid %d, %s)", pid, path)
	}
	return os.Remove(path)
}

// processAlive probes whether pid names a live process by sending
// signal 0, which the kernel delivers to no one but still validates
// the target exists and is reachable.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// writePID records the current process id at path with 0600
// permissions, matching the config file's own permission policy.
func writePID(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}
