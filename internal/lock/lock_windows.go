//go:build windows

package lock

import (
	"os"
	"syscall"
)

// On Windows, FindProcess fails for unknown PIDs; test with Signal(0) equivalent.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
