//go:build linux

package process

import (
	"os"
	"strconv"
)

// isAlive checks the proc filesystem for the pid's entry.
func isAlive(pid int) bool {
	_, err := os.Stat("/proc/" + strconv.Itoa(pid))
	return err == nil
}
