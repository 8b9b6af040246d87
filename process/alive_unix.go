//go:build !linux && !windows

package process

import "syscall"

// isAlive probes the process with signal 0. EPERM still means the process
// exists, just under another user.
func isAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
