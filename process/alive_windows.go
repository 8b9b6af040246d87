//go:build windows

package process

import (
	"os/exec"
	"strconv"
	"strings"
)

// isAlive queries tasklist for the pid. The filtered CSV output contains the
// pid only when the process exists; localized "no tasks" messages do not.
func isAlive(pid int) bool {
	filter := "PID eq " + strconv.Itoa(pid)
	cmd := exec.Command("tasklist", "/FI", filter, "/FO", "CSV", "/NH")
	output, err := cmd.Output()
	if err != nil {
		return false
	}

	out := string(output)
	lower := strings.ToLower(out)
	if strings.Contains(lower, "no tasks") || strings.Contains(lower, "info:") {
		return false
	}
	return strings.Contains(out, "\""+strconv.Itoa(pid)+"\"")
}
