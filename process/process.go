// Package process provides utilities for inspecting and managing the spawned
// UI processes: liveness probing, detached spawning, and orphan cleanup.
package process

import (
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/zhubert/handoff/logger"
)

// IsAlive reports whether pid refers to a running process. The probe is
// selected at build time: /proc on linux, a signal probe on other unix,
// a tasklist query on windows.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return isAlive(pid)
}

// Prober adapts IsAlive to the interface the interaction coordinator consumes,
// keeping the coordinator platform-agnostic.
type Prober struct{}

// Alive reports whether pid refers to a running process.
func (Prober) Alive(pid int) bool {
	return IsAlive(pid)
}

// UIProcess represents a running handoff-ui process found on the system.
type UIProcess struct {
	PID     int    // Process ID
	Command string // Full command line
	TaskID  string // Task ID extracted from the --mcp-request argument, if any
}

// FindUIProcesses finds all running handoff-ui processes launched with an
// --mcp-request argument. This is useful for detecting popups left behind
// after a server crash.
func FindUIProcesses() ([]UIProcess, error) {
	var processes []UIProcess
	log := logger.WithComponent("process")

	switch runtime.GOOS {
	case "darwin", "linux":
		// Use pgrep to find UI processes
		cmd := exec.Command("pgrep", "-f", "handoff-ui.*--mcp-request")
		output, err := cmd.Output()
		if err != nil {
			// pgrep returns exit code 1 if no processes found
			if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
				return processes, nil
			}
			return nil, err
		}

		pids := strings.Fields(string(output))
		for _, pidStr := range pids {
			pid, err := strconv.Atoi(strings.TrimSpace(pidStr))
			if err != nil {
				continue
			}

			// Get the full command line for this PID
			psCmd := exec.Command("ps", "-p", pidStr, "-o", "args=")
			psOutput, err := psCmd.Output()
			if err != nil {
				continue
			}

			cmdLine := strings.TrimSpace(string(psOutput))
			processes = append(processes, UIProcess{
				PID:     pid,
				Command: cmdLine,
				TaskID:  ExtractTaskID(cmdLine),
			})
		}

	case "windows":
		// Use tasklist on Windows
		cmd := exec.Command("tasklist", "/FI", "IMAGENAME eq handoff-ui*", "/FO", "CSV", "/NH")
		output, err := cmd.Output()
		if err != nil {
			return nil, err
		}

		lines := strings.Split(string(output), "\n")
		for _, line := range lines {
			fields := strings.Split(line, ",")
			if len(fields) >= 2 {
				pidStr := strings.Trim(strings.TrimSpace(fields[1]), "\"")
				pid, err := strconv.Atoi(pidStr)
				if err != nil {
					continue
				}
				processes = append(processes, UIProcess{
					PID:     pid,
					Command: strings.Trim(fields[0], "\""),
				})
			}
		}
	}

	log.Debug("found UI processes", "count", len(processes))
	return processes, nil
}

// ExtractTaskID extracts the task ID from a UI process command line by reading
// the request file path passed via --mcp-request. Request files are named
// mcp_request_<taskID>.json.
func ExtractTaskID(cmdLine string) string {
	_, after, ok := strings.Cut(cmdLine, "--mcp-request")
	if !ok {
		return ""
	}

	rest := strings.TrimLeft(after, " =")
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	path := fields[0]

	_, name, ok := strings.Cut(path, "mcp_request_")
	if !ok {
		return ""
	}
	return strings.TrimSuffix(name, ".json")
}

// FindOrphanedUIProcesses finds UI processes whose task ID is not in the
// provided set of known task IDs.
func FindOrphanedUIProcesses(knownTaskIDs map[string]bool) ([]UIProcess, error) {
	all, err := FindUIProcesses()
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("process")
	var orphans []UIProcess
	for _, proc := range all {
		if proc.TaskID != "" && !knownTaskIDs[proc.TaskID] {
			orphans = append(orphans, proc)
			log.Info("found orphaned UI process", "pid", proc.PID, "taskID", proc.TaskID)
		}
	}

	return orphans, nil
}

// KillProcess kills a process by PID.
func KillProcess(pid int) error {
	switch runtime.GOOS {
	case "darwin", "linux":
		cmd := exec.Command("kill", "-9", strconv.Itoa(pid))
		return cmd.Run()
	case "windows":
		cmd := exec.Command("taskkill", "/F", "/PID", strconv.Itoa(pid))
		return cmd.Run()
	}
	return nil
}

// CleanupOrphanedUIProcesses kills all UI processes that don't match known
// task IDs. Returns the number of processes killed.
func CleanupOrphanedUIProcesses(knownTaskIDs map[string]bool) (int, error) {
	orphans, err := FindOrphanedUIProcesses(knownTaskIDs)
	if err != nil {
		return 0, err
	}

	log := logger.WithComponent("process")
	killed := 0
	for _, proc := range orphans {
		log.Info("killing orphaned UI process", "pid", proc.PID, "taskID", proc.TaskID)
		if err := KillProcess(proc.PID); err != nil {
			log.Error("failed to kill process", "pid", proc.PID, "error", err)
			continue
		}
		killed++
	}

	return killed, nil
}
