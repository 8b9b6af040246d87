package process

import (
	"os"
	"os/exec"

	"github.com/zhubert/handoff/logger"
)

// SpawnDetached launches a program detached from the server: its standard
// streams are discarded, it survives in its own session where the platform
// supports it, and a background goroutine reaps it on exit so no zombie is
// left behind. The spawning call itself never blocks.
//
// extraEnv entries ("KEY=VALUE") are appended to the current environment.
func SpawnDetached(path string, args []string, extraEnv []string) (int, error) {
	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detachCmd(cmd)

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	pid := cmd.Process.Pid

	// Reap in the background to prevent zombies.
	go func() {
		err := cmd.Wait()
		log := logger.WithComponent("process")
		if err != nil {
			log.Debug("detached process exited", "pid", pid, "error", err)
		} else {
			log.Debug("detached process exited", "pid", pid)
		}
	}()

	return pid, nil
}
