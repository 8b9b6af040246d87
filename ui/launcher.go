package ui

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zhubert/handoff/config"
	"github.com/zhubert/handoff/exec"
	"github.com/zhubert/handoff/logger"
	"github.com/zhubert/handoff/process"
)

// binaryName is the UI executable's base name, without platform suffix.
const binaryName = "handoff-ui"

// Environment variables overriding UI executable resolution and mode.
// HANDOFF_* is canonical; MCP_* is a deprecated alias checked second.
const (
	EnvUIPath       = "HANDOFF_UI_PATH"
	EnvUIPathOld    = "MCP_UI_PATH"
	EnvUIMode       = "HANDOFF_UI_MODE"
	EnvUIModeOld    = "MCP_UI_MODE"
	EnvAutostart    = "HANDOFF_AUTOSTART_DEV_SERVER"
	EnvAutostartOld = "MCP_AUTOSTART_DEV_SERVER"
	EnvUILogFile    = "MCP_LOG_FILE"
)

// devServerAddr is where the UI's frontend dev server listens in dev mode.
const devServerAddr = "127.0.0.1:1420"

// devServerWait bounds how long a launch waits for the dev server to come up
// after autostarting it.
const devServerWait = 15 * time.Second

// Launcher locates the UI executable and spawns it detached from the server
// process. It satisfies the coordinator's Launcher interface.
type Launcher struct {
	exec       exec.CommandExecutor
	loadConfig func() (*config.Config, error)
	log        *slog.Logger
}

// NewLauncher creates a Launcher. executor defaults to a real one when nil.
func NewLauncher(executor exec.CommandExecutor) *Launcher {
	if executor == nil {
		executor = exec.NewRealExecutor()
	}
	return &Launcher{
		exec:       executor,
		loadConfig: config.Load,
		log:        logger.WithComponent("ui"),
	}
}

// exeName returns the platform-specific UI executable file name.
func exeName() string {
	if runtime.GOOS == "windows" {
		return binaryName + ".exe"
	}
	return binaryName
}

// isExecutable reports whether path exists and is a runnable regular file.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0111 != 0
}

// envFirst returns the first non-empty value among the named env vars.
func envFirst(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// uiMode resolves the UI mode: env override first, then config. Empty means
// release.
func (l *Launcher) uiMode(cfg *config.Config) string {
	if mode := envFirst(EnvUIMode, EnvUIModeOld); mode != "" {
		return mode
	}
	if cfg != nil {
		return cfg.GetUIMode()
	}
	return ""
}

// Locate resolves the UI executable path, in order: explicit override (env,
// then config), the binary co-located with the running server, the dev build
// (dev mode only), the release build, and finally a PATH probe. The returned
// error lists every location that was tried.
func (l *Launcher) Locate() (string, error) {
	cfg, err := l.loadConfig()
	if err != nil {
		l.log.Warn("failed to load config for UI resolution", "error", err)
		cfg = nil
	}

	var tried []string

	override := envFirst(EnvUIPath, EnvUIPathOld)
	if override == "" && cfg != nil {
		override = cfg.GetUIPath()
	}
	if override != "" {
		if isExecutable(override) {
			return override, nil
		}
		tried = append(tried, override+" (configured override)")
	}

	exeDir := ""
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
		colocated := filepath.Join(exeDir, exeName())
		if isExecutable(colocated) {
			return colocated, nil
		}
		tried = append(tried, colocated)
	}

	mode := l.uiMode(cfg)
	if mode == "dev" || mode == "debug" {
		if exeDir != "" {
			devBuild := filepath.Join(exeDir, "..", "ui", "target", "debug", exeName())
			if isExecutable(devBuild) {
				if err := l.ensureDevServer(cfg); err != nil {
					return "", err
				}
				return devBuild, nil
			}
			tried = append(tried, devBuild)
		}
	}

	if exeDir != "" {
		releaseBuild := filepath.Join(exeDir, "..", "ui", "target", "release", exeName())
		if isExecutable(releaseBuild) {
			return releaseBuild, nil
		}
		tried = append(tried, releaseBuild)
	}

	// Last resort: a binary somewhere on PATH, verified by running it.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := l.exec.Output(ctx, exeName(), "--version"); err == nil {
		return exeName(), nil
	}
	tried = append(tried, exeName()+" (on PATH)")

	return "", fmt.Errorf("UI executable not found, tried: %s (set %s or ui_path in config)",
		strings.Join(tried, ", "), EnvUIPath)
}

// ensureDevServer makes sure the frontend dev server is listening, starting
// it when autostart is enabled and waiting, bounded, for it to come up.
func (l *Launcher) ensureDevServer(cfg *config.Config) error {
	if devServerListening() {
		return nil
	}

	autostart := cfg != nil && cfg.GetAutoStartDevServer()
	if v := envFirst(EnvAutostart, EnvAutostartOld); v != "" {
		autostart, _ = strconv.ParseBool(v)
	}
	if !autostart {
		return fmt.Errorf("dev server not listening on %s (start it manually or enable auto_start_dev_server)", devServerAddr)
	}

	l.log.Info("starting UI dev server", "addr", devServerAddr)
	if _, err := process.SpawnDetached("npm", []string{"run", "dev"}, nil); err != nil {
		return fmt.Errorf("failed to start dev server: %w", err)
	}

	deadline := time.Now().Add(devServerWait)
	for time.Now().Before(deadline) {
		if devServerListening() {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("dev server did not come up on %s within %s", devServerAddr, devServerWait)
}

// devServerListening probes the dev server port.
func devServerListening() bool {
	conn, err := net.DialTimeout("tcp", devServerAddr, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Spawn starts the UI detached, pointing it at the request and response files
// and giving it its own log file.
func (l *Launcher) Spawn(uiPath, requestFile, responseFile, logFile string) (int, error) {
	args := []string{
		"--mcp-request", requestFile,
		"--response-file", responseFile,
	}
	extraEnv := []string{EnvUILogFile + "=" + logFile}

	pid, err := process.SpawnDetached(uiPath, args, extraEnv)
	if err != nil {
		return 0, fmt.Errorf("failed to spawn UI %s: %w", uiPath, err)
	}
	l.log.Info("spawned UI", "path", uiPath, "pid", pid, "request", requestFile)
	return pid, nil
}

// Launch resolves the UI executable and spawns it.
func (l *Launcher) Launch(requestFile, responseFile, logFile string) (int, string, error) {
	uiPath, err := l.Locate()
	if err != nil {
		return 0, "", err
	}
	pid, err := l.Spawn(uiPath, requestFile, responseFile, logFile)
	if err != nil {
		return 0, "", err
	}
	return pid, uiPath, nil
}
