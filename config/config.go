package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/zhubert/handoff/paths"
)

// Tool name constants shared between the config file and the MCP server.
const (
	ToolPrompt     = "prompt"
	ToolPromptSync = "prompt_sync"
	ToolGetResult  = "get_result"
)

// DefaultContinuePrompt is the reply text used by the UI's "continue" shortcut
// when the config does not override it.
const DefaultContinuePrompt = "Please continue following best practices"

// Config holds the settings shared between the MCP server and the UI app.
//
// The MCP server re-reads the config on each relevant call rather than caching
// it, so tool toggles and the wait budget changed from the UI take effect
// without restarting the server.
type Config struct {
	// Tools maps tool name to enabled state. Missing entries default to enabled.
	Tools map[string]bool `json:"tools,omitempty" yaml:"tools,omitempty"`

	// InteractionWaitMS bounds a single poll call's wait. 0 means wait forever.
	InteractionWaitMS int `json:"interaction_wait_ms,omitempty" yaml:"interaction_wait_ms,omitempty"`

	// ContinuePrompt is the canned reply text for the UI's continue shortcut.
	ContinuePrompt string `json:"continue_prompt,omitempty" yaml:"continue_prompt,omitempty"`

	// UIPath, when set, overrides UI executable resolution (env vars still win).
	UIPath string `json:"ui_path,omitempty" yaml:"ui_path,omitempty"`

	// UIMode selects the build to prefer: "release" (default) or "dev".
	UIMode string `json:"ui_mode,omitempty" yaml:"ui_mode,omitempty"`

	// AutoStartDevServer allows the launcher to spawn the UI dev server when
	// dev mode is selected and nothing is listening on the dev port.
	AutoStartDevServer bool `json:"auto_start_dev_server,omitempty" yaml:"auto_start_dev_server,omitempty"`

	mu       sync.RWMutex
	filePath string
}

// DefaultTools returns the default tool enablement map.
func DefaultTools() map[string]bool {
	return map[string]bool{
		ToolPrompt:     true,
		ToolPromptSync: true,
		ToolGetResult:  true,
	}
}

// Load reads the config from disk, or returns defaults if no config exists.
// config.json is authoritative (it is what the UI app writes); config.yaml is
// accepted as a hand-maintained fallback for server-only installs.
func Load() (*Config, error) {
	jsonPath, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Tools:    DefaultTools(),
		filePath: jsonPath,
	}

	data, err := os.ReadFile(jsonPath)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
		cfg.ensureInitialized()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	yamlPath, err := paths.YAMLConfigFilePath()
	if err != nil {
		return nil, err
	}
	data, err = os.ReadFile(yamlPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", yamlPath, err)
	}
	cfg.ensureInitialized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ensureInitialized ensures the tools map is non-nil and carries defaults for
// tools the file doesn't mention. Called during Load() before the Config is
// shared across goroutines; not thread-safe on its own.
func (c *Config) ensureInitialized() {
	if c.Tools == nil {
		c.Tools = make(map[string]bool)
	}
	for name, enabled := range DefaultTools() {
		if _, ok := c.Tools[name]; !ok {
			c.Tools[name] = enabled
		}
	}
}

// Validate checks the loaded config for nonsensical values.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.InteractionWaitMS < 0 {
		return fmt.Errorf("interaction_wait_ms must be >= 0, got %d", c.InteractionWaitMS)
	}
	switch c.UIMode {
	case "", "release", "dev", "debug":
	default:
		return fmt.Errorf("ui_mode must be one of release/dev/debug, got %q", c.UIMode)
	}
	return nil
}

// Save writes the config to config.json.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir, err := paths.ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.filePath, data, 0644)
}

// SetFilePath overrides where Save writes. This is intended for testing.
func (c *Config) SetFilePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filePath = path
}

// ToolEnabled reports whether a tool is enabled. Unknown tools default to
// enabled, matching the UI app's behavior.
func (c *Config) ToolEnabled(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	enabled, ok := c.Tools[name]
	if !ok {
		return true
	}
	return enabled
}

// SetToolEnabled toggles a tool.
func (c *Config) SetToolEnabled(name string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Tools == nil {
		c.Tools = make(map[string]bool)
	}
	c.Tools[name] = enabled
}

// GetInteractionWaitMS returns the configured poll wait budget in milliseconds.
func (c *Config) GetInteractionWaitMS() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.InteractionWaitMS
}

// SetInteractionWaitMS sets the poll wait budget.
func (c *Config) SetInteractionWaitMS(ms int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InteractionWaitMS = ms
}

// GetContinuePrompt returns the continue-shortcut reply text.
func (c *Config) GetContinuePrompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ContinuePrompt == "" {
		return DefaultContinuePrompt
	}
	return c.ContinuePrompt
}

// GetUIPath returns the configured UI executable override, if any.
func (c *Config) GetUIPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.UIPath
}

// GetUIMode returns the configured UI build mode.
func (c *Config) GetUIMode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.UIMode
}

// GetAutoStartDevServer reports whether the launcher may spawn the dev server.
func (c *Config) GetAutoStartDevServer() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AutoStartDevServer
}
