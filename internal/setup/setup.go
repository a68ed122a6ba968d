// Package setup registers the lite MCP server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

const (
	// ServerKey is the entry name under mcpServers.
	ServerKey = "maternal-guard"

	// BinaryName is the lite server executable.
	BinaryName = "mcp-server-lite"

	dataDirEnv   = "MATERNAL_GUARD_DATA_DIR"
	modelPathEnv = "MATERNAL_GUARD_MODEL_PATH"
	donorsEnv    = "MATERNAL_GUARD_DONORS_FILE"
)

// ClientConfig is the desktop client's configuration file. Top-level keys
// other than mcpServers are preserved on save.
type ClientConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
	extra      map[string]json.RawMessage
}

// ServerEntry launches one MCP server.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options control registration.
type Options struct {
	ConfigPath string // Client config file; empty uses DesktopConfigPath
	BinaryPath string // Lite server binary; empty searches common locations
	DataDir    string
	ModelPath  string
	DonorsFile string
}

// DesktopConfigPath returns the desktop client's config file for this OS.
func DesktopConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadClientConfig reads the config file. A missing file yields an empty
// config.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{MCPServers: make(map[string]ServerEntry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.extra); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := cfg.extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.extra, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]ServerEntry)
	}
	return cfg, nil
}

// SaveClientConfig writes the config file, creating its directory.
func SaveClientConfig(path string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]any, len(cfg.extra)+1)
	for k, v := range cfg.extra {
		out[k] = v
	}
	out["mcpServers"] = cfg.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or replaces the maternal-guard entry and returns it.
func Register(opts Options) (*ServerEntry, error) {
	configPath, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	cfg, err := LoadClientConfig(configPath)
	if err != nil {
		return nil, err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		if binaryPath, err = findBinary(); err != nil {
			return nil, fmt.Errorf("could not find server binary: %w", err)
		}
	}

	entry := ServerEntry{Command: binaryPath, Env: make(map[string]string)}
	if opts.DataDir != "" {
		entry.Env[dataDirEnv] = opts.DataDir
	}
	if opts.ModelPath != "" {
		abs, err := filepath.Abs(opts.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve model path: %w", err)
		}
		entry.Env[modelPathEnv] = abs
	}
	if opts.DonorsFile != "" {
		abs, err := filepath.Abs(opts.DonorsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve donors file: %w", err)
		}
		entry.Env[donorsEnv] = abs
	}

	cfg.MCPServers[ServerKey] = entry
	if err := SaveClientConfig(configPath, cfg); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Unregister removes the maternal-guard entry. It reports whether an entry
// was present.
func Unregister(configPath string) (bool, error) {
	configPath, err := resolveConfigPath(configPath)
	if err != nil {
		return false, err
	}
	cfg, err := LoadClientConfig(configPath)
	if err != nil {
		return false, err
	}
	if _, ok := cfg.MCPServers[ServerKey]; !ok {
		return false, nil
	}
	delete(cfg.MCPServers, ServerKey)
	return true, SaveClientConfig(configPath, cfg)
}

// Status reports how the lite server is registered.
type Status struct {
	ConfigPath string   `json:"config_path"`
	Registered bool     `json:"registered"`
	BinaryPath string   `json:"binary_path,omitempty"`
	DataDir    string   `json:"data_dir,omitempty"`
	ModelPath  string   `json:"model_path,omitempty"`
	Issues     []string `json:"issues"`
}

// GetStatus inspects the client config at configPath (empty uses
// DesktopConfigPath).
func GetStatus(configPath string) (*Status, error) {
	configPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	status := &Status{ConfigPath: configPath, Issues: []string{}}

	cfg, err := LoadClientConfig(configPath)
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Could not load client config: %v", err))
		return status, nil
	}

	entry, ok := cfg.MCPServers[ServerKey]
	if !ok {
		status.Issues = append(status.Issues, "maternal-guard is not registered")
		return status, nil
	}

	status.Registered = true
	status.BinaryPath = entry.Command
	status.DataDir = entry.Env[dataDirEnv]
	status.ModelPath = entry.Env[modelPathEnv]

	if info, err := os.Stat(entry.Command); err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found: %s", entry.Command))
	} else if info.Mode()&0111 == 0 {
		status.Issues = append(status.Issues, fmt.Sprintf("Server binary is not executable: %s", entry.Command))
	}
	if status.ModelPath != "" {
		if _, err := os.Stat(status.ModelPath); err != nil {
			status.Issues = append(status.Issues, fmt.Sprintf("Model artifact not found: %s", status.ModelPath))
		}
	}
	return status, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return DesktopConfigPath()
}

// findBinary looks for the lite server on PATH and in common build
// locations.
func findBinary() (string, error) {
	if path, err := exec.LookPath(BinaryName); err == nil {
		return path, nil
	}

	locations := []string{
		"./" + BinaryName,
		"./build/" + BinaryName,
		"./bin/" + BinaryName,
		"/usr/local/bin/" + BinaryName,
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(home, ".local", "bin", BinaryName))
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			if abs, err := filepath.Abs(loc); err == nil {
				return abs, nil
			}
			return loc, nil
		}
	}

	return "", fmt.Errorf("binary %q not found in common locations", BinaryName)
}
