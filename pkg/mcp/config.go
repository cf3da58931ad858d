package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the declarative server configuration. The canonical form is a
// JSON document with a top-level mcpServers map; files with a .yaml/.yml
// extension are parsed as YAML with the same shape.
type Config struct {
	Servers map[string]ServerConfig `json:"mcpServers" yaml:"mcpServers"`
}

// ServerConfig describes how to launch and talk to one tool server.
type ServerConfig struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Bridge  *BridgeConfig     `json:"bridge,omitempty" yaml:"bridge,omitempty"`

	// Optional glob patterns restricting which of the server's tools are
	// exposed to the model. Empty AllowedTools means all tools.
	AllowedTools  []string `json:"allowedTools,omitempty" yaml:"allowedTools,omitempty"`
	DisabledTools []string `json:"disabledTools,omitempty" yaml:"disabledTools,omitempty"`
}

// BridgeConfig describes an auxiliary helper process a server depends on.
type BridgeConfig struct {
	Command string `json:"command" yaml:"command"`
	Cwd     string `json:"cwd,omitempty" yaml:"cwd,omitempty"`
}

// LoadConfig reads a server configuration file. A missing file is not an
// error: it means zero servers are configured. A file that cannot be parsed,
// or a server definition without a command, is a hard ErrConfigParse.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{Servers: map[string]ServerConfig{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}

	for name, server := range cfg.Servers {
		if server.Command == "" {
			return nil, fmt.Errorf("%w: server %q missing command", ErrConfigParse, name)
		}
	}

	if cfg.Servers == nil {
		cfg.Servers = map[string]ServerConfig{}
	}
	return &cfg, nil
}
