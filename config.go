package claudeagent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the subset of Options a deployment might want to
// pin in a config file rather than Go literals: the model, permission
// posture, working directory, and tool allow/deny lists.
type fileConfig struct {
	Model           string   `yaml:"model"`
	PermissionMode  string   `yaml:"permission_mode"`
	Cwd             string   `yaml:"cwd"`
	AllowedTools    []string `yaml:"allowed_tools"`
	DisallowedTools []string `yaml:"disallowed_tools"`
	MaxTurns        *int     `yaml:"max_turns"`
}

// LoadDefaults reads a YAML file of default option overrides and
// returns an Option that applies them. Fields absent from the file are
// left untouched, so LoadDefaults composes with other options:
//
//	opt, err := claudeagent.LoadDefaults("agent.yaml")
//	handle, err := claudeagent.Query(ctx, prompt, opt, claudeagent.WithCwd("/work"))
//
// A later option in the Query call always overrides what the file set.
func LoadDefaults(path string) (Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return func(o *Options) {
		if cfg.Model != "" {
			o.Model = cfg.Model
		}
		if cfg.PermissionMode != "" {
			o.PermissionMode = PermissionMode(cfg.PermissionMode)
		}
		if cfg.Cwd != "" {
			o.Cwd = cfg.Cwd
		}
		if len(cfg.AllowedTools) > 0 {
			o.AllowedTools = cfg.AllowedTools
		}
		if len(cfg.DisallowedTools) > 0 {
			o.DisallowedTools = cfg.DisallowedTools
		}
		if cfg.MaxTurns != nil {
			o.MaxTurns = cfg.MaxTurns
		}
	}, nil
}
