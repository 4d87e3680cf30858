// Package config loads kilobridge's configuration. Values are layered:
// built-in defaults, then an optional YAML file, then KILOBRIDGE_*
// environment variables, then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load. Nested keys
// are separated by a double underscore, e.g. KILOBRIDGE_AGENT__TIMEOUT.
const EnvPrefix = "KILOBRIDGE_"

// Config holds the server's runtime configuration.
type Config struct {
	Addr     string         `koanf:"addr"`      // Listen address (e.g. ":8001")
	LogLevel string         `koanf:"log_level"` // debug, info, warn or error
	Provider ProviderConfig `koanf:"provider"`
	Agent    AgentConfig    `koanf:"agent"`
	Prompt   PromptConfig   `koanf:"prompt"`
	Planner  PlannerConfig  `koanf:"planner"`
	FS       FSConfig       `koanf:"fs"`
}

// ProviderConfig configures the model provider.
type ProviderConfig struct {
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Model       string        `koanf:"model"`
	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
}

// AgentConfig configures the external reasoning agent.
type AgentConfig struct {
	Command   []string      `koanf:"command"`
	Dir       string        `koanf:"dir"`
	Timeout   time.Duration `koanf:"timeout"`
	KillGrace time.Duration `koanf:"kill_grace"`
	// AllowExecute enables plan execution. Only turn it on when the agent
	// runs sandboxed.
	AllowExecute bool `koanf:"allow_execute"`
}

// PromptConfig configures the prompt composer.
type PromptConfig struct {
	RulesDir        string `koanf:"rules_dir"`
	ProjectRulesDir string `koanf:"project_rules_dir"`
	ContextItems    int    `koanf:"context_items"`
}

// PlannerConfig configures the planner.
type PlannerConfig struct {
	MaxAttempts int `koanf:"max_attempts"`
}

// FSConfig configures the filesystem tool.
type FSConfig struct {
	AllowedPaths []string `koanf:"allowed_paths"`
	Ignore       []string `koanf:"ignore"`
}

// listKeys are split on commas when read from the environment.
var listKeys = map[string]bool{
	"agent.command":    true,
	"fs.allowed_paths": true,
	"fs.ignore":        true,
}

// Defaults returns the built-in configuration as a flat koanf map.
func Defaults() map[string]any {
	return map[string]any{
		"addr":                     ":8001",
		"log_level":                "info",
		"provider.api_key":         "",
		"provider.base_url":        "",
		"provider.model":           "gpt-4o-mini",
		"provider.temperature":     0.2,
		"provider.max_tokens":      0,
		"provider.timeout":         "120s",
		"agent.command":            []string{"node", "bridge.js"},
		"agent.dir":                "./kilocode_core/agent",
		"agent.timeout":            "60s",
		"agent.kill_grace":         "5s",
		"agent.allow_execute":      false,
		"prompt.rules_dir":         "",
		"prompt.project_rules_dir": "",
		"prompt.context_items":     20,
		"planner.max_attempts":     3,
		"fs.allowed_paths":         []string{},
		"fs.ignore":                []string{"**/.git", "**/node_modules"},
	}
}

// Flags holds command-line overrides. Only flags that were set on the
// command line take effect.
type Flags struct {
	fs       *flag.FlagSet
	File     string
	addr     string
	logLevel string
	agentDir string
	model    string
}

// DefineFlags registers configuration flags on fs.
// Call fs.Parse separately after defining all flags.
func DefineFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.File, "config", "", "path to a YAML config file")
	fs.StringVar(&f.addr, "addr", ":8001", "listen address")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.StringVar(&f.agentDir, "agent-dir", "", "agent installation directory")
	fs.StringVar(&f.model, "model", "", "model identifier for the provider")
	return f
}

// overrides returns the flags explicitly set on the command line.
func (f *Flags) overrides() map[string]any {
	out := map[string]any{}
	if f == nil || f.fs == nil {
		return out
	}
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "addr":
			out["addr"] = f.addr
		case "log-level":
			out["log_level"] = f.logLevel
		case "agent-dir":
			out["agent.dir"] = f.agentDir
		case "model":
			out["provider.model"] = f.model
		}
	})
	return out
}

// Load builds the configuration. flags may be nil.
func Load(flags *Flags) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if flags != nil && flags.File != "" {
		if err := k.Load(file.Provider(flags.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", flags.File, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Load(confmap.Provider(flags.overrides(), "."), nil); err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// The provider's conventional variable is honored when no key was
	// configured explicitly.
	if c.Provider.APIKey == "" {
		c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return &c, nil
}

// envKey maps KILOBRIDGE_AGENT__TIMEOUT to agent.timeout. List values are
// comma-separated.
func envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return key, items
	}
	return key, value
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if len(c.Agent.Command) == 0 || strings.TrimSpace(c.Agent.Command[0]) == "" {
		errs = append(errs, errors.New("agent.command is required"))
	}
	if c.Agent.Timeout <= 0 {
		errs = append(errs, errors.New("agent.timeout must be positive"))
	}
	if c.Agent.KillGrace <= 0 {
		errs = append(errs, errors.New("agent.kill_grace must be positive"))
	}
	if c.Provider.Timeout <= 0 {
		errs = append(errs, errors.New("provider.timeout must be positive"))
	}
	if c.Provider.Model == "" {
		errs = append(errs, errors.New("provider.model is required"))
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		errs = append(errs, fmt.Errorf("provider.temperature %v out of range [0, 2]", c.Provider.Temperature))
	}
	if c.Prompt.ContextItems <= 0 {
		errs = append(errs, errors.New("prompt.context_items must be positive"))
	}
	if c.Planner.MaxAttempts <= 0 {
		errs = append(errs, errors.New("planner.max_attempts must be positive"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// WatchFile calls onChange with the reloaded configuration whenever the
// YAML file named by flags changes. It is a no-op without a config file.
// Reload errors are passed to onChange with a nil Config.
func WatchFile(flags *Flags, onChange func(*Config, error)) error {
	if flags == nil || flags.File == "" {
		return nil
	}
	fp := file.Provider(flags.File)
	return fp.Watch(func(_ any, err error) {
		if err != nil {
			onChange(nil, err)
			return
		}
		onChange(Load(flags))
	})
}
