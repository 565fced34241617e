// Package config loads and persists Lucenta's configuration. Settings live
// in ~/.lucenta/config.yaml; every key can be overridden with a LUCENTA_
// environment variable (LUCENTA_ROUTER_CPU_THRESHOLD, etc.).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/InfamousPlatypus/Lucenta/internal/llm"
)

// Config is the root configuration.
type Config struct {
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	LogFile  string `yaml:"log_file" mapstructure:"log_file"`

	Providers       map[string]*llm.ProviderConfig `yaml:"providers" mapstructure:"providers"`
	DefaultProvider string                         `yaml:"default_provider" mapstructure:"default_provider"`
	StepUpProvider  string                         `yaml:"step_up_provider" mapstructure:"step_up_provider"`

	Router    RouterConfig    `yaml:"router" mapstructure:"router"`
	Agent     AgentConfig     `yaml:"agent" mapstructure:"agent"`
	Workflow  WorkflowConfig  `yaml:"workflow" mapstructure:"workflow"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
}

// RouterConfig sets the load thresholds for step-up routing.
type RouterConfig struct {
	CPUThreshold float64 `yaml:"cpu_threshold" mapstructure:"cpu_threshold"`
	MemThreshold float64 `yaml:"mem_threshold" mapstructure:"mem_threshold"`
}

// AgentConfig bounds the reasoning loop.
type AgentConfig struct {
	MaxTurns      int `yaml:"max_turns" mapstructure:"max_turns"`
	ContextWindow int `yaml:"context_window" mapstructure:"context_window"`
}

// WorkflowConfig tunes the research pipeline.
type WorkflowConfig struct {
	StrictValidation bool   `yaml:"strict_validation" mapstructure:"strict_validation"`
	ReportsDir       string `yaml:"reports_dir" mapstructure:"reports_dir"`
}

// SchedulerConfig tunes the delayed-task runner.
type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// Default returns the stock configuration rooted at ~/.lucenta.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".lucenta")

	return &Config{
		DataDir:  dataDir,
		LogLevel: "info",
		Providers: map[string]*llm.ProviderConfig{
			"ollama":    llm.DefaultConfig("ollama"),
			"openai":    llm.DefaultConfig("openai"),
			"anthropic": llm.DefaultConfig("anthropic"),
		},
		DefaultProvider: "ollama",
		StepUpProvider:  "anthropic",
		Router: RouterConfig{
			CPUThreshold: 70.0,
			MemThreshold: 70.0,
		},
		Agent: AgentConfig{
			MaxTurns:      6,
			ContextWindow: 8,
		},
		Workflow: WorkflowConfig{
			ReportsDir: filepath.Join(dataDir, "reports"),
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
	}
}

// Load reads the config from the default path, writing the defaults there
// on first run.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(home, ".lucenta", "config.yaml"))
}

// LoadFromPath reads the config from an explicit path.
func LoadFromPath(path string) (*Config, error) {
	path = ExpandPath(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.SaveToPath(path); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LUCENTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.DataDir = ExpandPath(cfg.DataDir)
	cfg.Workflow.ReportsDir = ExpandPath(cfg.Workflow.ReportsDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.DefaultProvider == "" {
		return fmt.Errorf("default_provider must be set")
	}
	if _, ok := c.Providers[c.DefaultProvider]; !ok {
		return fmt.Errorf("default_provider %q has no provider entry", c.DefaultProvider)
	}
	if c.StepUpProvider != "" {
		if _, ok := c.Providers[c.StepUpProvider]; !ok {
			return fmt.Errorf("step_up_provider %q has no provider entry", c.StepUpProvider)
		}
	}
	if c.Router.CPUThreshold < 0 || c.Router.CPUThreshold > 100 {
		return fmt.Errorf("router.cpu_threshold must be between 0 and 100")
	}
	if c.Router.MemThreshold < 0 || c.Router.MemThreshold > 100 {
		return fmt.Errorf("router.mem_threshold must be between 0 and 100")
	}
	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("agent.max_turns must be at least 1")
	}
	return nil
}

// SaveToPath writes the config as YAML, creating parent directories.
func (c *Config) SaveToPath(path string) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// TrustFile is where the trusted-domain list lives.
func (c *Config) TrustFile() string {
	return filepath.Join(c.DataDir, "trusted_domains.json")
}

// MemoryDir is where notes live.
func (c *Config) MemoryDir() string {
	return filepath.Join(c.DataDir, "memory")
}

// SchedulerDB is where the task database lives.
func (c *Config) SchedulerDB() string {
	return filepath.Join(c.DataDir, "tasks.db")
}

// EnsureDirectories creates the data directories the runtime expects.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.MemoryDir(), c.Workflow.ReportsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
