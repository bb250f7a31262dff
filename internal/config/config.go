/*
PURPOSE:
  Defines the runner settings and how they are resolved: built-in
  defaults, an optional settings file, SUITE_RUNNER_* environment
  variables, then command-line flags.

REQUIREMENTS:
  User-specified:
  - Scheduler commands, array concurrency cap and failure policy are
    configurable without editing suite files.
  - Extra environment for task processes can come from a dotenv file.

  Implementation-discovered:
  - Suite files describe experiments only; runner settings live apart so
    one suite can be dispatched to different clusters.
  - Flags must override env and file values only when actually set.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli
  - Dependencies: github.com/spf13/viper, github.com/spf13/pflag,
    github.com/joho/godotenv, github.com/mattn/go-shellwords

ERROR HANDLING:
  - An explicitly named settings file that is missing is an error.
  - No settings file at all falls back to defaults.

IMPLEMENTATION RULES:
  - Keys are snake_case; nested keys use "." (cluster.max_concurrent).
  - Env names replace "." with "_" (SUITE_RUNNER_CLUSTER_MAX_CONCURRENT).

USAGE:
  l := config.NewLoader()
  l.BindFlag("cluster.max_concurrent", cmd.Flags().Lookup("max-concurrent"))
  settings, err := l.Load(cfgFile)

SELF-HEALING INSTRUCTIONS:
  - If a setting is ignored, check the precedence: flag, env, file,
    default. Run with --log-level debug to see which file was read.
  - If the runner splits oddly, quote paths with spaces.

RELATED FILES:
  - internal/cli/root.go
  - internal/cli/run.go

MAINTENANCE:
  - Update when adding settings; keep DefaultSettings and the example
    settings file in internal/assets in sync.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every settings environment variable.
const EnvPrefix = "SUITE_RUNNER"

// DefaultFiles are searched in the working directory when no settings file
// is named.
var DefaultFiles = []string{"suite-runner.yaml", ".suite-runner.yaml"}

// Settings is the resolved runner configuration.
type Settings struct {
	LogLevel   string `mapstructure:"log_level"`
	LogFormat  string `mapstructure:"log_format"`
	LedgerPath string `mapstructure:"ledger"`
	// Runner is the task runner command line, split with shell quoting
	// rules. Empty means the built-in "task" command.
	Runner    string  `mapstructure:"runner"`
	EnvFile   string  `mapstructure:"env_file"`
	OnFailure string  `mapstructure:"on_failure"`
	Cluster   Cluster `mapstructure:"cluster"`

	// File is the settings file that was read, if any.
	File string `mapstructure:"-"`
}

// Cluster holds scheduler settings.
type Cluster struct {
	Submit        string   `mapstructure:"submit"`
	Queue         string   `mapstructure:"queue"`
	Acct          string   `mapstructure:"acct"`
	MaxConcurrent int      `mapstructure:"max_concurrent"`
	JobScript     string   `mapstructure:"job_script"`
	ExtraArgs     []string `mapstructure:"extra_args"`
}

// RunnerArgs splits Runner into argv. Quotes and backslashes group words the
// way a POSIX shell would; variables and substitutions are left alone.
func (s *Settings) RunnerArgs() ([]string, error) {
	args, err := shellwords.Parse(s.Runner)
	if err != nil {
		return nil, fmt.Errorf("invalid runner %q: %w", s.Runner, err)
	}
	return args, nil
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		LogLevel:  "info",
		LogFormat: "text",
		OnFailure: "continue",
		Cluster: Cluster{
			Submit: "sbatch",
			Queue:  "squeue",
			Acct:   "sacct",
		},
	}
}

// Loader resolves Settings from file, environment and bound flags.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a Loader primed with the defaults and env lookup.
func NewLoader() *Loader {
	v := viper.New()
	d := DefaultSettings()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("ledger", d.LedgerPath)
	v.SetDefault("runner", d.Runner)
	v.SetDefault("env_file", d.EnvFile)
	v.SetDefault("on_failure", d.OnFailure)
	v.SetDefault("cluster.submit", d.Cluster.Submit)
	v.SetDefault("cluster.queue", d.Cluster.Queue)
	v.SetDefault("cluster.acct", d.Cluster.Acct)
	v.SetDefault("cluster.max_concurrent", d.Cluster.MaxConcurrent)
	v.SetDefault("cluster.job_script", d.Cluster.JobScript)
	v.SetDefault("cluster.extra_args", []string{})

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// BindFlag makes flag override key when it is set on the command line.
// A nil flag is ignored so commands can bind only the flags they define.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return nil
	}
	if err := l.v.BindPFlag(key, flag); err != nil {
		return fmt.Errorf("bind flag %s: %w", flag.Name, err)
	}
	return nil
}

// Load reads the settings file at path (or the first of DefaultFiles that
// exists when path is empty) and returns the merged settings.
func (l *Loader) Load(path string) (*Settings, error) {
	if path == "" {
		for _, name := range DefaultFiles {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
		}
	}

	s := &Settings{}
	if err := l.v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	s.File = path
	if s.Cluster.MaxConcurrent < 0 {
		return nil, fmt.Errorf("invalid settings: cluster.max_concurrent must be >= 0, got %d", s.Cluster.MaxConcurrent)
	}
	if _, err := s.RunnerArgs(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// LoadEnvFile reads KEY=VALUE pairs from a dotenv file, sorted by key.
func LoadEnvFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("env file %s does not exist", path)
		}
		return nil, fmt.Errorf("failed to parse env file %s: %w", path, err)
	}

	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env, nil
}
