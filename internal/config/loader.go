package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// EnvPrefix prefixes environment overrides, e.g. MONOREL_STRATEGY or
// MONOREL_REGISTRY_TOKEN.
const EnvPrefix = "MONOREL"

var (
	// envVarPattern matches ${VAR} or ${VAR:-default} syntax
	envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)
	// simpleEnvVarPattern matches $VAR syntax
	simpleEnvVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// Loader handles configuration loading and merging.
type Loader struct {
	v           *viper.Viper
	configPath  string
	searchPaths []string
	overrides   map[string]any
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{
		v:           v,
		searchPaths: []string{"."},
		overrides:   make(map[string]any),
	}
}

// WithConfigPath sets an explicit config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithSearchPaths replaces the directories searched for config files.
func (l *Loader) WithSearchPaths(paths ...string) *Loader {
	l.searchPaths = append([]string(nil), paths...)
	return l
}

// Set overrides a key after the file and environment are read. Command
// line flags use it.
func (l *Loader) Set(key string, value any) *Loader {
	l.overrides[key] = value
	return l
}

// Load loads the configuration.
func (l *Loader) Load() (*Config, error) {
	const op = "config.Load"

	l.setDefaults()

	if err := l.loadConfigFile(); err != nil {
		return nil, rperrors.CodedWrap(err, rperrors.CodeInvalidConfig, op, "failed to load config file")
	}
	for key, value := range l.overrides {
		l.v.Set(key, value)
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, rperrors.CodedWrap(err, rperrors.CodeInvalidConfig, op, "failed to unmarshal config")
	}

	expandEnvVars(cfg)

	return cfg, nil
}

// setDefaults sets default values using Viper. Every key gets a default so
// AutomaticEnv can override it.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("strategy", d.Strategy)
	l.v.SetDefault("harmonize_cycles", d.HarmonizeCycles)
	l.v.SetDefault("snapshot_hash_length", d.SnapshotHashLength)
	l.v.SetDefault("snapshot_style", d.SnapshotStyle)
	l.v.SetDefault("allow_snapshot_on_main", d.AllowSnapshotOnMain)
	l.v.SetDefault("default_bump", d.DefaultBump)
	l.v.SetDefault("changeset_dir", d.ChangesetDir)
	l.v.SetDefault("changeset_format", d.ChangesetFormat)
	l.v.SetDefault("available_environments", d.AvailableEnvironments)
	l.v.SetDefault("release_branches", d.ReleaseBranches)
	l.v.SetDefault("tag_pattern", d.TagPattern)
	l.v.SetDefault("repo_provider", d.RepoProvider)
	l.v.SetDefault("changelog_template", d.ChangelogTemplate)

	// Dependency bump defaults
	l.v.SetDefault("dependency_bump.major", d.DependencyBump.Major)
	l.v.SetDefault("dependency_bump.minor", d.DependencyBump.Minor)
	l.v.SetDefault("dependency_bump.patch", d.DependencyBump.Patch)

	// Promotion defaults
	l.v.SetDefault("independent.major_if_breaking", d.Independent.MajorIfBreaking)
	l.v.SetDefault("independent.minor_if_feature", d.Independent.MinorIfFeature)
	l.v.SetDefault("independent.patch_otherwise", d.Independent.PatchOtherwise)

	// Changelog defaults
	l.v.SetDefault("changelog.file", d.Changelog.File)
	l.v.SetDefault("changelog.commit_url_template", d.Changelog.CommitURLTemplate)
	l.v.SetDefault("changelog.repository_url", d.Changelog.RepositoryURL)

	// Registry defaults
	l.v.SetDefault("registry.enabled", d.Registry.Enabled)
	l.v.SetDefault("registry.url", d.Registry.URL)
	l.v.SetDefault("registry.token", d.Registry.Token)
	l.v.SetDefault("registry.timeout", d.Registry.Timeout)
	l.v.SetDefault("registry.cache_size", d.Registry.CacheSize)
	l.v.SetDefault("registry.retry_attempts", d.Registry.RetryAttempts)

	// Output defaults
	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.color", d.Output.Color)
	l.v.SetDefault("output.log_level", d.Output.LogLevel)
	l.v.SetDefault("output.verbose", d.Output.Verbose)
	l.v.SetDefault("output.log_file", d.Output.LogFile)
}

// loadConfigFile loads the configuration file.
func (l *Loader) loadConfigFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", l.configPath, err)
		}
		return nil
	}

	configFile, ok := findConfigFile(l.searchPaths)
	if !ok {
		// No config file found - this is OK, we use defaults
		return nil
	}
	l.v.SetConfigFile(configFile)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", configFile, err)
	}
	return nil
}

// expandEnvVars expands environment variables in fields that commonly hold
// secrets or machine specific values.
func expandEnvVars(cfg *Config) {
	cfg.Registry.Token = expandEnvVar(cfg.Registry.Token)
	cfg.Registry.URL = expandEnvVar(cfg.Registry.URL)
	cfg.Changelog.RepositoryURL = expandEnvVar(cfg.Changelog.RepositoryURL)
	cfg.Output.LogFile = expandEnvVar(cfg.Output.LogFile)
}

// expandEnvVar expands environment variables in a string.
// Supports both ${VAR} and $VAR syntax.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}

		varName := submatch[1]
		defaultValue := ""
		if len(submatch) > 2 {
			defaultValue = submatch[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})

	// Unset $VAR references are left as written.
	result = simpleEnvVarPattern.ReplaceAllStringFunc(result, func(match string) string {
		if value := os.Getenv(match[1:]); value != "" {
			return value
		}
		return match
	})

	return result
}

// GetConfigPath returns the path to the loaded config file, if any.
func (l *Loader) GetConfigPath() string {
	return l.v.ConfigFileUsed()
}

func findConfigFile(searchPaths []string) (string, bool) {
	for _, searchPath := range searchPaths {
		for _, name := range ConfigFileNames {
			for _, ext := range ConfigFileExtensions {
				configFile := filepath.Join(searchPath, name+"."+ext)
				if info, err := os.Stat(configFile); err == nil && !info.IsDir() {
					return configFile, true
				}
			}
		}
	}
	return "", false
}

// FindConfigFile searches for a config file and returns its path.
func FindConfigFile(searchPaths ...string) (string, error) {
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}
	if path, ok := findConfigFile(searchPaths); ok {
		return path, nil
	}
	return "", rperrors.NotFound("config.FindConfigFile", "no config file found")
}

// LoadFromDirectory loads configuration from a directory.
func LoadFromDirectory(dir string) (*Config, error) {
	return NewLoader().WithSearchPaths(dir).Load()
}
