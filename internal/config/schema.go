// Package config provides configuration management for monorel.
package config

import (
	"time"
)

// Config is the root configuration for monorel.
type Config struct {
	// Strategy is the planning strategy (independent, conventional, unified, manual).
	Strategy string `mapstructure:"strategy" json:"strategy"`
	// HarmonizeCycles gives every member of a dependency cycle the same bump.
	HarmonizeCycles bool `mapstructure:"harmonize_cycles" json:"harmonize_cycles"`
	// SnapshotHashLength is the number of sha characters in a snapshot version.
	SnapshotHashLength int `mapstructure:"snapshot_hash_length" json:"snapshot_hash_length"`
	// SnapshotStyle selects the snapshot suffix (legacy renders -0.0-<sha>, simple renders -snapshot.<sha>).
	SnapshotStyle string `mapstructure:"snapshot_style" json:"snapshot_style"`
	// AllowSnapshotOnMain permits snapshot plans on release branches.
	AllowSnapshotOnMain bool `mapstructure:"allow_snapshot_on_main" json:"allow_snapshot_on_main"`
	// Types maps commit types to their bump and changelog section. Entries
	// are merged over the standard table.
	Types map[string]TypeConfig `mapstructure:"types" json:"types,omitempty"`
	// DefaultBump applies to commit types missing from Types.
	DefaultBump string `mapstructure:"default_bump" json:"default_bump"`
	// DependencyBump is the bump a dependent receives per dependency bump.
	DependencyBump DependencyBumpConfig `mapstructure:"dependency_bump" json:"dependency_bump"`
	// Independent switches promotions of the independent and conventional strategies.
	Independent PromotionsConfig `mapstructure:"independent" json:"independent"`
	// ChangesetDir is where changeset files live, relative to the workspace root.
	ChangesetDir string `mapstructure:"changeset_dir" json:"changeset_dir"`
	// ChangesetFormat is the changeset file format (json, yaml, toml).
	ChangesetFormat string `mapstructure:"changeset_format" json:"changeset_format"`
	// AvailableEnvironments restricts changeset target environments. Empty allows any.
	AvailableEnvironments []string `mapstructure:"available_environments" json:"available_environments,omitempty"`
	// ReleaseBranches never receive changesets or snapshots.
	ReleaseBranches []string `mapstructure:"release_branches" json:"release_branches"`
	// TagPattern selects the last release tag when no from ref is given.
	TagPattern string `mapstructure:"tag_pattern" json:"tag_pattern,omitempty"`
	// RepoProvider overrides provider detection from the remote URL.
	RepoProvider string `mapstructure:"repo_provider" json:"repo_provider,omitempty"`
	// ChangelogTemplate is the release block heading.
	ChangelogTemplate string `mapstructure:"changelog_template" json:"changelog_template"`
	// Changelog configures changelog files and links.
	Changelog ChangelogConfig `mapstructure:"changelog" json:"changelog"`
	// Registry configures the optional package registry lookups.
	Registry RegistryConfig `mapstructure:"registry" json:"registry"`
	// Output configures output settings.
	Output OutputConfig `mapstructure:"output" json:"output"`
}

// TypeConfig configures a commit type.
type TypeConfig struct {
	Bump    string `mapstructure:"bump" json:"bump"`
	Section string `mapstructure:"section" json:"section,omitempty"`
	Show    bool   `mapstructure:"show" json:"show"`
}

// DependencyBumpConfig maps a dependency's bump to its dependents' bump.
type DependencyBumpConfig struct {
	Major string `mapstructure:"major" json:"major"`
	Minor string `mapstructure:"minor" json:"minor"`
	Patch string `mapstructure:"patch" json:"patch"`
}

// PromotionsConfig switches bump promotions.
type PromotionsConfig struct {
	MajorIfBreaking bool `mapstructure:"major_if_breaking" json:"major_if_breaking"`
	MinorIfFeature  bool `mapstructure:"minor_if_feature" json:"minor_if_feature"`
	PatchOtherwise  bool `mapstructure:"patch_otherwise" json:"patch_otherwise"`
}

// ChangelogConfig configures changelog generation.
type ChangelogConfig struct {
	// File is the changelog file name inside each package.
	File string `mapstructure:"file" json:"file"`
	// CommitURLTemplate builds commit links for custom providers ({repo_url} and {sha}).
	CommitURLTemplate string `mapstructure:"commit_url_template" json:"commit_url_template,omitempty"`
	// RepositoryURL overrides the remote URL used for links.
	RepositoryURL string `mapstructure:"repository_url" json:"repository_url,omitempty"`
}

// RegistryConfig configures registry lookups.
type RegistryConfig struct {
	Enabled       bool          `mapstructure:"enabled" json:"enabled"`
	URL           string        `mapstructure:"url" json:"url"`
	Token         string        `mapstructure:"token" json:"-"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout"`
	CacheSize     int           `mapstructure:"cache_size" json:"cache_size"`
	RetryAttempts int           `mapstructure:"retry_attempts" json:"retry_attempts"`
}

// OutputConfig configures output settings.
type OutputConfig struct {
	// Format is the output format (text, json).
	Format string `mapstructure:"format" json:"format"`
	// Color enables colored output (auto, always, never).
	Color string `mapstructure:"color" json:"color"`
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	// Verbose is shorthand for the debug log level.
	Verbose bool `mapstructure:"verbose" json:"verbose"`
	// LogFile additionally writes logs to a file.
	LogFile string `mapstructure:"log_file" json:"log_file,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Strategy:           "independent",
		HarmonizeCycles:    true,
		SnapshotHashLength: 7,
		SnapshotStyle:      "legacy",
		DefaultBump:        "patch",
		DependencyBump: DependencyBumpConfig{
			Major: "patch",
			Minor: "patch",
			Patch: "patch",
		},
		Independent: PromotionsConfig{
			MajorIfBreaking: true,
			MinorIfFeature:  true,
			PatchOtherwise:  true,
		},
		ChangesetDir:      ".changesets",
		ChangesetFormat:   "json",
		ReleaseBranches:   []string{"main", "master"},
		ChangelogTemplate: "## [{version}] - {date}",
		Changelog: ChangelogConfig{
			File: "CHANGELOG.md",
		},
		Registry: RegistryConfig{
			URL:           "https://registry.npmjs.org",
			Timeout:       10 * time.Second,
			CacheSize:     512,
			RetryAttempts: 3,
		},
		Output: OutputConfig{
			Format:   "text",
			Color:    "auto",
			LogLevel: "info",
		},
	}
}

// ConfigFileNames to search for, in order.
var ConfigFileNames = []string{
	"monorel.config",
	".monorel",
}

// ConfigFileExtensions supported by Viper.
var ConfigFileExtensions = []string{
	"yaml",
	"yml",
	"json",
	"toml",
}
