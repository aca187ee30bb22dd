package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/relicta-tech/monorel/internal/domain/changelog"
	"github.com/relicta-tech/monorel/internal/domain/plan"
	"github.com/relicta-tech/monorel/internal/domain/version"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// maxSnapshotHashLength is a full SHA-1 hex digest.
const maxSnapshotHashLength = 40

// ValidationError contains all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string

	if len(e.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Errors:\n  - %s", strings.Join(e.Errors, "\n  - ")))
	}

	if len(e.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("Warnings:\n  - %s", strings.Join(e.Warnings, "\n  - ")))
	}

	return fmt.Sprintf("configuration validation failed:\n%s", strings.Join(parts, "\n"))
}

// HasErrors returns true if there are validation errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// HasWarnings returns true if there are validation warnings.
func (e *ValidationError) HasWarnings() bool {
	return len(e.Warnings) > 0
}

// Addf adds a formatted error to the validation error.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// Warnf adds a formatted warning to the validation error.
func (e *ValidationError) Warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// Validator validates configuration.
type Validator struct {
	errors *ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: &ValidationError{},
	}
}

// Warnings returns the warnings collected by the last Validate call.
func (v *Validator) Warnings() []string {
	return v.errors.Warnings
}

// Validate validates the configuration. Warnings never fail validation;
// callers read them from Warnings.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = &ValidationError{}

	v.validatePlanning(cfg)
	v.validateTypes(cfg)
	v.validateChangesets(cfg)
	v.validateChangelog(cfg)
	v.validateRegistry(cfg.Registry)
	v.validateOutput(cfg.Output)

	if v.errors.HasErrors() {
		return rperrors.Coded(rperrors.CodeInvalidConfig, "config.Validate", "%s", v.errors.Error())
	}
	return nil
}

// validatePlanning validates strategy, snapshot and propagation settings.
func (v *Validator) validatePlanning(cfg *Config) {
	if _, err := plan.ParseStrategyKind(cfg.Strategy); err != nil {
		v.errors.Addf("strategy: must be one of independent, conventional, unified, manual, got %q", cfg.Strategy)
	}

	if cfg.SnapshotHashLength < version.MinSnapshotHashLength {
		v.errors.Addf("snapshot_hash_length: must be at least %d, got %d", version.MinSnapshotHashLength, cfg.SnapshotHashLength)
	} else if cfg.SnapshotHashLength > maxSnapshotHashLength {
		v.errors.Warnf("snapshot_hash_length: %d is longer than a commit hash and will be truncated to %d",
			cfg.SnapshotHashLength, maxSnapshotHashLength)
	}

	validStyles := []string{string(version.SnapshotLegacy), string(version.SnapshotSimple)}
	if !slices.Contains(validStyles, cfg.SnapshotStyle) {
		v.errors.Addf("snapshot_style: must be one of %v, got %q", validStyles, cfg.SnapshotStyle)
	}

	if cfg.AllowSnapshotOnMain {
		v.errors.Warnf("allow_snapshot_on_main: snapshot versions may be written on release branches")
	}

	if _, err := cfg.DependencyBumps(); err != nil {
		v.errors.Addf("dependency_bump: each of major, minor and patch must be patch, minor or major")
	}

	p := cfg.Promotions()
	if !p.MajorIfBreaking && !p.MinorIfFeature && !p.PatchOtherwise {
		v.errors.Warnf("independent: every promotion is disabled, only features will be bumped (as patch)")
	}

	if cfg.TagPattern != "" && !doublestar.ValidatePattern(cfg.TagPattern) {
		v.errors.Addf("tag_pattern: invalid glob %q", cfg.TagPattern)
	}

	for i, b := range cfg.ReleaseBranches {
		if strings.TrimSpace(b) == "" {
			v.errors.Addf("release_branches[%d]: cannot be empty", i)
		}
	}
}

// validateTypes validates the commit type table.
func (v *Validator) validateTypes(cfg *Config) {
	if _, err := version.ParseBumpKind(cfg.DefaultBump); err != nil {
		v.errors.Addf("default_bump: must be one of none, patch, minor, major, got %q", cfg.DefaultBump)
	}

	names := make([]string, 0, len(cfg.Types))
	for name := range cfg.Types {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if strings.ContainsAny(name, " ():!") {
			v.errors.Addf("types.%s: not a valid commit type", name)
		}
		if _, err := version.ParseBumpKind(cfg.Types[name].Bump); err != nil {
			v.errors.Addf("types.%s.bump: must be one of none, patch, minor, major, got %q", name, cfg.Types[name].Bump)
		}
	}
}

// validateChangesets validates changeset storage settings.
func (v *Validator) validateChangesets(cfg *Config) {
	if strings.TrimSpace(cfg.ChangesetDir) == "" {
		v.errors.Addf("changeset_dir: required")
	} else if filepath.IsAbs(cfg.ChangesetDir) {
		v.errors.Warnf("changeset_dir: %s is absolute, changesets will not travel with the repository", cfg.ChangesetDir)
	}

	validFormats := []string{"json", "yaml", "yml", "toml"}
	if !slices.Contains(validFormats, strings.ToLower(cfg.ChangesetFormat)) {
		v.errors.Addf("changeset_format: must be one of %v, got %q", validFormats, cfg.ChangesetFormat)
	}

	seen := make(map[string]bool, len(cfg.AvailableEnvironments))
	for i, env := range cfg.AvailableEnvironments {
		switch {
		case strings.TrimSpace(env) == "":
			v.errors.Addf("available_environments[%d]: cannot be empty", i)
		case seen[env]:
			v.errors.Warnf("available_environments: %q is listed twice", env)
		}
		seen[env] = true
	}
}

// validateChangelog validates changelog configuration.
func (v *Validator) validateChangelog(cfg *Config) {
	provider, err := changelog.ParseProvider(cfg.RepoProvider)
	if err != nil {
		v.errors.Addf("repo_provider: must be one of github, gitlab, bitbucket, custom, got %q", cfg.RepoProvider)
	}

	if _, err := changelog.ParseTemplate(cfg.ChangelogTemplate); err != nil {
		v.errors.Addf("changelog_template: %s", err.Error())
	}

	file := cfg.Changelog.File
	switch {
	case strings.TrimSpace(file) == "":
		v.errors.Addf("changelog.file: required")
	case filepath.IsAbs(file) || strings.Contains(filepath.ToSlash(file), ".."):
		v.errors.Addf("changelog.file: must be relative to the package directory, got %q", file)
	}

	if cfg.Changelog.RepositoryURL != "" {
		if u, err := url.Parse(cfg.Changelog.RepositoryURL); err != nil || u.Host == "" {
			v.errors.Addf("changelog.repository_url: invalid URL: %s", rperrors.RedactSensitive(cfg.Changelog.RepositoryURL))
		}
	}

	if provider == changelog.ProviderCustom && cfg.Changelog.CommitURLTemplate == "" {
		v.errors.Warnf("changelog.commit_url_template: not set for the custom provider, commits will not be linked")
	}
	if cfg.Changelog.CommitURLTemplate != "" && !strings.Contains(cfg.Changelog.CommitURLTemplate, "{sha}") {
		v.errors.Warnf("changelog.commit_url_template: does not contain {sha}")
	}
}

// validateRegistry validates registry configuration.
func (v *Validator) validateRegistry(cfg RegistryConfig) {
	if !cfg.Enabled {
		return
	}

	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.errors.Addf("registry.url: invalid URL: %s", rperrors.RedactSensitive(cfg.URL))
	} else if u.Scheme == "http" {
		v.errors.Warnf("registry.url: %s is not using https", u.Host)
	}

	if cfg.Timeout <= 0 {
		v.errors.Addf("registry.timeout: must be positive")
	}
	if cfg.CacheSize < 1 {
		v.errors.Addf("registry.cache_size: must be at least 1, got %d", cfg.CacheSize)
	}
	if cfg.RetryAttempts < 0 {
		v.errors.Addf("registry.retry_attempts: must be non-negative, got %d", cfg.RetryAttempts)
	}
}

// validateOutput validates output configuration.
func (v *Validator) validateOutput(cfg OutputConfig) {
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, cfg.Format) {
		v.errors.Addf("output.format: must be one of %v, got %q", validFormats, cfg.Format)
	}

	validColors := []string{"auto", "always", "never"}
	if !slices.Contains(validColors, cfg.Color) {
		v.errors.Addf("output.color: must be one of %v, got %q", validColors, cfg.Color)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, cfg.LogLevel) {
		v.errors.Addf("output.log_level: must be one of %v, got %q", validLogLevels, cfg.LogLevel)
	}

	if cfg.LogFile != "" {
		dir := filepath.Dir(cfg.LogFile)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				v.errors.Addf("output.log_file: directory does not exist: %s", dir)
			}
		}
	}
}

// Validate is a convenience function to validate configuration.
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
