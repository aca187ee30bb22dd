package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relicta-tech/monorel/internal/domain/changelog"
	"github.com/relicta-tech/monorel/internal/domain/changes"
	"github.com/relicta-tech/monorel/internal/domain/version"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Strategy != "independent" {
		t.Errorf("Strategy = %v, want independent", cfg.Strategy)
	}
	if !cfg.HarmonizeCycles {
		t.Error("HarmonizeCycles should be true by default")
	}
	if cfg.SnapshotHashLength != version.DefaultSnapshotHashLength {
		t.Errorf("SnapshotHashLength = %d, want %d", cfg.SnapshotHashLength, version.DefaultSnapshotHashLength)
	}
	if cfg.ChangesetDir != ".changesets" || cfg.ChangesetFormat != "json" {
		t.Errorf("changesets = %s/%s, want .changesets/json", cfg.ChangesetDir, cfg.ChangesetFormat)
	}
	if cfg.Registry.Enabled {
		t.Error("Registry should be disabled by default")
	}

	v := NewValidator()
	if err := v.Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(v.Warnings()) != 0 {
		t.Errorf("default config warnings: %v", v.Warnings())
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromDirectory(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Strategy != "independent" {
		t.Errorf("Strategy = %q, want independent", cfg.Strategy)
	}
	if cfg.Registry.Timeout != 10*time.Second {
		t.Errorf("Registry.Timeout = %v, want 10s", cfg.Registry.Timeout)
	}
	if got := cfg.ReleaseBranches; len(got) != 2 || got[0] != "main" {
		t.Errorf("ReleaseBranches = %v", got)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "monorel.config.yaml", `
strategy: conventional
harmonize_cycles: false
snapshot_hash_length: 10
changeset_format: yaml
available_environments: [dev, staging, prod]
types:
  deploy:
    bump: minor
    section: Deployments
    show: true
dependency_bump:
  major: minor
registry:
  enabled: true
  timeout: 3s
changelog:
  file: HISTORY.md
`)

	l := NewLoader().WithSearchPaths(dir)
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.HasSuffix(l.GetConfigPath(), "monorel.config.yaml") {
		t.Errorf("GetConfigPath = %q", l.GetConfigPath())
	}
	if cfg.Strategy != "conventional" || cfg.HarmonizeCycles {
		t.Errorf("planning = %s/%v", cfg.Strategy, cfg.HarmonizeCycles)
	}
	if cfg.SnapshotHashLength != 10 {
		t.Errorf("SnapshotHashLength = %d", cfg.SnapshotHashLength)
	}
	if len(cfg.AvailableEnvironments) != 3 {
		t.Errorf("AvailableEnvironments = %v", cfg.AvailableEnvironments)
	}
	if cfg.Types["deploy"].Section != "Deployments" || !cfg.Types["deploy"].Show {
		t.Errorf("Types[deploy] = %+v", cfg.Types["deploy"])
	}
	if cfg.DependencyBump.Major != "minor" || cfg.DependencyBump.Patch != "patch" {
		t.Errorf("DependencyBump = %+v, want defaults merged", cfg.DependencyBump)
	}
	if !cfg.Registry.Enabled || cfg.Registry.Timeout != 3*time.Second {
		t.Errorf("Registry = %+v", cfg.Registry)
	}
	if cfg.Registry.URL != "https://registry.npmjs.org" {
		t.Errorf("Registry.URL = %q, want default", cfg.Registry.URL)
	}
	if cfg.Changelog.File != "HISTORY.md" {
		t.Errorf("Changelog.File = %q", cfg.Changelog.File)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadDiscoveryOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".monorel.toml", "strategy = \"manual\"\n")
	writeFile(t, dir, "monorel.config.json", `{"strategy": "unified"}`)

	path, err := FindConfigFile(dir)
	if err != nil {
		t.Fatalf("FindConfigFile: %v", err)
	}
	if filepath.Base(path) != "monorel.config.json" {
		t.Errorf("found %s, want monorel.config.json first", path)
	}

	cfg, err := NewLoader().WithConfigPath(filepath.Join(dir, ".monorel.toml")).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Strategy != "manual" {
		t.Errorf("Strategy = %q, want manual from explicit path", cfg.Strategy)
	}

	if _, err := FindConfigFile(t.TempDir()); !rperrors.IsKind(err, rperrors.KindNotFound) {
		t.Errorf("FindConfigFile(empty) = %v, want not found", err)
	}
}

func TestLoadEnvironmentAndOverrides(t *testing.T) {
	t.Setenv("MONOREL_STRATEGY", "unified")
	t.Setenv("MONOREL_REGISTRY_ENABLED", "true")
	t.Setenv("NPM_TOKEN", "npm_secret")

	dir := t.TempDir()
	writeFile(t, dir, ".monorel.yaml", `
output:
  log_level: warn
registry:
  token: "${NPM_TOKEN}"
changelog:
  repository_url: "${REPO_URL:-https://github.com/acme/mono}"
`)

	cfg, err := NewLoader().WithSearchPaths(dir).Set("output.log_level", "debug").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Strategy != "unified" {
		t.Errorf("Strategy = %q, want env override", cfg.Strategy)
	}
	if !cfg.Registry.Enabled {
		t.Error("Registry.Enabled should come from the environment")
	}
	if cfg.Output.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want flag override", cfg.Output.LogLevel)
	}
	if cfg.Registry.Token != "npm_secret" {
		t.Errorf("Registry.Token = %q, want expanded", cfg.Registry.Token)
	}
	if cfg.Changelog.RepositoryURL != "https://github.com/acme/mono" {
		t.Errorf("RepositoryURL = %q, want default expansion", cfg.Changelog.RepositoryURL)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), ".monorel.yaml", "strategy: [unterminated\n")
	_, err := NewLoader().WithConfigPath(path).Load()
	if rperrors.GetCode(err) != rperrors.CodeInvalidConfig {
		t.Fatalf("Load = %v, want invalid_config", err)
	}
}

func TestExpandEnvVar(t *testing.T) {
	t.Setenv("TOKEN_VALUE", "abc123")

	got := expandEnvVar("prefix-${TOKEN_VALUE}-suffix:$MISSING_VAR:${MISSING_VAR:-default}:$TOKEN_VALUE")
	want := "prefix-abc123-suffix:$MISSING_VAR:default:abc123"
	if got != want {
		t.Errorf("expandEnvVar = %q, want %q", got, want)
	}
	if expandEnvVar("") != "" {
		t.Error("empty input should stay empty")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
		warn    string
	}{
		{name: "bad strategy", mutate: func(c *Config) { c.Strategy = "yolo" }, wantErr: "strategy:"},
		{name: "short hash", mutate: func(c *Config) { c.SnapshotHashLength = 3 }, wantErr: "snapshot_hash_length:"},
		{name: "long hash", mutate: func(c *Config) { c.SnapshotHashLength = 64 }, warn: "snapshot_hash_length"},
		{name: "bad style", mutate: func(c *Config) { c.SnapshotStyle = "nightly" }, wantErr: "snapshot_style:"},
		{name: "snapshot on main", mutate: func(c *Config) { c.AllowSnapshotOnMain = true }, warn: "allow_snapshot_on_main"},
		{name: "bad default bump", mutate: func(c *Config) { c.DefaultBump = "huge" }, wantErr: "default_bump:"},
		{name: "bad type bump", mutate: func(c *Config) {
			c.Types = map[string]TypeConfig{"deploy": {Bump: "giant"}}
		}, wantErr: "types.deploy.bump"},
		{name: "bad type name", mutate: func(c *Config) {
			c.Types = map[string]TypeConfig{"feat!": {Bump: "major"}}
		}, wantErr: "types.feat!"},
		{name: "dependency bump none", mutate: func(c *Config) { c.DependencyBump.Minor = "none" }, wantErr: "dependency_bump"},
		{name: "no promotions", mutate: func(c *Config) { c.Independent = PromotionsConfig{} }, warn: "independent"},
		{name: "bad tag pattern", mutate: func(c *Config) { c.TagPattern = "v[" }, wantErr: "tag_pattern"},
		{name: "empty release branch", mutate: func(c *Config) { c.ReleaseBranches = []string{"main", " "} }, wantErr: "release_branches[1]"},
		{name: "no changeset dir", mutate: func(c *Config) { c.ChangesetDir = "" }, wantErr: "changeset_dir"},
		{name: "absolute changeset dir", mutate: func(c *Config) { c.ChangesetDir = "/var/changesets" }, warn: "changeset_dir"},
		{name: "bad changeset format", mutate: func(c *Config) { c.ChangesetFormat = "xml" }, wantErr: "changeset_format"},
		{name: "duplicate environment", mutate: func(c *Config) { c.AvailableEnvironments = []string{"dev", "dev"} }, warn: "available_environments"},
		{name: "blank environment", mutate: func(c *Config) { c.AvailableEnvironments = []string{""} }, wantErr: "available_environments[0]"},
		{name: "bad provider", mutate: func(c *Config) { c.RepoProvider = "sourcehut" }, wantErr: "repo_provider"},
		{name: "custom provider without template", mutate: func(c *Config) { c.RepoProvider = "custom" }, warn: "commit_url_template"},
		{name: "template without sha", mutate: func(c *Config) { c.Changelog.CommitURLTemplate = "{repo_url}/c" }, warn: "{sha}"},
		{name: "bad heading", mutate: func(c *Config) { c.ChangelogTemplate = "## {nope}" }, wantErr: "changelog_template"},
		{name: "escaping changelog file", mutate: func(c *Config) { c.Changelog.File = "../CHANGELOG.md" }, wantErr: "changelog.file"},
		{name: "bad repository url", mutate: func(c *Config) { c.Changelog.RepositoryURL = "not a url" }, wantErr: "changelog.repository_url"},
		{name: "disabled registry unchecked", mutate: func(c *Config) { c.Registry.URL = "::" }},
		{name: "bad registry url", mutate: func(c *Config) {
			c.Registry.Enabled = true
			c.Registry.URL = "ftp://registry"
		}, wantErr: "registry.url"},
		{name: "plain http registry", mutate: func(c *Config) {
			c.Registry.Enabled = true
			c.Registry.URL = "http://verdaccio.local:4873"
		}, warn: "registry.url"},
		{name: "registry timeout", mutate: func(c *Config) {
			c.Registry.Enabled = true
			c.Registry.Timeout = 0
		}, wantErr: "registry.timeout"},
		{name: "bad output format", mutate: func(c *Config) { c.Output.Format = "yaml" }, wantErr: "output.format"},
		{name: "bad color", mutate: func(c *Config) { c.Output.Color = "rainbow" }, wantErr: "output.color"},
		{name: "bad log level", mutate: func(c *Config) { c.Output.LogLevel = "trace" }, wantErr: "output.log_level"},
		{name: "missing log dir", mutate: func(c *Config) {
			c.Output.LogFile = filepath.Join(t.TempDir(), "nope", "monorel.log")
		}, wantErr: "output.log_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			v := NewValidator()
			err := v.Validate(cfg)
			switch {
			case tt.wantErr == "" && err != nil:
				t.Fatalf("Validate() = %v, want nil", err)
			case tt.wantErr != "" && err == nil:
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			case tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr):
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
			if err != nil && rperrors.GetCode(err) != rperrors.CodeInvalidConfig {
				t.Errorf("code = %s, want invalid_config", rperrors.GetCode(err))
			}
			if tt.warn != "" && !strings.Contains(strings.Join(v.Warnings(), "\n"), tt.warn) {
				t.Errorf("warnings = %v, want one containing %q", v.Warnings(), tt.warn)
			}
		})
	}
}

func TestValidationErrorAccumulates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = "nope"
	cfg.ChangesetFormat = "xml"
	cfg.Output.Color = "rainbow"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"strategy:", "changeset_format:", "output.color:"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestTypeTable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultBump = "none"
	cfg.Types = map[string]TypeConfig{
		"deploy": {Bump: "minor", Show: true},
		"docs":   {Bump: "patch", Section: "Docs", Show: true},
	}

	table, err := cfg.TypeTable()
	if err != nil {
		t.Fatalf("TypeTable: %v", err)
	}

	tests := []struct {
		typ     changes.CommitType
		bump    version.BumpKind
		section string
		show    bool
	}{
		{"feat", version.BumpMinor, "Features", true},
		{"deploy", version.BumpMinor, "Deploy", true},
		{"docs", version.BumpPatch, "Docs", true},
		{"wip", version.BumpNone, changes.OtherSection, true},
	}
	for _, tt := range tests {
		got, _ := table.Lookup(tt.typ)
		if got.Bump != tt.bump || got.Section != tt.section || got.ShowInChangelog != tt.show {
			t.Errorf("Lookup(%s) = %+v", tt.typ, got)
		}
	}

	cfg.Types["broken"] = TypeConfig{Bump: "enormous"}
	if _, err := cfg.TypeTable(); rperrors.GetCode(err) != rperrors.CodeInvalidConfig {
		t.Errorf("TypeTable with bad bump = %v", err)
	}
}

func TestDependencyBumps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DependencyBump.Major = "minor"

	d, err := cfg.DependencyBumps()
	if err != nil {
		t.Fatalf("DependencyBumps: %v", err)
	}
	if d.For(version.BumpMajor) != version.BumpMinor || d.For(version.BumpPatch) != version.BumpPatch {
		t.Errorf("DependencyBumps = %+v", d)
	}

	cfg.DependencyBump.Patch = "none"
	if _, err := cfg.DependencyBumps(); err == nil {
		t.Error("none should be rejected")
	}
}

func TestPromotionsSnapshotAndHeading(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Independent.MinorIfFeature = false
	cfg.SnapshotStyle = "simple"

	p := cfg.Promotions()
	if !p.MajorIfBreaking || p.MinorIfFeature || !p.PatchOtherwise {
		t.Errorf("Promotions = %+v", p)
	}
	if cfg.Snapshot() != version.SnapshotSimple {
		t.Errorf("Snapshot = %s", cfg.Snapshot())
	}

	cfg.ChangelogTemplate = ""
	h, err := cfg.Heading()
	if err != nil || h.String() != changelog.DefaultHeading {
		t.Errorf("Heading = %q, %v", h.String(), err)
	}
	cfg.ChangelogTemplate = "## {package}@{version}"
	if h, err = cfg.Heading(); err != nil || h.String() != "## {package}@{version}" {
		t.Errorf("Heading = %q, %v", h.String(), err)
	}
}

func TestLinks(t *testing.T) {
	cfg := DefaultConfig()

	l := cfg.Links("git@github.com:acme/mono.git")
	if l.RepoURL != "https://github.com/acme/mono" || l.Provider != changelog.ProviderGitHub {
		t.Errorf("Links = %+v", l)
	}

	cfg.Changelog.RepositoryURL = "https://git.acme.dev/mono"
	cfg.RepoProvider = "custom"
	cfg.Changelog.CommitURLTemplate = "{repo_url}/commits/{sha}"
	l = cfg.Links("git@github.com:acme/mono.git")
	if got := l.CommitURL("abc1234"); got != "https://git.acme.dev/mono/commits/abc1234" {
		t.Errorf("CommitURL = %q", got)
	}

	if l := DefaultConfig().Links(""); l.CommitURL("abc") != "" {
		t.Error("no remote should produce no links")
	}
}
