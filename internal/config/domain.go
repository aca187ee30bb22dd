package config

import (
	"sort"
	"strings"

	"github.com/relicta-tech/monorel/internal/domain/changelog"
	"github.com/relicta-tech/monorel/internal/domain/changes"
	"github.com/relicta-tech/monorel/internal/domain/plan"
	"github.com/relicta-tech/monorel/internal/domain/version"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// TypeTable builds the commit type table: the standard types, overridden
// and extended by Types, with DefaultBump for anything unlisted.
func (c *Config) TypeTable() (*changes.TypeTable, error) {
	const op = "config.TypeTable"

	def, err := version.ParseBumpKind(c.DefaultBump)
	if err != nil {
		return nil, rperrors.CodedWrap(err, rperrors.CodeInvalidConfig, op, "default_bump")
	}
	t := changes.DefaultTypeTable()
	t.SetDefaultBump(def)

	names := make([]string, 0, len(c.Types))
	for name := range c.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tc := c.Types[name]
		b, err := version.ParseBumpKind(tc.Bump)
		if err != nil {
			return nil, rperrors.CodedWrap(err, rperrors.CodeInvalidConfig, op, "types.%s.bump", name)
		}
		t.Set(changes.ParseCommitType(name), changes.TypeConfig{
			Bump:            b,
			Section:         strings.TrimSpace(tc.Section),
			ShowInChangelog: tc.Show,
		})
	}
	return t, nil
}

// DependencyBumps returns the propagation table.
func (c *Config) DependencyBumps() (plan.DependencyBump, error) {
	const op = "config.DependencyBumps"

	var d plan.DependencyBump
	for _, f := range []struct {
		raw string
		dst *version.BumpKind
	}{
		{c.DependencyBump.Major, &d.Major},
		{c.DependencyBump.Minor, &d.Minor},
		{c.DependencyBump.Patch, &d.Patch},
	} {
		k, err := version.ParseBumpKind(f.raw)
		if err != nil {
			return plan.DependencyBump{}, rperrors.CodedWrap(err, rperrors.CodeInvalidConfig, op, "dependency_bump")
		}
		*f.dst = k
	}
	if err := d.Validate(); err != nil {
		return plan.DependencyBump{}, err
	}
	return d, nil
}

// Promotions returns the promotion switches.
func (c *Config) Promotions() plan.Promotions {
	return plan.Promotions{
		MajorIfBreaking: c.Independent.MajorIfBreaking,
		MinorIfFeature:  c.Independent.MinorIfFeature,
		PatchOtherwise:  c.Independent.PatchOtherwise,
	}
}

// Snapshot returns the snapshot style.
func (c *Config) Snapshot() version.SnapshotStyle {
	if c.SnapshotStyle == string(version.SnapshotSimple) {
		return version.SnapshotSimple
	}
	return version.SnapshotLegacy
}

// Heading parses the changelog heading template.
func (c *Config) Heading() (changelog.Template, error) {
	if strings.TrimSpace(c.ChangelogTemplate) == "" {
		return changelog.MustParseTemplate(changelog.DefaultHeading), nil
	}
	return changelog.ParseTemplate(c.ChangelogTemplate)
}

// Links resolves commit links against remoteURL unless a repository URL is
// configured.
func (c *Config) Links(remoteURL string) changelog.Links {
	repoURL := c.Changelog.RepositoryURL
	if repoURL == "" && remoteURL != "" {
		repoURL = changelog.NormalizeRemoteURL(remoteURL)
	}
	provider, err := changelog.ParseProvider(c.RepoProvider)
	if err != nil {
		provider = ""
	}
	return changelog.NewLinks(repoURL, provider, c.Changelog.CommitURLTemplate)
}
