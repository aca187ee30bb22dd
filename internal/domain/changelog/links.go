package changelog

import (
	"net/url"
	"strings"

	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// Provider is a repository hosting service.
type Provider string

const (
	ProviderGitHub    Provider = "github"
	ProviderGitLab    Provider = "gitlab"
	ProviderBitbucket Provider = "bitbucket"
	ProviderCustom    Provider = "custom"
)

// ParseProvider parses a configured provider. Empty means auto-detect.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case "", ProviderGitHub, ProviderGitLab, ProviderBitbucket, ProviderCustom:
		return p, nil
	}
	return "", rperrors.Coded(rperrors.CodeInvalidConfig, "changelog.ParseProvider",
		"unknown repo_provider %q (want github, gitlab, bitbucket or custom)", s)
}

// DetectProvider guesses the provider from a repository URL host.
func DetectProvider(repoURL string) Provider {
	u, err := url.Parse(repoURL)
	if err != nil {
		return ProviderCustom
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "github"):
		return ProviderGitHub
	case strings.Contains(host, "gitlab"):
		return ProviderGitLab
	case strings.Contains(host, "bitbucket"):
		return ProviderBitbucket
	}
	return ProviderCustom
}

// NormalizeRemoteURL turns a git remote (ssh, scp-like or https) into the
// browsable https URL of the repository. It returns "" for anything that does
// not look like a hosted remote, such as local paths.
func NormalizeRemoteURL(remote string) string {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return ""
	}

	// scp-like: git@host:owner/repo.git
	if !strings.Contains(remote, "://") {
		at := strings.Index(remote, "@")
		colon := strings.Index(remote, ":")
		if at < 0 || colon < at {
			return ""
		}
		remote = "ssh://" + remote[:colon] + "/" + remote[colon+1:]
	}

	u, err := url.Parse(remote)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "http", "https", "ssh", "git", "git+ssh", "git+https":
	default:
		return ""
	}
	p := strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git")
	if p == "" {
		return ""
	}
	return "https://" + u.Hostname() + "/" + p
}

// Links resolves commit links for a repository. The zero value produces no
// links.
type Links struct {
	RepoURL  string
	Provider Provider
	// CommitTemplate is used by the custom provider, with {repo_url} and {sha}.
	CommitTemplate string
}

// NewLinks builds links for repoURL, detecting the provider when p is empty.
func NewLinks(repoURL string, p Provider, commitTemplate string) Links {
	repoURL = strings.TrimSuffix(repoURL, "/")
	if p == "" && repoURL != "" {
		p = DetectProvider(repoURL)
	}
	return Links{RepoURL: repoURL, Provider: p, CommitTemplate: commitTemplate}
}

// CommitURL returns the link for sha, or "" when no link can be formed.
func (l Links) CommitURL(sha string) string {
	if l.RepoURL == "" || sha == "" {
		return ""
	}
	switch l.Provider {
	case ProviderGitHub:
		return l.RepoURL + "/commit/" + sha
	case ProviderGitLab:
		return l.RepoURL + "/-/commit/" + sha
	case ProviderBitbucket:
		return l.RepoURL + "/commits/" + sha
	case ProviderCustom:
		if l.CommitTemplate == "" {
			return ""
		}
		r := strings.NewReplacer("{repo_url}", l.RepoURL, "{sha}", sha)
		return r.Replace(l.CommitTemplate)
	}
	return ""
}
