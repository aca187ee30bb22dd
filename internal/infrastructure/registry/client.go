// Package registry reads published package versions from an npm compatible
// registry.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/relicta-tech/monorel/internal/domain/version"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

const (
	// DefaultURL is the public npm registry.
	DefaultURL = "https://registry.npmjs.org"
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second
	// DefaultCacheSize is the number of cached lookups.
	DefaultCacheSize = 512
	// DefaultConcurrency bounds parallel lookups.
	DefaultConcurrency = 8

	// maxDocumentSize caps the package document read from the registry.
	maxDocumentSize = 32 << 20
	// abbreviatedMetadata is the compact package document media type.
	abbreviatedMetadata = "application/vnd.npm.install-v1+json"
)

// Config configures a Client.
type Config struct {
	URL         string
	Token       string
	Timeout     time.Duration
	CacheSize   int
	Concurrency int
	Resilience  ResilienceConfig
}

// DefaultConfig returns the configuration for the public registry.
func DefaultConfig() Config {
	return Config{
		URL:         DefaultURL,
		Timeout:     DefaultTimeout,
		CacheSize:   DefaultCacheSize,
		Concurrency: DefaultConcurrency,
		Resilience:  DefaultResilienceConfig(),
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// document is the part of a package document the client reads.
type document struct {
	DistTags map[string]string          `json:"dist-tags"`
	Versions map[string]json.RawMessage `json:"versions"`
}

// lookup is a cached registry answer.
type lookup struct {
	versions []version.SemanticVersion
	latest   string
	missing  bool
}

// Client looks up published versions. Answers are cached for the lifetime
// of the client, keyed by package name and normalized requirement.
type Client struct {
	cfg        Config
	base       *url.URL
	http       *http.Client
	resilience *Resilience
	cache      *lru.Cache[string, lookup]
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// New creates a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	const op = "registry.New"

	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	base, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, rperrors.Coded(rperrors.CodeInvalidConfig, op, "invalid registry url %q", rperrors.RedactSensitive(cfg.URL))
	}

	cache, err := lru.New[string, lookup](cfg.CacheSize)
	if err != nil {
		return nil, rperrors.Wrap(err, rperrors.KindInternal, op, "create cache")
	}

	c := &Client{
		cfg:        cfg,
		base:       base,
		http:       &http.Client{Timeout: cfg.Timeout},
		resilience: NewResilience(cfg.Resilience),
		cache:      cache,
		logger:     slog.Default().With("service", "registry"),
		inflight:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases the rate limiter.
func (c *Client) Close() error {
	return c.resilience.Close()
}

// Versions returns every published version of name, ascending. Unparseable
// versions are skipped. A package the registry does not know has no
// versions.
func (c *Client) Versions(ctx context.Context, name string) ([]version.SemanticVersion, error) {
	l, err := c.document(ctx, name)
	if err != nil {
		return nil, err
	}
	return append([]version.SemanticVersion(nil), l.versions...), nil
}

// Latest returns the version tagged latest.
func (c *Client) Latest(ctx context.Context, name string) (version.SemanticVersion, error) {
	const op = "registry.Latest"

	l, err := c.document(ctx, name)
	if err != nil {
		return version.SemanticVersion{}, err
	}
	if l.missing || l.latest == "" {
		return version.SemanticVersion{}, rperrors.NotFound(op, fmt.Sprintf("%s has no latest version", name))
	}
	v, err := version.Parse(l.latest)
	if err != nil {
		return version.SemanticVersion{}, rperrors.CodedWrap(err, rperrors.CodeRegistryUnavailable, op,
			"%s: latest tag %q is not a version", name, l.latest)
	}
	return v, nil
}

// Satisfying returns the published versions of name that req accepts,
// ascending.
func (c *Client) Satisfying(ctx context.Context, name string, req version.Requirement) ([]version.SemanticVersion, error) {
	key := cacheKey(name, req.String())
	if l, ok := c.cache.Get(key); ok {
		return append([]version.SemanticVersion(nil), l.versions...), nil
	}

	all, err := c.document(ctx, name)
	if err != nil {
		return nil, err
	}
	var out []version.SemanticVersion
	for _, v := range all.versions {
		if req.SatisfiedBy(v) {
			out = append(out, v)
		}
	}
	c.cache.Add(key, lookup{versions: out})
	return append([]version.SemanticVersion(nil), out...), nil
}

// KnownVersions looks names up in parallel. Names the registry does not
// know are left out. When some lookups fail the others are still returned
// together with a RegistryUnavailable error.
func (c *Client) KnownVersions(ctx context.Context, names []string) (map[string][]version.SemanticVersion, error) {
	const op = "registry.KnownVersions"

	results := make([][]version.SemanticVersion, len(names))
	errs := make([]error, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, name := range names {
		g.Go(func() error {
			vs, err := c.Versions(gctx, name)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				errs[i] = err
				return nil
			}
			results[i] = vs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, rperrors.Wrap(err, rperrors.KindCanceled, op, "registry lookups canceled")
	}

	out := make(map[string][]version.SemanticVersion, len(names))
	var failed []string
	for i, name := range names {
		if errs[i] != nil {
			failed = append(failed, name)
			continue
		}
		if len(results[i]) > 0 {
			out[name] = results[i]
		}
	}
	if len(failed) > 0 {
		return out, rperrors.CodedWrap(errors.Join(errs...), rperrors.CodeRegistryUnavailable, op,
			"could not look up %s", strings.Join(failed, ", "))
	}
	return out, nil
}

func cacheKey(name, requirement string) string {
	return name + "@" + strings.TrimSpace(requirement)
}

// document returns the cached lookup of name, fetching it once. Documents
// are cached under the bare name, requirement answers under name@requirement.
func (c *Client) document(ctx context.Context, name string) (lookup, error) {
	key := name
	if l, ok := c.cache.Get(key); ok {
		return l, nil
	}

	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	if l, ok := c.cache.Get(key); ok {
		return l, nil
	}

	l, err := c.fetch(ctx, name)
	if err != nil {
		return lookup{}, err
	}
	c.cache.Add(key, l)
	return l, nil
}

func (c *Client) lockFor(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.inflight[key]
	if !ok {
		m = &sync.Mutex{}
		c.inflight[key] = m
	}
	return m
}

func (c *Client) fetch(ctx context.Context, name string) (lookup, error) {
	const op = "registry.fetch"

	endpoint := c.base.String() + "/" + url.PathEscape(name)
	missing := false
	body, err := c.resilience.Execute(ctx, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", abbreviatedMetadata+", application/json")
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			missing = true
			return nil, nil
		case resp.StatusCode != http.StatusOK:
			return nil, &statusError{status: resp.StatusCode, name: name}
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	})
	if err != nil {
		if ctx.Err() != nil {
			return lookup{}, rperrors.Wrap(ctx.Err(), rperrors.KindCanceled, op, "registry lookup canceled")
		}
		c.logger.Warn("registry lookup failed", "package", name, "error", rperrors.RedactSensitive(err.Error()))
		return lookup{}, rperrors.CodedWrap(rperrors.RedactError(err), rperrors.CodeRegistryUnavailable, op,
			"look up %s", name).WithDetail("package", name)
	}
	if missing {
		c.logger.Debug("package not published", "package", name)
		return lookup{missing: true}, nil
	}

	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return lookup{}, rperrors.CodedWrap(err, rperrors.CodeRegistryUnavailable, op,
			"%s: malformed registry document", name)
	}

	l := lookup{latest: doc.DistTags["latest"]}
	for raw := range doc.Versions {
		v, err := version.Parse(raw)
		if err != nil {
			continue
		}
		l.versions = append(l.versions, v)
	}
	sort.Slice(l.versions, func(i, j int) bool { return l.versions[i].LessThan(l.versions[j]) })
	c.logger.Debug("registry lookup", "package", name, "versions", len(l.versions))
	return l, nil
}
