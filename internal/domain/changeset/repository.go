package changeset

import "context"

// Filter selects changesets in List. Zero fields match everything; an empty
// Status matches the active (draft and ready) records.
type Filter struct {
	Package     string
	Status      Status
	Environment string
}

// Matches reports whether c passes the filter.
func (f Filter) Matches(c *Changeset) bool {
	if f.Status != "" && c.Status() != f.Status {
		return false
	}
	if f.Status == "" && c.IsArchived() {
		return false
	}
	if f.Package != "" {
		if _, ok := c.Package(f.Package); !ok {
			return false
		}
	}
	if f.Environment != "" && !c.HasEnvironment(f.Environment) {
		return false
	}
	return true
}

// Repository stores at most one active changeset per branch plus the
// archived history.
type Repository interface {
	Create(ctx context.Context, branch, author string, envs []string) (*Changeset, error)
	Load(ctx context.Context, branch string) (*Changeset, error)
	Update(ctx context.Context, c *Changeset) error
	Delete(ctx context.Context, branch string) error
	Archive(ctx context.Context, branch string) (string, error)
	List(ctx context.Context, f Filter) ([]*Changeset, error)
	Exists(ctx context.Context, branch string) (bool, error)
}
