package release

import (
	"context"
	"log/slog"

	"github.com/relicta-tech/monorel/internal/domain/changeset"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// RecordChangesetInput represents the input for the RecordChangeset use case.
type RecordChangesetInput struct {
	Branch       string
	Author       string
	Environments []string
	Planned      *PlanReleaseOutput
	// MustExist rejects branches with no changeset instead of creating one.
	MustExist bool
}

// Validate validates the RecordChangesetInput.
func (i *RecordChangesetInput) Validate() error {
	const op = "release.RecordInput"

	v := NewValidationError()
	v.Add(ValidateSafeString(i.Author, "author", MaxAuthorLength))
	for _, env := range i.Environments {
		v.Add(ValidateSafeString(env, "environment", MaxEnvironmentLength))
	}
	if err := v.ToError(op); err != nil {
		return err
	}
	if i.Planned == nil || i.Planned.Plan == nil {
		return rperrors.Internal(op, "no plan to record")
	}
	return nil
}

// RecordChangesetUseCase writes a plan into the changeset of a branch,
// creating the changeset when the branch has none.
type RecordChangesetUseCase struct {
	store  changeset.Repository
	logger *slog.Logger
}

// NewRecordChangesetUseCase creates a new RecordChangesetUseCase.
func NewRecordChangesetUseCase(store changeset.Repository) *RecordChangesetUseCase {
	return &RecordChangesetUseCase{
		store:  store,
		logger: slog.Default().With("usecase", "record_changeset"),
	}
}

// Execute records the plan and returns the stored changeset.
func (uc *RecordChangesetUseCase) Execute(ctx context.Context, input RecordChangesetInput) (*changeset.Changeset, error) {
	const op = "release.RecordChangeset"

	if err := input.Validate(); err != nil {
		return nil, err
	}
	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}

	exists, err := uc.store.Exists(ctx, input.Branch)
	if err != nil {
		return nil, err
	}

	var c *changeset.Changeset
	switch {
	case exists:
		c, err = uc.store.Load(ctx, input.Branch)
		if err == nil && len(input.Environments) > 0 {
			c.TargetEnvironments = append([]string{}, input.Environments...)
		}
	case input.MustExist:
		return nil, rperrors.Coded(rperrors.CodeChangesetNotFound, op, "no changeset for %q", input.Branch).
			WithDetail("branch", input.Branch)
	default:
		c, err = uc.store.Create(ctx, input.Branch, input.Author, input.Environments)
	}
	if err != nil {
		return nil, err
	}

	c.ApplyPlan(input.Planned.Plan, input.Planned.Changes)
	c.AddCommits(input.Planned.CommitHashes...)
	if err := uc.store.Update(ctx, c); err != nil {
		return nil, err
	}

	uc.logger.Info("changeset recorded",
		"branch", input.Branch,
		"status", c.Status(),
		"packages", len(c.Packages),
		"created", !exists)
	return c, nil
}
