package changeset

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/relicta-tech/monorel/internal/domain/version"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// recordValidate is the validator instance for changeset records.
var recordValidate *validator.Validate

func init() {
	recordValidate = validator.New(validator.WithRequiredStructEnabled())
	if err := recordValidate.RegisterValidation("bumpkind", validateBumpKind); err != nil {
		panic(fmt.Sprintf("failed to register bumpkind validator: %v", err))
	}
}

func validateBumpKind(fl validator.FieldLevel) bool {
	k, ok := fl.Field().Interface().(version.BumpKind)
	return ok && k.IsValid()
}

// PackageSet answers workspace membership.
type PackageSet interface {
	Has(name string) bool
}

// Rules are the write-time checks beyond the record's own shape.
type Rules struct {
	// Packages is the workspace; nil skips the membership check.
	Packages PackageSet
	// Environments is the allow-list; empty permits any environment.
	Environments []string
	// ReleaseBranches default to DefaultReleaseBranches when nil.
	ReleaseBranches []string
}

// Validate checks c before it is written.
func (r Rules) Validate(c *Changeset) error {
	const op = "changeset.Validate"

	if err := ValidateBranch(c.Branch, r.ReleaseBranches); err != nil {
		return err
	}
	if err := r.validateEnvironments(c.TargetEnvironments); err != nil {
		return err
	}

	if err := recordValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return rperrors.Wrap(err, rperrors.KindInput, op, strings.Join(msgs, "; "))
		}
		return rperrors.Wrap(err, rperrors.KindInput, op, "invalid changeset")
	}

	seen := make(map[string]bool, len(c.Packages))
	for _, p := range c.Packages {
		if seen[p.Name] {
			return rperrors.Coded(rperrors.CodeWorkspaceInconsistent, op,
				"package %q listed twice", p.Name)
		}
		seen[p.Name] = true
		if r.Packages != nil && !r.Packages.Has(p.Name) {
			return rperrors.Coded(rperrors.CodeWorkspaceInconsistent, op,
				"changeset references unknown package %q", p.Name).WithDetail("package", p.Name)
		}
	}
	return nil
}

func (r Rules) validateEnvironments(envs []string) error {
	if len(r.Environments) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(r.Environments))
	for _, e := range r.Environments {
		allowed[e] = true
	}
	for _, e := range envs {
		if !allowed[e] {
			return rperrors.Coded(rperrors.CodeInvalidEnvironment, "changeset.Validate",
				"environment %q is not one of %s", e, strings.Join(r.Environments, ", ")).
				WithDetail("environment", e)
		}
	}
	return nil
}
