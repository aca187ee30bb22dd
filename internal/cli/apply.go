package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/monorel/internal/application/release"
)

var (
	applyAuthor         string
	applyEnvs           []string
	applySkipChangeset  bool
	applySkipManifests  bool
	applySkipChangelogs bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Plan a release and write it",
	Long: `Plan a release, then record it in the branch changeset, rewrite the
package manifests and prepend the release to each package changelog.

Changesets are only written on feature branches. Use --dry-run to see the
files that would change.`,
	RunE: runApply,
}

func init() {
	addStrategyFlags(applyCmd)
	applyCmd.Flags().StringVar(&applyAuthor, "author", "", "changeset author")
	applyCmd.Flags().StringSliceVar(&applyEnvs, "env", nil, "target environment (repeatable)")
	applyCmd.Flags().BoolVar(&applySkipChangeset, "skip-changeset", false, "do not record a changeset")
	applyCmd.Flags().BoolVar(&applySkipManifests, "skip-manifests", false, "do not rewrite manifests")
	applyCmd.Flags().BoolVar(&applySkipChangelogs, "skip-changelogs", false, "do not write changelogs")
}

// runApply implements the apply command.
func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newContainerApp(ctx, cfg, workDir)
	if err != nil {
		return err
	}
	defer closeApp(app)

	planInput, err := buildPlanInput(app)
	if err != nil {
		return err
	}

	output, err := app.ApplyRelease().Execute(ctx, release.ApplyReleaseInput{
		Plan:           planInput,
		Author:         applyAuthor,
		Environments:   applyEnvs,
		DryRun:         dryRun,
		SkipChangeset:  applySkipChangeset,
		SkipManifests:  applySkipManifests,
		SkipChangelogs: applySkipChangelogs,
	})
	if err != nil {
		return err
	}

	if outputJSON {
		return writeJSON(out, applyReport(app.Root(), output))
	}
	outputApplyText(app.Root(), output)
	return nil
}

// applyResult is the JSON form of an apply run.
type applyResult struct {
	Plan             any      `json:"plan"`
	Changeset        string   `json:"changeset,omitempty"`
	ChangesetSkipped string   `json:"changeset_skipped,omitempty"`
	Manifests        []string `json:"manifests"`
	Changelogs       []string `json:"changelogs"`
	DryRun           bool     `json:"dry_run"`
}

func applyReport(root string, output *release.ApplyReleaseOutput) applyResult {
	r := applyResult{
		Plan:             output.Planned.Plan,
		ChangesetSkipped: output.ChangesetSkipped,
		Manifests:        relPaths(root, output.Manifests),
		Changelogs:       make([]string, 0, len(output.Changelogs)),
		DryRun:           output.DryRun,
	}
	if output.Changeset != nil {
		r.Changeset = output.Changeset.Branch
	}
	for _, c := range output.Changelogs {
		r.Changelogs = append(r.Changelogs, relPath(root, c.Path))
	}
	return r
}

func outputApplyText(root string, output *release.ApplyReleaseOutput) {
	if output.DryRun {
		printDryRunBanner()
	}
	outputPlanText(output.Planned)
	fmt.Fprintln(out)

	verb := "Updated"
	if output.DryRun {
		verb = "Would update"
	}
	if output.Changeset != nil {
		printSuccess(fmt.Sprintf("Recorded changeset for %s (%s)", output.Changeset.Branch, output.Changeset.Status()))
	} else {
		printSubtle("No changeset written: " + output.ChangesetSkipped)
	}
	for _, m := range output.Manifests {
		printSuccess(fmt.Sprintf("%s %s", verb, relPath(root, m)))
	}
	for _, c := range output.Changelogs {
		printSuccess(fmt.Sprintf("%s %s", verb, relPath(root, c.Path)))
	}
}

func relPaths(root string, paths []string) []string {
	rel := make([]string, len(paths))
	for i, p := range paths {
		rel[i] = relPath(root, p)
	}
	return rel
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}
