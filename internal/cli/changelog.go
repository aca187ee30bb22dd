package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/monorel/internal/application/release"
)

var changelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Write the planned release into each package changelog",
	Long: `Plan a release and prepend a block for each planned package to its
changelog. Manifests and changesets are left alone. A release that is
already in the changelog is not added twice.

With --dry-run the blocks are printed instead of written.`,
	RunE: runChangelog,
}

func init() {
	addStrategyFlags(changelogCmd)
}

// runChangelog implements the changelog command.
func runChangelog(cmd *cobra.Command, args []string) error {
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
		Plan:          planInput,
		DryRun:        dryRun,
		SkipChangeset: true,
		SkipManifests: true,
	})
	if err != nil {
		return err
	}

	if outputJSON {
		type entry struct {
			Package string `json:"package"`
			Path    string `json:"path"`
			Block   string `json:"block"`
		}
		entries := make([]entry, 0, len(output.Changelogs))
		for _, c := range output.Changelogs {
			entries = append(entries, entry{Package: c.Package, Path: relPath(app.Root(), c.Path), Block: c.Block})
		}
		return writeJSON(out, map[string]any{"changelogs": entries, "dry_run": dryRun})
	}

	if len(output.Changelogs) == 0 {
		printInfo("No changelog needs an update")
		return nil
	}
	if dryRun {
		printDryRunBanner()
	}
	for _, c := range output.Changelogs {
		if dryRun {
			printTitle(relPath(app.Root(), c.Path))
			fmt.Fprintln(out, strings.TrimRight(c.Block, "\n"))
			fmt.Fprintln(out)
			continue
		}
		printSuccess(fmt.Sprintf("Updated %s", relPath(app.Root(), c.Path)))
	}
	return nil
}
