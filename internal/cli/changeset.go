package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/monorel/internal/application/release"
	"github.com/relicta-tech/monorel/internal/domain/changeset"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

var (
	changesetAuthor  string
	changesetEnvs    []string
	changesetPackage string
	changesetStatus  string
	changesetEnv     string
)

var changesetCmd = &cobra.Command{
	Use:     "changeset",
	Aliases: []string{"cs"},
	Short:   "Manage branch changesets",
	Long: `A changeset records the release intent of one branch: the packages it
bumps, why, and the commits behind it. Each branch has at most one active
changeset; archived ones are kept in the history directory.

Commands taking a [branch] default to the current git branch.`,
}

var changesetCreateCmd = &cobra.Command{
	Use:   "create [branch]",
	Short: "Create an empty changeset",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChangesetCreate,
}

var changesetShowCmd = &cobra.Command{
	Use:   "show [branch]",
	Short: "Show a changeset",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChangesetShow,
}

var changesetUpdateCmd = &cobra.Command{
	Use:   "update [branch]",
	Short: "Record the current plan in an existing changeset",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChangesetUpdate,
}

var changesetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List changesets",
	Long: `List changesets. Without --status only active (draft and ready)
changesets are listed.`,
	Args: cobra.NoArgs,
	RunE: runChangesetList,
}

var changesetArchiveCmd = &cobra.Command{
	Use:   "archive [branch]",
	Short: "Move a changeset to the history directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChangesetArchive,
}

var changesetDeleteCmd = &cobra.Command{
	Use:   "delete [branch]",
	Short: "Delete the active changeset of a branch",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChangesetDelete,
}

func init() {
	changesetCreateCmd.Flags().StringVar(&changesetAuthor, "author", "", "changeset author")
	changesetCreateCmd.Flags().StringSliceVar(&changesetEnvs, "env", nil, "target environment (repeatable)")

	addStrategyFlags(changesetUpdateCmd)
	changesetUpdateCmd.Flags().StringSliceVar(&changesetEnvs, "env", nil, "replace the target environments")

	changesetListCmd.Flags().StringVar(&changesetPackage, "package", "", "only changesets bumping this package")
	changesetListCmd.Flags().StringVar(&changesetStatus, "status", "", "draft, ready or archived")
	changesetListCmd.Flags().StringVar(&changesetEnv, "env", "", "only changesets targeting this environment")

	changesetCmd.AddCommand(changesetCreateCmd)
	changesetCmd.AddCommand(changesetShowCmd)
	changesetCmd.AddCommand(changesetUpdateCmd)
	changesetCmd.AddCommand(changesetListCmd)
	changesetCmd.AddCommand(changesetArchiveCmd)
	changesetCmd.AddCommand(changesetDeleteCmd)
}

// resolveBranch returns the branch argument or the current git branch.
func resolveBranch(ctx context.Context, app cliApp, args []string) (string, error) {
	const op = "cli.resolveBranch"

	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	if app.Git() == nil {
		return "", rperrors.Coded(rperrors.CodeInvalidBranch, op, "no branch given and no git repository to read it from")
	}
	branch, err := app.Git().CurrentBranch(ctx)
	if err != nil {
		return "", rperrors.CodedWrap(err, rperrors.CodeInvalidBranch, op, "no branch given and the current branch is unknown")
	}
	return branch, nil
}

// runChangesetCreate implements the changeset create command.
func runChangesetCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newContainerApp(ctx, cfg, workDir)
	if err != nil {
		return err
	}
	defer closeApp(app)

	branch, err := resolveBranch(ctx, app, args)
	if err != nil {
		return err
	}
	cs, err := app.Changesets().Create(ctx, branch, changesetAuthor, changesetEnvs)
	if err != nil {
		return err
	}

	if outputJSON {
		return writeJSON(out, cs)
	}
	printSuccess(fmt.Sprintf("Created changeset for %s", branch))
	printSubtle(app.Changesets().Path(branch))
	return nil
}

// runChangesetShow implements the changeset show command.
func runChangesetShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newContainerApp(ctx, cfg, workDir)
	if err != nil {
		return err
	}
	defer closeApp(app)

	branch, err := resolveBranch(ctx, app, args)
	if err != nil {
		return err
	}
	cs, err := app.Changesets().Load(ctx, branch)
	if err != nil {
		return err
	}

	if outputJSON {
		return writeJSON(out, cs)
	}
	outputChangesetText(cs)
	return nil
}

// runChangesetUpdate implements the changeset update command.
func runChangesetUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newContainerApp(ctx, cfg, workDir)
	if err != nil {
		return err
	}
	defer closeApp(app)

	branch, err := resolveBranch(ctx, app, args)
	if err != nil {
		return err
	}
	input, err := buildPlanInput(app)
	if err != nil {
		return err
	}
	planned, err := app.PlanRelease().Execute(ctx, input)
	if err != nil {
		return err
	}

	if dryRun {
		if outputJSON {
			return writeJSON(out, planned.Plan)
		}
		printDryRunBanner()
		outputPlanText(planned)
		return nil
	}

	cs, err := app.RecordChangeset().Execute(ctx, release.RecordChangesetInput{
		Branch:       branch,
		Environments: changesetEnvs,
		Planned:      planned,
		MustExist:    true,
	})
	if err != nil {
		return err
	}

	if outputJSON {
		return writeJSON(out, cs)
	}
	printSuccess(fmt.Sprintf("Updated changeset for %s", branch))
	fmt.Fprintln(out)
	outputChangesetText(cs)
	return nil
}

// runChangesetList implements the changeset list command.
func runChangesetList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	filter := changeset.Filter{Package: changesetPackage, Environment: changesetEnv}
	if changesetStatus != "" {
		status, err := changeset.ParseStatus(changesetStatus)
		if err != nil {
			return err
		}
		filter.Status = status
	}

	app, err := newContainerApp(ctx, cfg, workDir)
	if err != nil {
		return err
	}
	defer closeApp(app)

	list, err := app.Changesets().List(ctx, filter)
	if err != nil {
		return err
	}

	if outputJSON {
		if list == nil {
			list = []*changeset.Changeset{}
		}
		return writeJSON(out, list)
	}
	if len(list) == 0 {
		printInfo("No changesets")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BRANCH\tSTATUS\tPACKAGES\tENVIRONMENTS\tUPDATED")
	for _, cs := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			cs.Branch, cs.Status(), len(cs.Packages),
			strings.Join(cs.TargetEnvironments, ","), cs.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

// runChangesetArchive implements the changeset archive command.
func runChangesetArchive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newContainerApp(ctx, cfg, workDir)
	if err != nil {
		return err
	}
	defer closeApp(app)

	branch, err := resolveBranch(ctx, app, args)
	if err != nil {
		return err
	}
	if dryRun {
		printDryRunBanner()
		printInfo(fmt.Sprintf("Would archive %s", app.Changesets().Path(branch)))
		return nil
	}
	path, err := app.Changesets().Archive(ctx, branch)
	if err != nil {
		return err
	}

	if outputJSON {
		return writeJSON(out, map[string]string{"branch": branch, "path": relPath(app.Root(), path)})
	}
	printSuccess(fmt.Sprintf("Archived changeset for %s", branch))
	printSubtle(path)
	return nil
}

// runChangesetDelete implements the changeset delete command.
func runChangesetDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newContainerApp(ctx, cfg, workDir)
	if err != nil {
		return err
	}
	defer closeApp(app)

	branch, err := resolveBranch(ctx, app, args)
	if err != nil {
		return err
	}
	if dryRun {
		printDryRunBanner()
		printInfo(fmt.Sprintf("Would delete %s", app.Changesets().Path(branch)))
		return nil
	}
	if err := app.Changesets().Delete(ctx, branch); err != nil {
		return err
	}

	if outputJSON {
		return writeJSON(out, map[string]string{"branch": branch, "deleted": "true"})
	}
	printSuccess(fmt.Sprintf("Deleted changeset for %s", branch))
	return nil
}

func outputChangesetText(cs *changeset.Changeset) {
	printTitle("Changeset " + cs.Branch)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  Status:\t%s\n", cs.Status())
	if cs.Author != "" {
		fmt.Fprintf(w, "  Author:\t%s\n", cs.Author)
	}
	if len(cs.TargetEnvironments) > 0 {
		fmt.Fprintf(w, "  Environments:\t%s\n", strings.Join(cs.TargetEnvironments, ", "))
	}
	fmt.Fprintf(w, "  Created:\t%s\n", cs.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Updated:\t%s\n", cs.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Commits:\t%d\n", len(cs.Commits))
	_ = w.Flush()

	if len(cs.Packages) == 0 {
		return
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  PACKAGE\tFROM\tTO\tBUMP\tREASON")
	for _, p := range cs.Packages {
		reason := string(p.Reason.Kind)
		if p.Reason.Detail != "" {
			reason += " (" + p.Reason.Detail + ")"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", p.Name, p.From, p.To, p.Bump, reason)
	}
	_ = w.Flush()
}
