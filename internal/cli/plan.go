package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/monorel/internal/application/release"
	"github.com/relicta-tech/monorel/internal/domain/plan"
	"github.com/relicta-tech/monorel/internal/domain/version"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

var (
	planStrategy string
	planFromRef  string
	planToRef    string
	planSnapshot bool
	planVersion  string
	planTargets  []string
	planWatch    bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute the next version of every affected package",
	Long: `Attribute commits to workspace packages and plan their version bumps.

Bumps propagate from each package to its dependents; packages in a
dependency cycle are released together. The plan is printed and nothing
is written.`,
	RunE: runPlan,
}

func init() {
	addStrategyFlags(planCmd)
	planCmd.Flags().BoolVarP(&planWatch, "watch", "w", false, "re-plan whenever a manifest or changeset changes")
}

// addStrategyFlags registers the flags shared by every command that plans.
func addStrategyFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&planStrategy, "strategy", "s", "", "planning strategy: independent, conventional, unified, manual (default from config)")
	cmd.Flags().StringVar(&planFromRef, "from", "", "starting reference (default: last tag matching tag_pattern)")
	cmd.Flags().StringVar(&planToRef, "to", "", "ending reference (default: HEAD)")
	cmd.Flags().BoolVar(&planSnapshot, "snapshot", false, "plan snapshot versions tagged with the current commit")
	cmd.Flags().StringVar(&planVersion, "version", "", "target version for the unified strategy")
	cmd.Flags().StringSliceVar(&planTargets, "set", nil, "manual target as name=version (repeatable)")
}

// buildStrategy turns the strategy flags and configuration into a strategy.
func buildStrategy(app cliApp) (plan.Strategy, error) {
	const op = "cli.buildStrategy"

	name := planStrategy
	if name == "" {
		name = cfg.Strategy
	}
	kind, err := plan.ParseStrategyKind(name)
	if err != nil {
		return nil, err
	}

	switch kind {
	case plan.StrategyConventional:
		return plan.ConventionalCommits{
			Promotions: cfg.Promotions(),
			FromRef:    planFromRef,
			Types:      app.Types(),
		}, nil
	case plan.StrategyUnified:
		if planVersion == "" {
			return nil, rperrors.Coded(rperrors.CodeInvalidStrategy, op, "the unified strategy needs --version")
		}
		v, err := version.Parse(planVersion)
		if err != nil {
			return nil, err
		}
		return plan.Unified{Version: v}, nil
	case plan.StrategyManual:
		targets, err := plan.ParseManualTargets(planTargets)
		if err != nil {
			return nil, err
		}
		return plan.Manual{Targets: targets}, nil
	default:
		return plan.Independent{Promotions: cfg.Promotions()}, nil
	}
}

// buildPlanInput combines the configured defaults with the plan flags.
func buildPlanInput(app cliApp) (release.PlanReleaseInput, error) {
	strategy, err := buildStrategy(app)
	if err != nil {
		return release.PlanReleaseInput{}, err
	}
	input := app.PlanInput(strategy)
	input.FromRef = planFromRef
	input.ToRef = planToRef
	input.Snapshot = planSnapshot
	return input, nil
}

// runPlan implements the plan command.
func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newContainerApp(ctx, cfg, workDir)
	if err != nil {
		return err
	}
	defer closeApp(app)

	input, err := buildPlanInput(app)
	if err != nil {
		return err
	}

	if !planWatch {
		return planOnce(ctx, app, input)
	}
	return watchPlan(ctx, app, func() error {
		err := planOnce(ctx, app, input)
		if err != nil && ctx.Err() == nil {
			// A bad edit should not end the session.
			logger.Error("planning failed", "error", rperrors.RedactError(err))
		}
		return nil
	})
}

// planOnce runs the planner and prints the result.
func planOnce(ctx context.Context, app cliApp, input release.PlanReleaseInput) error {
	output, err := app.PlanRelease().Execute(ctx, input)
	if err != nil {
		return err
	}
	if outputJSON {
		return writeJSON(out, output.Plan)
	}
	outputPlanText(output)
	return nil
}

// outputPlanText prints a plan as a table followed by its warnings.
func outputPlanText(output *release.PlanReleaseOutput) {
	printTitle("Release Plan")
	if output.Branch != "" {
		printSubtle(fmt.Sprintf("branch %s, commits since %s", output.Branch, displayRef(output.FromRef)))
	}
	fmt.Fprintln(out)

	p := output.Plan
	if p.IsEmpty() {
		printInfo("No packages need a release")
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  PACKAGE\tFROM\tTO\tBUMP\tREASONS")
		for _, s := range p.Suggestions {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
				s.Package, s.From, s.Resolved(), s.Bump, formatReasons(s.Reasons))
		}
		_ = w.Flush()

		for _, s := range p.Suggestions {
			if len(s.CycleGroup) > 0 && s.CycleGroup[0] == s.Package {
				printSubtle(fmt.Sprintf("  released together: %s", strings.Join(s.CycleGroup, ", ")))
			}
		}
	}

	if len(p.Warnings) > 0 {
		fmt.Fprintln(out)
		for _, w := range p.Warnings {
			printWarning(fmt.Sprintf("%s: %s", w.Code, w.Detail))
		}
	}
}

func formatReasons(reasons []plan.BumpReason) string {
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

func displayRef(ref string) string {
	if ref == "" {
		return "the first commit"
	}
	return ref
}
