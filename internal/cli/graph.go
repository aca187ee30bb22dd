package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/monorel/internal/domain/graph"
	"github.com/relicta-tech/monorel/internal/domain/version"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the internal dependency graph",
	Long: `Show the release order of the workspace packages, dependency cycles,
self-dependencies, external dependencies and requirements no known version
satisfies. With registry.enabled, external versions come from the registry.`,
	Args: cobra.NoArgs,
	RunE: runGraph,
}

// graphEdge is the JSON form of an internal dependency.
type graphEdge struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Kind        string `json:"kind"`
	Requirement string `json:"requirement"`
}

// graphReport is the JSON form of the graph command.
type graphReport struct {
	Packages  []string    `json:"packages"`
	Edges     []graphEdge `json:"edges"`
	Order     [][]string  `json:"order"`
	Cycles    [][]string  `json:"cycles"`
	SelfLoops []string    `json:"self_loops"`
	External  []string    `json:"external"`
	Conflicts []string    `json:"conflicts"`
}

// runGraph implements the graph command.
func runGraph(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := newContainerApp(ctx, cfg, workDir)
	if err != nil {
		return err
	}
	defer closeApp(app)

	ws, err := app.Workspace(ctx)
	if err != nil {
		return err
	}
	g := graph.Build(ws)

	var known map[string][]version.SemanticVersion
	if app.HasRegistry() {
		known, err = app.Registry().KnownVersions(ctx, g.External())
		if err != nil {
			if !rperrors.IsRecoverable(err) {
				return err
			}
			logger.Warn("registry unavailable, checking workspace versions only", "error", rperrors.RedactError(err))
		}
	}

	report := buildGraphReport(g, known)
	if outputJSON {
		return writeJSON(out, report)
	}
	outputGraphText(report)
	return nil
}

func buildGraphReport(g *graph.Graph, known map[string][]version.SemanticVersion) graphReport {
	r := graphReport{
		Packages:  nonNil(g.Nodes()),
		Edges:     []graphEdge{},
		Order:     g.TopologicalGroups(),
		Cycles:    g.Cycles(),
		SelfLoops: nonNil(g.SelfLoops()),
		External:  nonNil(g.External()),
		Conflicts: []string{},
	}
	if r.Order == nil {
		r.Order = [][]string{}
	}
	if r.Cycles == nil {
		r.Cycles = [][]string{}
	}
	for _, e := range g.Edges() {
		r.Edges = append(r.Edges, graphEdge{
			From:        e.From,
			To:          e.To,
			Kind:        string(e.Kind),
			Requirement: e.Requirement.String(),
		})
	}
	for _, c := range g.Conflicts(known) {
		r.Conflicts = append(r.Conflicts, c.String())
	}
	return r
}

func outputGraphText(r graphReport) {
	printTitle("Release Order")
	for i, group := range r.Order {
		fmt.Fprintf(out, "  %d. %s\n", i+1, strings.Join(group, ", "))
	}

	if len(r.Cycles) > 0 {
		fmt.Fprintln(out)
		printTitle("Cycles")
		for _, c := range r.Cycles {
			fmt.Fprintf(out, "  %s\n", strings.Join(c, " ↔ "))
		}
	}
	if len(r.SelfLoops) > 0 {
		fmt.Fprintln(out)
		printWarning("Packages depending on themselves: " + strings.Join(r.SelfLoops, ", "))
	}
	if len(r.External) > 0 {
		fmt.Fprintln(out)
		printTitle("External Dependencies")
		printSubtle("  " + strings.Join(r.External, ", "))
	}
	if len(r.Conflicts) > 0 {
		fmt.Fprintln(out)
		printTitle("Conflicts")
		for _, c := range r.Conflicts {
			printWarning(c)
		}
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
