// Package cli provides the command-line interface for monorel.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/monorel/internal/config"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

var (
	// Version information set by main.
	versionInfo struct {
		Version string
		Commit  string
		Date    string
	}

	// Global flags
	cfgFile    string
	workDir    string
	verbose    bool
	dryRun     bool
	outputJSON bool
	noColor    bool
	logLevel   string

	// Global config
	cfg *config.Config

	// Logger
	logger *log.Logger

	// runID identifies this invocation in every log record.
	runID string

	// logFile holds the log file handle for cleanup
	logFile *os.File

	// out receives command output; commands point it at cmd.OutOrStdout().
	out io.Writer = os.Stdout

	// Styles
	styles = struct {
		Title   lipgloss.Style
		Success lipgloss.Style
		Error   lipgloss.Style
		Warning lipgloss.Style
		Info    lipgloss.Style
		Subtle  lipgloss.Style
		Bold    lipgloss.Style
	}{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Bold:    lipgloss.NewStyle().Bold(true),
	}
)

// SetVersionInfo sets the version information from main.
func SetVersionInfo(version, commit, date string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.Date = date
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "monorel",
	Short: "Release planning for JavaScript monorepos",
	Long: `monorel plans and applies coordinated version bumps across the packages
of an npm, yarn, pnpm or bun workspace.

It attributes commits to packages, propagates bumps along the internal
dependency graph, records the intent of each branch in a changeset and
writes manifests and changelogs.

Start with 'monorel plan' to see what the next release would be.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		out = cmd.OutOrStdout()
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		return initConfig(cmd)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with a context for graceful shutdown.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// JSON format and log level are configured in initConfig based on flags
	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: monorel.config.yaml in the workspace root)")
	rootCmd.PersistentFlags().StringVar(&workDir, "cwd", ".", "workspace root")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "show what would change without writing anything")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(changesetCmd)
	rootCmd.AddCommand(changelogCmd)
	rootCmd.AddCommand(graphCmd)
}

// loadAndValidateConfig loads the configuration, lets changed global flags
// override it and validates the result.
func loadAndValidateConfig(cmd *cobra.Command) error {
	loader := config.NewLoader().WithSearchPaths(workDir)
	if cfgFile != "" {
		loader.WithConfigPath(cfgFile)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		loader.Set("output.log_level", logLevel)
	}
	if flags.Changed("verbose") {
		loader.Set("output.verbose", verbose)
	}
	if noColor {
		loader.Set("output.color", "never")
	}
	if outputJSON {
		loader.Set("output.format", "json")
	}

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return err
	}

	validator := config.NewValidator()
	if err := validator.Validate(cfg); err != nil {
		return err
	}
	for _, w := range validator.Warnings() {
		logger.Warn(w, "config", loader.GetConfigPath())
	}
	return nil
}

// applyColorProfile disables styling when color is off.
func applyColorProfile() {
	if noColor || cfg.Output.Color == "never" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// configureLoggerFormat configures the logger format based on settings.
func configureLoggerFormat() {
	if outputJSON || cfg.Output.Format == "json" {
		logger.SetFormatter(log.JSONFormatter)
		logger.SetReportTimestamp(true)
	} else {
		logger.SetFormatter(log.TextFormatter)
	}
}

// configureLogLevel sets the logger level based on configuration.
func configureLogLevel() {
	switch cfg.Output.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	if cfg.Output.Verbose {
		logger.SetLevel(log.DebugLevel)
	}
}

// configureLogFile sets up log file output if specified.
func configureLogFile() error {
	if cfg.Output.LogFile == "" {
		return nil
	}

	var err error
	logFile, err = os.OpenFile(cfg.Output.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return rperrors.IOWrap(err, "cli.configureLogFile", "open log file")
	}
	logger.SetOutput(logFile)
	return nil
}

// installDefaultLogger routes log/slog through the charm logger so services
// logging via slog.Default share its level and format.
func installDefaultLogger() {
	runID = uuid.NewString()
	slog.SetDefault(slog.New(logger).With("run_id", runID))
}

// initConfig loads the configuration and sets up logging.
func initConfig(cmd *cobra.Command) error {
	if err := loadAndValidateConfig(cmd); err != nil {
		return err
	}

	applyColorProfile()
	configureLoggerFormat()
	configureLogLevel()
	if err := configureLogFile(); err != nil {
		return err
	}
	installDefaultLogger()
	return nil
}

// Cleanup closes any open resources. Should be called before program exit.
func Cleanup() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// HandleError reports err the way the output mode asks for and returns the
// process exit code.
func HandleError(w io.Writer, err error) int {
	code := rperrors.ExitCode(err)
	if err == nil {
		return code
	}

	msg := rperrors.RedactSensitive(err.Error())
	if outputJSON {
		errCode := string(rperrors.GetCode(err))
		if errCode == "" {
			errCode = rperrors.GetKind(err).String()
		}
		_ = writeJSON(out, map[string]any{
			"error": map[string]string{"code": errCode, "message": msg},
		})
		return code
	}
	fmt.Fprintln(w, styles.Error.Render("Error: "+msg))
	return code
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if outputJSON {
			_ = writeJSON(out, map[string]string{
				"version": versionInfo.Version,
				"commit":  versionInfo.Commit,
				"date":    versionInfo.Date,
			})
			return
		}
		fmt.Fprintf(out, "monorel %s\n", versionInfo.Version)
		if verbose {
			fmt.Fprintf(out, "  commit: %s\n", versionInfo.Commit)
			fmt.Fprintf(out, "  built:  %s\n", versionInfo.Date)
		}
	},
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// Helper functions for output

func printSuccess(msg string) {
	fmt.Fprintln(out, styles.Success.Render("✓ "+msg))
}

func printWarning(msg string) {
	fmt.Fprintln(out, styles.Warning.Render("⚠ "+msg))
}

func printInfo(msg string) {
	fmt.Fprintln(out, styles.Info.Render("ℹ "+msg))
}

func printTitle(msg string) {
	fmt.Fprintln(out, styles.Title.Render(msg))
}

func printSubtle(msg string) {
	fmt.Fprintln(out, styles.Subtle.Render(msg))
}

func printDryRunBanner() {
	printWarning("Dry run: nothing will be written")
	fmt.Fprintln(out)
}

// IsJSONOutput returns true if JSON output is enabled.
func IsJSONOutput() bool {
	return outputJSON
}
