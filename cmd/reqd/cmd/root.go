package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/rduplain/reqd/internal/checksum"
	"github.com/rduplain/reqd/internal/config"
	"github.com/rduplain/reqd/internal/domain/recipe"
	"github.com/rduplain/reqd/internal/logger"
	"github.com/rduplain/reqd/internal/repository/events"
	"github.com/rduplain/reqd/internal/service/fetch"
	"github.com/rduplain/reqd/internal/service/orchestrator"
	"github.com/rduplain/reqd/internal/service/runner"
	"github.com/rduplain/reqd/internal/version"
)

// Exit statuses reqd reports for its own outcomes. Recipe step failures
// propagate the recipe's own status instead.
const (
	statusGeneralError = 1
	statusUsageError   = 2
	statusConfigError  = 3
)

var (
	// flagPrefix overrides the root of the managed tree.
	flagPrefix string
	// flagRecipes overrides the recipe directory.
	flagRecipes string
	// flagSources overrides the resource download directory.
	flagSources string
	// flagVar overrides the runtime state directory.
	flagVar string
	// flagEvents overrides the install event directory.
	flagEvents string
	// flagMirror replaces every resource URL with a mirror location.
	flagMirror string
	// flagJobs overrides the worker-count hint exported to recipes.
	flagJobs int
	// flagVerbose enables debug logging.
	flagVerbose bool

	// rootCmd represents the base command that runs the requested recipes.
	rootCmd = &cobra.Command{
		Use:   "reqd [flags] all | RECIPE ...",
		Short: "Bootstrap a Unix environment from executable recipes.",
		Long: `reqd runs a set of recipe programs, each responsible for checking
whether a dependency is installed and, if not, fetching its resources and
installing it. Recipes implement the check/resources/pretest/install
subcommand protocol and live in the recipe directory (<prefix>/sbin).

Request recipes by name in dependency order, or "all" to run every recipe
found in the directory. A run where every recipe already reports satisfied
is a silent no-op.`,
		Args:          requireRecipeArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(_ *cobra.Command, args []string) error {
			// Interrupts cancel the context so in-flight transfers fail and
			// their rollbacks run before the process unwinds.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cfg, err := setup()
			if err != nil {
				return err
			}

			if err := cfg.EnsureLayout(); err != nil {
				return err
			}

			store := events.NewFileStore(cfg.EventDir)
			run := runner.New(cfg, fetch.New(cfg.Mirror, nil), store)

			result, err := orchestrator.New(cfg, run).Run(ctx, args)
			if err != nil {
				return err
			}

			logger.DebugKV(ctx, "Recipes completed", "count", result.Completed)

			return nil
		},
	}
)

// errQueryFalse carries a negative query answer to the exit status without
// producing any output.
var errQueryFalse = errors.New("query answered false")

// usageError marks an incorrect invocation, distinct from runtime failures.
type usageError struct {
	err error
}

func (e usageError) Error() string {
	return e.err.Error()
}

func (e usageError) Unwrap() error {
	return e.err
}

// Execute runs the reqd CLI and exits with the documented status for the
// outcome: recipe failures keep their own status, incorrect invocations
// exit 2, recipe-side configuration problems exit 3.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.Execute()
	if err == nil {
		return
	}

	if !errors.Is(err, errQueryFalse) {
		logger.Errorf(context.Background(), "%v", err)
	}

	os.Exit(exitStatus(err))
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVar(&flagPrefix, "prefix", "", "root of the managed tree (default: parent of the reqd executable)")
	rootCmd.PersistentFlags().StringVar(&flagRecipes, "sbin", "", "recipe directory (default: <prefix>/sbin)")
	rootCmd.PersistentFlags().StringVar(&flagSources, "src", "", "resource download directory (default: <prefix>/src)")
	rootCmd.PersistentFlags().StringVar(&flagVar, "var", "", "runtime state directory (default: <prefix>/var)")
	rootCmd.PersistentFlags().StringVar(&flagEvents, "events", "", "install event directory (default: <var>/events)")
	rootCmd.PersistentFlags().StringVar(&flagMirror, "mirror", "", "base URL replacing every resource URL")
	rootCmd.PersistentFlags().IntVarP(&flagJobs, "jobs", "j", 0, "worker-count hint exported to recipes (default: CPU count)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	rootCmd.AddCommand(newRanCommand(), newRanSinceModifiedCommand(), newNewerThanCommand())
}

// requireRecipeArgs demands at least one recipe identifier, reporting the
// shortfall as an invocation error.
func requireRecipeArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.MinimumNArgs(1)(cmd, args); err != nil {
		return usageError{err: err}
	}

	return nil
}

// setup assembles the configuration and logging for one invocation.
func setup() (*config.Config, error) {
	cfg, err := config.Load(executablePath(), config.Overrides{
		Prefix:    flagPrefix,
		RecipeDir: flagRecipes,
		SourceDir: flagSources,
		VarDir:    flagVar,
		EventDir:  flagEvents,
		Mirror:    flagMirror,
		Jobs:      flagJobs,
		Verbose:   flagVerbose,
	})
	if err != nil {
		return nil, usageError{err: err}
	}

	applyLogLevel(cfg.Verbose)

	return cfg, nil
}

// applyLogLevel resolves the level for this invocation: an explicit
// REQD_LOG_LEVEL wins, verbose raises to debug, and nested invocations
// default to errors only so the outer run owns the console.
func applyLogLevel(verbose bool) {
	if level, ok := logger.ParseLogLevel(os.Getenv(config.EnvLogLevel)); ok {
		logger.SetLevel(level)

		return
	}

	if verbose {
		logger.SetLevel(zapcore.DebugLevel)

		return
	}

	if os.Getenv(config.EnvRecipe) != "" {
		logger.SetLevel(zapcore.ErrorLevel)
	}
}

func executablePath() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}

	return exe
}

// exitStatus maps an error to the documented process exit status.
func exitStatus(err error) int {
	var stepErr *runner.StepError
	if errors.As(err, &stepErr) {
		return stepErr.Status
	}

	var usage usageError
	if errors.As(err, &usage) {
		return statusUsageError
	}

	switch {
	case errors.Is(err, orchestrator.ErrUnknownRecipe),
		errors.Is(err, orchestrator.ErrReservedName),
		errors.Is(err, orchestrator.ErrNoRecipes):
		return statusUsageError
	case errors.Is(err, runner.ErrInvalidRecipe),
		errors.Is(err, recipe.ErrMalformedResource),
		errors.Is(err, checksum.ErrUnknownAlgorithm),
		errors.Is(err, events.ErrUnresolvableReference):
		return statusConfigError
	default:
		return statusGeneralError
	}
}
