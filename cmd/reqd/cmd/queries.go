package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rduplain/reqd/internal/logger"
	"github.com/rduplain/reqd/internal/repository/events"
	"github.com/rduplain/reqd/internal/service/orchestrator"
)

// The staleness queries answer through the exit status alone: 0 for yes,
// 1 for no, with no output either way. Recipes call them re-entrantly
// from their check step to decide their own exit status.

// newRanCommand answers whether a recipe ever installed successfully.
func newRanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ran RECIPE",
		Short: "Exit 0 if the recipe has ever installed successfully.",
		Args:  exactRecipeArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := setup()
			if err != nil {
				return err
			}

			ran, err := events.NewFileStore(cfg.EventDir).RanAtLeastOnce(ctx, args[0])
			if err != nil {
				return err
			}

			return queryVerdict(ctx, "ran", args[0], ran)
		},
	}
}

// newRanSinceModifiedCommand answers whether the last install is at least
// as new as the recipe executable.
func newRanSinceModifiedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ran-since-modified RECIPE",
		Short: "Exit 0 if the recipe installed since it was last modified.",
		Args:  exactRecipeArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := setup()
			if err != nil {
				return err
			}

			rec, err := orchestrator.Resolve(cfg, args[0])
			if err != nil {
				return err
			}

			state, err := events.NewFileStore(cfg.EventDir).RanSinceModified(ctx, rec)
			if err != nil {
				return err
			}

			logger.DebugKV(ctx, "Recipe state", "recipe", rec.Name, "state", state.String())

			return queryVerdict(ctx, "ran-since-modified", rec.Name, state == events.Fresh)
		},
	}
}

// newNewerThanCommand answers whether the recipe's install event is
// strictly newer than every reference. References are filesystem paths
// first, then other recipes' names.
func newNewerThanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "newer-than RECIPE [REFERENCE ...]",
		Short: "Exit 0 if the recipe installed more recently than every reference.",
		Args:  minimumRecipeArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := setup()
			if err != nil {
				return err
			}

			rec, err := orchestrator.Resolve(cfg, args[0])
			if err != nil {
				return err
			}

			newer, err := events.NewFileStore(cfg.EventDir).NewerThan(ctx, rec, args[1:])
			if err != nil {
				return err
			}

			return queryVerdict(ctx, "newer-than", rec.Name, newer)
		},
	}
}

// queryVerdict turns a boolean answer into the silent exit protocol.
func queryVerdict(ctx context.Context, query, recipeName string, answer bool) error {
	logger.DebugKV(ctx, "Query answered", "query", query, "recipe", recipeName, "answer", answer)

	if !answer {
		return errQueryFalse
	}

	return nil
}

// exactRecipeArgs demands an exact argument count, reporting shortfalls as
// invocation errors.
func exactRecipeArgs(count int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(count)(cmd, args); err != nil {
			return usageError{err: err}
		}

		return nil
	}
}

// minimumRecipeArgs demands at least count arguments, reporting shortfalls
// as invocation errors.
func minimumRecipeArgs(count int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(count)(cmd, args); err != nil {
			return usageError{err: err}
		}

		return nil
	}
}
