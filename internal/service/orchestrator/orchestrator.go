package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rduplain/reqd/internal/config"
	"github.com/rduplain/reqd/internal/domain/recipe"
	"github.com/rduplain/reqd/internal/logger"
	"github.com/rduplain/reqd/internal/service/runner"
)

// AllRecipes is the sentinel identifier selecting every recipe in the
// recipe directory. It must be the sole identifier when used.
const AllRecipes = "all"

var (
	// ErrUnknownRecipe is returned when an explicitly requested recipe is
	// not present in the recipe directory.
	ErrUnknownRecipe = errors.New("unknown recipe")
	// ErrReservedName is returned when a requested identifier can never
	// name a recipe.
	ErrReservedName = errors.New("reserved name")
	// ErrNoRecipes is returned when nothing was requested.
	ErrNoRecipes = errors.New("no recipes requested")
)

// Orchestrator expands recipe identifiers and applies the runner to each
// recipe in a fixed order, stopping at the first failure.
type Orchestrator struct {
	// cfg supplies the recipe directory and reserved program name.
	cfg *config.Config
	// runner executes individual recipes.
	runner *runner.Runner
}

// Result summarizes an orchestrated run.
type Result struct {
	// Completed counts recipes that finished, including satisfied no-ops.
	Completed int
	// Failed is the name of the first failing recipe, empty on success.
	Failed string
}

// New wires an Orchestrator.
func New(cfg *config.Config, r *runner.Runner) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		runner: r,
	}
}

// Run resolves the requested identifiers and runs each recipe in order.
// When every selected recipe already reports satisfied, the run is a
// silent no-op. Otherwise the first failure stops the run and its status
// becomes the overall result.
func (o *Orchestrator) Run(ctx context.Context, names []string) (*Result, error) {
	recipes, err := o.Select(ctx, names)
	if err != nil {
		return nil, err
	}

	satisfied, err := o.allSatisfied(ctx, recipes)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	if satisfied {
		result.Completed = len(recipes)
		logger.DebugKV(ctx, "All recipes already satisfied")

		return result, nil
	}

	for _, rec := range recipes {
		if err := o.runner.Run(ctx, rec); err != nil {
			result.Failed = rec.Name

			return result, err
		}

		result.Completed++
	}

	return result, nil
}

// Select expands the requested identifiers into an ordered recipe list:
// the caller-declared order for explicit names, directory name order for
// the all sentinel.
func (o *Orchestrator) Select(ctx context.Context, names []string) ([]recipe.Recipe, error) {
	if len(names) == 0 {
		return nil, ErrNoRecipes
	}

	for _, name := range names {
		if name == AllRecipes && len(names) > 1 {
			return nil, fmt.Errorf("%q must be requested alone: %w", AllRecipes, ErrReservedName)
		}
	}

	if names[0] == AllRecipes {
		return o.selectAll(ctx)
	}

	recipes := make([]recipe.Recipe, 0, len(names))

	for _, name := range names {
		rec, err := o.Resolve(name)
		if err != nil {
			return nil, err
		}

		executable, err := isExecutable(rec.Path)
		if err != nil {
			return nil, err
		}

		if !executable {
			logger.WarnKV(ctx, "Recipe is not executable, skipping", "recipe", rec.Name)

			continue
		}

		recipes = append(recipes, rec)
	}

	return recipes, nil
}

// Resolve maps a recipe name to its executable under the recipe directory.
func (o *Orchestrator) Resolve(name string) (recipe.Recipe, error) {
	return Resolve(o.cfg, name)
}

// Resolve maps a recipe name to its executable under cfg's recipe
// directory. Reserved identifiers and names that are not bare filenames
// never resolve.
func Resolve(cfg *config.Config, name string) (recipe.Recipe, error) {
	if reserved(cfg, name) {
		return recipe.Recipe{}, fmt.Errorf("%q: %w", name, ErrReservedName)
	}

	if name == "" || name != filepath.Base(name) {
		return recipe.Recipe{}, fmt.Errorf("%q: %w", name, ErrUnknownRecipe)
	}

	rec := recipe.New(filepath.Join(cfg.RecipeDir, name))

	_, err := os.Stat(rec.Path)
	if errors.Is(err, os.ErrNotExist) {
		return recipe.Recipe{}, fmt.Errorf("%q: %w", name, ErrUnknownRecipe)
	}

	if err != nil {
		return recipe.Recipe{}, fmt.Errorf("stat recipe: %w", err)
	}

	return rec, nil
}

// selectAll enumerates the recipe directory, excluding reserved names and
// non-executable entries. ReadDir returns entries in name order, which
// fixes the run order.
func (o *Orchestrator) selectAll(ctx context.Context) ([]recipe.Recipe, error) {
	entries, err := os.ReadDir(o.cfg.RecipeDir)
	if err != nil {
		return nil, fmt.Errorf("read recipe directory: %w", err)
	}

	recipes := make([]recipe.Recipe, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || o.reserved(entry.Name()) {
			continue
		}

		rec := recipe.New(filepath.Join(o.cfg.RecipeDir, entry.Name()))

		executable, err := isExecutable(rec.Path)
		if err != nil {
			return nil, err
		}

		if !executable {
			logger.WarnKV(ctx, "Recipe is not executable, skipping", "recipe", rec.Name)

			continue
		}

		recipes = append(recipes, rec)
	}

	return recipes, nil
}

// allSatisfied silently sweeps the check step across the selection.
func (o *Orchestrator) allSatisfied(ctx context.Context, recipes []recipe.Recipe) (bool, error) {
	for _, rec := range recipes {
		satisfied, err := o.runner.CheckQuiet(ctx, rec)
		if err != nil {
			return false, err
		}

		if !satisfied {
			return false, nil
		}
	}

	return len(recipes) > 0, nil
}

// reserved reports whether the name can never be a recipe: the sentinel
// and the tool's own name, so a reqd installed alongside recipes never
// runs itself.
func (o *Orchestrator) reserved(name string) bool {
	return reserved(o.cfg, name)
}

func reserved(cfg *config.Config, name string) bool {
	return name == AllRecipes || name == cfg.ProgramName()
}

// isExecutable reports whether the file mode carries any execute bit.
func isExecutable(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat recipe: %w", err)
	}

	return info.Mode().Perm()&0o111 != 0, nil
}
