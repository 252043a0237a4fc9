package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/rduplain/reqd/internal/config"
	"github.com/rduplain/reqd/internal/domain/recipe"
	"github.com/rduplain/reqd/internal/logger"
	"github.com/rduplain/reqd/internal/repository/events"
	"github.com/rduplain/reqd/internal/service/fetch"
)

// Runner drives one recipe through check, resources, pretest, and install.
type Runner struct {
	// cfg supplies the directory layout and the recipe environment.
	cfg *config.Config
	// fetcher materializes declared resources.
	fetcher *fetch.Fetcher
	// events records install events on full success.
	events events.Repository
}

// StepError reports a recipe step that failed, carrying the subprocess
// exit status that becomes the overall exit status.
type StepError struct {
	// Recipe is the name of the failing recipe.
	Recipe string
	// Step is the lifecycle step that failed.
	Step recipe.Step
	// Status is the subprocess exit status.
	Status int
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("recipe %s: %s exited with status %d", e.Recipe, e.Step, e.Status)
}

// ErrInvalidRecipe marks a recipe that answered "not implemented" for a
// mandatory step. check and install must exist.
var ErrInvalidRecipe = errors.New("recipe does not implement a mandatory step")

// New wires a Runner from its collaborators.
func New(cfg *config.Config, fetcher *fetch.Fetcher, store events.Repository) *Runner {
	return &Runner{
		cfg:     cfg,
		fetcher: fetcher,
		events:  store,
	}
}

// Run executes the recipe lifecycle. A recipe whose check already passes
// is a no-op that leaves existing install events untouched; otherwise the
// remaining steps run in order and full success records exactly one event.
func (r *Runner) Run(ctx context.Context, rec recipe.Recipe) error {
	ctx = logger.WithKV(ctx, "recipe", rec.Name)

	satisfied, err := r.Check(ctx, rec)
	if err != nil {
		return err
	}

	if satisfied {
		logger.DebugKV(ctx, "Recipe already satisfied")

		return nil
	}

	// The resource directory doubles as scratch space for pretest and
	// install, needed even when nothing is declared.
	resourceDir := r.cfg.ResourceDir(rec.Name)
	if err := os.MkdirAll(resourceDir, config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create resource directory: %w", err)
	}

	if err := r.resources(ctx, rec, resourceDir); err != nil {
		return err
	}

	if err := r.pretest(ctx, rec, resourceDir); err != nil {
		return err
	}

	if err := r.install(ctx, rec, resourceDir); err != nil {
		return err
	}

	if err := r.events.Record(ctx, rec.Name); err != nil {
		return fmt.Errorf("recipe %s: record install event: %w", rec.Name, err)
	}

	logger.InfoKV(ctx, "Recipe installed")

	return nil
}

// Check invokes the recipe's check step. True means the dependency is
// already installed.
func (r *Runner) Check(ctx context.Context, rec recipe.Recipe) (bool, error) {
	return r.check(ctx, rec, os.Stdout, os.Stderr)
}

// CheckQuiet invokes check with all subprocess output discarded, for
// satisfaction sweeps that must stay silent.
func (r *Runner) CheckQuiet(ctx context.Context, rec recipe.Recipe) (bool, error) {
	return r.check(ctx, rec, io.Discard, io.Discard)
}

func (r *Runner) check(ctx context.Context, rec recipe.Recipe, stdout, stderr io.Writer) (bool, error) {
	status, err := r.invoke(ctx, rec, recipe.StepCheck, "", stdout, stderr)
	if err != nil {
		return false, err
	}

	switch status {
	case 0:
		return true, nil
	case recipe.StatusNotImplemented:
		return false, invalidRecipe(rec, recipe.StepCheck)
	default:
		logger.DebugKV(ctx, "Check reports install needed", "status", status)

		return false, nil
	}
}

// resources collects the recipe's declarations and fetches them. Status
// 127 means the recipe declares nothing.
func (r *Runner) resources(ctx context.Context, rec recipe.Recipe, resourceDir string) error {
	var declarations bytes.Buffer

	status, err := r.invoke(ctx, rec, recipe.StepResources, "", &declarations, os.Stderr)
	if err != nil {
		return err
	}

	switch {
	case status == recipe.StatusNotImplemented:
		logger.DebugKV(ctx, "No resources declared")

		return nil
	case status != 0:
		return &StepError{Recipe: rec.Name, Step: recipe.StepResources, Status: status}
	}

	result, err := r.fetcher.Fetch(ctx, rec.Name, declarations.String(), resourceDir)
	if err != nil {
		return fmt.Errorf("recipe %s: %w", rec.Name, err)
	}

	if result.Count > 0 {
		logger.InfoKV(ctx, "Resources ready", "count", result.Count)
	}

	return nil
}

// pretest runs the recipe's validation step from the resource directory.
// Status 127 means the recipe skips pretesting, treated as pass.
func (r *Runner) pretest(ctx context.Context, rec recipe.Recipe, resourceDir string) error {
	status, err := r.invoke(ctx, rec, recipe.StepPretest, resourceDir, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}

	switch {
	case status == 0:
		return nil
	case status == recipe.StatusNotImplemented:
		logger.DebugKV(ctx, "Pretest not implemented, treated as pass")

		return nil
	default:
		return &StepError{Recipe: rec.Name, Step: recipe.StepPretest, Status: status}
	}
}

// install runs the recipe's install step from the resource directory.
func (r *Runner) install(ctx context.Context, rec recipe.Recipe, resourceDir string) error {
	status, err := r.invoke(ctx, rec, recipe.StepInstall, resourceDir, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}

	switch {
	case status == 0:
		return nil
	case status == recipe.StatusNotImplemented:
		return invalidRecipe(rec, recipe.StepInstall)
	default:
		return &StepError{Recipe: rec.Name, Step: recipe.StepInstall, Status: status}
	}
}

// invoke runs one recipe subcommand under the reqd environment contract
// and returns its exit status. dir sets the working directory when
// non-empty.
func (r *Runner) invoke(ctx context.Context, rec recipe.Recipe, step recipe.Step, dir string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, rec.Path, step.String())
	cmd.Env = r.cfg.Environ(rec.Name)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}

	return 0, fmt.Errorf("invoke %s %s: %w", rec.Name, step, err)
}

// invalidRecipe marks a mandatory step the recipe failed to provide.
func invalidRecipe(rec recipe.Recipe, step recipe.Step) error {
	return fmt.Errorf("recipe %s: %s: %w", rec.Name, step, ErrInvalidRecipe)
}
