package events

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rduplain/reqd/internal/config"
	"github.com/rduplain/reqd/internal/domain/recipe"
)

// Repository defines persistence and staleness queries for install events.
type Repository interface {
	Record(ctx context.Context, recipeName string) error
	RanAtLeastOnce(ctx context.Context, recipeName string) (bool, error)
	RanSinceModified(ctx context.Context, rec recipe.Recipe) (RanState, error)
	NewerThan(ctx context.Context, rec recipe.Recipe, references []string) (bool, error)
}

// RanState describes how a recipe's install event relates to the recipe
// executable itself.
type RanState int

const (
	// NeverRan means no install event has been recorded.
	NeverRan RanState = iota
	// Stale means the recipe changed after its last successful install.
	Stale
	// Fresh means the last successful install is at least as new as the recipe.
	Fresh
)

// String returns the human-readable state name.
func (s RanState) String() string {
	switch s {
	case Stale:
		return "stale"
	case Fresh:
		return "fresh"
	default:
		return "never ran"
	}
}

// ErrUnresolvableReference is returned when a staleness reference matches
// neither an existing filesystem path nor a recorded recipe event.
var ErrUnresolvableReference = errors.New("unresolvable staleness reference")

// FileStore records install events as empty marker files whose modification
// time is the event timestamp. There is no other content.
type FileStore struct {
	// dir is the directory holding one marker file per recipe name.
	dir string
}

// NewFileStore creates a store keyed by recipe name under the provided directory.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir: filepath.Clean(dir),
	}
}

// Path returns the marker file location for the named recipe.
func (s *FileStore) Path(recipeName string) string {
	return filepath.Join(s.dir, recipeName)
}

// Record stamps a successful install for the named recipe. An existing
// marker is touched, so only the most recent success is represented.
func (s *FileStore) Record(_ context.Context, recipeName string) error {
	if err := os.MkdirAll(s.dir, config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create event directory: %w", err)
	}

	path := s.Path(recipeName)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, config.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("close event: %w", err)
	}

	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		return fmt.Errorf("touch event: %w", err)
	}

	return nil
}

// RanAtLeastOnce reports whether an install event exists for the named recipe.
func (s *FileStore) RanAtLeastOnce(_ context.Context, recipeName string) (bool, error) {
	_, err := os.Stat(s.Path(recipeName))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("stat event: %w", err)
	}

	return true, nil
}

// RanSinceModified reports whether the last install event is at least as
// new as the recipe executable. A recipe edited after its last successful
// install is Stale.
func (s *FileStore) RanSinceModified(_ context.Context, rec recipe.Recipe) (RanState, error) {
	event, err := os.Stat(s.Path(rec.Name))
	if errors.Is(err, os.ErrNotExist) {
		return NeverRan, nil
	}

	if err != nil {
		return NeverRan, fmt.Errorf("stat event: %w", err)
	}

	source, err := os.Stat(rec.Path)
	if err != nil {
		return NeverRan, fmt.Errorf("stat recipe: %w", err)
	}

	if event.ModTime().Before(source.ModTime()) {
		return Stale, nil
	}

	return Fresh, nil
}

// NewerThan reports whether the recipe's install event is strictly newer
// than every reference. The event must also be at least as new as the
// recipe executable itself; a stale or missing event is never newer.
func (s *FileStore) NewerThan(ctx context.Context, rec recipe.Recipe, references []string) (bool, error) {
	state, err := s.RanSinceModified(ctx, rec)
	if err != nil || state != Fresh {
		return false, err
	}

	event, err := os.Stat(s.Path(rec.Name))
	if err != nil {
		return false, fmt.Errorf("stat event: %w", err)
	}

	for _, reference := range references {
		resolved, err := s.resolveReference(reference)
		if err != nil {
			return false, err
		}

		if !event.ModTime().After(resolved.ModTime()) {
			return false, nil
		}
	}

	return true, nil
}

// resolveReference finds the timestamp a reference names. An existing
// filesystem path wins; otherwise the reference is read as another
// recipe's name and resolved through its event marker.
func (s *FileStore) resolveReference(reference string) (os.FileInfo, error) {
	info, err := os.Stat(reference)
	if err == nil {
		return info, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat reference: %w", err)
	}

	info, err = os.Stat(s.Path(reference))
	if err == nil {
		return info, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat reference event: %w", err)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnresolvableReference, reference)
}
