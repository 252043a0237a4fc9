package recipe

import "path/filepath"

// Recipe is an executable program implementing the check/resources/pretest/
// install protocol for one dependency.
type Recipe struct {
	// Name identifies the recipe, unique within a run.
	Name string
	// Path is the absolute path to the recipe executable.
	Path string
}

// New builds a Recipe from the path of its executable.
// The recipe name is the basename of the path.
func New(path string) Recipe {
	return Recipe{
		Name: filepath.Base(path),
		Path: path,
	}
}
