package recipe

import (
	"errors"
	"fmt"
)

// StatusNotImplemented is the reserved exit status a recipe uses to signal
// that it does not implement an invoked subcommand. It is tolerated for the
// optional steps (resources, pretest) and invalid for the mandatory ones
// (check, install).
const StatusNotImplemented = 127

// ErrUnknownStep is returned when a subcommand name is not part of the
// recipe protocol.
var ErrUnknownStep = errors.New("unknown recipe step")

// Step is one of the closed set of lifecycle subcommands a recipe implements.
type Step int

const (
	// StepCheck asks whether the dependency is already installed.
	StepCheck Step = iota
	// StepResources prints the recipe's resource declarations.
	StepResources
	// StepPretest validates preconditions before installing.
	StepPretest
	// StepInstall performs the installation.
	StepInstall
)

// String returns the subcommand name the step is invoked as.
func (s Step) String() string {
	switch s {
	case StepCheck:
		return "check"
	case StepResources:
		return "resources"
	case StepPretest:
		return "pretest"
	case StepInstall:
		return "install"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Optional reports whether a recipe may omit the step by exiting with
// StatusNotImplemented.
func (s Step) Optional() bool {
	return s == StepResources || s == StepPretest
}

// ParseStep maps a subcommand name to its Step, rejecting names outside the
// protocol at parse time.
func ParseStep(name string) (Step, error) {
	switch name {
	case "check":
		return StepCheck, nil
	case "resources":
		return StepResources, nil
	case "pretest":
		return StepPretest, nil
	case "install":
		return StepInstall, nil
	default:
		return 0, fmt.Errorf("%q: %w", name, ErrUnknownStep)
	}
}
