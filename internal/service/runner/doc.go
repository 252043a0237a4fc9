// Package runner drives a single recipe through its lifecycle: check,
// resources, pretest, install.
//
// Recipe exit statuses are the control flow: 0 from check means already
// installed, 127 means a step is not implemented, tolerated only for the
// optional steps. A fully successful run records an install event.
package runner
