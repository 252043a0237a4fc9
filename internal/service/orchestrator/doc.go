// Package orchestrator expands requested recipe identifiers, explicit
// lists or the all sentinel, and runs each recipe in a fixed order.
//
// A pre-pass sweeps the check step across the selection so a fully
// satisfied set becomes a silent no-op. Otherwise recipes run until the
// first failure, whose status becomes the overall result.
package orchestrator
