// Package cleanup provides a scoped rollback guard.
//
// A Guard accumulates rollback closures for an operation, runs them in
// reverse order on failure paths (including context cancellation unwinding),
// and discards them once the operation is verified good. It replaces ad hoc
// cleanup handling around partially written artifacts.
package cleanup
