package cleanup

// Guard collects rollback actions for an operation in progress.
//
// Callers push a rollback when they start mutating state, arrange execution
// on every exit path with `defer g.Run()`, and call Cancel once the operation
// is known good. Actions run in reverse push order, at most once.
// A Guard is not safe for concurrent use.
type Guard struct {
	// actions holds pending rollbacks in push order.
	actions []func()
	// settled is set once the guard has run or been canceled.
	settled bool
}

// New returns an empty guard.
func New() *Guard {
	return &Guard{}
}

// Push registers a rollback action to run if the guard is not canceled.
func (g *Guard) Push(action func()) {
	if g.settled {
		return
	}

	g.actions = append(g.actions, action)
}

// Cancel discards all pending actions without running them.
func (g *Guard) Cancel() {
	g.settled = true
	g.actions = nil
}

// Run executes pending actions in reverse push order. It is a no-op after
// Cancel and after a previous Run.
func (g *Guard) Run() {
	if g.settled {
		return
	}

	g.settled = true

	for i := len(g.actions) - 1; i >= 0; i-- {
		g.actions[i]()
	}

	g.actions = nil
}
