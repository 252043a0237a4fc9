// Package events persists install events, the durable record that a recipe
// completed successfully.
//
// An event is an empty marker file named after its recipe; the file's
// modification time is the event timestamp and carries all the information
// there is. FileStore implements the Repository interface the runner and
// the staleness queries depend on.
package events
