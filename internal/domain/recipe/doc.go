// Package recipe contains core domain types for the recipe protocol.
//
// It defines Recipe (an executable implementing the protocol for one
// dependency), Resource (a downloadable artifact declared by a recipe's
// resources step) with the line grammar parser, and Step (the closed set of
// lifecycle subcommands a recipe may be invoked with).
package recipe
