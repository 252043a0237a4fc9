// Package fetch materializes the resources a recipe declares: it resolves
// each declaration to an effective URL, optionally through a mirror,
// transfers the artifact, and verifies declared checksums.
//
// A failed or corrupted download never keeps the artifact's final name;
// it is set aside under the .rej suffix so a later run fetches cleanly.
package fetch
