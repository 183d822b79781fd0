// Package match computes a versioned, explainable decision for every
// drive from its REMOVED and SHREDDED events.
//
// Rules are pure functions registered under a version string. A run
// evaluates one version over every drive that has events and replaces
// that version's decisions; decisions written by other versions are
// kept for audit.
package match
