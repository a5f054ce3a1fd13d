// Package testutil provides deterministic collaborators for tests: a
// scripted transport, a manual clock and a sequential id generator.
package testutil
