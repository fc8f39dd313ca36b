// Package cli implements the switchboard command line: serve, validate and
// version. The serve command assembles the process with fx; see Module.
package cli
