// Package output renders the outcome of a ws call for the command line.
//
// Supported output formats:
//   - Console: colored status line and pretty-printed JSON body
//   - JSON: a machine-readable envelope around the body or the error
package output
