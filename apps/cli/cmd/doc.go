// Package cmd implements the ws CLI commands using Cobra.
//
// Available commands:
//   - get, post, put, delete: Call a JSON web service and print the response
//   - mock: Serve canned responses from route files
//   - init: Create a .ws.yaml config file
//   - version: Show ws version information
//   - completion: Generate shell completion scripts
//
// Settings are read from the config file, WS_* environment variables and
// flags. The exit code tells call failures (1) apart from configuration
// errors (3), unreachable services (4) and usage errors (64).
package cmd
