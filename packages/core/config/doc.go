// Package config loads ws client configuration from JSON or YAML files.
//
// It provides functionality for:
//   - Loading .ws.json, ws.json, .ws.yaml or .ws.yml from a directory
//   - Default configuration values and merging of partial configs
//   - ${VAR} expansion from the environment and an optional .env file
//   - Building a configured ws client and its transport
package config
