// ABOUTME: Configuration loading and parsing for the squall homeserver
// ABOUTME: YAML files with environment variable expansion and duration parsing

// Package config loads the homeserver configuration once at startup. The
// resulting Config is read-only for the life of the process and is passed
// explicitly into every component that needs policy or keys; there is no
// ambient global.
package config
