// Package config loads and validates percept configuration.
//
// Configuration layers, lowest to highest precedence: built-in defaults, a
// YAML or JSON file, and PERCEPT_* environment variables. Every loader
// validates the merged result before returning it, so downstream packages
// can trust the values they receive.
package config
