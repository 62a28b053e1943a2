// Package config loads, normalizes, and validates the TOML configuration
// for the restframe trainer, including the declarative curriculum stages
// and the annealing schedule.
package config
