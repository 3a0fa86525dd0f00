// Package flags defines feature-flag records and the storage contract the
// API and CLI layers program against.
package flags

import (
	"context"
	"fmt"
)

// Environment partitions a flag's configuration by deployment stage.
type Environment string

const (
	Production  Environment = "production"
	Staging     Environment = "staging"
	Development Environment = "development"
)

// Environments is the closed set of environments, in iteration order.
var Environments = []Environment{Production, Staging, Development}

// Valid reports whether e is one of Environments.
func (e Environment) Valid() bool {
	for _, env := range Environments {
		if e == env {
			return true
		}
	}
	return false
}

// ParseEnvironment converts s to an Environment, rejecting unknown values.
func ParseEnvironment(s string) (Environment, error) {
	env := Environment(s)
	if !env.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEnvironment, s)
	}
	return env, nil
}

// Rule is carried with a flag but never interpreted by storage.
type Rule struct {
	Attribute string   `json:"attribute"`
	Operator  string   `json:"operator"`
	Values    []string `json:"values"`
	Result    bool     `json:"result"`
}

// Flag is the per-environment configuration of a named flag.
type Flag struct {
	Name        string      `json:"name"`
	Environment Environment `json:"environment"`
	Enabled     bool        `json:"enabled"`
	Rules       []Rule      `json:"rules"`
	// Percentage is nil when unset.
	Percentage *float64 `json:"percentage"`
	UpdatedAt  int64    `json:"updatedAt"`
}

// Storage is the persistence contract for flags.
type Storage interface {
	// CreateFlag stores a new flag. Fails with *DuplicateFlagError if the
	// (name, environment) pair already has a record.
	CreateFlag(ctx context.Context, flag Flag) error

	// GetFlag returns the flag and true, or false if no record exists.
	GetFlag(ctx context.Context, name string, env Environment) (Flag, bool, error)

	// ListFlags returns every stored flag.
	ListFlags(ctx context.Context) ([]Flag, error)

	// UpdateFlag merges patch into the stored record and returns the result.
	// Fails with *FlagNotFoundError if there is nothing to update.
	UpdateFlag(ctx context.Context, name string, env Environment, patch Patch) (Flag, error)

	// DeleteFlag removes name in every environment. Deleting a missing
	// flag is not an error.
	DeleteFlag(ctx context.Context, name string) error
}
