// Package idgen wraps the UUID generator so identifiers stay opaque strings
// and tests can stub generation.
package idgen

import "github.com/google/uuid"

// NewFunc produces identifiers. Override in tests for determinism.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier.
func New() string { return NewFunc() }
