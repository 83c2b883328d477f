// Package models defines core data structures shared by the retrieval pipeline.
package models

import (
	"errors"
	"fmt"
)

// Backend identifies one of the retrieval sources.
type Backend string

const (
	// BackendSemantic is similarity search over free-text documents.
	BackendSemantic Backend = "semantic"
	// BackendStructured is keyword lookup over configuration and rule tables.
	BackendStructured Backend = "structured"
	// BackendRelational is entity/relationship lookup over the graph store.
	BackendRelational Backend = "relational"
)

// ErrUnknownBackend is returned when a backend name or label cannot be resolved.
var ErrUnknownBackend = errors.New("unknown backend")

// Backends lists every backend in the fixed priority order used for tie-breaks and iteration.
var Backends = []Backend{BackendSemantic, BackendStructured, BackendRelational}

// Label returns the short label the fallback classifier is asked to emit.
func (b Backend) Label() string {
	switch b {
	case BackendSemantic:
		return "vdb"
	case BackendStructured:
		return "sql"
	case BackendRelational:
		return "graph"
	}
	return string(b)
}

// Weight returns the fixed per-backend fusion weight (structured > relational > semantic).
func (b Backend) Weight() float64 {
	switch b {
	case BackendStructured:
		return 1.2
	case BackendRelational:
		return 1.1
	default:
		return 1.0
	}
}

// Valid reports whether b is one of the known backends.
func (b Backend) Valid() bool {
	switch b {
	case BackendSemantic, BackendStructured, BackendRelational:
		return true
	}
	return false
}

// ParseBackend resolves a backend from its name ("structured") or its label ("sql").
func ParseBackend(s string) (Backend, error) {
	for _, b := range Backends {
		if s == string(b) || s == b.Label() {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}
