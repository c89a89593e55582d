// Package suitability implements the land-use suitability scoring stages:
// transit proximity, min-max normalisation, weighted aggregation and tier
// classification.
package suitability

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BlueGIS760404/UrbanPlanning/internal/feature"
	"github.com/BlueGIS760404/UrbanPlanning/internal/observability"
)

// Kind classifies a non-fatal diagnostic.
type Kind string

// Diagnostic kinds.
const (
	DegenerateInput Kind = "degenerate_input"
	MissingValue    Kind = "missing_value"
	NonFiniteValue  Kind = "non_finite_value"
)

// Diagnostic is a recovered, user-visible anomaly.
type Diagnostic struct {
	Kind    Kind
	Column  feature.Attribute
	Message string
}

func (d Diagnostic) String() string {
	if d.Column == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", d.Kind, d.Column, d.Message)
}

// diagnostics collects the diagnostics of one run and logs each as it arrives.
type diagnostics struct {
	mu      sync.Mutex
	items   []Diagnostic
	log     *zap.Logger
	metrics *observability.Metrics
}

func (c *diagnostics) add(d *Diagnostic) {
	if d == nil {
		return
	}
	c.mu.Lock()
	c.items = append(c.items, *d)
	c.mu.Unlock()

	c.log.Warn(d.Message,
		zap.String("kind", string(d.Kind)),
		zap.String("column", string(d.Column)),
	)
	c.metrics.RecordDiagnostic(string(d.Kind))
}

func (c *diagnostics) list() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Diagnostic(nil), c.items...)
}
