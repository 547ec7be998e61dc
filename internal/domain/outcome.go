package domain

import "strings"

// Degradation records a best-effort step that failed without aborting
// the surrounding operation.
type Degradation struct {
	Op     string `json:"op"`
	Reason string `json:"reason"`
}

// Outcome collects degradations of a composed business operation.
type Outcome struct {
	Degradations []Degradation `json:"degradations,omitempty"`
}

// Degrade appends a degraded step.
func (o *Outcome) Degrade(op, reason string) {
	o.Degradations = append(o.Degradations, Degradation{Op: op, Reason: reason})
}

// Degraded reports whether any best-effort step failed.
func (o Outcome) Degraded() bool {
	return len(o.Degradations) > 0
}

// DegradedOps lists failed step names in order.
func (o Outcome) DegradedOps() []string {
	ops := make([]string, 0, len(o.Degradations))
	for _, d := range o.Degradations {
		ops = append(ops, d.Op)
	}
	return ops
}

func (o Outcome) String() string {
	if !o.Degraded() {
		return "ok"
	}
	parts := make([]string, 0, len(o.Degradations))
	for _, d := range o.Degradations {
		parts = append(parts, d.Op+": "+d.Reason)
	}
	return "degraded (" + strings.Join(parts, "; ") + ")"
}
