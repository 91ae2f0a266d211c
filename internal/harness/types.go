package harness

import (
	"github.com/roach88/replicant/internal/replicant"
)

// Result holds a scenario execution's trace, deliveries, and failures.
type Result struct {
	// Trace records flow operations and their outcomes, in execution
	// order.
	Trace []TraceEvent

	// Deliveries maps subscriber IDs to the messages they received, in
	// delivery order. Per-subscriber order is guaranteed; order across
	// subscribers is not, which is why the trace groups by subscriber.
	Deliveries map[string][]Delivery

	// Errors collects expectation and assertion failures. An empty
	// slice means the scenario passed.
	Errors []string
}

// TraceEvent is one executed flow operation.
type TraceEvent struct {
	Op        string          `json:"op"`
	Namespace string          `json:"namespace"`
	Name      string          `json:"name"`
	Value     replicant.Value `json:"value,omitempty"`
	Revision  *uint64         `json:"revision,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Delivery is one message a subscriber received.
type Delivery struct {
	Type     string          `json:"type"`
	Value    replicant.Value `json:"value,omitempty"`
	Revision *uint64         `json:"revision,omitempty"`
	Deleted  bool            `json:"deleted,omitempty"`
}

// NewResult creates an empty result.
func NewResult() *Result {
	return &Result{Deliveries: make(map[string][]Delivery)}
}

// AddError records an expectation or assertion failure.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// Passed reports whether the scenario completed without failures.
func (r *Result) Passed() bool {
	return len(r.Errors) == 0
}

func revisionRef(rev uint64) *uint64 {
	return &rev
}
