package harness

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures a scenario execution for golden comparison.
// Deliveries are emitted per subscriber in ID order, since delivery
// order across subscribers is unspecified.
type TraceSnapshot struct {
	ScenarioName string               `json:"scenario_name"`
	Trace        []TraceEvent         `json:"trace"`
	Deliveries   []SubscriberSnapshot `json:"deliveries,omitempty"`
}

// SubscriberSnapshot is one subscriber's deliveries in order.
type SubscriberSnapshot struct {
	Subscriber string     `json:"subscriber"`
	Received   []Delivery `json:"received"`
}

// Snapshot builds the deterministic snapshot for a result.
func Snapshot(name string, result *Result) TraceSnapshot {
	snapshot := TraceSnapshot{ScenarioName: name, Trace: result.Trace}

	ids := make([]string, 0, len(result.Deliveries))
	for id := range result.Deliveries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		snapshot.Deliveries = append(snapshot.Deliveries, SubscriberSnapshot{
			Subscriber: id,
			Received:   result.Deliveries[id],
		})
	}
	return snapshot
}

// RunWithGolden executes a scenario, fails the test on expectation or
// assertion errors, and compares the trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	traceJSON, err := json.MarshalIndent(Snapshot(scenario.Name, result), "", "  ")
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)
	return nil
}
