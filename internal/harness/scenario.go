package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario. Scenarios validate the
// engine's commit, fan-out, and error behavior by executing a flow of
// operations and asserting on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. The golden file is named
	// after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Replicants are created before the flow runs. Creation is assumed
	// to succeed.
	Replicants []ReplicantSetup `yaml:"replicants,omitempty"`

	// Subscribers are recording sinks registered before the flow runs.
	// Each receives an initial snapshot on registration, then every
	// committed change for its key.
	Subscribers []SubscriberSetup `yaml:"subscribers,omitempty"`

	// Flow contains the operations to execute, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final state and the deliveries.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Actor is the audit identity attributed to flow writes. Defaults
	// to a fixed test identity for deterministic history rows.
	Actor string `yaml:"actor,omitempty"`
}

// ReplicantSetup declares a persistent replicant to create.
type ReplicantSetup struct {
	Namespace string `yaml:"namespace"`
	Name      string `yaml:"name"`

	// Default is the creation value as a JSON document.
	Default string `yaml:"default"`

	// Schema is an optional JSON Schema document.
	Schema string `yaml:"schema,omitempty"`
}

// SubscriberSetup declares a recording subscriber.
type SubscriberSetup struct {
	// ID names the subscriber in the trace and in assertions.
	ID string `yaml:"id"`

	Namespace string `yaml:"namespace"`
	Name      string `yaml:"name"`

	// Default is the JSON value the key is materialized with if nobody
	// has seen it yet, mirroring a client subscribe.
	Default string `yaml:"default,omitempty"`

	// Buffer is the sink queue depth. Zero means unbounded for the
	// scenario's purposes; a small value exercises drop-on-saturation.
	Buffer int `yaml:"buffer,omitempty"`
}

// FlowStep is one operation in the main flow.
type FlowStep struct {
	// Op is "set", "get", or "delete".
	Op string `yaml:"op"`

	Namespace string `yaml:"namespace"`
	Name      string `yaml:"name"`

	// Value is the JSON document for set operations.
	Value string `yaml:"value,omitempty"`

	// Expect specifies the expected outcome. If nil, the operation is
	// assumed to succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies an expected operation outcome.
type ExpectClause struct {
	// Error is the expected error code ("SCHEMA_VALIDATION",
	// "NOT_FOUND"). Empty means success expected.
	Error string `yaml:"error,omitempty"`

	// Revision is the expected committed revision, validated only when
	// set.
	Revision *uint64 `yaml:"revision,omitempty"`
}

// Assertion validates final state or deliveries.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_value": the key's live value equals Value
	// - "final_revision": the key's revision equals Revision
	// - "history_count": the key has exactly Count history rows
	// - "delivered_count": the subscriber received exactly Count messages
	// - "delivered_revisions": the subscriber's change revisions equal Revisions, in order
	Type string `yaml:"type"`

	Namespace string `yaml:"namespace,omitempty"`
	Name      string `yaml:"name,omitempty"`

	// Subscriber is the subscriber ID (delivery assertions).
	Subscriber string `yaml:"subscriber,omitempty"`

	// Value is the expected JSON document (final_value).
	Value string `yaml:"value,omitempty"`

	// Revision is the expected revision (final_revision).
	Revision uint64 `yaml:"revision,omitempty"`

	// Count is the expected number of rows or messages.
	Count int `yaml:"count,omitempty"`

	// Revisions is the expected delivery order (delivered_revisions).
	Revisions []uint64 `yaml:"revisions,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalValue         = "final_value"
	AssertFinalRevision      = "final_revision"
	AssertHistoryCount       = "history_count"
	AssertDeliveredCount     = "delivered_count"
	AssertDeliveredRevisions = "delivered_revisions"
)

// Flow operation constants.
const (
	OpSet    = "set"
	OpGet    = "get"
	OpDelete = "delete"
)

// LoadScenario reads and parses a scenario YAML file. Returns an error
// if the file doesn't exist, is malformed, contains unknown fields
// (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, r := range s.Replicants {
		if r.Namespace == "" || r.Name == "" {
			return fmt.Errorf("replicants[%d]: namespace and name are required", i)
		}
		if r.Default == "" {
			return fmt.Errorf("replicants[%d]: default is required", i)
		}
	}

	seen := make(map[string]bool)
	for i, sub := range s.Subscribers {
		if sub.ID == "" {
			return fmt.Errorf("subscribers[%d]: id is required", i)
		}
		if seen[sub.ID] {
			return fmt.Errorf("subscribers[%d]: duplicate id %q", i, sub.ID)
		}
		seen[sub.ID] = true
		if sub.Namespace == "" || sub.Name == "" {
			return fmt.Errorf("subscribers[%d]: namespace and name are required", i)
		}
		if sub.Buffer < 0 {
			return fmt.Errorf("subscribers[%d]: buffer must be non-negative", i)
		}
	}

	for i, step := range s.Flow {
		switch step.Op {
		case OpSet:
			if step.Value == "" {
				return fmt.Errorf("flow[%d]: value is required for set", i)
			}
		case OpGet, OpDelete:
		default:
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
		if step.Namespace == "" || step.Name == "" {
			return fmt.Errorf("flow[%d]: namespace and name are required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, seen); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, subscribers map[string]bool) error {
	switch a.Type {
	case AssertFinalValue:
		if a.Namespace == "" || a.Name == "" || a.Value == "" {
			return fmt.Errorf("assertions[%d]: namespace, name, and value are required for final_value", index)
		}
	case AssertFinalRevision:
		if a.Namespace == "" || a.Name == "" {
			return fmt.Errorf("assertions[%d]: namespace and name are required for final_revision", index)
		}
	case AssertHistoryCount:
		if a.Namespace == "" || a.Name == "" {
			return fmt.Errorf("assertions[%d]: namespace and name are required for history_count", index)
		}
	case AssertDeliveredCount, AssertDeliveredRevisions:
		if a.Subscriber == "" {
			return fmt.Errorf("assertions[%d]: subscriber is required for %s", index, a.Type)
		}
		if !subscribers[a.Subscriber] {
			return fmt.Errorf("assertions[%d]: unknown subscriber %q", index, a.Subscriber)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
