package harness

import (
	"context"
	"fmt"

	"github.com/roach88/replicant/internal/engine"
	"github.com/roach88/replicant/internal/protocol"
	"github.com/roach88/replicant/internal/pubsub"
	"github.com/roach88/replicant/internal/replicant"
	"github.com/roach88/replicant/internal/schema"
	"github.com/roach88/replicant/internal/store"
	"github.com/roach88/replicant/internal/testutil"
)

// Harness wires a scenario's engine, registry, and recording sinks.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	registry *pubsub.Registry
	sinks    map[string]*recordingSink
	actor    *testutil.FixedActor
}

// recordingSink captures deliveries for one declared subscriber. With a
// zero buffer it accepts everything; a positive buffer drops on
// saturation exactly like a server connection's send queue.
type recordingSink struct {
	id       string
	buffer   int
	received []Delivery
}

func (s *recordingSink) ID() string { return s.id }

func (s *recordingSink) Send(msg protocol.Message) bool {
	if s.buffer > 0 && len(s.received) >= s.buffer {
		return false
	}
	d := Delivery{Type: string(msg.Type), Deleted: msg.Deleted}
	if !msg.Value.IsZero() {
		d.Value = msg.Value
	}
	if !msg.Deleted {
		d.Revision = revisionRef(msg.Revision)
	}
	s.received = append(s.received, d)
	return true
}

// Run executes a scenario against a fresh in-memory database and
// returns the result. Expectation and assertion failures land in
// Result.Errors; only infrastructure problems return an error.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	registry := pubsub.NewRegistry()
	eng := engine.New(st, schema.NewValidator(), registry, engine.Options{})

	h := &Harness{
		store:    st,
		engine:   eng,
		registry: registry,
		sinks:    make(map[string]*recordingSink),
		actor:    testutil.NewFixedActor(scenario.Actor),
	}

	ctx := context.Background()
	result := NewResult()

	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	// Collect deliveries in declared subscriber order.
	for _, sub := range scenario.Subscribers {
		sink := h.sinks[sub.ID]
		result.Deliveries[sub.ID] = append([]Delivery(nil), sink.received...)
	}

	actx := &AssertionContext{Store: st, Engine: eng, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// setup creates declared replicants and registers subscribers. A
// subscriber registration mirrors a server connection's subscribe:
// register the sink first, read the engine second, record the initial.
func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	for i, r := range scenario.Replicants {
		defaultValue, err := replicant.ParseValue([]byte(r.Default))
		if err != nil {
			return fmt.Errorf("replicants[%d]: invalid default: %w", i, err)
		}
		var schemaDoc replicant.Value
		if r.Schema != "" {
			schemaDoc, err = replicant.ParseValue([]byte(r.Schema))
			if err != nil {
				return fmt.Errorf("replicants[%d]: invalid schema: %w", i, err)
			}
		}
		if _, err := h.engine.Create(ctx, r.Namespace, r.Name, defaultValue, schemaDoc); err != nil {
			return fmt.Errorf("replicants[%d]: create %s:%s: %w", i, r.Namespace, r.Name, err)
		}
	}

	for i, sub := range scenario.Subscribers {
		var defaultValue replicant.Value
		if sub.Default != "" {
			parsed, err := replicant.ParseValue([]byte(sub.Default))
			if err != nil {
				return fmt.Errorf("subscribers[%d]: invalid default: %w", i, err)
			}
			defaultValue = parsed
		}

		sink := &recordingSink{id: sub.ID, buffer: sub.Buffer}
		h.sinks[sub.ID] = sink

		key := replicant.NewKey(sub.Namespace, sub.Name)
		h.registry.Subscribe(sink, key)

		value, revision, err := h.engine.Get(ctx, sub.Namespace, sub.Name, defaultValue)
		if err != nil {
			return fmt.Errorf("subscribers[%d]: snapshot %s: %w", i, key, err)
		}
		sink.Send(protocol.NewInitial(key, value, revision))
	}
	return nil
}

// executeFlow runs the flow steps and validates expect clauses.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		event := TraceEvent{Op: step.Op, Namespace: step.Namespace, Name: step.Name}

		var opErr error
		switch step.Op {
		case OpSet:
			value, err := replicant.ParseValue([]byte(step.Value))
			if err != nil {
				return fmt.Errorf("flow[%d]: invalid value: %w", i, err)
			}
			committed, revision, err := h.engine.Set(ctx, step.Namespace, step.Name, value, h.actor.ID())
			if err != nil {
				opErr = err
			} else {
				event.Value = committed
				event.Revision = revisionRef(revision)
			}

		case OpGet:
			value, revision, err := h.engine.Get(ctx, step.Namespace, step.Name, nil)
			if err != nil {
				opErr = err
			} else {
				event.Value = value
				event.Revision = revisionRef(revision)
			}

		case OpDelete:
			opErr = h.engine.Delete(ctx, step.Namespace, step.Name)
		}

		if opErr != nil {
			event.Error = string(replicant.CodeOf(opErr))
		}
		result.Trace = append(result.Trace, event)

		// Validate the expect clause.
		expectedError := ""
		if step.Expect != nil {
			expectedError = step.Expect.Error
		}
		if event.Error != expectedError {
			result.AddError(fmt.Sprintf("flow[%d] %s %s:%s: error %q, expected %q",
				i, step.Op, step.Namespace, step.Name, event.Error, expectedError))
		}
		if step.Expect != nil && step.Expect.Revision != nil {
			if event.Revision == nil || *event.Revision != *step.Expect.Revision {
				got := "none"
				if event.Revision != nil {
					got = fmt.Sprintf("%d", *event.Revision)
				}
				result.AddError(fmt.Sprintf("flow[%d] %s %s:%s: revision %s, expected %d",
					i, step.Op, step.Namespace, step.Name, got, *step.Expect.Revision))
			}
		}
	}
	return nil
}
