package harness

import (
	"context"
	"fmt"

	"github.com/roach88/replicant/internal/engine"
	"github.com/roach88/replicant/internal/protocol"
	"github.com/roach88/replicant/internal/replicant"
	"github.com/roach88/replicant/internal/store"
)

// AssertionContext provides what assertions need to inspect final state.
type AssertionContext struct {
	Store  *store.Store
	Engine *engine.Engine
	Ctx    context.Context
}

// EvaluateAssertions checks every assertion against the result and the
// final state. Returns one message per failed assertion; an empty slice
// means all passed.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if msg := evaluateAssertion(result, &a, actx); msg != "" {
			failures = append(failures, fmt.Sprintf("assertions[%d] %s: %s", i, a.Type, msg))
		}
	}
	return failures
}

func evaluateAssertion(result *Result, a *Assertion, actx *AssertionContext) string {
	switch a.Type {
	case AssertFinalValue:
		expected, err := replicant.ParseValue([]byte(a.Value))
		if err != nil {
			return fmt.Sprintf("invalid expected value: %v", err)
		}
		value, _, err := actx.Engine.Get(actx.Ctx, a.Namespace, a.Name, nil)
		if err != nil {
			return fmt.Sprintf("get %s:%s: %v", a.Namespace, a.Name, err)
		}
		if !value.Equal(expected) {
			return fmt.Sprintf("%s:%s = %s, expected %s", a.Namespace, a.Name, value, expected)
		}

	case AssertFinalRevision:
		_, revision, err := actx.Engine.Get(actx.Ctx, a.Namespace, a.Name, nil)
		if err != nil {
			return fmt.Sprintf("get %s:%s: %v", a.Namespace, a.Name, err)
		}
		if revision != a.Revision {
			return fmt.Sprintf("%s:%s at revision %d, expected %d", a.Namespace, a.Name, revision, a.Revision)
		}

	case AssertHistoryCount:
		entries, err := actx.Store.ReadHistory(actx.Ctx, a.Namespace, a.Name)
		if err != nil {
			return fmt.Sprintf("history %s:%s: %v", a.Namespace, a.Name, err)
		}
		if len(entries) != a.Count {
			return fmt.Sprintf("%s:%s has %d history rows, expected %d", a.Namespace, a.Name, len(entries), a.Count)
		}

	case AssertDeliveredCount:
		got := len(result.Deliveries[a.Subscriber])
		if got != a.Count {
			return fmt.Sprintf("subscriber %s received %d messages, expected %d", a.Subscriber, got, a.Count)
		}

	case AssertDeliveredRevisions:
		var got []uint64
		for _, d := range result.Deliveries[a.Subscriber] {
			if d.Type == string(protocol.TypeChange) && !d.Deleted {
				got = append(got, *d.Revision)
			}
		}
		if len(got) != len(a.Revisions) {
			return fmt.Sprintf("subscriber %s saw revisions %v, expected %v", a.Subscriber, got, a.Revisions)
		}
		for i := range got {
			if got[i] != a.Revisions[i] {
				return fmt.Sprintf("subscriber %s saw revisions %v, expected %v", a.Subscriber, got, a.Revisions)
			}
		}
	}
	return ""
}
