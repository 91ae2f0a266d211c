package testutil

// FixedActor yields a constant audit identity so history rows written
// during a test are reproducible.
//
// The identity is typically set in the scenario YAML:
//
//	actor: "test-actor-00000001"
//
// If id is empty, ID() returns "test-actor-default".
type FixedActor struct {
	id string
}

// NewFixedActor creates a fixed audit identity.
func NewFixedActor(id string) *FixedActor {
	if id == "" {
		id = "test-actor-default"
	}
	return &FixedActor{id: id}
}

// ID returns the fixed identity.
func (a *FixedActor) ID() string {
	return a.id
}
