package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/replicant/internal/replicant"
)

// Type discriminates message envelopes.
type Type string

const (
	// TypeSubscribe registers interest in a key; the server replies with
	// an initial envelope. An optional value carries the default to
	// materialize the key with if nobody has seen it yet.
	TypeSubscribe Type = "subscribe"

	// TypeUnsubscribe removes interest in a key.
	TypeUnsubscribe Type = "unsubscribe"

	// TypeSet asks the server to commit a new value. Success triggers a
	// change to all subscribers (including the sender); failure triggers
	// an error to the sender only.
	TypeSet Type = "set"

	// TypeInitial carries the current (value, revision) once per
	// subscribe or resubscribe.
	TypeInitial Type = "initial"

	// TypeChange carries a committed (value, revision) to every current
	// subscriber, or a deletion notice when Deleted is set.
	TypeChange Type = "change"

	// TypeError reports a failed set to the originating sender only.
	TypeError Type = "error"
)

// Message is the single envelope shape for all protocol messages.
// Fields not used by a given type stay zero and are omitted on the wire
// (revision excepted - it is always explicit so that revision 0 is
// distinguishable from absent).
type Message struct {
	Type      Type            `json:"type"`
	Namespace string          `json:"namespace"`
	Name      string          `json:"name"`
	Value     replicant.Value `json:"value,omitempty"`
	Revision  uint64          `json:"revision"`
	Deleted   bool            `json:"deleted,omitempty"`
	Code      string          `json:"code,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// Key returns the (namespace, name) pair the message is scoped to.
func (m Message) Key() replicant.Key {
	return replicant.NewKey(m.Namespace, m.Name)
}

// NewSubscribe builds a subscribe request.
func NewSubscribe(key replicant.Key) Message {
	return Message{Type: TypeSubscribe, Namespace: key.Namespace, Name: key.Name}
}

// NewSubscribeDefault builds a subscribe request carrying the default
// value for first-sight materialization.
func NewSubscribeDefault(key replicant.Key, defaultValue replicant.Value) Message {
	return Message{Type: TypeSubscribe, Namespace: key.Namespace, Name: key.Name, Value: defaultValue}
}

// NewUnsubscribe builds an unsubscribe request.
func NewUnsubscribe(key replicant.Key) Message {
	return Message{Type: TypeUnsubscribe, Namespace: key.Namespace, Name: key.Name}
}

// NewSet builds a set request carrying the candidate value.
func NewSet(key replicant.Key, value replicant.Value) Message {
	return Message{Type: TypeSet, Namespace: key.Namespace, Name: key.Name, Value: value}
}

// NewInitial builds the snapshot reply to a subscribe.
func NewInitial(key replicant.Key, value replicant.Value, revision uint64) Message {
	return Message{Type: TypeInitial, Namespace: key.Namespace, Name: key.Name, Value: value, Revision: revision}
}

// NewChange builds a committed-change broadcast.
func NewChange(key replicant.Key, value replicant.Value, revision uint64) Message {
	return Message{Type: TypeChange, Namespace: key.Namespace, Name: key.Name, Value: value, Revision: revision}
}

// NewDeleted builds the deletion notice broadcast.
func NewDeleted(key replicant.Key) Message {
	return Message{Type: TypeChange, Namespace: key.Namespace, Name: key.Name, Deleted: true}
}

// NewError builds the failure reply for the originating sender.
func NewError(key replicant.Key, err error) Message {
	return Message{
		Type:      TypeError,
		Namespace: key.Namespace,
		Name:      key.Name,
		Code:      string(replicant.CodeOf(err)),
		Reason:    err.Error(),
	}
}

// Encode serializes a message for the wire.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// Decode parses and validates a wire message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

// Validate checks the envelope's shape for its type.
func (m Message) Validate() error {
	if m.Namespace == "" || m.Name == "" {
		return fmt.Errorf("message %q: namespace and name are required", m.Type)
	}

	switch m.Type {
	case TypeSubscribe, TypeUnsubscribe:
		return nil
	case TypeSet:
		if m.Value.IsZero() {
			return fmt.Errorf("set message for %s:%s: value is required", m.Namespace, m.Name)
		}
		return nil
	case TypeInitial:
		if m.Value.IsZero() {
			return fmt.Errorf("initial message for %s:%s: value is required", m.Namespace, m.Name)
		}
		return nil
	case TypeChange:
		if !m.Deleted && m.Value.IsZero() {
			return fmt.Errorf("change message for %s:%s: value is required unless deleted", m.Namespace, m.Name)
		}
		return nil
	case TypeError:
		if m.Reason == "" {
			return fmt.Errorf("error message for %s:%s: reason is required", m.Namespace, m.Name)
		}
		return nil
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
}
