package replicant

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Key identifies a replicant by its owning namespace (typically one per
// bundle) and its name within that namespace. Keys are value types and can
// be used directly as map keys.
type Key struct {
	Namespace string
	Name      string
}

// NewKey builds an NFC-normalized key. Namespace and name are normalized at
// the boundary so that equivalent Unicode spellings address the same
// replicant.
func NewKey(namespace, name string) Key {
	return Key{
		Namespace: norm.NFC.String(namespace),
		Name:      norm.NFC.String(name),
	}
}

// Validate checks that both components are present and contain no separator
// character. The colon is reserved for the textual form.
func (k Key) Validate() error {
	if k.Namespace == "" {
		return fmt.Errorf("key: namespace is required")
	}
	if k.Name == "" {
		return fmt.Errorf("key: name is required")
	}
	if strings.ContainsRune(k.Namespace, ':') {
		return fmt.Errorf("key: namespace %q must not contain ':'", k.Namespace)
	}
	return nil
}

// String renders the textual "namespace:name" form used in logs and the CLI.
func (k Key) String() string {
	return k.Namespace + ":" + k.Name
}

// ParseKey parses the textual "namespace:name" form. The name part may
// itself contain colons; only the first separator splits.
func ParseKey(s string) (Key, error) {
	namespace, name, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, fmt.Errorf("parse key %q: expected namespace:name", s)
	}
	k := NewKey(namespace, name)
	if err := k.Validate(); err != nil {
		return Key{}, fmt.Errorf("parse key %q: %w", s, err)
	}
	return k, nil
}
