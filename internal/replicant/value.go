package replicant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Value is an opaque JSON document held by a replicant. The zero Value is
// "no value" and marshals as JSON null.
//
// Values are kept in canonical form (CP-1): object keys sorted by UTF-16
// code units, strings NFC-normalized, no HTML escaping, numbers preserved
// textually as received. Deep equality is therefore a byte comparison.
type Value []byte

// Null is the canonical JSON null value.
var Null = Value("null")

// ParseValue validates raw JSON and returns its canonical form.
func ParseValue(data []byte) (Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("parse value: empty JSON document")
	}

	// UseNumber preserves the textual form of numbers; converting through
	// float64 would lose precision above 2^53 and reformat exponents.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("parse value: trailing data after JSON document")
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, raw); err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	return Value(buf.Bytes()), nil
}

// MustParseValue is ParseValue for literals; it panics on malformed JSON.
// Intended for tests and default values baked into bundle manifests.
func MustParseValue(s string) Value {
	v, err := ParseValue([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether the value is absent (never set).
func (v Value) IsZero() bool {
	return len(v) == 0
}

// Equal reports deep JSON equality. Both sides are held in canonical form,
// so this is a byte comparison; nil compares equal to canonical null.
func (v Value) Equal(o Value) bool {
	a, b := v, o
	if a.IsZero() {
		a = Null
	}
	if b.IsZero() {
		b = Null
	}
	return bytes.Equal(a, b)
}

// String returns the canonical JSON text.
func (v Value) String() string {
	if v.IsZero() {
		return "null"
	}
	return string(v)
}

// MarshalJSON implements json.Marshaler. The canonical bytes are emitted
// verbatim; a zero Value marshals as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsZero() {
		return []byte("null"), nil
	}
	return v, nil
}

// UnmarshalJSON implements json.Unmarshaler, canonicalizing on the way in.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseValue(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Decode unmarshals the value into out via encoding/json.
func (v Value) Decode(out any) error {
	if v.IsZero() {
		return fmt.Errorf("decode value: no value present")
	}
	return json.Unmarshal(v, out)
}

// writeCanonical serializes a decoded JSON tree in canonical form.
func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		// Numbers keep their textual form as received. "1e3" and "1000"
		// are therefore distinct values; clients that care must send a
		// consistent representation.
		buf.WriteString(string(val))
		return nil
	case string:
		return writeCanonicalString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		buf.WriteByte('{')
		for i, k := range sortedKeysUTF16(val) {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return fmt.Errorf("object key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("unsupported JSON type: %T", v)
	}
}

// writeCanonicalString writes an NFC-normalized JSON string without HTML
// escaping. Only control characters, backslash, and quote are escaped.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false) // <, > and & must NOT be escaped
	if err := enc.Encode(normalized); err != nil {
		return err
	}

	out := tmp.Bytes()
	// json.Encoder appends a trailing newline.
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	buf.Write(out)
	return nil
}

// sortedKeysUTF16 returns object keys ordered by UTF-16 code units, the
// canonical JSON key order. Go's sort.Strings compares UTF-8 bytes, which
// produces a DIFFERENT order for strings outside the BMP.
func sortedKeysUTF16(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// compareKeysUTF16 compares strings code unit by code unit after UTF-16
// encoding, with correct surrogate handling.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
