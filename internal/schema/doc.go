// Package schema validates replicant values against optional JSON Schema
// documents.
//
// Schemas are compiled through CUE (cuelang.org/go/encoding/jsonschema):
// the JSON Schema document is translated to a CUE value once, and each
// candidate value is checked by unification. Validation is pure - no I/O,
// no side effects - and a missing schema always validates.
//
// The engine only depends on the Validator interface in this package, so
// the schema backend can be swapped without touching the store.
package schema
