package schema

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/encoding/jsonschema"

	"github.com/roach88/replicant/internal/replicant"
)

// Validator compiles JSON Schema documents and checks values against them.
type Validator interface {
	// Compile translates a JSON Schema document into a reusable Schema.
	// A zero document yields a nil Schema, which accepts every value.
	Compile(doc replicant.Value) (*Schema, error)
}

// Schema is a compiled JSON Schema ready for validation. A nil *Schema
// accepts every value.
type Schema struct {
	ctx *cue.Context
	val cue.Value
}

// CUEValidator is the default Validator, backed by a single CUE context.
// Compile is safe for concurrent use; compiled Schemas are immutable.
type CUEValidator struct {
	ctx *cue.Context
}

// NewValidator creates the default CUE-backed validator.
func NewValidator() *CUEValidator {
	return &CUEValidator{ctx: cuecontext.New()}
}

// Compile implements Validator. The document must be a JSON Schema object;
// a $schema declaration is honored, otherwise the library default draft
// applies.
func (v *CUEValidator) Compile(doc replicant.Value) (*Schema, error) {
	if doc.IsZero() {
		return nil, nil
	}

	// JSON is a subset of CUE, so the schema document compiles directly.
	docVal := v.ctx.CompileBytes(doc)
	if err := docVal.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	file, err := jsonschema.Extract(docVal, &jsonschema.Config{})
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	schemaVal := v.ctx.BuildFile(file)
	if err := schemaVal.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Schema{ctx: v.ctx, val: schemaVal}, nil
}

// Validate checks a candidate value against the schema. Returns nil on
// success or a *replicant.SchemaValidationError listing every failing
// constraint. A nil Schema accepts everything.
func (s *Schema) Validate(key replicant.Key, value replicant.Value) error {
	if s == nil {
		return nil
	}

	candidate := s.ctx.CompileBytes(value)
	if err := candidate.Err(); err != nil {
		return &replicant.SchemaValidationError{
			Key: key,
			Violations: []replicant.SchemaViolation{
				{Message: fmt.Sprintf("value is not valid JSON: %v", err)},
			},
		}
	}

	unified := s.val.Unify(candidate)
	if err := unified.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		return &replicant.SchemaValidationError{
			Key:        key,
			Violations: violations(err),
		}
	}
	return nil
}

// violations flattens a CUE error list into wire-friendly details.
func violations(err error) []replicant.SchemaViolation {
	list := cueerrors.Errors(err)
	out := make([]replicant.SchemaViolation, 0, len(list))
	for _, e := range list {
		format, args := e.Msg()
		out = append(out, replicant.SchemaViolation{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	return out
}
