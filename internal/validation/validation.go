// Package validation implements the request-time field validator
// described by the network and NIC models: a schema names required,
// optional and strict fields plus an ordered list of cross-field "after"
// hooks, each field is run through a typed validator function, and every
// error along the way accumulates into a single field.ErrorList instead
// of aborting the request on the first failure. This mirrors the
// registry-strategy validation shape used across the retrieval pack's
// Kubernetes-style APIs (PrepareForCreate/Validate building a
// field.ErrorList), built here directly on
// k8s.io/apimachinery/pkg/util/validation/field so the per-field
// path/code/message/invalid shape comes for free.
package validation

import (
	"context"
	"sort"

	"k8s.io/apimachinery/pkg/util/validation/field"

	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
)

// Fields is the parsed, typed output of a successful validation pass:
// field name to whatever the field validator returned as its parsed
// value (which may be richer than the raw input, e.g. a fetched record).
type Fields map[string]any

// FieldValidator parses and validates a single field's raw value. It
// never panics or returns a taxonomy error directly; a validation failure
// is returned as a *field.Error, which Validate appends to its
// accumulated field.ErrorList. extra lets a
// validator stash side-channel data (e.g. a fetched IP record) under
// additional keys in the Fields map, keyed by name.
type FieldValidator func(ctx context.Context, name string, raw any) (parsed any, extra map[string]any, err *field.Error)

// AfterHook runs once all fields it depends on have been parsed without
// error. It returns any number of field errors, which are appended to
// the accumulated list; a hook cannot abort validation.
type AfterHook struct {
	// Name identifies the hook for dependency/ordering purposes only.
	Name string
	// DependsOn lists field names that must have validated cleanly for
	// this hook to run. A field with an earlier error skips any hook
	// that depends on it.
	DependsOn []string
	Run       func(ctx context.Context, fields Fields) field.ErrorList
}

// FieldSpec pairs a field name with its validator and requiredness.
type FieldSpec struct {
	Name      string
	Validator FieldValidator
	Required  bool
}

// Schema declares the fields a request accepts and the cross-field hooks
// that run after per-field validation succeeds.
type Schema struct {
	Fields []FieldSpec
	// Strict rejects input keys not named in Fields.
	Strict bool
	After  []AfterHook
}

// Validate runs schema against input, returning either the parsed fields
// or a single *errors.Error of kind InvalidParameters aggregating every
// failure found, sorted by field path.
func Validate(ctx context.Context, schema Schema, input map[string]any) (Fields, *nerrors.Error) {
	var errs field.ErrorList
	parsed := Fields{}
	failed := map[string]bool{}

	known := make(map[string]bool, len(schema.Fields))
	for _, spec := range schema.Fields {
		known[spec.Name] = true
	}
	if schema.Strict {
		for key := range input {
			if !known[key] {
				errs = append(errs, field.Forbidden(field.NewPath(key), "unknown field"))
			}
		}
	}

	for _, spec := range schema.Fields {
		raw, present := input[spec.Name]
		path := field.NewPath(spec.Name)
		if !present {
			if spec.Required {
				errs = append(errs, field.Required(path, "required"))
				failed[spec.Name] = true
			}
			continue
		}
		value, extra, ferr := spec.Validator(ctx, spec.Name, raw)
		if ferr != nil {
			errs = append(errs, ferr)
			failed[spec.Name] = true
			continue
		}
		parsed[spec.Name] = value
		for k, v := range extra {
			parsed[k] = v
		}
	}

	for _, hook := range schema.After {
		blocked := false
		for _, dep := range hook.DependsOn {
			if failed[dep] {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		errs = append(errs, hook.Run(ctx, parsed)...)
	}

	if len(errs) == 0 {
		return parsed, nil
	}
	return nil, nerrors.InvalidParameters(toFieldErrors(errs))
}

func toFieldErrors(errs field.ErrorList) []nerrors.FieldError {
	out := make([]nerrors.FieldError, len(errs))
	for i, e := range errs {
		out[i] = nerrors.FieldError{
			Field:   e.Field,
			Code:    codeFor(e),
			Message: e.ErrorBody(),
			Invalid: e.BadValue,
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func codeFor(e *field.Error) string {
	switch e.Type {
	case field.ErrorTypeRequired:
		return nerrors.CodeMissingParameter
	case field.ErrorTypeDuplicate:
		return nerrors.CodeDuplicateParameter
	case field.ErrorTypeForbidden:
		return nerrors.CodeUsedBy
	default:
		return nerrors.CodeInvalidParameter
	}
}
