package validation

import (
	"context"
	"testing"

	"k8s.io/apimachinery/pkg/util/validation/field"

	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
)

func TestValidateRequiredAndOptional(t *testing.T) {
	schema := Schema{
		Fields: []FieldSpec{
			{Name: "name", Validator: TagNameField, Required: true},
			{Name: "mtu", Validator: MTUField, Required: false},
		},
	}

	tests := []struct {
		name    string
		input   map[string]any
		wantErr bool
		field   string
	}{
		{"valid with optional omitted", map[string]any{"name": "external"}, false, ""},
		{"valid with optional present", map[string]any{"name": "external", "mtu": 1500}, false, ""},
		{"missing required", map[string]any{}, true, "name"},
		{"invalid mtu", map[string]any{"name": "external", "mtu": 42}, true, "mtu"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(tt *testing.T) {
			parsed, err := Validate(context.Background(), schema, tc.input)
			if tc.wantErr {
				if err == nil {
					tt.Fatalf("expected error, got none")
				}
				if err.Kind != nerrors.KindInvalidParameters {
					tt.Fatalf("expected InvalidParameters, got %v", err.Kind)
				}
				if len(err.Fields) != 1 || err.Fields[0].Field != tc.field {
					tt.Fatalf("expected single error on field %q, got %+v", tc.field, err.Fields)
				}
				return
			}
			if err != nil {
				tt.Fatalf("unexpected error: %v", err)
			}
			if _, ok := parsed["name"]; !ok {
				tt.Fatalf("expected parsed name")
			}
		})
	}
}

func TestValidateStrictRejectsUnknownFields(t *testing.T) {
	schema := Schema{
		Strict: true,
		Fields: []FieldSpec{
			{Name: "name", Validator: TagNameField, Required: true},
		},
	}

	_, err := Validate(context.Background(), schema, map[string]any{
		"name":    "external",
		"bogus":   "nope",
		"another": 1,
	})
	if err == nil {
		t.Fatalf("expected error for unknown fields")
	}
	if len(err.Fields) != 2 {
		t.Fatalf("expected 2 field errors, got %d", len(err.Fields))
	}
}

func TestValidateErrorsSortedByField(t *testing.T) {
	schema := Schema{
		Fields: []FieldSpec{
			{Name: "vlan_id", Validator: VLANField, Required: true},
			{Name: "mtu", Validator: MTUField, Required: true},
		},
	}

	_, err := Validate(context.Background(), schema, map[string]any{
		"vlan_id": 1,
		"mtu":     1,
	})
	if err == nil || len(err.Fields) != 2 {
		t.Fatalf("expected 2 errors, got %v", err)
	}
	if err.Fields[0].Field != "mtu" || err.Fields[1].Field != "vlan_id" {
		t.Fatalf("expected errors sorted alphabetically, got %+v", err.Fields)
	}
}

func TestAfterHookSkippedWhenDependencyFailed(t *testing.T) {
	ran := false
	schema := Schema{
		Fields: []FieldSpec{
			{Name: "vlan_id", Validator: VLANField, Required: true},
		},
		After: []AfterHook{
			{
				Name:      "never runs",
				DependsOn: []string{"vlan_id"},
				Run: func(ctx context.Context, fields Fields) field.ErrorList {
					ran = true
					return nil
				},
			},
		},
	}

	_, err := Validate(context.Background(), schema, map[string]any{"vlan_id": 1})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if ran {
		t.Fatalf("after hook should not run when its dependency failed")
	}
}

func TestAfterHookRunsAndAccumulatesErrors(t *testing.T) {
	schema := Schema{
		Fields: []FieldSpec{
			{Name: "provision_start_ip", Validator: IPField, Required: true},
			{Name: "provision_end_ip", Validator: IPField, Required: true},
		},
		After: []AfterHook{
			{
				Name:      "range order",
				DependsOn: []string{"provision_start_ip", "provision_end_ip"},
				Run: func(ctx context.Context, fields Fields) field.ErrorList {
					return field.ErrorList{field.Invalid(field.NewPath("provision_end_ip"), nil, "must be after start")}
				},
			},
		},
	}

	_, err := Validate(context.Background(), schema, map[string]any{
		"provision_start_ip": "10.0.0.10",
		"provision_end_ip":   "10.0.0.5",
	})
	if err == nil || len(err.Fields) != 1 || err.Fields[0].Field != "provision_end_ip" {
		t.Fatalf("expected after-hook error on provision_end_ip, got %v", err)
	}
}
