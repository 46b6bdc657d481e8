package validation

import (
	"context"
	"fmt"
	"net"
	"regexp"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

var tagNameRE = regexp.MustCompile(`^[A-Za-z0-9_]{1,31}$`)

// UUIDField parses raw as a UUID string.
func UUIDField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	s, ok := raw.(string)
	if !ok {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be a string")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be a UUID")
	}
	return id, nil, nil
}

// TagNameField parses raw as a NIC-tag/short-name identifier: 1-31
// characters of [A-Za-z0-9_].
func TagNameField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	s, ok := raw.(string)
	if !ok || !tagNameRE.MatchString(s) {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must match [A-Za-z0-9_]{1,31}")
	}
	return s, nil, nil
}

// IPField parses raw as an IPv4 or IPv6 address.
func IPField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	s, ok := raw.(string)
	if !ok {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be a string")
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be an IP address")
	}
	return ip, nil, nil
}

// CIDRField parses raw as a CIDR subnet.
func CIDRField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	s, ok := raw.(string)
	if !ok {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be a string")
	}
	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "invalid cidr value")
	}
	return ipnet, nil, nil
}

// VLANField parses raw as a VLAN id: 0 or 2-4094 (1 is reserved).
func VLANField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	n, ok := asInt(raw)
	if !ok {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be an integer")
	}
	if n == 1 || n < 0 || n > 4094 {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be 0 or in 2-4094")
	}
	return n, nil, nil
}

// MTUField parses raw as an MTU in [1500, 9000].
func MTUField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	n, ok := asInt(raw)
	if !ok || n < 1500 || n > 9000 {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be in 1500-9000")
	}
	return n, nil, nil
}

// VNetField parses raw as a fabric vnet id in [0, 2^24-1].
func VNetField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	n, ok := asInt(raw)
	if !ok || n < 0 || n > (1<<24)-1 {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be in 0-16777215")
	}
	return n, nil, nil
}

// EnumField returns a FieldValidator accepting one of the given values.
func EnumField(allowed ...string) FieldValidator {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	return func(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
		s, ok := raw.(string)
		if !ok || !set[s] {
			return nil, nil, field.NotSupported(field.NewPath(name), raw, allowed)
		}
		return s, nil, nil
	}
}

// BoundedArrayField returns a FieldValidator accepting an array between
// min and max elements (inclusive), each validated by elem.
func BoundedArrayField(min, max int, elem FieldValidator) FieldValidator {
	return func(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
		items, ok := raw.([]any)
		if !ok {
			return nil, nil, field.Invalid(field.NewPath(name), raw, "must be an array")
		}
		if len(items) < min || len(items) > max {
			return nil, nil, field.Invalid(field.NewPath(name), raw, fmt.Sprintf("must have between %d and %d elements", min, max))
		}
		out := make([]any, len(items))
		for i, item := range items {
			path := field.NewPath(name).Index(i)
			v, _, ferr := elem(ctx, name, item)
			if ferr != nil {
				return nil, nil, field.Invalid(path, item, ferr.Detail)
			}
			out[i] = v
		}
		return out, nil, nil
	}
}

func asInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}
