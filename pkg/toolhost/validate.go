// Copyright 2025 Ben McAlindin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package toolhost

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/bmcalindin/toolwire/pkg/wire"
)

// FieldError identifies a single offending parameter. Handlers may also
// return it (path containment violations do) so the host reports
// invalid_parameters instead of execution_failed.
type FieldError struct {
	// Field is the parameter name.
	Field string

	// Reason explains what is wrong with the value.
	Reason string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Field, e.Reason)
}

// ValidateArgs checks args against the descriptor's parameter specs and
// returns a new map with defaults applied for absent optional
// parameters. The input map is not modified.
func ValidateArgs(desc wire.ToolDescriptor, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(desc.Params))

	for name := range args {
		if _, known := desc.Params[name]; !known {
			return nil, &FieldError{Field: name, Reason: "unknown parameter"}
		}
	}

	for name, spec := range desc.Params {
		value, present := args[name]
		if !present {
			if spec.Required {
				return nil, &FieldError{Field: name, Reason: "required parameter missing"}
			}
			if spec.Default != nil {
				out[name] = spec.Default
			}
			continue
		}

		if err := checkType(name, spec.Type, value); err != nil {
			return nil, err
		}
		out[name] = value
	}

	return out, nil
}

// checkType verifies that a decoded JSON value matches the declared
// parameter type.
func checkType(name string, typ wire.ParamType, value any) error {
	if value == nil {
		return &FieldError{Field: name, Reason: "value is null"}
	}

	switch typ {
	case wire.TypeString:
		if _, ok := value.(string); !ok {
			return typeMismatch(name, typ, value)
		}
	case wire.TypeNumber:
		if !isNumber(value) {
			return typeMismatch(name, typ, value)
		}
	case wire.TypeInteger:
		f, ok := asFloat(value)
		if !ok || f != math.Trunc(f) {
			return typeMismatch(name, typ, value)
		}
	case wire.TypeBoolean:
		if _, ok := value.(bool); !ok {
			return typeMismatch(name, typ, value)
		}
	case wire.TypeArray:
		if _, ok := value.([]any); !ok {
			return typeMismatch(name, typ, value)
		}
	case wire.TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return typeMismatch(name, typ, value)
		}
	default:
		return &FieldError{Field: name, Reason: fmt.Sprintf("unsupported schema type %q", typ)}
	}

	return nil
}

func typeMismatch(name string, typ wire.ParamType, value any) error {
	return &FieldError{
		Field:  name,
		Reason: fmt.Sprintf("expected %s, got %s", typ, jsonTypeName(value)),
	}
}

func isNumber(value any) bool {
	_, ok := asFloat(value)
	return ok
}

// asFloat handles both float64 (encoding/json default) and json.Number.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
