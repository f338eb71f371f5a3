package wire

// ParamType identifies the expected JSON type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// ParamSpec describes a single tool parameter.
type ParamSpec struct {
	// Type is the expected JSON type of the value.
	Type ParamType `json:"type"`

	// Description explains the parameter to callers.
	Description string `json:"description,omitempty"`

	// Required marks the parameter as mandatory.
	Required bool `json:"required,omitempty"`

	// Default is applied when an optional parameter is absent.
	Default any `json:"default,omitempty"`
}

// ToolDescriptor describes one operation exposed by a host. The full
// set of descriptors is fixed at host startup and returned once during
// initialization.
type ToolDescriptor struct {
	// Name uniquely identifies the tool within a host.
	Name string `json:"name"`

	// Description is a human-readable summary for the model layer.
	Description string `json:"description,omitempty"`

	// Params maps parameter name to its specification.
	Params map[string]ParamSpec `json:"params,omitempty"`
}
