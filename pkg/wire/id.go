package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is a correlation identifier: an integer or a string,
// assigned by the caller and echoed verbatim by the host. The original
// JSON representation is preserved so correlation is byte-exact. The
// zero value means "absent" and serializes to nothing under omitzero.
type RequestID struct {
	value  string
	quoted bool
	valid  bool
}

// StringID creates a string-typed request identifier.
func StringID(s string) RequestID {
	return RequestID{value: s, quoted: true, valid: true}
}

// IntID creates an integer-typed request identifier.
func IntID(n int64) RequestID {
	return RequestID{value: strconv.FormatInt(n, 10), valid: true}
}

// Valid reports whether an identifier is present.
func (id RequestID) Valid() bool { return id.valid }

// IsZero reports the inverse of Valid, for encoding/json's omitzero.
func (id RequestID) IsZero() bool { return !id.valid }

// Equal reports whether two identifiers match. A string "7" and an
// integer 7 are distinct identifiers.
func (id RequestID) Equal(other RequestID) bool {
	return id.valid && other.valid &&
		id.quoted == other.quoted && id.value == other.value
}

// String returns a printable form for logging.
func (id RequestID) String() string {
	if !id.valid {
		return "<none>"
	}
	if id.quoted {
		return strconv.Quote(id.value)
	}
	return id.value
}

// MarshalJSON encodes the identifier in its original representation.
func (id RequestID) MarshalJSON() ([]byte, error) {
	if !id.valid {
		return []byte("null"), nil
	}
	if id.quoted {
		return json.Marshal(id.value)
	}
	return []byte(id.value), nil
}

// UnmarshalJSON accepts a JSON string or number. Anything else is a
// protocol violation.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = RequestID{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: invalid id: %v", ErrInvalidMessage, err)
		}
		*id = RequestID{value: s, quoted: true, valid: true}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: id must be a string or number", ErrInvalidMessage)
	}
	*id = RequestID{value: n.String(), valid: true}
	return nil
}
