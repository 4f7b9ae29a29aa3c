package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RoomID identifies a chat room. The application server sends numeric ids,
// but strings are accepted too; the original JSON form is preserved so a
// room id received as 42 is posted back to windows as 42, not "42".
type RoomID struct {
	value   string
	numeric bool
}

// ParseRoomID builds a RoomID from its textual form. Integers are kept
// numeric.
func ParseRoomID(s string) RoomID {
	if s == "" {
		return RoomID{}
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return RoomID{value: s, numeric: true}
	}
	return RoomID{value: s}
}

// IsZero reports whether the room id is absent.
func (r RoomID) IsZero() bool {
	return r.value == ""
}

// String returns the textual form of the room id.
func (r RoomID) String() string {
	return r.value
}

// MarshalJSON encodes numeric ids as JSON numbers, others as strings and
// the zero value as null.
func (r RoomID) MarshalJSON() ([]byte, error) {
	if r.value == "" {
		return []byte("null"), nil
	}
	if r.numeric {
		return []byte(r.value), nil
	}
	return json.Marshal(r.value)
}

// UnmarshalJSON accepts numbers, strings and null.
func (r *RoomID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = RoomID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RoomID{value: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("room_id must be a number or string: %w", err)
	}
	*r = RoomID{value: n.String(), numeric: true}
	return nil
}

// MarshalYAML renders the room id as a scalar in YAML output.
func (r RoomID) MarshalYAML() (any, error) {
	if r.value == "" {
		return nil, nil
	}
	if r.numeric {
		n, err := strconv.ParseInt(r.value, 10, 64)
		if err == nil {
			return n, nil
		}
	}
	return r.value, nil
}
