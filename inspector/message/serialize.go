package message

import (
	"encoding/json"
	"fmt"
)

// MarshalEvent serialises an Event to JSON.
func MarshalEvent(e *Event) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserialises an Event from JSON.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UnmarshalCommand decodes a Command and rejects unknown types.
func UnmarshalCommand(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("message: decode command: %w", err)
	}
	if !c.Type.Valid() {
		return c, fmt.Errorf("message: unknown command type %q", c.Type)
	}
	return c, nil
}

// Valid reports whether t is a known command type.
func (t CommandType) Valid() bool {
	return t == CmdActivate || t == CmdDeactivate
}
