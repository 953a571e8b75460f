// Package message defines the commands the inspector accepts and the events
// it emits. Transports and consumers import this package to speak to an
// inspector.
package message

import (
	"github.com/hazyhaar/elemscope/selector"
)

// CommandType names an inbound command.
type CommandType string

const (
	CmdActivate   CommandType = "activate-inspector"
	CmdDeactivate CommandType = "deactivate-inspector"
)

// Command is an activation request from the privileged side.
type Command struct {
	Type CommandType `json:"type"`
}

// Reply answers a Command.
type Reply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// EventType names an outbound event.
type EventType string

const (
	EvtSelectors   EventType = "element-selectors"
	EvtDeactivated EventType = "inspector-deactivated"
	EvtError       EventType = "inspector-error"
)

// Reason explains why the inspector left the Active state on its own.
type Reason string

const (
	ReasonInspected   Reason = "inspected"
	ReasonEscape      Reason = "escape"
	ReasonContextMenu Reason = "contextmenu"
	ReasonError       Reason = "error"
)

// Event is one outbound notification.
type Event struct {
	ID        string           `json:"id"` // evt_ + UUIDv7
	Type      EventType        `json:"type"`
	Selectors *selector.Bundle `json:"selectors,omitempty"` // element-selectors only
	Message   string           `json:"message,omitempty"`   // inspector-error only
	Reason    Reason           `json:"reason,omitempty"`    // inspector-deactivated only
	Timestamp int64            `json:"timestamp"`           // epoch milliseconds
}
