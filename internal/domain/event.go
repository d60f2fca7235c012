// Package domain contains the wire-level entities of the telemetry
// pipeline: inbound events, dump record lines and client classification.
// No transport or processing logic here.
package domain

import "encoding/json"

type SessionID string

// EventKind is the closed set of inbound event types. Anything the
// parser does not recognize maps to EventUnknown and is ignored by the
// demultiplexer rather than silently mis-routed.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventIdentity
	EventConnectionInfo
	EventStatsEntry
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventIdentity:
		return "identity"
	case EventConnectionInfo:
		return "connectionInfo"
	case EventStatsEntry:
		return "stats-entry"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

func ParseEventKind(s string) EventKind {
	switch s {
	case "identity":
		return EventIdentity
	case "connectionInfo":
		return EventConnectionInfo
	case "stats-entry":
		return EventStatsEntry
	case "close":
		return EventClose
	default:
		return EventUnknown
	}
}

// RawEvent is one inbound frame of the duplex telemetry stream. It is
// ephemeral: once routed by the demultiplexer only the Data payload
// survives, appended verbatim to the session record.
type RawEvent struct {
	Type      string          `json:"type"`
	SessionID SessionID       `json:"statsSessionId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

func (e *RawEvent) Kind() EventKind {
	return ParseEventKind(e.Type)
}
