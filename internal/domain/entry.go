package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedEntry = errors.New("malformed dump entry")

// EntryKind is the closed set of record line types replayed during
// feature extraction. Adding a kind is a compile-time-checked change:
// every dispatch site switches exhaustively over these constants.
type EntryKind int

const (
	EntryOther EntryKind = iota
	EntryIdentity
	EntryConnectionInfo
	EntryConferenceStart
	EntryDominantSpeaker
	EntryFaceLandmarks
	EntryGetStats
	EntryConnectionStateChange
	EntryIceConnectionStateChange
	EntryDtlsError
	EntryDtlsStateChange
	EntryCreate
	EntryConstraints
	EntrySDPRequest
	EntrySDPFailure
	EntryE2ERtt
)

var entryKinds = map[string]EntryKind{
	"identity":                      EntryIdentity,
	"connectionInfo":                EntryConnectionInfo,
	"conferenceStartTimestamp":      EntryConferenceStart,
	"dominantSpeaker":               EntryDominantSpeaker,
	"faceLandmarks":                 EntryFaceLandmarks,
	"getstats":                      EntryGetStats,
	"getStats":                      EntryGetStats,
	"onconnectionstatechange":       EntryConnectionStateChange,
	"oniceconnectionstatechange":    EntryIceConnectionStateChange,
	"ondtlserror":                   EntryDtlsError,
	"ondtlsstatechange":             EntryDtlsStateChange,
	"create":                        EntryCreate,
	"constraints":                   EntryConstraints,
	"createOfferOnSuccess":          EntrySDPRequest,
	"createAnswerOnSuccess":         EntrySDPRequest,
	"setLocalDescription":           EntrySDPRequest,
	"setRemoteDescription":          EntrySDPRequest,
	"createOfferOnFailure":          EntrySDPFailure,
	"createAnswerOnFailure":         EntrySDPFailure,
	"setLocalDescriptionOnFailure":  EntrySDPFailure,
	"setRemoteDescriptionOnFailure": EntrySDPFailure,
	"e2eRtt":                        EntryE2ERtt,
}

func ParseEntryKind(s string) EntryKind {
	if k, ok := entryKinds[s]; ok {
		return k
	}
	return EntryOther
}

// MetadataOnly reports whether the entry carries no session activity of
// its own and must be excluded from session start/end timing.
func (k EntryKind) MetadataOnly() bool {
	return k == EntryIdentity || k == EntryConnectionInfo
}

// Entry is one parsed line of a session record. On the wire it is a
// JSON array: [type, peerConnectionID, payload, timestamp].
type Entry struct {
	Type      string
	Kind      EntryKind
	PC        string
	Payload   json.RawMessage
	Timestamp int64
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	if len(parts) < 1 {
		return fmt.Errorf("%w: empty entry", ErrMalformedEntry)
	}
	if err := json.Unmarshal(parts[0], &e.Type); err != nil {
		return fmt.Errorf("%w: non-string type", ErrMalformedEntry)
	}
	e.Kind = ParseEntryKind(e.Type)
	if len(parts) > 1 {
		// The pc id slot is null for entries not tied to a peer connection.
		_ = json.Unmarshal(parts[1], &e.PC)
	}
	if len(parts) > 2 {
		e.Payload = parts[2]
	}
	if len(parts) > 3 {
		var ts float64
		if err := json.Unmarshal(parts[3], &ts); err == nil {
			e.Timestamp = int64(ts)
		}
	}
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	payload := e.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}
	var pc json.RawMessage = json.RawMessage("null")
	if e.PC != "" {
		b, err := json.Marshal(e.PC)
		if err != nil {
			return nil, err
		}
		pc = b
	}
	ts, err := json.Marshal(e.Timestamp)
	if err != nil {
		return nil, err
	}
	typ, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]json.RawMessage{typ, pc, payload, ts})
}
