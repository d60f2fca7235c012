// Package core declares the interfaces the pipeline needs from its
// external collaborators. Adapters own the concrete clients; nothing in
// here touches the network.
package core

import (
	"context"
	"errors"

	"github.com/dkeye/rtcpulse/internal/domain"
)

// ErrNotSupported marks an optional store capability the configured
// implementation does not provide.
var ErrNotSupported = errors.New("operation not supported by this store")

// ObjectStore is the durable blob layer session records are persisted
// to once a session ends.
type ObjectStore interface {
	// Put uploads the local record file under the given key.
	Put(ctx context.Context, key, localPath string) error
	// SignedURL returns a pre-signed download link for a stored
	// record. Optional capability: implementations may return
	// ErrNotSupported.
	SignedURL(ctx context.Context, key string) (string, error)
}

// MetadataStore persists the per-record metadata entry. SaveUnique must
// retry with a disambiguated key (key, key_1, key_2, ...) on a
// uniqueness violation and return the key actually used - the same
// collision policy the demultiplexer applies to record files.
type MetadataStore interface {
	SaveUnique(ctx context.Context, meta DumpMeta) (string, error)
}

// FeaturesPublisher delivers extraction results to downstream
// analytics consumers.
type FeaturesPublisher interface {
	Publish(ctx context.Context, payload any) error
}

// DumpMeta identifies and routes one session record. Not PII-free by
// construction: callers apply Obfuscate before logging. The dynamodbav
// tags must stay in lockstep with the json tags: the metadata store's
// uniqueness condition names the clientId attribute.
type DumpMeta struct {
	App           string             `json:"app,omitempty" dynamodbav:"app,omitempty"`
	ClientID      string             `json:"clientId" dynamodbav:"clientId"`
	ClientType    domain.ClientType  `json:"clientType" dynamodbav:"clientType"`
	ConferenceID  string             `json:"conferenceId,omitempty" dynamodbav:"conferenceId,omitempty"`
	ConferenceURL string             `json:"conferenceUrl,omitempty" dynamodbav:"conferenceUrl,omitempty"`
	DumpPath      string             `json:"dumpPath" dynamodbav:"dumpPath"`
	EndpointID    string             `json:"endpointId,omitempty" dynamodbav:"endpointId,omitempty"`
	SessionID     string             `json:"sessionId,omitempty" dynamodbav:"sessionId,omitempty"`
	UserID        string             `json:"userId,omitempty" dynamodbav:"userId,omitempty"`
	StatsFormat   domain.StatsFormat `json:"statsFormat" dynamodbav:"statsFormat"`
	StartDate     int64              `json:"startDate,omitempty" dynamodbav:"startDate,omitempty"`
	EndDate       int64              `json:"endDate,omitempty" dynamodbav:"endDate,omitempty"`
}

// Obfuscate returns a copy safe for logging: the user id is dropped.
func (m DumpMeta) Obfuscate() DumpMeta {
	m.UserID = ""
	return m
}
