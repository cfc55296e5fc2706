// Package events models the mutations clients submit and keeps the journal of
// every event the gateway accepted or failed to apply.
package events

import (
	"time"

	"github.com/google/uuid"

	"kgcore/pkg/domain"
)

// Event is a mutation as submitted by a client.
type Event struct {
	Type         domain.EventType `json:"type"`
	Space        domain.SpaceName `json:"space"`
	InstanceUUID uuid.UUID        `json:"instanceId"`
	Document     domain.Document  `json:"document,omitempty"`
	ReportedAt   time.Time        `json:"reportedAt"`
	// ExpectedRevision guards RELEASE against content the caller has not seen.
	ExpectedRevision string `json:"expectedRevision,omitempty"`
	// ReplaceDocument drops fields of the previous contribution the document omits.
	ReplaceDocument bool `json:"replaceDocument,omitempty"`
}

// Persisted is an Event after the gateway resolved who sent it and where it applies.
type Persisted struct {
	Event
	ID         uuid.UUID        `json:"eventId"`
	UserID     domain.UserID    `json:"user"`
	ClientID   string           `json:"client,omitempty"`
	IndexedAt  time.Time        `json:"indexedAt"`
	Stage      domain.DataStage `json:"stage"`
	Suggestion bool             `json:"suggestion,omitempty"`
	Failed     bool             `json:"failed,omitempty"`
	Failure    string           `json:"failure,omitempty"`
}

// InstanceID is the resolved target of the event.
func (p Persisted) InstanceID() domain.InstanceID {
	return domain.InstanceID{Space: p.Space, UUID: p.InstanceUUID}
}

// Persist stamps an event with its actor and a fresh id.
func Persist(e Event, user domain.UserID, client string, now time.Time) Persisted {
	return Persisted{
		Event:     e,
		ID:        uuid.New(),
		UserID:    user,
		ClientID:  client,
		IndexedAt: now,
		Stage:     e.Type.Stage(),
	}
}

// MarkFailed records why an event could not be applied.
func (p Persisted) MarkFailed(err error) Persisted {
	p.Failed = true
	if err != nil {
		p.Failure = err.Error()
	}
	return p
}
