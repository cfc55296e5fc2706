package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one message waiting to be published.
type Entry struct {
	ID            uuid.UUID
	Seq           int64
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// NewEntry builds an entry with a fresh id.
func NewEntry(aggregateType, aggregateID, eventType string, payload []byte, now time.Time) Entry {
	return Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
	}
}
