package domain

import (
	dErrors "kgcore/pkg/domain-errors"
)

// DataStage names a persistence stage of an instance.
type DataStage string

const (
	StageNative     DataStage = "NATIVE"
	StageInProgress DataStage = "IN_PROGRESS"
	StageReleased   DataStage = "RELEASED"
)

func (s DataStage) String() string { return string(s) }

// ParseDataStage accepts the stage names case-sensitively.
func ParseDataStage(s string) (DataStage, error) {
	switch DataStage(s) {
	case StageNative, StageInProgress, StageReleased:
		return DataStage(s), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown stage: "+s)
	}
}

// EventType is the kind of change an event requests.
type EventType string

const (
	EventInsert    EventType = "INSERT"
	EventUpdate    EventType = "UPDATE"
	EventDelete    EventType = "DELETE"
	EventRelease   EventType = "RELEASE"
	EventUnrelease EventType = "UNRELEASE"
)

func (t EventType) String() string { return string(t) }

func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventInsert, EventUpdate, EventDelete, EventRelease, EventUnrelease:
		return EventType(s), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown event type: "+s)
	}
}

// Stage reports the stage an event of this type writes to.
func (t EventType) Stage() DataStage {
	switch t {
	case EventRelease, EventUnrelease:
		return StageReleased
	case EventInsert, EventUpdate, EventDelete:
		return StageNative
	default:
		return ""
	}
}
