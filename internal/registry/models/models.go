package models

import (
	"github.com/google/uuid"

	"kgcore/pkg/domain"
)

// Record is the identifier registration of an instance at one stage.
type Record struct {
	UUID         uuid.UUID
	Stage        domain.DataStage
	Space        domain.SpaceName
	Alternatives []string
}

func (r Record) InstanceID() domain.InstanceID {
	return domain.InstanceID{Space: r.Space, UUID: r.UUID}
}

// ResolveRequest asks for the instance behind a uuid and/or a set of identifiers.
type ResolveRequest struct {
	UUID        uuid.UUID
	Identifiers []string
}
