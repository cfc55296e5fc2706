// Package graph keeps the queryable projection of instances per stage and the
// links between them.
package graph

import (
	"github.com/google/uuid"

	"kgcore/pkg/domain"
)

// RefResolver maps a link target (an absolute identifier) to an instance uuid.
type RefResolver func(ref string) (uuid.UUID, bool)

// Node is a projected instance.
type Node struct {
	ID       domain.InstanceID
	Document domain.Document
	Links    []uuid.UUID
}

func resolveLinks(doc domain.Document, self uuid.UUID, resolve RefResolver) []uuid.UUID {
	if resolve == nil {
		return nil
	}
	seen := map[uuid.UUID]struct{}{}
	var out []uuid.UUID
	for _, ref := range doc.References() {
		id, ok := resolve(ref)
		if !ok || id == self {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
