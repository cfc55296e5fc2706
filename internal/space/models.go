package space

import (
	"time"

	"kgcore/pkg/domain"
)

// Space is a tenant partition of the graph.
type Space struct {
	Name domain.SpaceName
	// AutoRelease publishes every accepted change immediately.
	AutoRelease bool
	// ClientSpace marks spaces owned by a client application.
	ClientSpace bool
	CreatedBy   domain.UserID
	CreatedAt   time.Time
}
