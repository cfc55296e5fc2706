package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "kgcore/pkg/domain-errors"
)

// SpaceName identifies a tenant space. The empty name means "no space".
type SpaceName string

const (
	// ReviewSpace is reserved: grants only ever apply to it for reading.
	ReviewSpace SpaceName = "review"
	// PrivateSpaceAlias is the name clients use to address the caller's own private space.
	PrivateSpaceAlias SpaceName = "myspace"

	privateSpacePrefix = "private-"
)

func (s SpaceName) String() string { return string(s) }

func (s SpaceName) IsZero() bool { return s == "" }

// IsPrivate reports whether the space is some user's private space.
func (s SpaceName) IsPrivate() bool { return strings.HasPrefix(string(s), privateSpacePrefix) }

// PrivateSpaceFor returns the private space of a user.
func PrivateSpaceFor(userID UserID) SpaceName {
	return SpaceName(privateSpacePrefix + string(userID))
}

// ResolveSpace maps the private-space alias to the concrete private space of the user.
func ResolveSpace(space SpaceName, userID UserID) SpaceName {
	if space == PrivateSpaceAlias && userID != "" {
		return PrivateSpaceFor(userID)
	}
	return space
}

// ParseSpaceName validates a space name coming from an untrusted boundary.
func ParseSpaceName(s string) (SpaceName, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "space name is required")
	}
	if strings.ContainsAny(s, ":/ \t\n\x00") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "space name contains forbidden characters")
	}
	return SpaceName(s), nil
}

// UserID is the identity provider subject of a user or service account.
type UserID string

func (u UserID) String() string { return string(u) }

func (u UserID) IsZero() bool { return u == "" }

// ParseInstanceUUID parses an instance identifier. Empty, malformed and nil UUIDs are rejected.
func ParseInstanceUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "instance id is required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid instance id")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "instance id must not be nil")
	}
	return id, nil
}

// InstanceID is the space-qualified identity of an instance.
type InstanceID struct {
	Space SpaceName `json:"space"`
	UUID  uuid.UUID `json:"uuid"`
}

func (i InstanceID) String() string {
	return string(i.Space) + "/" + i.UUID.String()
}

func (i InstanceID) IsZero() bool { return i.UUID == uuid.Nil }
