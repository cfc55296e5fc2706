package permission

import (
	"cmp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"kgcore/pkg/domain"
	dErrors "kgcore/pkg/domain-errors"
)

// Grant is a capability bound to a scope. An empty space and a nil instance make
// it global; a space alone makes it space-wide; an instance makes it instance-level
// (the space is then informative only). Grants are comparable and usable as map keys.
type Grant struct {
	Capability Capability
	Space      domain.SpaceName
	Instance   uuid.UUID
}

// NewGrant validates the capability and its level.
func NewGrant(c Capability, space domain.SpaceName, instance uuid.UUID) (Grant, error) {
	if c == "" {
		return Grant{}, dErrors.New(dErrors.CodeInvalidInput, "grant capability is required")
	}
	g := Grant{Capability: c, Space: space, Instance: instance}
	if !c.AllowedAt(g.Level()) {
		return Grant{}, dErrors.New(dErrors.CodeInvalidInput, string(c)+" cannot be granted at "+string(g.Level())+" level")
	}
	return g, nil
}

func GlobalGrant(c Capability) Grant { return Grant{Capability: c} }

func SpaceGrant(c Capability, space domain.SpaceName) Grant {
	return Grant{Capability: c, Space: space}
}

func InstanceGrant(c Capability, space domain.SpaceName, instance uuid.UUID) Grant {
	return Grant{Capability: c, Space: space, Instance: instance}
}

func (g Grant) Level() Level {
	switch {
	case g.Instance != uuid.Nil:
		return LevelInstance
	case g.Space != "":
		return LevelSpace
	default:
		return LevelGlobal
	}
}

func (g Grant) IsGlobal() bool { return g.Level() == LevelGlobal }

func (g Grant) String() string {
	var b strings.Builder
	b.WriteString(string(g.Capability))
	b.WriteByte('(')
	b.WriteString(string(g.Space))
	if g.Instance != uuid.Nil {
		b.WriteByte('/')
		b.WriteString(g.Instance.String())
	}
	b.WriteByte(')')
	return b.String()
}

// AppliesTo reports whether the grant covers the target. Grants only ever apply to
// the review space for READ.
func (g Grant) AppliesTo(space domain.SpaceName, instance uuid.UUID) bool {
	if space == domain.ReviewSpace {
		return g.Capability == Read
	}
	switch g.Level() {
	case LevelGlobal:
		return true
	case LevelSpace:
		return space != "" && MatchSpace(g.Space, space)
	default:
		return instance != uuid.Nil && g.Instance == instance
	}
}

// Covers reports whether g authorizes at least everything other does.
func (g Grant) Covers(other Grant) bool {
	if g.Capability != other.Capability {
		return false
	}
	switch g.Level() {
	case LevelGlobal:
		return true
	case LevelSpace:
		return other.Level() != LevelGlobal && MatchSpace(g.Space, other.Space)
	default:
		return other.Level() == LevelInstance && g.Instance == other.Instance
	}
}

// MatchSpace compares a granted space against a concrete one. A granted space
// containing glob metacharacters is matched as a pattern, so "team-*" covers
// "team-a" and "team-b".
func MatchSpace(granted, space domain.SpaceName) bool {
	if granted == space {
		return true
	}
	if !isPattern(granted) {
		return false
	}
	ok, err := doublestar.Match(string(granted), string(space))
	return err == nil && ok
}

func isPattern(s domain.SpaceName) bool {
	return strings.ContainsAny(string(s), "*?[{")
}

func compareGrants(a, b Grant) int {
	if c := cmp.Compare(capabilityOrder(a.Capability), capabilityOrder(b.Capability)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Space, b.Space); c != 0 {
		return c
	}
	return cmp.Compare(a.Instance.String(), b.Instance.String())
}

func capabilityOrder(c Capability) int {
	if i := slices.IndexFunc(definitions, func(d Definition) bool { return d.Capability == c }); i >= 0 {
		return i
	}
	return len(definitions)
}

// sortGrants orders grants by capability table order, then space, then instance.
func sortGrants(grants []Grant) {
	slices.SortFunc(grants, compareGrants)
}
