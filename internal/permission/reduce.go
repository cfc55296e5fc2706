package permission

import (
	"github.com/google/uuid"

	"kgcore/pkg/domain"
)

// Reduce collapses a grant set to its minimal equivalent. Per capability, a global
// grant absorbs everything else; otherwise, per space, a space-level grant absorbs
// the instance grants of that space. The result is sorted and duplicate-free, so
// Reduce(Reduce(g)) equals Reduce(g).
func Reduce(grants []Grant) []Grant {
	if len(grants) == 0 {
		return []Grant{}
	}

	byCapability := make(map[Capability][]Grant)
	var order []Capability
	for _, g := range grants {
		if g.Capability == "" {
			continue
		}
		if _, seen := byCapability[g.Capability]; !seen {
			order = append(order, g.Capability)
		}
		byCapability[g.Capability] = append(byCapability[g.Capability], g)
	}

	out := make([]Grant, 0, len(grants))
	for _, c := range order {
		out = append(out, reduceCapability(c, byCapability[c])...)
	}
	sortGrants(out)
	return out
}

func reduceCapability(c Capability, grants []Grant) []Grant {
	for _, g := range grants {
		if g.IsGlobal() {
			return []Grant{GlobalGrant(c)}
		}
	}

	bySpace := make(map[domain.SpaceName][]Grant)
	for _, g := range grants {
		bySpace[g.Space] = append(bySpace[g.Space], g)
	}

	var out []Grant
	for space, inSpace := range bySpace {
		if hasSpaceLevel(inSpace) {
			out = append(out, SpaceGrant(c, space))
			continue
		}
		seen := make(map[uuid.UUID]struct{}, len(inSpace))
		for _, g := range inSpace {
			if _, dup := seen[g.Instance]; dup {
				continue
			}
			seen[g.Instance] = struct{}{}
			out = append(out, g)
		}
	}
	return out
}

func hasSpaceLevel(grants []Grant) bool {
	for _, g := range grants {
		if g.Level() == LevelSpace {
			return true
		}
	}
	return false
}
