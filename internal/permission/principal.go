package permission

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"kgcore/pkg/domain"
)

// User is the identity behind a principal.
type User struct {
	ID       domain.UserID
	UserName string
	Email    string
}

// Principal is an authenticated actor: a user, optionally acting through a
// client application. Its effective grants are computed once at construction.
type Principal struct {
	user        User
	clientID    string
	userRoles   []string
	clientRoles []string
	invitations []uuid.UUID
	grants      []Grant
}

// PrincipalInput carries what identity resolution knows about the caller.
// A nil UserRoles means role information is missing: the principal gets no role grants.
// A nil ClientRoles means direct access without a client.
type PrincipalInput struct {
	User        User
	ClientID    string
	UserRoles   []string
	ClientRoles []string
	Invitations []uuid.UUID
}

// NewPrincipal derives the effective grants.
//
// User roles are expanded and reduced; a user with role information always
// holds owner rights over their private space. When a client is involved, the
// user grants are intersected with the client grants. Invitations add
// instance-level READ grants on top.
func NewPrincipal(in PrincipalInput, roles RoleSource) *Principal {
	p := &Principal{
		user:        in.User,
		clientID:    in.ClientID,
		userRoles:   slices.Clone(in.UserRoles),
		clientRoles: slices.Clone(in.ClientRoles),
		invitations: slices.Clone(in.Invitations),
	}

	userGrants := expandRoles(in.UserRoles, roles)
	if in.UserRoles != nil && in.User.ID != "" {
		userGrants = append(userGrants, roles.Expand(RoleName(RoleOwner, domain.PrivateSpaceFor(in.User.ID)))...)
	}

	effective := Reduce(userGrants)
	if in.ClientRoles != nil {
		clientGrants := expandRoles(in.ClientRoles, roles)
		if in.User.ID != "" {
			// A client may always act inside the private space of the user it serves.
			clientGrants = append(clientGrants, roles.Expand(RoleName(RoleOwner, domain.PrivateSpaceFor(in.User.ID)))...)
		}
		effective = Intersect(effective, clientGrants)
	}

	for _, id := range in.Invitations {
		if id != uuid.Nil {
			effective = append(effective, InstanceGrant(Read, "", id))
		}
	}
	p.grants = Reduce(effective)
	return p
}

func expandRoles(names []string, roles RoleSource) []Grant {
	var out []Grant
	for _, name := range names {
		out = append(out, roles.Expand(name)...)
	}
	return out
}

func (p *Principal) User() User { return p.user }

func (p *Principal) UserID() domain.UserID { return p.user.ID }

// ClientID is empty for direct access.
func (p *Principal) ClientID() string { return p.clientID }

// Grants returns a copy of the effective grants.
func (p *Principal) Grants() []Grant { return slices.Clone(p.grants) }

func (p *Principal) Invitations() []uuid.UUID { return slices.Clone(p.invitations) }

// PrivateSpace is the principal's own private space.
func (p *Principal) PrivateSpace() domain.SpaceName {
	return domain.PrivateSpaceFor(p.user.ID)
}

// HasPermission reports whether any effective grant for c applies to the target.
// A nil principal has no permissions.
func (p *Principal) HasPermission(c Capability, space domain.SpaceName, instance uuid.UUID) bool {
	if p == nil {
		return false
	}
	for _, g := range p.grants {
		if g.Capability == c && g.AppliesTo(space, instance) {
			return true
		}
	}
	return false
}

// HasGlobal reports whether c is held without any scope restriction.
func (p *Principal) HasGlobal(c Capability) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.grants, GlobalGrant(c))
}

type principalKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal in context, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
