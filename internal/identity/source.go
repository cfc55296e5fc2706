package identity

import (
	"log/slog"

	"github.com/google/uuid"

	"kgcore/internal/permission"
	"kgcore/pkg/domain"
)

// Source resolves tokens into principals using the role mapping.
type Source struct {
	tokens *TokenService
	roles  permission.RoleSource
	logger *slog.Logger
}

type Option func(*Source)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

func NewSource(tokens *TokenService, roles permission.RoleSource, opts ...Option) *Source {
	s := &Source{tokens: tokens, roles: roles, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserInfo validates the token and returns its claims.
func (s *Source) UserInfo(token string) (*Claims, error) {
	return s.tokens.Validate(token)
}

// Authenticate validates the token and derives the principal.
func (s *Source) Authenticate(token string) (*permission.Principal, error) {
	claims, err := s.UserInfo(token)
	if err != nil {
		return nil, err
	}
	return s.Principal(claims), nil
}

// Principal derives the principal for validated claims. Invitations that are
// not instance uuids are ignored.
func (s *Source) Principal(c *Claims) *permission.Principal {
	in := permission.PrincipalInput{
		User: permission.User{
			ID:       domain.UserID(c.UserID),
			UserName: c.UserName,
			Email:    c.Email,
		},
		ClientID:  c.ClientID,
		UserRoles: c.Roles,
	}
	if c.ClientID != "" {
		in.ClientRoles = c.ClientRoles
		if in.ClientRoles == nil {
			in.ClientRoles = []string{}
		}
	}
	for _, raw := range c.Invitations {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.logger.Warn("ignoring malformed invitation", "user_id", c.UserID, "invitation", raw)
			continue
		}
		in.Invitations = append(in.Invitations, id)
	}
	return permission.NewPrincipal(in, s.roles)
}
