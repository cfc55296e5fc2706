// Package identity turns bearer tokens into principals.
package identity

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of an access token.
//
// A token without a roles claim carries no role information and yields a
// principal without grants. A client token without client_roles acts with no
// client grants at all.
type Claims struct {
	UserID      string   `json:"user_id"`
	UserName    string   `json:"preferred_username,omitempty"`
	Email       string   `json:"email,omitempty"`
	ClientID    string   `json:"client_id,omitempty"`
	Roles       []string `json:"roles"`
	ClientRoles []string `json:"client_roles"`
	Invitations []string `json:"invitations,omitempty"`
	jwt.RegisteredClaims
}
