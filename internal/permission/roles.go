package permission

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"kgcore/pkg/domain"
	dErrors "kgcore/pkg/domain-errors"
)

// Role names have the form "<scope>:<role>". The scope is empty for global roles
// (":admin"), a space name ("alpha:editor") or "<space>/<uuid>" for one instance.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOwner    Role = "owner"
	RoleEditor   Role = "editor"
	RoleReviewer Role = "reviewer"
	RoleConsumer Role = "consumer"
)

// RoleName renders the role name for a scope.
func RoleName(role Role, space domain.SpaceName) string {
	return string(space) + ":" + string(role)
}

// RoleSource expands a role name into grants.
type RoleSource interface {
	Expand(roleName string) []Grant
}

// RoleMapping is the role-to-capability table.
type RoleMapping struct {
	roles map[Role][]Capability
}

// DefaultRoleMapping returns the built-in roles. Each role includes the one below it.
func DefaultRoleMapping() *RoleMapping {
	consumer := []Capability{MinimalRead, MinimalReadReleased, ReadReleased}
	reviewer := append(slices.Clone(consumer), Read, ReleaseStatus, Suggest, ListInvitations)
	editor := append(slices.Clone(reviewer), Write, Create, InviteForReview, InviteForSuggestion, UpdateInvitations)
	owner := append(slices.Clone(editor),
		Release, Unrelease, Delete, ManageSpace, RerunEventsForSpace,
		ReadPermission, CreatePermission, DeletePermission,
		ReadClient, ReadClientPermission, CreateClientPermission, DeleteClientPermission,
	)
	return &RoleMapping{roles: map[Role][]Capability{
		RoleConsumer: consumer,
		RoleReviewer: reviewer,
		RoleEditor:   editor,
		RoleOwner:    owner,
		RoleAdmin:    All(),
	}}
}

// Capabilities returns the capabilities of a role.
func (m *RoleMapping) Capabilities(role Role) []Capability {
	return slices.Clone(m.roles[role])
}

// Expand turns a role name into grants. Capabilities that may not be granted at
// the scope's level are dropped; unknown roles and malformed names expand to nothing.
func (m *RoleMapping) Expand(roleName string) []Grant {
	idx := strings.LastIndex(roleName, ":")
	if idx < 0 {
		return nil
	}
	scope, role := roleName[:idx], Role(strings.ToLower(roleName[idx+1:]))
	capabilities, ok := m.roles[role]
	if !ok {
		return nil
	}

	var space domain.SpaceName
	instance := uuid.Nil
	if scope != "" {
		spacePart, instancePart, hasInstance := strings.Cut(scope, "/")
		space = domain.SpaceName(spacePart)
		if hasInstance {
			id, err := uuid.Parse(instancePart)
			if err != nil || id == uuid.Nil {
				return nil
			}
			instance = id
		}
	}

	grants := make([]Grant, 0, len(capabilities))
	for _, c := range capabilities {
		g := Grant{Capability: c, Space: space, Instance: instance}
		if c.AllowedAt(g.Level()) {
			grants = append(grants, g)
		}
	}
	return grants
}

type roleFile struct {
	Roles map[string]struct {
		Inherits     string   `yaml:"inherits"`
		Capabilities []string `yaml:"capabilities"`
	} `yaml:"roles"`
}

// LoadRoleMapping reads additional roles from YAML and layers them over the defaults:
//
//	roles:
//	  curator:
//	    inherits: editor
//	    capabilities: [RELEASE, UNRELEASE]
func LoadRoleMapping(r io.Reader) (*RoleMapping, error) {
	var file roleFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "failed to parse role mapping")
	}

	m := DefaultRoleMapping()
	// Inheritance may only reference built-in roles or roles defined earlier in
	// sorted order, which keeps resolution free of cycles.
	names := make([]string, 0, len(file.Roles))
	for name := range file.Roles {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		def := file.Roles[name]
		role := Role(strings.ToLower(name))
		var caps []Capability
		if def.Inherits != "" {
			parent, ok := m.roles[Role(strings.ToLower(def.Inherits))]
			if !ok {
				return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("role %s inherits unknown role %s", name, def.Inherits))
			}
			caps = slices.Clone(parent)
		}
		for _, raw := range def.Capabilities {
			c := Capability(strings.ToUpper(strings.TrimSpace(raw)))
			if _, ok := Lookup(c); !ok {
				return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("role %s names unknown capability %s", name, raw))
			}
			if !slices.Contains(caps, c) {
				caps = append(caps, c)
			}
		}
		m.roles[role] = caps
	}
	return m, nil
}

// LoadRoleMappingFile is LoadRoleMapping over a file. An empty path yields the defaults.
func LoadRoleMappingFile(path string) (*RoleMapping, error) {
	if path == "" {
		return DefaultRoleMapping(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "failed to open role mapping")
	}
	defer f.Close()
	return LoadRoleMapping(f)
}
