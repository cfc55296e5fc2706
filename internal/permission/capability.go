package permission

import (
	"slices"

	"kgcore/pkg/domain"
)

// Capability is a named right over a target.
type Capability string

const (
	MinimalRead              Capability = "MINIMAL_READ"
	MinimalReadReleased      Capability = "MINIMAL_READ_RELEASED"
	ManageSpace              Capability = "MANAGE_SPACE"
	RerunEventsForSpace      Capability = "RERUN_EVENTS_FOR_SPACE"
	InviteForReview          Capability = "INVITE_FOR_REVIEW"
	InviteForSuggestion      Capability = "INVITE_FOR_SUGGESTION"
	ListInvitations          Capability = "LIST_INVITATIONS"
	UpdateInvitations        Capability = "UPDATE_INVITATIONS"
	ReadReleased             Capability = "READ_RELEASED"
	Read                     Capability = "READ"
	ReleaseStatus            Capability = "RELEASE_STATUS"
	Suggest                  Capability = "SUGGEST"
	Write                    Capability = "WRITE"
	Create                   Capability = "CREATE"
	Release                  Capability = "RELEASE"
	Unrelease                Capability = "UNRELEASE"
	Delete                   Capability = "DELETE"
	ListUsers                Capability = "LIST_USERS"
	ListUsersLimited         Capability = "LIST_USERS_LIMITED"
	DefineTypesAndProperties Capability = "DEFINE_TYPES_AND_PROPERTIES"
	ReadClient               Capability = "READ_CLIENT"
	ReadClientPermission     Capability = "READ_CLIENT_PERMISSION"
	CreateClientPermission   Capability = "CREATE_CLIENT_PERMISSION"
	DeleteClientPermission   Capability = "DELETE_CLIENT_PERMISSION"
	ReadPermission           Capability = "READ_PERMISSION"
	CreatePermission         Capability = "CREATE_PERMISSION"
	DeletePermission         Capability = "DELETE_PERMISSION"
	DefineTermsOfUse         Capability = "DEFINE_TERMS_OF_USE"
	DefinePublicSpace        Capability = "DEFINE_PUBLIC_SPACE"
	DefineScopeRelevantSpace Capability = "DEFINE_SCOPE_RELEVANT_SPACE"
	CheckHealthStatus        Capability = "CHECK_HEALTH_STATUS"
	CacheFlush               Capability = "CACHE_FLUSH"
	TenantManagement         Capability = "TENANT_MANAGEMENT"
)

// Level is the scope a grant covers.
type Level string

const (
	LevelGlobal   Level = "GLOBAL"
	LevelSpace    Level = "SPACE"
	LevelInstance Level = "INSTANCE"
)

var (
	globalOnly     = []Level{LevelGlobal}
	globalAndSpace = []Level{LevelGlobal, LevelSpace}
	allLevels      = []Level{LevelGlobal, LevelSpace, LevelInstance}
)

// Group clusters capabilities by the area they administer.
type Group string

const (
	GroupInstance    Group = "INSTANCE"
	GroupClient      Group = "CLIENT"
	GroupPermissions Group = "PERMISSIONS"
	GroupSpaces      Group = "SPACES"
	GroupUsers       Group = "USERS"
	GroupTypes       Group = "TYPES"
	GroupAdmin       Group = "ADMIN"
)

// Definition describes where a capability may be granted and what it operates on.
// EventType and SemanticType, when set, let SelectCapability pick it for an event
// carrying a matching payload type.
type Definition struct {
	Capability   Capability
	Levels       []Level
	Group        Group
	Stage        domain.DataStage
	EventType    domain.EventType
	SemanticType string
}

// definitions is ordered; SelectCapability returns the first match.
var definitions = []Definition{
	{Capability: MinimalRead, Levels: globalAndSpace, Group: GroupPermissions},
	{Capability: MinimalReadReleased, Levels: globalAndSpace, Group: GroupPermissions},
	{Capability: ManageSpace, Levels: globalAndSpace, Group: GroupSpaces, EventType: domain.EventInsert, SemanticType: domain.SpaceDefinitionType},
	{Capability: RerunEventsForSpace, Levels: globalOnly, Group: GroupSpaces},
	{Capability: InviteForReview, Levels: allLevels, Group: GroupInstance, Stage: domain.StageInProgress},
	{Capability: InviteForSuggestion, Levels: allLevels, Group: GroupInstance, Stage: domain.StageInProgress},
	{Capability: ListInvitations, Levels: globalOnly, Group: GroupInstance},
	{Capability: UpdateInvitations, Levels: allLevels, Group: GroupInstance, Stage: domain.StageInProgress},
	{Capability: ReadReleased, Levels: allLevels, Group: GroupInstance, Stage: domain.StageReleased},
	{Capability: Read, Levels: allLevels, Group: GroupInstance, Stage: domain.StageInProgress},
	{Capability: ReleaseStatus, Levels: allLevels, Group: GroupInstance, Stage: domain.StageInProgress},
	{Capability: Suggest, Levels: allLevels, Group: GroupInstance, Stage: domain.StageInProgress},
	{Capability: Write, Levels: globalAndSpace, Group: GroupInstance, Stage: domain.StageInProgress},
	{Capability: Create, Levels: globalAndSpace, Group: GroupInstance, Stage: domain.StageInProgress},
	{Capability: Release, Levels: globalAndSpace, Group: GroupInstance, Stage: domain.StageInProgress},
	{Capability: Unrelease, Levels: globalAndSpace, Group: GroupInstance, Stage: domain.StageReleased},
	{Capability: Delete, Levels: globalAndSpace, Group: GroupInstance, Stage: domain.StageInProgress},
	{Capability: ListUsers, Levels: globalOnly, Group: GroupUsers, Stage: domain.StageNative},
	{Capability: ListUsersLimited, Levels: globalOnly, Group: GroupUsers, Stage: domain.StageNative},
	{Capability: DefineTypesAndProperties, Levels: globalOnly, Group: GroupTypes},
	{Capability: ReadClient, Levels: globalAndSpace, Group: GroupClient},
	{Capability: ReadClientPermission, Levels: globalAndSpace, Group: GroupClient},
	{Capability: CreateClientPermission, Levels: globalAndSpace, Group: GroupClient},
	{Capability: DeleteClientPermission, Levels: globalAndSpace, Group: GroupClient},
	{Capability: ReadPermission, Levels: globalAndSpace, Group: GroupPermissions},
	{Capability: CreatePermission, Levels: globalAndSpace, Group: GroupPermissions},
	{Capability: DeletePermission, Levels: globalAndSpace, Group: GroupPermissions},
	{Capability: DefineTermsOfUse, Levels: globalOnly, Group: GroupAdmin},
	{Capability: DefinePublicSpace, Levels: globalOnly, Group: GroupAdmin},
	{Capability: DefineScopeRelevantSpace, Levels: globalOnly, Group: GroupAdmin},
	{Capability: CheckHealthStatus, Levels: globalOnly, Group: GroupAdmin},
	{Capability: CacheFlush, Levels: globalOnly, Group: GroupAdmin},
	{Capability: TenantManagement, Levels: globalOnly, Group: GroupAdmin},
}

var definitionIndex = func() map[Capability]Definition {
	idx := make(map[Capability]Definition, len(definitions))
	for _, d := range definitions {
		idx[d.Capability] = d
	}
	return idx
}()

// Lookup returns the definition of c.
func Lookup(c Capability) (Definition, bool) {
	d, ok := definitionIndex[c]
	return d, ok
}

// All returns every known capability in table order.
func All() []Capability {
	out := make([]Capability, len(definitions))
	for i, d := range definitions {
		out[i] = d.Capability
	}
	return out
}

// InGroup returns the capabilities of a group in table order.
func InGroup(g Group) []Capability {
	var out []Capability
	for _, d := range definitions {
		if d.Group == g {
			out = append(out, d.Capability)
		}
	}
	return out
}

// AllowedAt reports whether c may be granted at level.
func (c Capability) AllowedAt(level Level) bool {
	d, ok := definitionIndex[c]
	return ok && slices.Contains(d.Levels, level)
}

func (c Capability) String() string { return string(c) }

// SelectCapability returns the first capability bound to eventType whose semantic
// type appears among types, or fallback when none does.
func SelectCapability(types []string, eventType domain.EventType, fallback Capability) Capability {
	for _, d := range definitions {
		if d.EventType == eventType && d.SemanticType != "" && slices.Contains(types, d.SemanticType) {
			return d.Capability
		}
	}
	return fallback
}
