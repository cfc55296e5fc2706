package permission

// Intersect computes what a user may do through a client: only authority both
// sides hold survives, narrowed to the tighter scope.
//
// Per capability, with u a user grant and c a client grant:
//   - c global: u passes through unchanged
//   - c on space S: a global u narrows to S; u on S (space or instance level) passes
//   - c on instance I: a global u, or u on I's space, narrows to I; u on I passes
//
// The result is reduced.
func Intersect(user, client []Grant) []Grant {
	userByCapability := make(map[Capability][]Grant)
	for _, u := range Reduce(user) {
		userByCapability[u.Capability] = append(userByCapability[u.Capability], u)
	}

	var out []Grant
	for _, c := range Reduce(client) {
		for _, u := range userByCapability[c.Capability] {
			if g, ok := intersectGrant(u, c); ok {
				out = append(out, g)
			}
		}
	}
	return Reduce(out)
}

func intersectGrant(u, c Grant) (Grant, bool) {
	switch c.Level() {
	case LevelGlobal:
		return u, true
	case LevelSpace:
		switch {
		case u.IsGlobal():
			return SpaceGrant(c.Capability, c.Space), true
		case u.Space == c.Space:
			return u, true
		}
	case LevelInstance:
		switch {
		case u.IsGlobal():
			return c, true
		case u.Level() == LevelSpace && u.Space == c.Space:
			return c, true
		case u.Level() == LevelInstance && u.Instance == c.Instance:
			return u, true
		}
	}
	return Grant{}, false
}
