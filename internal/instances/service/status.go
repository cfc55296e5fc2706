package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kgcore/internal/instances/models"
	"kgcore/pkg/domain"
	dErrors "kgcore/pkg/domain-errors"
	"kgcore/pkg/platform/sentinel"
)

// scopeLookupLimit bounds concurrent graph lookups while expanding a scope.
const scopeLookupLimit = 8

// ReleaseStatus reports the status of id, or for the children scopes the
// aggregate over id and every instance reachable from it.
func (l *Lifecycle) ReleaseStatus(ctx context.Context, id uuid.UUID, scope models.TreeScope) (models.ReleaseStatus, error) {
	info, err := l.info(ctx, id)
	if err != nil {
		return "", err
	}
	if scope == models.ScopeTopInstanceOnly {
		return info.ReleaseStatus, nil
	}

	var restrictTo domain.SpaceName
	if scope == models.ScopeChildrenOnlyRestricted {
		restrictTo = info.ID.Space
	}
	members, err := l.Scope(ctx, id, restrictTo)
	if err != nil {
		return "", err
	}
	known, err := l.store.ReleaseStatuses(ctx, members)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load release statuses")
	}
	statuses := make([]models.ReleaseStatus, len(members))
	for i, member := range members {
		statuses[i] = known[member] // unknown members count as unreleased
	}
	return models.Aggregate(statuses), nil
}

// ReleaseStatuses looks up several instances; unknown ones are left out.
func (l *Lifecycle) ReleaseStatuses(ctx context.Context, ids []uuid.UUID, scope models.TreeScope) (map[uuid.UUID]models.ReleaseStatus, error) {
	out := make(map[uuid.UUID]models.ReleaseStatus, len(ids))
	for _, id := range ids {
		status, err := l.ReleaseStatus(ctx, id, scope)
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = status
	}
	return out, nil
}

// Scope walks the IN_PROGRESS graph breadth first from root and returns root
// followed by everything reachable from it. With restrictTo set, instances in
// other spaces are neither included nor traversed.
func (l *Lifecycle) Scope(ctx context.Context, root uuid.UUID, restrictTo domain.SpaceName) ([]uuid.UUID, error) {
	visited := map[uuid.UUID]struct{}{root: {}}
	members := []uuid.UUID{root}
	frontier := []uuid.UUID{root}

	for len(frontier) > 0 {
		var mu sync.Mutex
		var next []uuid.UUID
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(scopeLookupLimit)
		for _, current := range frontier {
			g.Go(func() error {
				related, err := l.graph.Related(gctx, domain.StageInProgress, current)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load related instances")
				}
				for _, child := range related {
					keep, err := l.inScope(gctx, child, restrictTo)
					if err != nil {
						return err
					}
					if !keep {
						continue
					}
					mu.Lock()
					if _, seen := visited[child]; !seen {
						visited[child] = struct{}{}
						next = append(next, child)
					}
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		members = append(members, next...)
		frontier = next
	}
	return members, nil
}

func (l *Lifecycle) inScope(ctx context.Context, id uuid.UUID, restrictTo domain.SpaceName) (bool, error) {
	if restrictTo == "" {
		return true, nil
	}
	space, err := l.graph.SpaceOf(ctx, domain.StageInProgress, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load instance space")
	}
	return space == restrictTo, nil
}
