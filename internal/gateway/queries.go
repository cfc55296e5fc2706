package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"kgcore/internal/events"
	"kgcore/internal/instances/models"
	"kgcore/internal/permission"
	registrymodels "kgcore/internal/registry/models"
	"kgcore/pkg/domain"
	dErrors "kgcore/pkg/domain-errors"
	"kgcore/pkg/requestcontext"
)

// GetReleaseStatus reports the release status of one instance.
func (g *Gateway) GetReleaseStatus(ctx context.Context, id uuid.UUID, scope models.TreeScope) (models.ReleaseStatus, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.GetReleaseStatus")
	defer span.End()

	principal, err := principalFrom(ctx)
	if err != nil {
		return "", err
	}
	info, err := g.lifecycle.Info(ctx, id)
	if err != nil {
		return "", err
	}
	if err := g.require(ctx, principal, permission.ReleaseStatus, info.ID); err != nil {
		return "", err
	}
	return g.lifecycle.ReleaseStatus(ctx, id, scope)
}

// GetReleaseStatuses reports the statuses of the instances the caller may see.
// Unknown instances and instances without RELEASE_STATUS are left out.
func (g *Gateway) GetReleaseStatuses(ctx context.Context, ids []uuid.UUID, scope models.TreeScope) (map[uuid.UUID]models.ReleaseStatus, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.GetReleaseStatuses")
	defer span.End()
	span.SetAttributes(attribute.Int("kg.instances", len(ids)))

	principal, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		info, err := g.lifecycle.Info(ctx, id)
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if principal.HasPermission(permission.ReleaseStatus, info.ID.Space, id) {
			visible = append(visible, id)
		}
	}
	return g.lifecycle.ReleaseStatuses(ctx, visible, scope)
}

// FindInstanceByIdentifiers resolves an instance at stage. Instances the caller
// may not read resolve to nil just like unknown ones.
func (g *Gateway) FindInstanceByIdentifiers(ctx context.Context, stage domain.DataStage, id uuid.UUID, identifiers []string) (*domain.InstanceID, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.FindInstanceByIdentifiers")
	defer span.End()

	principal, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := queryableStage(stage); err != nil {
		return nil, err
	}
	found, err := g.registry.FindInstanceByIdentifiers(ctx, stage, id, identifiers)
	if err != nil {
		g.countAmbiguity(err)
		return nil, err
	}
	if found == nil || !canSee(principal, stage, *found) {
		return nil, nil
	}
	return found, nil
}

// ResolveIDs resolves a batch aligned with requests.
func (g *Gateway) ResolveIDs(ctx context.Context, stage domain.DataStage, requests []registrymodels.ResolveRequest) ([]*domain.InstanceID, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.ResolveIDs")
	defer span.End()
	span.SetAttributes(attribute.Int("kg.requests", len(requests)))

	principal, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := queryableStage(stage); err != nil {
		return nil, err
	}
	resolved, err := g.registry.ResolveIDs(ctx, stage, requests)
	if err != nil {
		return nil, err
	}
	for i, found := range resolved {
		if found != nil && !canSee(principal, stage, *found) {
			resolved[i] = nil
		}
	}
	return resolved, nil
}

// Events lists the journal of one instance.
func (g *Gateway) Events(ctx context.Context, id uuid.UUID) ([]events.Persisted, error) {
	principal, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	info, err := g.lifecycle.Info(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := g.require(ctx, principal, permission.Read, info.ID); err != nil {
		return nil, err
	}
	list, err := g.journal.ListByInstance(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}
	return list, nil
}

// Replay reconciles an instance again from its stored contributions.
func (g *Gateway) Replay(ctx context.Context, id uuid.UUID) (*Result, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.Replay")
	defer span.End()

	principal, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	if !principal.HasGlobal(permission.RerunEventsForSpace) {
		return nil, g.deny(ctx, principal, permission.RerunEventsForSpace, domain.InstanceID{UUID: id})
	}
	info, err := g.lifecycle.Info(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &Result{ID: info.ID}
	err = g.uow.Run(ctx, id, func(ctx context.Context) error {
		rec, err := g.lifecycle.Materialize(ctx, info.ID)
		if err != nil {
			return err
		}
		result.Revision = rec.Revision
		after, err := g.lifecycle.Info(ctx, id)
		if err != nil {
			return err
		}
		result.Status = after.ReleaseStatus
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.logger.InfoContext(ctx, "instance replayed",
		"instance_id", id,
		"space", info.ID.Space,
		"revision", result.Revision,
		"user_id", principal.UserID(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// FailedEvents lists the most recent events that could not be applied.
func (g *Gateway) FailedEvents(ctx context.Context, limit int) ([]events.Persisted, error) {
	principal, err := principalFrom(ctx)
	if err != nil {
		return nil, err
	}
	if !principal.HasGlobal(permission.RerunEventsForSpace) {
		return nil, g.deny(ctx, principal, permission.RerunEventsForSpace, domain.InstanceID{})
	}
	list, err := g.journal.ListFailed(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list failed events")
	}
	return list, nil
}

func principalFrom(ctx context.Context) (*permission.Principal, error) {
	p, ok := permission.PrincipalFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return p, nil
}

func queryableStage(stage domain.DataStage) error {
	switch stage {
	case domain.StageInProgress, domain.StageReleased:
		return nil
	default:
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("instances can not be looked up at stage %q", stage))
	}
}

// canSee checks the read capabilities matching stage.
func canSee(p *permission.Principal, stage domain.DataStage, id domain.InstanceID) bool {
	if stage == domain.StageReleased {
		return p.HasPermission(permission.ReadReleased, id.Space, id.UUID) ||
			p.HasPermission(permission.MinimalReadReleased, id.Space, id.UUID)
	}
	return p.HasPermission(permission.Read, id.Space, id.UUID) ||
		p.HasPermission(permission.MinimalRead, id.Space, id.UUID)
}
