package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kgcore/internal/events"
	"kgcore/internal/instances/models"
	"kgcore/internal/permission"
	"kgcore/internal/reconcile"
	"kgcore/internal/space"
	"kgcore/pkg/domain"
	dErrors "kgcore/pkg/domain-errors"
	"kgcore/pkg/platform/sentinel"
	"kgcore/pkg/requestcontext"
)

// plan is an authorized event ready to be applied.
type plan struct {
	event       events.Event
	id          domain.InstanceID
	exists      bool
	space       *space.Space
	createSpace bool
	suggestion  bool
}

// PostEvent authorizes and applies one mutation. Events that fail while being
// applied are captured in the journal before the error is returned.
func (g *Gateway) PostEvent(ctx context.Context, e events.Event) (_ *Result, err error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "gateway.PostEvent", trace.WithAttributes(
		attribute.String("kg.event.type", string(e.Type)),
		attribute.String("kg.space", string(e.Space)),
		attribute.String("kg.instance", e.InstanceUUID.String()),
	))
	outcome := outcomeAccepted
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		g.observe(e.Type, outcome, start)
	}()

	principal, err := principalFrom(ctx)
	if err != nil {
		outcome = outcomeRejected
		return nil, err
	}
	if _, err := domain.ParseEventType(string(e.Type)); err != nil {
		outcome = outcomeRejected
		return nil, err
	}
	g.logger.InfoContext(ctx, "event received",
		"event_type", e.Type,
		"instance_id", e.InstanceUUID,
		"space", e.Space,
		"user_id", principal.UserID(),
		"client", clientLabel(principal),
		"request_id", requestcontext.RequestID(ctx),
	)

	p, err := g.plan(ctx, principal, e)
	if err != nil {
		outcome = outcomeRejected
		return nil, err
	}
	span.SetAttributes(attribute.String("kg.space", string(p.id.Space)), attribute.String("kg.instance", p.id.UUID.String()))
	if p.suggestion {
		outcome = outcomeSuggestion
	}

	persisted := events.Persist(p.event, principal.UserID(), principal.ClientID(), requestcontext.Now(ctx))
	persisted.Suggestion = p.suggestion

	var result *Result
	err = g.uow.Run(ctx, p.id.UUID, func(ctx context.Context) error {
		var applyErr error
		result, applyErr = g.apply(ctx, p, persisted)
		return applyErr
	})
	if err != nil {
		if g.capture(ctx, persisted, err) {
			outcome = outcomeFailed
		} else {
			outcome = outcomeRejected
		}
		return nil, err
	}
	return result, nil
}

// plan resolves the target of an event and checks the principal may apply it.
// It only reads; nothing is written until apply.
func (g *Gateway) plan(ctx context.Context, principal *permission.Principal, e events.Event) (*plan, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.authorize")
	defer span.End()

	e.Space = domain.ResolveSpace(e.Space, principal.UserID())
	if e.InstanceUUID == uuid.Nil {
		if e.Type != domain.EventInsert {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "instance id is required")
		}
		resolved, err := g.resolveInsertTarget(ctx, e.Document)
		if err != nil {
			return nil, err
		}
		e.InstanceUUID = resolved
	}

	p := &plan{}
	info, err := g.lifecycle.Info(ctx, e.InstanceUUID)
	switch {
	case err == nil:
		if e.Space != "" && e.Space != info.ID.Space {
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("instance %s belongs to space %s", e.InstanceUUID, info.ID.Space))
		}
		e.Space = info.ID.Space
		p.exists = true
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		if e.Type != domain.EventInsert && e.Type != domain.EventUpdate {
			return nil, err
		}
		if e.Space == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "space is required for a new instance")
		}
	default:
		return nil, err
	}
	p.id = domain.InstanceID{Space: e.Space, UUID: e.InstanceUUID}

	switch e.Type {
	case domain.EventInsert, domain.EventUpdate:
		if len(e.Document) == 0 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "document is required")
		}
		if err := g.planSpace(ctx, principal, p); err != nil {
			return nil, err
		}
		fallback := permission.Create
		if p.exists {
			fallback = permission.Write
		}
		capability := permission.SelectCapability(e.Document.Types(), e.Type, fallback)
		if !principal.HasPermission(capability, p.id.Space, p.id.UUID) {
			if capability != permission.Write || !principal.HasPermission(permission.Suggest, p.id.Space, p.id.UUID) {
				return nil, g.deny(ctx, principal, capability, p.id)
			}
			p.suggestion = true
		}
		e.Document = g.normalize(e.Document, p.id.UUID)
	case domain.EventDelete:
		if err := g.require(ctx, principal, permission.Delete, p.id); err != nil {
			return nil, err
		}
	case domain.EventRelease:
		if err := g.require(ctx, principal, permission.Release, p.id); err != nil {
			return nil, err
		}
	case domain.EventUnrelease:
		if err := g.require(ctx, principal, permission.Unrelease, p.id); err != nil {
			return nil, err
		}
	}
	p.event = e
	return p, nil
}

// resolveInsertTarget reuses an instance already known under one of the
// document's identifiers, or allocates a new uuid.
func (g *Gateway) resolveInsertTarget(ctx context.Context, doc domain.Document) (uuid.UUID, error) {
	identifiers := doc.Identifiers()
	if own := doc.ID(); own != "" {
		identifiers = append(identifiers, own)
	}
	if len(identifiers) == 0 {
		return uuid.New(), nil
	}
	found, err := g.registry.FindInstanceByIdentifiers(ctx, domain.StageInProgress, uuid.Nil, identifiers)
	if err != nil {
		g.countAmbiguity(err)
		return uuid.Nil, err
	}
	if found != nil {
		return found.UUID, nil
	}
	return uuid.New(), nil
}

// planSpace loads the target space. A missing space may be created by a
// principal holding MANAGE_SPACE on it.
func (g *Gateway) planSpace(ctx context.Context, principal *permission.Principal, p *plan) error {
	sp, err := g.spaces.Get(ctx, p.id.Space)
	if err == nil {
		p.space = sp
		return nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load space")
	}
	if !principal.HasPermission(permission.ManageSpace, p.id.Space, uuid.Nil) {
		g.logger.WarnContext(ctx, "space does not exist",
			"space", p.id.Space,
			"user_id", principal.UserID(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("space %s does not exist and you may not create it", p.id.Space))
	}
	p.space = &space.Space{
		Name:        p.id.Space,
		CreatedBy:   principal.UserID(),
		CreatedAt:   requestcontext.Now(ctx),
		ClientSpace: principal.ClientID() != "" && string(p.id.Space) == principal.ClientID(),
	}
	p.createSpace = true
	return nil
}

// normalize makes the instance's absolute id the document @id. A different
// @id supplied by the client is kept as an identifier.
func (g *Gateway) normalize(doc domain.Document, id uuid.UUID) domain.Document {
	out := doc.Clone()
	absolute := g.registry.AbsoluteID(id)
	if own := out.ID(); own != "" && own != absolute {
		out.SetIdentifiers(append(out.Identifiers(), own))
	}
	out.SetID(absolute)
	return out
}

func (g *Gateway) require(ctx context.Context, principal *permission.Principal, capability permission.Capability, id domain.InstanceID) error {
	if principal.HasPermission(capability, id.Space, id.UUID) {
		return nil
	}
	return g.deny(ctx, principal, capability, id)
}

func (g *Gateway) deny(ctx context.Context, principal *permission.Principal, capability permission.Capability, id domain.InstanceID) error {
	g.logger.WarnContext(ctx, "permission denied",
		"capability", capability,
		"space", id.Space,
		"instance_id", id.UUID,
		"user_id", principal.UserID(),
		"client", clientLabel(principal),
		"request_id", requestcontext.RequestID(ctx),
	)
	if g.metrics != nil {
		g.metrics.PermissionDenied.WithLabelValues(string(capability)).Inc()
	}
	return dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("missing %s permission on %s", capability, id))
}

// apply runs inside the unit of work.
func (g *Gateway) apply(ctx context.Context, p *plan, persisted events.Persisted) (*Result, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.apply")
	defer span.End()

	if p.createSpace {
		if err := g.spaces.Save(ctx, *p.space); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create space")
		}
		g.logger.InfoContext(ctx, "space created",
			"space", p.space.Name,
			"user_id", p.space.CreatedBy,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if err := g.journal.Append(ctx, persisted); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist event")
	}

	result := &Result{ID: p.id, EventID: persisted.ID, Suggestion: p.suggestion}
	switch persisted.Type {
	case domain.EventInsert, domain.EventUpdate:
		mode := reconcile.PatchMerge
		if persisted.ReplaceDocument {
			mode = reconcile.PatchReplace
		}
		if _, err := g.lifecycle.Contribute(ctx, p.id, persisted.UserID, persisted.Document, mode, p.suggestion); err != nil {
			return nil, err
		}
		rec, err := g.lifecycle.Materialize(ctx, p.id)
		if err != nil {
			return nil, err
		}
		result.Revision = rec.Revision
		if p.space.AutoRelease {
			if err := g.autoRelease(ctx, persisted, rec); err != nil {
				return nil, err
			}
		}
		info, err := g.lifecycle.Info(ctx, p.id.UUID)
		if err != nil {
			return nil, err
		}
		result.Status = info.ReleaseStatus

	case domain.EventDelete:
		if _, err := g.lifecycle.Delete(ctx, p.id.UUID); err != nil {
			return nil, err
		}

	case domain.EventRelease:
		rec, err := g.lifecycle.Release(ctx, p.id.UUID, persisted.ExpectedRevision)
		if err != nil {
			return nil, err
		}
		result.Revision = rec.Revision
		result.Status = models.StatusReleased

	case domain.EventUnrelease:
		if err := g.lifecycle.Unrelease(ctx, p.id.UUID); err != nil {
			return nil, err
		}
		result.Status = models.StatusUnreleased
	}
	return result, nil
}

// autoRelease publishes the freshly merged document of an auto-release space
// as a RELEASE event of its own.
func (g *Gateway) autoRelease(ctx context.Context, trigger events.Persisted, rec *models.InferredRecord) error {
	release := events.Persist(events.Event{
		Type:             domain.EventRelease,
		Space:            trigger.Space,
		InstanceUUID:     trigger.InstanceUUID,
		ReportedAt:       trigger.IndexedAt,
		ExpectedRevision: rec.Revision,
	}, trigger.UserID, trigger.ClientID, trigger.IndexedAt)
	if err := g.journal.Append(ctx, release); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist release event")
	}
	if _, err := g.lifecycle.Release(ctx, trigger.InstanceUUID, rec.Revision); err != nil {
		return err
	}
	g.logger.InfoContext(ctx, "instance auto-released",
		"instance_id", trigger.InstanceUUID,
		"space", trigger.Space,
		"revision", rec.Revision,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// capture journals a failed event outside the rolled back unit of work and
// reports whether it did. Client errors are only logged.
func (g *Gateway) capture(ctx context.Context, persisted events.Persisted, err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeTimeout:
	default:
		g.logger.WarnContext(ctx, "event rejected",
			"event_id", persisted.ID,
			"event_type", persisted.Type,
			"instance_id", persisted.InstanceUUID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return false
	}

	g.logger.ErrorContext(ctx, "event failed",
		"event_id", persisted.ID,
		"event_type", persisted.Type,
		"instance_id", persisted.InstanceUUID,
		"space", persisted.Space,
		"user_id", persisted.UserID,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	if g.metrics != nil {
		g.metrics.FailedEvents.Inc()
	}
	if appendErr := g.journal.Append(context.WithoutCancel(ctx), persisted.MarkFailed(err)); appendErr != nil {
		g.logger.ErrorContext(ctx, "failed to capture failed event",
			"event_id", persisted.ID,
			"error", appendErr,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return true
}

func (g *Gateway) observe(eventType domain.EventType, outcome string, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.EventsProcessed.WithLabelValues(string(eventType), outcome).Inc()
	g.metrics.PostEventDuration.WithLabelValues(string(eventType)).Observe(float64(time.Since(start).Milliseconds()))
}

func (g *Gateway) countAmbiguity(err error) {
	if g.metrics != nil && dErrors.HasCode(err, dErrors.CodeAmbiguous) {
		g.metrics.AmbiguousLookups.Inc()
	}
}

func clientLabel(p *permission.Principal) string {
	if p.ClientID() == "" {
		return "direct access"
	}
	return p.ClientID()
}
