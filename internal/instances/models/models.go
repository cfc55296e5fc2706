package models

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"kgcore/internal/reconcile"
	"kgcore/pkg/domain"
	dErrors "kgcore/pkg/domain-errors"
)

// ReleaseStatus relates the RELEASED copy of an instance to its IN_PROGRESS version.
type ReleaseStatus string

const (
	StatusUnreleased ReleaseStatus = "UNRELEASED"
	StatusReleased   ReleaseStatus = "RELEASED"
	StatusHasChanged ReleaseStatus = "HAS_CHANGED"
)

// TreeScope selects which instances a release status covers.
type TreeScope string

const (
	// ScopeTopInstanceOnly covers the instance alone.
	ScopeTopInstanceOnly TreeScope = "TOP_INSTANCE_ONLY"
	// ScopeChildrenOnly covers the instance and everything reachable through its links.
	ScopeChildrenOnly TreeScope = "CHILDREN_ONLY"
	// ScopeChildrenOnlyRestricted is ScopeChildrenOnly limited to the instance's own space.
	ScopeChildrenOnlyRestricted TreeScope = "CHILDREN_ONLY_RESTRICTED"
)

func ParseTreeScope(s string) (TreeScope, error) {
	switch TreeScope(s) {
	case "":
		return ScopeTopInstanceOnly, nil
	case ScopeTopInstanceOnly, ScopeChildrenOnly, ScopeChildrenOnlyRestricted:
		return TreeScope(s), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown release tree scope: "+s)
	}
}

// Info is the per-instance bookkeeping row.
type Info struct {
	ID            domain.InstanceID
	ReleaseStatus ReleaseStatus
}

// InferredRecord is the IN_PROGRESS representation.
type InferredRecord struct {
	ID        domain.InstanceID
	Inferred  reconcile.Inferred
	Revision  string
	UpdatedAt time.Time
}

// ReleasedRecord is the RELEASED copy.
type ReleasedRecord struct {
	ID         domain.InstanceID
	Document   domain.Document
	Revision   string
	ReleasedAt time.Time
}

// Revision fingerprints a document: the hex BLAKE2b-256 digest of its canonical encoding.
func Revision(doc domain.Document) (string, error) {
	canonical, err := doc.Canonical()
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	sum := blake2b.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Aggregate folds statuses: anything unreleased makes the whole unreleased,
// otherwise any change makes it changed.
func Aggregate(statuses []ReleaseStatus) ReleaseStatus {
	result := StatusReleased
	for _, st := range statuses {
		switch st {
		case StatusReleased:
		case StatusHasChanged:
			result = StatusHasChanged
		default:
			return StatusUnreleased
		}
	}
	return result
}
