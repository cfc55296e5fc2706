package reconcile

import (
	"maps"
	"time"

	"kgcore/pkg/domain"
)

// PatchMode selects how a patch combines with the contributor's previous document.
type PatchMode int

const (
	// PatchMerge keeps fields the patch does not mention.
	PatchMerge PatchMode = iota
	// PatchReplace drops fields the patch does not mention.
	PatchReplace
)

// ApplyPatch folds a contributor's patch into their previous contribution. Every
// field in the patch is stamped with at; a field set to domain.ResetValue is
// withdrawn together with its timestamp. base may be the zero Contribution.
func ApplyPatch(base Contribution, patch domain.Document, at time.Time, mode PatchMode) Contribution {
	out := Contribution{
		ID:               base.ID,
		UserID:           base.UserID,
		Suggestion:       base.Suggestion,
		Document:         base.Document.Clone(),
		FieldUpdateTimes: maps.Clone(base.FieldUpdateTimes),
	}
	if out.Document == nil {
		out.Document = domain.Document{}
	}
	if out.FieldUpdateTimes == nil {
		out.FieldUpdateTimes = map[string]time.Time{}
	}

	if mode == PatchReplace {
		for k := range out.Document {
			if _, kept := patch[k]; !kept && k != domain.KeyID {
				delete(out.Document, k)
				delete(out.FieldUpdateTimes, k)
			}
		}
	}

	for k, v := range patch.Clone() {
		if s, ok := v.(string); ok && s == domain.ResetValue {
			delete(out.Document, k)
			delete(out.FieldUpdateTimes, k)
			continue
		}
		out.Document[k] = v
		if !domain.IsJSONLDKeyword(k) {
			out.FieldUpdateTimes[k] = at
		}
	}
	return out
}
