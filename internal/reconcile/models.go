package reconcile

import (
	"time"

	"kgcore/pkg/domain"
)

// Contribution is one contributor's version of an instance at the NATIVE stage.
// FieldUpdateTimes records when the contributor last set each field.
type Contribution struct {
	ID               string               `json:"id"`
	UserID           domain.UserID        `json:"user"`
	Document         domain.Document      `json:"document"`
	FieldUpdateTimes map[string]time.Time `json:"fieldUpdateTimes"`
	// Suggestion contributions never win a field; their values surface as alternatives.
	Suggestion bool `json:"suggestion,omitempty"`
}

// Alternative is one distinct value proposed for a field.
type Alternative struct {
	Value    any             `json:"value"`
	Users    []domain.UserID `json:"users"`
	Selected bool            `json:"selected"`
}

// Inferred is the merged view of all contributions.
type Inferred struct {
	Document         domain.Document          `json:"document"`
	FieldUpdateTimes map[string]time.Time     `json:"fieldUpdateTimes"`
	Alternatives     map[string][]Alternative `json:"alternatives"`
	// InferenceOf lists the contribution ids the document was derived from.
	InferenceOf []string `json:"inferenceOf"`
}

// ContributionID names the contribution of a user to an instance.
func ContributionID(instance string, user domain.UserID) string {
	return instance + "/" + string(user)
}
