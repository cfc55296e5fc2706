// Package reconcile merges the contributions of several contributors into one
// inferred document, field by field, newest value first.
package reconcile

import (
	"encoding/json"
	"slices"
	"sort"
	"time"

	"kgcore/pkg/domain"
	kgstrings "kgcore/pkg/platform/strings"
)

// Reconcile merges contributions. Contributions are ordered by insertion: when
// two contributors set a field at the same instant, the earlier contributor wins.
// With distinct timestamps the result does not depend on the order.
func Reconcile(contributions []Contribution) Inferred {
	out := Inferred{
		Document:         domain.Document{},
		FieldUpdateTimes: map[string]time.Time{},
		Alternatives:     map[string][]Alternative{},
		InferenceOf:      []string{},
	}
	if len(contributions) == 0 {
		return out
	}

	ids := make([]string, 0, len(contributions))
	for _, c := range contributions {
		if c.ID != "" {
			ids = append(ids, c.ID)
		}
	}
	out.InferenceOf = kgstrings.SortedSet(ids)

	for _, key := range mergeKeys(contributions) {
		candidates := candidatesFor(key, contributions)
		if len(candidates) == 0 {
			continue
		}
		switch key {
		case domain.KeyID:
			mergeID(out.Document, candidates)
		case domain.KeyType:
			out.Document[key] = toAnySlice(unionStrings(candidates, domain.Document.Types))
		case domain.KeyIdentifier:
			out.Document[key] = toAnySlice(unionStrings(candidates, domain.Document.Identifiers))
		default:
			if domain.IsJSONLDKeyword(key) {
				mergeKeyword(out.Document, key, candidates)
			} else {
				mergeField(&out, key, candidates)
			}
		}
	}
	return out
}

type candidate struct {
	index int
	c     Contribution
	value any
	at    time.Time
}

// mergeKeys is the sorted union of mergeable keys, including keys only known
// through their update timestamps.
func mergeKeys(contributions []Contribution) []string {
	seen := map[string]struct{}{}
	for _, c := range contributions {
		for k := range c.Document {
			seen[k] = struct{}{}
		}
		for k := range c.FieldUpdateTimes {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		if domain.IsInternalKey(k) || k == domain.KeyAlternative || k == domain.KeyUpdates {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// candidatesFor returns the contributors holding a value for key, newest first.
// A reset sentinel is never a candidate.
func candidatesFor(key string, contributions []Contribution) []candidate {
	var out []candidate
	for i, c := range contributions {
		v, ok := c.Document[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && s == domain.ResetValue {
			continue
		}
		out = append(out, candidate{index: i, c: c, value: v, at: c.FieldUpdateTimes[key]})
	}
	slices.SortStableFunc(out, func(a, b candidate) int {
		switch {
		case a.at.Equal(b.at):
			return a.index - b.index
		case a.at.IsZero():
			return 1
		case b.at.IsZero():
			return -1
		case a.at.After(b.at):
			return -1
		default:
			return 1
		}
	})
	return out
}

func mergeID(doc domain.Document, candidates []candidate) {
	ids := map[string]struct{}{}
	var id string
	for _, c := range candidates {
		if s, ok := c.value.(string); ok {
			ids[s] = struct{}{}
			id = s
		}
	}
	if len(ids) == 1 {
		doc[domain.KeyID] = id
	}
}

// mergeKeyword settles keywords such as @context, which carry no update times.
// The value with the smallest encoding wins so the result does not depend on
// contributor order.
func mergeKeyword(doc domain.Document, key string, candidates []candidate) {
	best, bestEncoded := candidates[0].value, encode(candidates[0].value)
	for _, c := range candidates[1:] {
		if e := encode(c.value); e < bestEncoded {
			best, bestEncoded = c.value, e
		}
	}
	doc[key] = best
}

func unionStrings(candidates []candidate, get func(domain.Document) []string) []string {
	var all [][]string
	for _, c := range candidates {
		all = append(all, get(c.c.Document))
	}
	return kgstrings.SortedSet(all...)
}

func mergeField(out *Inferred, key string, candidates []candidate) {
	var winner *candidate
	for i := range candidates {
		if !candidates[i].c.Suggestion {
			winner = &candidates[i]
			break
		}
	}
	if winner != nil {
		out.Document[key] = winner.value
		if !winner.at.IsZero() {
			out.FieldUpdateTimes[key] = winner.at
		}
	}
	if tracksAlternatives(key) {
		out.Alternatives[key] = alternatives(candidates, winner)
	}
}

func tracksAlternatives(key string) bool {
	if domain.IsJSONLDKeyword(key) {
		return false
	}
	switch key {
	case domain.KeyIdentifier, domain.KeyUser, domain.KeySpace:
		return false
	}
	return true
}

// alternatives groups candidates by distinct value. The winning value comes first,
// the rest are ordered by their encoding.
func alternatives(candidates []candidate, winner *candidate) []Alternative {
	type group struct {
		encoded string
		alt     Alternative
	}
	groups := map[string]*group{}
	winnerKey := ""
	if winner != nil {
		winnerKey = encode(winner.value)
	}
	for _, c := range candidates {
		k := encode(c.value)
		g, ok := groups[k]
		if !ok {
			g = &group{encoded: k, alt: Alternative{Value: c.value, Selected: winner != nil && k == winnerKey}}
			groups[k] = g
		}
		if !slices.Contains(g.alt.Users, c.c.UserID) {
			g.alt.Users = append(g.alt.Users, c.c.UserID)
		}
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		slices.Sort(g.alt.Users)
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].alt.Selected != ordered[j].alt.Selected {
			return ordered[i].alt.Selected
		}
		return ordered[i].encoded < ordered[j].encoded
	})

	out := make([]Alternative, len(ordered))
	for i, g := range ordered {
		out[i] = g.alt
	}
	return out
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
