package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// Well-known document keys.
const (
	KeyID         = "@id"
	KeyType       = "@type"
	KeyContext    = "@context"
	KeyIdentifier = "http://schema.org/identifier"

	VocabNamespace = "https://kg.example.org/vocab/"
	KeyUser        = VocabNamespace + "meta/user"
	KeySpace       = VocabNamespace + "meta/space"
	KeyAlternative = VocabNamespace + "meta/alternative"
	KeyUpdates     = VocabNamespace + "meta/propertyUpdates"

	// ResetValue, used as a field value in a patch, withdraws the contributor's value for that field.
	ResetValue = VocabNamespace + "resetValue"

	// SpaceDefinitionType is the semantic type of documents that describe a space.
	SpaceDefinitionType = VocabNamespace + "meta/type/SpaceDefinition"
)

// Document is a JSON-LD style payload: a mapping of field names to values.
type Document map[string]any

// IsInternalKey reports keys that never take part in merging.
func IsInternalKey(key string) bool {
	return strings.HasPrefix(key, "_")
}

// IsJSONLDKeyword reports the JSON-LD structural keys.
func IsJSONLDKeyword(key string) bool {
	return strings.HasPrefix(key, "@")
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Document(t).Clone())
	case Document:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// ID returns the @id of the document, if any.
func (d Document) ID() string {
	id, _ := d[KeyID].(string)
	return id
}

// SetID sets @id.
func (d Document) SetID(id string) { d[KeyID] = id }

// Types returns the declared @type values.
func (d Document) Types() []string {
	return stringValues(d[KeyType])
}

// Identifiers returns the values of the schema.org identifier field.
func (d Document) Identifiers() []string {
	return stringValues(d[KeyIdentifier])
}

// SetIdentifiers replaces the identifier field with a sorted, deduplicated list.
func (d Document) SetIdentifiers(ids []string) {
	set := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := set[id]; ok {
			continue
		}
		set[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	values := make([]any, len(out))
	for i, id := range out {
		values[i] = id
	}
	d[KeyIdentifier] = values
}

// References returns the @id values of all embedded link objects, sorted and deduplicated.
func (d Document) References() []string {
	seen := map[string]struct{}{}
	for k, v := range d {
		if IsJSONLDKeyword(k) || IsInternalKey(k) || k == KeyIdentifier {
			continue
		}
		collectRefs(v, seen)
	}
	out := make([]string, 0, len(seen))
	for ref := range seen {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

func collectRefs(v any, seen map[string]struct{}) {
	switch t := v.(type) {
	case map[string]any:
		if id, ok := t[KeyID].(string); ok && id != "" {
			seen[id] = struct{}{}
		}
		for k, nested := range t {
			if k != KeyID {
				collectRefs(nested, seen)
			}
		}
	case Document:
		collectRefs(map[string]any(t), seen)
	case []any:
		for _, e := range t {
			collectRefs(e, seen)
		}
	}
}

// Canonical returns a stable JSON encoding; map keys are emitted in sorted order.
func (d Document) Canonical() ([]byte, error) {
	return json.Marshal(d)
}

// Equal compares two documents by their canonical encoding.
func (d Document) Equal(other Document) bool {
	a, errA := d.Canonical()
	b, errB := other.Canonical()
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

func stringValues(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
