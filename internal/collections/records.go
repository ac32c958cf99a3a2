package collections

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies one of the dashboard's record collections.
type Kind string

const (
	KindProject      Kind = "project"
	KindOpportunity  Kind = "opportunity"
	KindOrganization Kind = "organization"
	KindPerson       Kind = "person"
	KindArtifact     Kind = "artifact"
)

// Kinds returns every collection kind the dashboard knows about, in a
// stable order.
func Kinds() []Kind {
	return []Kind{KindProject, KindOpportunity, KindOrganization, KindPerson, KindArtifact}
}

// ParseKind maps a raw string (typically a URL path segment) to a Kind.
func ParseKind(raw string) (Kind, bool) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case KindProject, KindOpportunity, KindOrganization, KindPerson, KindArtifact:
		return kind, true
	default:
		return "", false
	}
}

// Record is the typed shape served to the dashboard. IDs are opaque and
// stable across fetches; LastModified is the upstream edit timestamp and
// is the only field change detection compares.
type Record struct {
	ID           string            `json:"id"`
	Kind         Kind              `json:"kind"`
	Title        string            `json:"title"`
	LastModified time.Time         `json:"lastModified"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// Field returns a named kind-specific field, or "" when absent.
func (r Record) Field(name string) string {
	return r.Fields[name]
}

// Snapshot is one fetched collection. Within a snapshot record IDs are
// unique; the translation boundary enforces that.
type Snapshot []Record

// Clone returns a shallow copy so callers can hold a snapshot without
// aliasing the cache's backing slice.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}

// sourceItem is the raw upstream page object. Everything beyond the id
// and edit timestamp is an arbitrary property bag; recordFromItem is the
// single place that bag is interpreted.
type sourceItem struct {
	ID             string         `json:"id"`
	LastEditedTime time.Time      `json:"last_edited_time"`
	Properties     map[string]any `json:"properties"`
}

var titleProperties = []string{"Name", "Title"}

func recordFromItem(kind Kind, item sourceItem) (Record, error) {
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return Record{}, fmt.Errorf("upstream item has no id")
	}
	fields := make(map[string]string, len(item.Properties))
	for name, value := range item.Properties {
		fields[name] = stringifyProperty(value)
	}
	record := Record{
		ID:           id,
		Kind:         kind,
		LastModified: item.LastEditedTime,
		Fields:       fields,
	}
	for _, prop := range titleProperties {
		if title := strings.TrimSpace(fields[prop]); title != "" {
			record.Title = title
			break
		}
	}
	return record, nil
}

// stringifyProperty flattens one upstream property value. Upstream sends
// strings, numbers, booleans, select-style objects with a "name" key, and
// arrays of any of those.
func stringifyProperty(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			return name
		}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, key+"="+stringifyProperty(v[key]))
		}
		return strings.Join(parts, ";")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, stringifyProperty(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", v)
	}
}
