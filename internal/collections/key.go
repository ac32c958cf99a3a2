package collections

import (
	"sort"
	"strings"
)

// BuildKey derives the cache key for a query. Filter keys are sorted
// before serialization so semantically identical arguments always
// produce the same key regardless of map iteration order.
func BuildKey(kind Kind, filter map[string]string, sortSpec *SortSpec) string {
	var builder strings.Builder
	builder.Grow(64)
	builder.WriteString("k=")
	builder.WriteString(string(kind))

	if len(filter) > 0 {
		names := make([]string, 0, len(filter))
		for name := range filter {
			names = append(names, name)
		}
		sort.Strings(names)
		builder.WriteString("|f=")
		for i, name := range names {
			if i > 0 {
				builder.WriteByte(',')
			}
			builder.WriteString(name)
			builder.WriteByte(':')
			builder.WriteString(filter[name])
		}
	}

	if sortSpec != nil && sortSpec.Field != "" {
		builder.WriteString("|s=")
		builder.WriteString(sortSpec.Field)
		if sortSpec.Descending {
			builder.WriteString(":desc")
		} else {
			builder.WriteString(":asc")
		}
	}

	return builder.String()
}

// KindKeyPrefix is the prefix shared by every key for one kind. Kind
// names are never prefixes of each other, so prefix invalidation by kind
// is exact.
func KindKeyPrefix(kind Kind) string {
	return "k=" + string(kind)
}
