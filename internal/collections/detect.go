package collections

// RecordChange pairs the cached and fresh versions of a changed record.
type RecordChange struct {
	ID     string `json:"id"`
	Before Record `json:"before"`
	After  Record `json:"after"`
}

// ChangeReport is the result of comparing a cached snapshot against a
// fresh one. It is derived on every comparison and never persisted.
type ChangeReport struct {
	Added      []Record       `json:"added"`
	Changed    []RecordChange `json:"changed"`
	Removed    []string       `json:"removed"`
	HasChanges bool           `json:"hasChanges"`
}

// Detect diffs two snapshots of the same kind by id. A record counts as
// changed when its LastModified differs — the upstream bumps that
// timestamp on any field mutation, so field-level equality is never
// inspected. The full diff is always computed; a length mismatch between
// the snapshots is not trusted as a change signal on its own.
func Detect(before, after Snapshot) ChangeReport {
	report := ChangeReport{}

	if before == nil {
		seen := make(map[string]bool, len(after))
		for _, record := range after {
			if seen[record.ID] {
				continue
			}
			seen[record.ID] = true
			report.Added = append(report.Added, record)
		}
		report.HasChanges = len(report.Added) > 0
		return report
	}

	previous := make(map[string]Record, len(before))
	for _, record := range before {
		if _, ok := previous[record.ID]; !ok {
			previous[record.ID] = record
		}
	}

	seen := make(map[string]bool, len(after))
	for _, record := range after {
		if seen[record.ID] {
			continue
		}
		seen[record.ID] = true
		old, ok := previous[record.ID]
		if !ok {
			report.Added = append(report.Added, record)
			continue
		}
		if !old.LastModified.Equal(record.LastModified) {
			report.Changed = append(report.Changed, RecordChange{ID: record.ID, Before: old, After: record})
		}
	}

	for _, record := range before {
		if _, ok := previous[record.ID]; !ok {
			continue
		}
		delete(previous, record.ID)
		if !seen[record.ID] {
			report.Removed = append(report.Removed, record.ID)
		}
	}

	report.HasChanges = len(report.Added) > 0 || len(report.Changed) > 0 || len(report.Removed) > 0
	return report
}
