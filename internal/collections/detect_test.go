package collections

import (
	"testing"
	"time"
)

func recordAt(id string, modified time.Time) Record {
	return Record{ID: id, Kind: KindProject, Title: "record " + id, LastModified: modified}
}

func TestDetectFirstSnapshotIsAllAdded(t *testing.T) {
	now := time.Now()
	after := Snapshot{recordAt("1", now), recordAt("2", now)}

	report := Detect(nil, after)

	if !report.HasChanges {
		t.Fatalf("expected changes for first snapshot")
	}
	if len(report.Added) != 2 || len(report.Changed) != 0 || len(report.Removed) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestDetectAddedChangedRemoved(t *testing.T) {
	t1 := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t1.Add(2 * time.Hour)

	before := Snapshot{recordAt("1", t1), recordAt("3", t1)}
	after := Snapshot{recordAt("1", t2), recordAt("2", t3)}

	report := Detect(before, after)

	if !report.HasChanges {
		t.Fatalf("expected changes")
	}
	if len(report.Changed) != 1 || report.Changed[0].ID != "1" {
		t.Fatalf("expected record 1 changed, got %+v", report.Changed)
	}
	if !report.Changed[0].Before.LastModified.Equal(t1) || !report.Changed[0].After.LastModified.Equal(t2) {
		t.Fatalf("expected before/after timestamps preserved, got %+v", report.Changed[0])
	}
	if len(report.Added) != 1 || report.Added[0].ID != "2" {
		t.Fatalf("expected record 2 added, got %+v", report.Added)
	}
	if len(report.Removed) != 1 || report.Removed[0] != "3" {
		t.Fatalf("expected record 3 removed, got %+v", report.Removed)
	}
}

func TestDetectIdenticalSnapshots(t *testing.T) {
	now := time.Now()
	before := Snapshot{recordAt("1", now), recordAt("2", now)}
	after := Snapshot{recordAt("1", now), recordAt("2", now)}

	report := Detect(before, after)

	if report.HasChanges {
		t.Fatalf("expected no changes, got %+v", report)
	}
	if len(report.Added) != 0 || len(report.Changed) != 0 || len(report.Removed) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestDetectEqualLengthsStillDiffed(t *testing.T) {
	// Same lengths, different membership: the id-level diff decides,
	// never the count.
	now := time.Now()
	before := Snapshot{recordAt("a", now), recordAt("b", now)}
	after := Snapshot{recordAt("a", now), recordAt("c", now)}

	report := Detect(before, after)

	if !report.HasChanges {
		t.Fatalf("expected changes despite matching lengths")
	}
	if len(report.Added) != 1 || report.Added[0].ID != "c" {
		t.Fatalf("expected c added, got %+v", report.Added)
	}
	if len(report.Removed) != 1 || report.Removed[0] != "b" {
		t.Fatalf("expected b removed, got %+v", report.Removed)
	}
}

func TestDetectDuplicateIDsCountedOnce(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Minute)
	before := Snapshot{recordAt("1", now), recordAt("1", later)}
	after := Snapshot{recordAt("1", now), recordAt("1", later), recordAt("2", now)}

	report := Detect(before, after)

	// First occurrence wins on both sides: id 1 is unchanged, id 2 new.
	if len(report.Added) != 1 || report.Added[0].ID != "2" {
		t.Fatalf("expected only record 2 added, got %+v", report.Added)
	}
	if len(report.Changed) != 0 || len(report.Removed) != 0 {
		t.Fatalf("expected duplicates to not produce changes, got %+v", report)
	}
}

func TestDetectRemovedOnly(t *testing.T) {
	now := time.Now()
	before := Snapshot{recordAt("1", now), recordAt("2", now)}
	after := Snapshot{recordAt("1", now)}

	report := Detect(before, after)

	if !report.HasChanges || len(report.Removed) != 1 || report.Removed[0] != "2" {
		t.Fatalf("expected record 2 removed, got %+v", report)
	}
}
