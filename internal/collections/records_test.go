package collections

import (
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	if kind, ok := ParseKind(" Project "); !ok || kind != KindProject {
		t.Fatalf("expected project, got %q ok=%t", kind, ok)
	}
	if _, ok := ParseKind("widget"); ok {
		t.Fatalf("expected widget to be rejected")
	}
	if _, ok := ParseKind(""); ok {
		t.Fatalf("expected empty string to be rejected")
	}
}

func TestRecordFromItem(t *testing.T) {
	edited := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	record, err := recordFromItem(KindProject, sourceItem{
		ID:             " p1 ",
		LastEditedTime: edited,
		Properties: map[string]any{
			"Name":   "River Cleanup",
			"Status": map[string]any{"name": "Active", "color": "green"},
			"Budget": float64(1250.5),
			"Shared": true,
			"Tags":   []any{"water", map[string]any{"name": "outdoors"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.ID != "p1" || record.Kind != KindProject || record.Title != "River Cleanup" {
		t.Fatalf("unexpected record identity: %+v", record)
	}
	if !record.LastModified.Equal(edited) {
		t.Fatalf("unexpected LastModified: %s", record.LastModified)
	}
	for field, want := range map[string]string{
		"Status": "Active",
		"Budget": "1250.5",
		"Shared": "true",
		"Tags":   "water,outdoors",
	} {
		if got := record.Field(field); got != want {
			t.Fatalf("field %q: got %q, want %q", field, got, want)
		}
	}
}

func TestRecordFromItemTitleFallsBackToTitleProperty(t *testing.T) {
	record, err := recordFromItem(KindArtifact, sourceItem{
		ID:         "a1",
		Properties: map[string]any{"Title": "Annual Report"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Title != "Annual Report" {
		t.Fatalf("unexpected title: %q", record.Title)
	}
}

func TestRecordFromItemRejectsMissingID(t *testing.T) {
	if _, err := recordFromItem(KindProject, sourceItem{ID: "  "}); err == nil {
		t.Fatalf("expected error for blank id")
	}
}

func TestStringifyPropertyObjectWithoutName(t *testing.T) {
	got := stringifyProperty(map[string]any{"start": "2026-01-01", "end": "2026-02-01"})
	if got != "end=2026-02-01;start=2026-01-01" {
		t.Fatalf("unexpected flattened object: %q", got)
	}
}

func TestSnapshotCloneDoesNotAlias(t *testing.T) {
	original := Snapshot{{ID: "p1", Title: "before"}}
	clone := original.Clone()
	clone[0].Title = "after"
	if original[0].Title != "before" {
		t.Fatalf("clone mutated the original snapshot")
	}
	if (Snapshot)(nil).Clone() != nil {
		t.Fatalf("nil snapshot should clone to nil")
	}
}

func TestProjectRoundTrip(t *testing.T) {
	edited := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	project := Project{
		ID:           "p1",
		Title:        "Youth Mentorship Circles",
		Status:       "Active",
		Lead:         "Dana Reyes",
		ImpactArea:   "Education",
		LastModified: edited,
	}
	got := ProjectFromRecord(project.Record())
	if got != project {
		t.Fatalf("round trip changed project: %+v", got)
	}
}

func TestPersonRoundTrip(t *testing.T) {
	person := Person{
		ID:          "per1",
		Title:       "Sam Okafor",
		Role:        "Organizer",
		Affiliation: "Northside Food Hub",
	}
	if got := PersonFromRecord(person.Record()); got != person {
		t.Fatalf("round trip changed person: %+v", got)
	}
}
