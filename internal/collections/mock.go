package collections

import "time"

// Static placeholder collections served only when the operator enables
// mock fallback and the whole fetch chain has failed. Timestamps are
// fixed so repeated mock serves never look like changes.

var mockEpoch = time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)

var mockSnapshots = map[Kind]Snapshot{
	KindProject: {
		Project{ID: "mock-project-1", Title: "Youth Mentorship Circles", Status: "Active", Lead: "Dana Okafor", ImpactArea: "Youth Justice", LastModified: mockEpoch}.Record(),
		Project{ID: "mock-project-2", Title: "Community Garden Network", Status: "Planning", Lead: "Luis Herrera", ImpactArea: "Food Security", LastModified: mockEpoch}.Record(),
		Project{ID: "mock-project-3", Title: "Digital Skills Lab", Status: "Active", Lead: "Amara Chen", ImpactArea: "Education", LastModified: mockEpoch}.Record(),
	},
	KindOpportunity: {
		Opportunity{ID: "mock-opportunity-1", Title: "Weekend Tutoring Volunteers", Deadline: "2025-03-01", Commitment: "4h/week", Location: "Eastside Library", LastModified: mockEpoch}.Record(),
		Opportunity{ID: "mock-opportunity-2", Title: "Grant Writing Support", Deadline: "2025-02-15", Commitment: "Project-based", Location: "Remote", LastModified: mockEpoch}.Record(),
	},
	KindOrganization: {
		Organization{ID: "mock-organization-1", Title: "Bridgewater Youth Alliance", Website: "https://example.org/bya", Focus: "Youth Justice", LastModified: mockEpoch}.Record(),
		Organization{ID: "mock-organization-2", Title: "Harvest Commons", Website: "https://example.org/harvest", Focus: "Food Security", LastModified: mockEpoch}.Record(),
	},
	KindPerson: {
		Person{ID: "mock-person-1", Title: "Dana Okafor", Role: "Program Lead", Affiliation: "Bridgewater Youth Alliance", LastModified: mockEpoch}.Record(),
		Person{ID: "mock-person-2", Title: "Luis Herrera", Role: "Coordinator", Affiliation: "Harvest Commons", LastModified: mockEpoch}.Record(),
	},
	KindArtifact: {
		Artifact{ID: "mock-artifact-1", Title: "2024 Impact Report", URL: "https://example.org/reports/2024", MediaType: "application/pdf", LastModified: mockEpoch}.Record(),
		Artifact{ID: "mock-artifact-2", Title: "Mentorship Launch Photos", URL: "https://example.org/media/launch", MediaType: "image/jpeg", LastModified: mockEpoch}.Record(),
	},
}

// MockSnapshot returns a copy of the placeholder collection for a kind.
func MockSnapshot(kind Kind) Snapshot {
	return mockSnapshots[kind].Clone()
}
