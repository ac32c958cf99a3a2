package collections

import "time"

// Typed views over the generic Record shape, one per collection kind.
// The dashboard mostly consumes generic records; these exist so code
// that cares about a specific kind names its fields once, here, instead
// of scattering property-name strings.

type Project struct {
	ID           string
	Title        string
	Status       string
	Lead         string
	ImpactArea   string
	LastModified time.Time
}

func ProjectFromRecord(r Record) Project {
	return Project{
		ID:           r.ID,
		Title:        r.Title,
		Status:       r.Field("Status"),
		Lead:         r.Field("Lead"),
		ImpactArea:   r.Field("Impact Area"),
		LastModified: r.LastModified,
	}
}

func (p Project) Record() Record {
	return Record{
		ID:           p.ID,
		Kind:         KindProject,
		Title:        p.Title,
		LastModified: p.LastModified,
		Fields: map[string]string{
			"Name":        p.Title,
			"Status":      p.Status,
			"Lead":        p.Lead,
			"Impact Area": p.ImpactArea,
		},
	}
}

type Opportunity struct {
	ID           string
	Title        string
	Deadline     string
	Commitment   string
	Location     string
	LastModified time.Time
}

func OpportunityFromRecord(r Record) Opportunity {
	return Opportunity{
		ID:           r.ID,
		Title:        r.Title,
		Deadline:     r.Field("Deadline"),
		Commitment:   r.Field("Commitment"),
		Location:     r.Field("Location"),
		LastModified: r.LastModified,
	}
}

func (o Opportunity) Record() Record {
	return Record{
		ID:           o.ID,
		Kind:         KindOpportunity,
		Title:        o.Title,
		LastModified: o.LastModified,
		Fields: map[string]string{
			"Name":       o.Title,
			"Deadline":   o.Deadline,
			"Commitment": o.Commitment,
			"Location":   o.Location,
		},
	}
}

type Organization struct {
	ID           string
	Title        string
	Website      string
	Focus        string
	LastModified time.Time
}

func OrganizationFromRecord(r Record) Organization {
	return Organization{
		ID:           r.ID,
		Title:        r.Title,
		Website:      r.Field("Website"),
		Focus:        r.Field("Focus"),
		LastModified: r.LastModified,
	}
}

func (o Organization) Record() Record {
	return Record{
		ID:           o.ID,
		Kind:         KindOrganization,
		Title:        o.Title,
		LastModified: o.LastModified,
		Fields: map[string]string{
			"Name":    o.Title,
			"Website": o.Website,
			"Focus":   o.Focus,
		},
	}
}

type Person struct {
	ID           string
	Title        string
	Role         string
	Affiliation  string
	LastModified time.Time
}

func PersonFromRecord(r Record) Person {
	return Person{
		ID:           r.ID,
		Title:        r.Title,
		Role:         r.Field("Role"),
		Affiliation:  r.Field("Affiliation"),
		LastModified: r.LastModified,
	}
}

func (p Person) Record() Record {
	return Record{
		ID:           p.ID,
		Kind:         KindPerson,
		Title:        p.Title,
		LastModified: p.LastModified,
		Fields: map[string]string{
			"Name":        p.Title,
			"Role":        p.Role,
			"Affiliation": p.Affiliation,
		},
	}
}

type Artifact struct {
	ID           string
	Title        string
	URL          string
	MediaType    string
	LastModified time.Time
}

func ArtifactFromRecord(r Record) Artifact {
	return Artifact{
		ID:           r.ID,
		Title:        r.Title,
		URL:          r.Field("URL"),
		MediaType:    r.Field("Media Type"),
		LastModified: r.LastModified,
	}
}

func (a Artifact) Record() Record {
	return Record{
		ID:           a.ID,
		Kind:         KindArtifact,
		Title:        a.Title,
		LastModified: a.LastModified,
		Fields: map[string]string{
			"Name":       a.Title,
			"URL":        a.URL,
			"Media Type": a.MediaType,
		},
	}
}
