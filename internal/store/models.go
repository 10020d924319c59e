package store

import (
	"time"

	"orienta/api/internal/taxonomy"
)

// Case is a pseudonymized subject: initials plus institution, never a real
// name. All child intervention rows hang off it by case_id.
type Case struct {
	ID              string
	OwnerID         string
	Initials        string
	InstitutionName string
	SearchKey       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InterventionRow is one persisted (domain, context) classification of an
// authored note. A note spanning three contexts is three rows sharing
// date/title/text.
type InterventionRow struct {
	ID             string
	CaseID         string
	OwnerID        string
	Date           time.Time
	Domain         taxonomy.Domain
	Context        taxonomy.Context
	OriginType     string
	Title          string
	OriginalText   string
	NormalizedText string
	Summary        string
	AttachmentRef  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CaseFilter narrows SearchCases. Zero values mean "no filter".
type CaseFilter struct {
	Query       string
	Institution string
	Domain      taxonomy.Domain
	Contexts    []taxonomy.Context
	Limit       int
}
