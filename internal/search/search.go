// Package search accelerates case lookup with Meilisearch. The index is an
// advisory cache over the cases table: indexing is fire-and-forget and every
// read path has a Postgres fallback in the service layer.
package search

import "time"

// CaseRecord is the indexed projection of a case.
type CaseRecord struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Initials    string    `json:"initials"`
	Institution string    `json:"institution"`
	SearchKey   string    `json:"searchKey"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Query is a free-text case search scoped to one owner.
type Query struct {
	OwnerID string
	Text    string
	Limit   int
}
