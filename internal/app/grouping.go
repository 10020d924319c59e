package app

import (
	"sort"
	"strings"
	"time"

	"orienta/api/internal/store"
	"orienta/api/internal/taxonomy"
)

// LogicalIntervention is the derived, never-persisted view of one authored
// note: every physical row sharing the same date, domain, title and text.
type LogicalIntervention struct {
	GroupKey     string             `json:"groupKey"`
	MemberRowIDs []string           `json:"memberRowIds"`
	Domain       taxonomy.Domain    `json:"domain"`
	Contexts     []taxonomy.Context `json:"contexts"`
	Date         time.Time          `json:"date"`
	Title        string             `json:"title"`
	Text         string             `json:"text"`
}

const dateLayout = "2006-01-02"

// groupKey clusters rows of the same authored note. Domain is part of the key,
// so a note fanned across both domains through the "other" wildcard surfaces
// as one logical note per domain.
func groupKey(row store.InterventionRow) string {
	return strings.Join([]string{
		row.Date.Format(dateLayout),
		string(row.Domain),
		strings.TrimSpace(strings.ToLower(row.Title)),
		strings.TrimSpace(row.OriginalText),
	}, "|")
}

// Group folds physical rows into logical notes. Pure and deterministic: the
// same row set always yields the same output, contexts and member ids keep
// first-appearance order, and the result is sorted by date descending with
// the group key as descending tie-break.
func Group(rows []store.InterventionRow) []LogicalIntervention {
	byKey := make(map[string]*LogicalIntervention, len(rows))
	order := make([]string, 0, len(rows))

	for _, row := range rows {
		key := groupKey(row)
		group, ok := byKey[key]
		if !ok {
			group = &LogicalIntervention{
				GroupKey: key,
				Domain:   row.Domain,
				Date:     row.Date,
				Title:    row.Title,
				Text:     row.OriginalText,
			}
			byKey[key] = group
			order = append(order, key)
		}
		group.MemberRowIDs = append(group.MemberRowIDs, row.ID)
		if !containsContext(group.Contexts, row.Context) {
			group.Contexts = append(group.Contexts, row.Context)
		}
	}

	out := make([]LogicalIntervention, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].GroupKey > out[j].GroupKey
	})
	return out
}

func containsContext(contexts []taxonomy.Context, context taxonomy.Context) bool {
	for _, c := range contexts {
		if c == context {
			return true
		}
	}
	return false
}
