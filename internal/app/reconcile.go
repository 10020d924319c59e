package app

import (
	"orienta/api/internal/store"
	"orienta/api/internal/taxonomy"
)

// TagPair is one (domain, context) classification slot of a note; each pair
// maps to exactly one physical row.
type TagPair struct {
	Domain  taxonomy.Domain  `json:"domain"`
	Context taxonomy.Context `json:"context"`
}

// expandPairs resolves a selection of domains and contexts into the concrete
// pair set a note must occupy. A concrete context is pinned to its owning
// domain; selecting it without also selecting that domain is a validation
// failure, never a silent drop. The "other" wildcard fans across every
// selected domain.
func expandPairs(domains []taxonomy.Domain, contexts []taxonomy.Context) ([]TagPair, *DomainError) {
	if len(domains) == 0 {
		return nil, validationError("domains", "at least one domain is required")
	}
	if len(contexts) == 0 {
		return nil, validationError("contexts", "at least one context is required")
	}

	selected := make(map[taxonomy.Domain]bool, len(domains))
	ordered := make([]taxonomy.Domain, 0, len(domains))
	for _, domain := range domains {
		if !taxonomy.ValidDomain(domain) {
			return nil, validationError("domains", "unknown domain: "+string(domain))
		}
		if !selected[domain] {
			selected[domain] = true
			ordered = append(ordered, domain)
		}
	}

	seen := make(map[TagPair]bool)
	pairs := make([]TagPair, 0, len(contexts))
	appendPair := func(pair TagPair) {
		if !seen[pair] {
			seen[pair] = true
			pairs = append(pairs, pair)
		}
	}

	for _, context := range contexts {
		if context == taxonomy.ContextOther {
			for _, domain := range ordered {
				appendPair(TagPair{Domain: domain, Context: context})
			}
			continue
		}
		owner, ok := taxonomy.DomainOf(context)
		if !ok {
			return nil, validationError("contexts", "unknown context: "+string(context))
		}
		if !selected[owner] {
			return nil, validationError("contexts",
				"context "+string(context)+" requires domain "+string(owner)+" to be selected")
		}
		appendPair(TagPair{Domain: owner, Context: context})
	}

	return pairs, nil
}

// reconcilePlan is the minimal row churn that moves a note's existing rows to
// a desired pair set: reuse by exact pair match, create what is missing,
// delete what is no longer selected.
type reconcilePlan struct {
	updates []store.InterventionRow // existing rows reassigned to a kept pair
	creates []TagPair
	deletes []store.InterventionRow
}

// planReconcile buckets the note's member rows by their current pair, then
// walks the desired pairs in expansion order popping a matching row where one
// exists. Leftover rows become deletes. Row identity is preserved whenever a
// pair survives the edit.
func planReconcile(members []store.InterventionRow, desired []TagPair) reconcilePlan {
	buckets := make(map[TagPair][]store.InterventionRow, len(members))
	for _, row := range members {
		pair := TagPair{Domain: row.Domain, Context: row.Context}
		buckets[pair] = append(buckets[pair], row)
	}

	var plan reconcilePlan
	for _, pair := range desired {
		if queue := buckets[pair]; len(queue) > 0 {
			plan.updates = append(plan.updates, queue[0])
			buckets[pair] = queue[1:]
			continue
		}
		plan.creates = append(plan.creates, pair)
	}

	// Leftovers in member order keeps the delete list deterministic.
	remaining := make(map[string]bool)
	for _, queue := range buckets {
		for _, row := range queue {
			remaining[row.ID] = true
		}
	}
	for _, row := range members {
		if remaining[row.ID] {
			plan.deletes = append(plan.deletes, row)
		}
	}
	return plan
}
