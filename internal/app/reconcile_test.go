package app

import (
	"reflect"
	"testing"

	"orienta/api/internal/store"
	"orienta/api/internal/taxonomy"
)

func TestExpandPairs(t *testing.T) {
	cases := []struct {
		name     string
		domains  []taxonomy.Domain
		contexts []taxonomy.Context
		want     []TagPair
		wantErr  string
	}{
		{
			name:     "concrete context under its domain",
			domains:  []taxonomy.Domain{taxonomy.DomainInstitutional},
			contexts: []taxonomy.Context{taxonomy.ContextTutoring},
			want:     []TagPair{{taxonomy.DomainInstitutional, taxonomy.ContextTutoring}},
		},
		{
			name:     "context whose domain is not selected",
			domains:  []taxonomy.Domain{taxonomy.DomainInstitutional},
			contexts: []taxonomy.Context{taxonomy.ContextFamily},
			wantErr:  "VALIDATION_ERROR",
		},
		{
			name:     "one landing context does not excuse a stranded one",
			domains:  []taxonomy.Domain{taxonomy.DomainInstitutional},
			contexts: []taxonomy.Context{taxonomy.ContextEvaluation, taxonomy.ContextFamily},
			wantErr:  "VALIDATION_ERROR",
		},
		{
			name:     "other fans across every selected domain",
			domains:  []taxonomy.Domain{taxonomy.DomainInstitutional, taxonomy.DomainSocioCommunity},
			contexts: []taxonomy.Context{taxonomy.ContextOther},
			want: []TagPair{
				{taxonomy.DomainInstitutional, taxonomy.ContextOther},
				{taxonomy.DomainSocioCommunity, taxonomy.ContextOther},
			},
		},
		{
			name:     "mixed concrete and wildcard",
			domains:  []taxonomy.Domain{taxonomy.DomainInstitutional, taxonomy.DomainSocioCommunity},
			contexts: []taxonomy.Context{taxonomy.ContextFamily, taxonomy.ContextOther},
			want: []TagPair{
				{taxonomy.DomainSocioCommunity, taxonomy.ContextFamily},
				{taxonomy.DomainInstitutional, taxonomy.ContextOther},
				{taxonomy.DomainSocioCommunity, taxonomy.ContextOther},
			},
		},
		{
			name:     "duplicates collapse",
			domains:  []taxonomy.Domain{taxonomy.DomainInstitutional, taxonomy.DomainInstitutional},
			contexts: []taxonomy.Context{taxonomy.ContextTutoring, taxonomy.ContextTutoring},
			want:     []TagPair{{taxonomy.DomainInstitutional, taxonomy.ContextTutoring}},
		},
		{
			name:     "no domains",
			domains:  nil,
			contexts: []taxonomy.Context{taxonomy.ContextTutoring},
			wantErr:  "VALIDATION_ERROR",
		},
		{
			name:     "no contexts",
			domains:  []taxonomy.Domain{taxonomy.DomainInstitutional},
			contexts: nil,
			wantErr:  "VALIDATION_ERROR",
		},
		{
			name:     "unknown domain",
			domains:  []taxonomy.Domain{"pedagogical"},
			contexts: []taxonomy.Context{taxonomy.ContextTutoring},
			wantErr:  "VALIDATION_ERROR",
		},
		{
			name:     "unknown context",
			domains:  []taxonomy.Domain{taxonomy.DomainInstitutional},
			contexts: []taxonomy.Context{"homework"},
			wantErr:  "VALIDATION_ERROR",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := expandPairs(tc.domains, tc.contexts)
			if tc.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error %s, got pairs %v", tc.wantErr, got)
				}
				if err.Code != tc.wantErr {
					t.Fatalf("error code = %s, want %s", err.Code, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("pairs = %v, want %v", got, tc.want)
			}
		})
	}
}

func memberIDs(rows []store.InterventionRow) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

func TestPlanReconcileReusesMatchingRows(t *testing.T) {
	members := []store.InterventionRow{
		testRow("r1", "2026-03-10", taxonomy.DomainInstitutional, taxonomy.ContextTutoring, "Nota", "Texto"),
		testRow("r2", "2026-03-10", taxonomy.DomainInstitutional, taxonomy.ContextEvaluation, "Nota", "Texto"),
	}
	desired := []TagPair{
		{taxonomy.DomainInstitutional, taxonomy.ContextEvaluation},
		{taxonomy.DomainInstitutional, taxonomy.ContextClassroom},
	}

	plan := planReconcile(members, desired)

	if got := memberIDs(plan.updates); !reflect.DeepEqual(got, []string{"r2"}) {
		t.Errorf("updates = %v, want [r2]", got)
	}
	wantCreates := []TagPair{{taxonomy.DomainInstitutional, taxonomy.ContextClassroom}}
	if !reflect.DeepEqual(plan.creates, wantCreates) {
		t.Errorf("creates = %v, want %v", plan.creates, wantCreates)
	}
	if got := memberIDs(plan.deletes); !reflect.DeepEqual(got, []string{"r1"}) {
		t.Errorf("deletes = %v, want [r1]", got)
	}
}

func TestPlanReconcileIdenticalSelectionIsAllUpdates(t *testing.T) {
	members := []store.InterventionRow{
		testRow("r1", "2026-03-10", taxonomy.DomainInstitutional, taxonomy.ContextTutoring, "Nota", "Texto"),
		testRow("r2", "2026-03-10", taxonomy.DomainSocioCommunity, taxonomy.ContextFamily, "Nota", "Texto"),
	}
	desired := []TagPair{
		{taxonomy.DomainInstitutional, taxonomy.ContextTutoring},
		{taxonomy.DomainSocioCommunity, taxonomy.ContextFamily},
	}

	plan := planReconcile(members, desired)
	if len(plan.updates) != 2 || len(plan.creates) != 0 || len(plan.deletes) != 0 {
		t.Fatalf("plan = %d updates, %d creates, %d deletes; want 2/0/0",
			len(plan.updates), len(plan.creates), len(plan.deletes))
	}
}

func TestPlanReconcileDrainsDuplicatePairRows(t *testing.T) {
	// Two physical rows carrying the same pair: one is reused, the surplus
	// one is deleted.
	members := []store.InterventionRow{
		testRow("r1", "2026-03-10", taxonomy.DomainInstitutional, taxonomy.ContextTutoring, "Nota", "Texto"),
		testRow("r2", "2026-03-10", taxonomy.DomainInstitutional, taxonomy.ContextTutoring, "Nota", "Texto"),
	}
	desired := []TagPair{{taxonomy.DomainInstitutional, taxonomy.ContextTutoring}}

	plan := planReconcile(members, desired)
	if got := memberIDs(plan.updates); !reflect.DeepEqual(got, []string{"r1"}) {
		t.Errorf("updates = %v, want [r1]", got)
	}
	if len(plan.creates) != 0 {
		t.Errorf("creates = %v, want none", plan.creates)
	}
	if got := memberIDs(plan.deletes); !reflect.DeepEqual(got, []string{"r2"}) {
		t.Errorf("deletes = %v, want [r2]", got)
	}
}

func TestPlanReconcileEmptyMembersCreatesEverything(t *testing.T) {
	desired := []TagPair{
		{taxonomy.DomainInstitutional, taxonomy.ContextOther},
		{taxonomy.DomainSocioCommunity, taxonomy.ContextOther},
	}
	plan := planReconcile(nil, desired)
	if len(plan.updates) != 0 || len(plan.deletes) != 0 {
		t.Fatalf("expected creates only, got %d updates %d deletes", len(plan.updates), len(plan.deletes))
	}
	if !reflect.DeepEqual(plan.creates, desired) {
		t.Fatalf("creates = %v, want %v", plan.creates, desired)
	}
}
