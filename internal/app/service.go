package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"orienta/api/internal/search"
	"orienta/api/internal/store"
	"orienta/api/internal/taxonomy"
	"orienta/api/internal/util"
)

type CreateCaseInput struct {
	Initials    string `json:"initials"`
	Institution string `json:"institution"`
}

type UpdateCaseInput struct {
	ID          string `json:"id"`
	Initials    string `json:"initials"`
	Institution string `json:"institution"`
}

type SearchCasesInput struct {
	Query       string
	Institution string
	Domain      string
	Contexts    []string
	Limit       int
}

type CreateInterventionInput struct {
	CaseID        string   `json:"caseId"`
	Date          string   `json:"date"`
	Domains       []string `json:"domains"`
	Contexts      []string `json:"contexts"`
	Title         string   `json:"title"`
	Text          string   `json:"text"`
	AttachmentRef string   `json:"attachmentRef"`
}

type UpdateInterventionInput struct {
	ID      string `json:"id"`
	Date    string `json:"date"`
	Domain  string `json:"domain"`
	Context string `json:"context"`
	Title   string `json:"title"`
	Text    string `json:"text"`
}

type ReconcileInput struct {
	CaseID       string   `json:"caseId"`
	MemberRowIDs []string `json:"memberRowIds"`
	Date         string   `json:"date"`
	Title        string   `json:"title"`
	Text         string   `json:"text"`
	Domains      []string `json:"domains"`
	Contexts     []string `json:"contexts"`
}

// OperationFailure identifies one failed sub-operation of a reconciliation
// apply, so the caller can retry just that piece.
type OperationFailure struct {
	Op      string `json:"op"`
	RowID   string `json:"rowId,omitempty"`
	Domain  string `json:"domain"`
	Context string `json:"context"`
	Error   string `json:"error"`
}

// ReconcileResult reports what the apply actually did. Failures being
// non-empty does not undo the operations that succeeded.
type ReconcileResult struct {
	Updated    []store.InterventionRow
	Created    []store.InterventionRow
	DeletedIDs []string
	Failures   []OperationFailure
	Rows       []store.InterventionRow
}

type dataStore interface {
	CreateCase(context.Context, store.Case) (store.Case, error)
	GetCase(context.Context, string, string) (store.Case, error)
	UpdateCase(context.Context, store.Case) (store.Case, error)
	DeleteCase(context.Context, string, string) error
	TouchCase(context.Context, string, string) error
	SearchCases(context.Context, string, store.CaseFilter) ([]store.Case, error)
	ListInterventions(context.Context, string, string) ([]store.InterventionRow, error)
	GetInterventionRow(context.Context, string, string) (store.InterventionRow, error)
	InsertInterventionRows(context.Context, []store.InterventionRow) ([]store.InterventionRow, error)
	UpdateInterventionRow(context.Context, store.InterventionRow) (store.InterventionRow, error)
	DeleteInterventionRow(context.Context, string, string) (string, error)
	Ping(ctx context.Context) error
}

type Service struct {
	store  dataStore
	search *search.Service
}

func New(dataStore *store.PostgresStore, searchService *search.Service) *Service {
	return &Service{store: dataStore, search: searchService}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) GetCase(ctx context.Context, ownerID, caseID string) (store.Case, error) {
	if strings.TrimSpace(caseID) == "" {
		return store.Case{}, validationError("caseId", "case id is required")
	}
	item, err := s.store.GetCase(ctx, ownerID, caseID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Case{}, notFoundError("case not found")
	}
	return item, err
}

const (
	minInitialsLen    = 2
	minInstitutionLen = 2
	minTitleLen       = 3
	minTextLen        = 10
	maxTextLen        = 12000
)

func normalizeCaseInput(initials, institution string) (string, string, *DomainError) {
	normInitials := NormalizeInitials(initials)
	if len([]rune(normInitials)) < minInitialsLen {
		return "", "", validationError("initials", "initials must contain at least 2 letters")
	}
	normInstitution := NormalizeInstitution(institution)
	if len([]rune(normInstitution)) < minInstitutionLen {
		return "", "", validationError("institution", "institution name must contain at least 2 characters")
	}
	return normInitials, normInstitution, nil
}

func (s *Service) CreateCase(ctx context.Context, ownerID string, input CreateCaseInput) (store.Case, error) {
	initials, institution, verr := normalizeCaseInput(input.Initials, input.Institution)
	if verr != nil {
		return store.Case{}, verr
	}

	created, err := s.store.CreateCase(ctx, store.Case{
		ID:              util.NewID("case"),
		OwnerID:         ownerID,
		Initials:        initials,
		InstitutionName: institution,
		SearchKey:       SearchKey(initials, institution),
	})
	if errors.Is(err, store.ErrConflict) {
		return store.Case{}, conflictError("a case with these initials and institution already exists")
	}
	if err != nil {
		return store.Case{}, err
	}

	s.indexCase(created)
	return created, nil
}

func (s *Service) UpdateCase(ctx context.Context, ownerID string, input UpdateCaseInput) (store.Case, error) {
	if strings.TrimSpace(input.ID) == "" {
		return store.Case{}, validationError("id", "case id is required")
	}
	initials, institution, verr := normalizeCaseInput(input.Initials, input.Institution)
	if verr != nil {
		return store.Case{}, verr
	}

	updated, err := s.store.UpdateCase(ctx, store.Case{
		ID:              input.ID,
		OwnerID:         ownerID,
		Initials:        initials,
		InstitutionName: institution,
		SearchKey:       SearchKey(initials, institution),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return store.Case{}, notFoundError("case not found")
	}
	if errors.Is(err, store.ErrConflict) {
		return store.Case{}, conflictError("another case with these initials and institution already exists")
	}
	if err != nil {
		return store.Case{}, err
	}

	s.indexCase(updated)
	return updated, nil
}

func (s *Service) DeleteCase(ctx context.Context, ownerID, caseID string) error {
	if strings.TrimSpace(caseID) == "" {
		return validationError("id", "case id is required")
	}
	err := s.store.DeleteCase(ctx, ownerID, caseID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundError("case not found")
	}
	if err != nil {
		return err
	}
	s.search.RemoveCase(caseID)
	return nil
}

func (s *Service) SearchCases(ctx context.Context, ownerID string, input SearchCasesInput) ([]store.Case, error) {
	filter := store.CaseFilter{
		Query:       FoldQuery(input.Query),
		Institution: strings.TrimSpace(input.Institution),
		Limit:       input.Limit,
	}
	if input.Domain != "" {
		domain := taxonomy.Domain(input.Domain)
		if !taxonomy.ValidDomain(domain) {
			return nil, validationError("domain", "unknown domain: "+input.Domain)
		}
		filter.Domain = domain
	}
	for _, raw := range input.Contexts {
		tag := taxonomy.Context(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		if _, ok := taxonomy.DomainOf(tag); !ok && tag != taxonomy.ContextOther {
			return nil, validationError("contexts", "unknown context: "+string(tag))
		}
		filter.Contexts = append(filter.Contexts, tag)
	}

	// Free-text-only queries can be answered from the index; anything with
	// intervention filters needs the join in the store.
	if filter.Query != "" && filter.Institution == "" && filter.Domain == "" && len(filter.Contexts) == 0 {
		if records, ok := s.search.Search(search.Query{OwnerID: ownerID, Text: filter.Query, Limit: filter.Limit}); ok {
			return recordsToCases(ownerID, records), nil
		}
	}

	return s.store.SearchCases(ctx, ownerID, filter)
}

func recordsToCases(ownerID string, records []search.CaseRecord) []store.Case {
	cases := make([]store.Case, 0, len(records))
	for _, record := range records {
		if record.OwnerID != ownerID {
			continue
		}
		cases = append(cases, store.Case{
			ID:              record.ID,
			OwnerID:         record.OwnerID,
			Initials:        record.Initials,
			InstitutionName: record.Institution,
			SearchKey:       record.SearchKey,
			UpdatedAt:       record.UpdatedAt,
		})
	}
	return cases
}

func (s *Service) indexCase(item store.Case) {
	s.search.IndexCase(search.CaseRecord{
		ID:          item.ID,
		OwnerID:     item.OwnerID,
		Initials:    item.Initials,
		Institution: item.InstitutionName,
		SearchKey:   item.SearchKey,
		UpdatedAt:   item.UpdatedAt,
	})
}

func (s *Service) ListInterventions(ctx context.Context, ownerID, caseID string) ([]store.InterventionRow, error) {
	if strings.TrimSpace(caseID) == "" {
		return nil, validationError("caseId", "case id is required")
	}
	if _, err := s.store.GetCase(ctx, ownerID, caseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundError("case not found")
		}
		return nil, err
	}
	return s.store.ListInterventions(ctx, ownerID, caseID)
}

func parseDate(raw string) (time.Time, *DomainError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, validationError("date", "date is required")
	}
	if t, err := time.Parse(dateLayout, trimmed); err == nil {
		return t, nil
	}
	// Tolerate full timestamps from JavaScript date pickers.
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, validationError("date", "date must be formatted YYYY-MM-DD")
}

func validateNote(title, text string) (string, string, *DomainError) {
	trimmedTitle := strings.TrimSpace(title)
	if len([]rune(trimmedTitle)) < minTitleLen {
		return "", "", validationError("title", "title must contain at least 3 characters")
	}
	trimmedText := strings.TrimSpace(text)
	if len([]rune(trimmedText)) < minTextLen {
		return "", "", validationError("text", "text must contain at least 10 characters")
	}
	if len([]rune(trimmedText)) > maxTextLen {
		return "", "", validationError("text", "text must not exceed 12000 characters")
	}
	return trimmedTitle, trimmedText, nil
}

func toDomains(raw []string) []taxonomy.Domain {
	domains := make([]taxonomy.Domain, 0, len(raw))
	for _, value := range raw {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			domains = append(domains, taxonomy.Domain(trimmed))
		}
	}
	return domains
}

func toContexts(raw []string) []taxonomy.Context {
	contexts := make([]taxonomy.Context, 0, len(raw))
	for _, value := range raw {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			contexts = append(contexts, taxonomy.Context(trimmed))
		}
	}
	return contexts
}

// CreateInterventionBatch persists one row per expanded (domain, context)
// pair, all sharing the note's date, title and text.
func (s *Service) CreateInterventionBatch(ctx context.Context, ownerID string, input CreateInterventionInput) ([]store.InterventionRow, error) {
	if strings.TrimSpace(input.CaseID) == "" {
		return nil, validationError("caseId", "case id is required")
	}
	date, verr := parseDate(input.Date)
	if verr != nil {
		return nil, verr
	}
	title, text, verr := validateNote(input.Title, input.Text)
	if verr != nil {
		return nil, verr
	}
	pairs, verr := expandPairs(toDomains(input.Domains), toContexts(input.Contexts))
	if verr != nil {
		return nil, verr
	}

	if _, err := s.store.GetCase(ctx, ownerID, input.CaseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundError("case not found")
		}
		return nil, err
	}

	rows := make([]store.InterventionRow, 0, len(pairs))
	for _, pair := range pairs {
		rows = append(rows, store.InterventionRow{
			ID:             util.NewID("ivr"),
			CaseID:         input.CaseID,
			OwnerID:        ownerID,
			Date:           date,
			Domain:         pair.Domain,
			Context:        pair.Context,
			OriginType:     "manual",
			Title:          title,
			OriginalText:   text,
			NormalizedText: NormalizeText(text),
			AttachmentRef:  strings.TrimSpace(input.AttachmentRef),
		})
	}

	inserted, err := s.store.InsertInterventionRows(ctx, rows)
	if err != nil {
		return nil, err
	}

	s.touchCase(ctx, ownerID, input.CaseID)
	return inserted, nil
}

func (s *Service) UpdateIntervention(ctx context.Context, ownerID string, input UpdateInterventionInput) (store.InterventionRow, error) {
	if strings.TrimSpace(input.ID) == "" {
		return store.InterventionRow{}, validationError("id", "row id is required")
	}
	date, verr := parseDate(input.Date)
	if verr != nil {
		return store.InterventionRow{}, verr
	}
	title, text, verr := validateNote(input.Title, input.Text)
	if verr != nil {
		return store.InterventionRow{}, verr
	}
	domain := taxonomy.Domain(strings.TrimSpace(input.Domain))
	tag := taxonomy.Context(strings.TrimSpace(input.Context))
	if !taxonomy.IsCompatible(domain, tag) {
		return store.InterventionRow{}, validationError("context", "context is not valid under the selected domain")
	}

	updated, err := s.store.UpdateInterventionRow(ctx, store.InterventionRow{
		ID:             input.ID,
		OwnerID:        ownerID,
		Date:           date,
		Domain:         domain,
		Context:        tag,
		Title:          title,
		OriginalText:   text,
		NormalizedText: NormalizeText(text),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return store.InterventionRow{}, notFoundError("intervention row not found")
	}
	if err != nil {
		return store.InterventionRow{}, err
	}

	s.touchCase(ctx, ownerID, updated.CaseID)
	return updated, nil
}

func (s *Service) DeleteIntervention(ctx context.Context, ownerID, rowID string) error {
	if strings.TrimSpace(rowID) == "" {
		return validationError("id", "row id is required")
	}
	caseID, err := s.store.DeleteInterventionRow(ctx, ownerID, rowID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundError("intervention row not found")
	}
	if err != nil {
		return err
	}
	s.touchCase(ctx, ownerID, caseID)
	return nil
}

// Reconcile applies an edited logical note back onto its physical rows with
// minimal churn. Updates run before creates, creates before deletes, so at
// least one row of the note stays addressable throughout the transition. The
// apply is not transactional: failed sub-operations are reported individually
// and the rest stand.
func (s *Service) Reconcile(ctx context.Context, ownerID string, input ReconcileInput) (ReconcileResult, error) {
	if strings.TrimSpace(input.CaseID) == "" {
		return ReconcileResult{}, validationError("caseId", "case id is required")
	}
	if len(input.MemberRowIDs) == 0 {
		return ReconcileResult{}, validationError("memberRowIds", "at least one member row id is required")
	}
	date, verr := parseDate(input.Date)
	if verr != nil {
		return ReconcileResult{}, verr
	}
	title, text, verr := validateNote(input.Title, input.Text)
	if verr != nil {
		return ReconcileResult{}, verr
	}
	desired, verr := expandPairs(toDomains(input.Domains), toContexts(input.Contexts))
	if verr != nil {
		return ReconcileResult{}, verr
	}

	if _, err := s.store.GetCase(ctx, ownerID, input.CaseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ReconcileResult{}, notFoundError("case not found")
		}
		return ReconcileResult{}, err
	}

	existing, err := s.store.ListInterventions(ctx, ownerID, input.CaseID)
	if err != nil {
		return ReconcileResult{}, err
	}
	wanted := make(map[string]bool, len(input.MemberRowIDs))
	for _, id := range input.MemberRowIDs {
		wanted[id] = true
	}
	members := make([]store.InterventionRow, 0, len(input.MemberRowIDs))
	for _, row := range existing {
		if wanted[row.ID] {
			members = append(members, row)
		}
	}
	if len(members) == 0 {
		return ReconcileResult{}, notFoundError("no member rows found for this case")
	}

	plan := planReconcile(members, desired)
	result := ReconcileResult{}
	mutated := false

	for _, row := range plan.updates {
		updated, err := s.store.UpdateInterventionRow(ctx, store.InterventionRow{
			ID:             row.ID,
			OwnerID:        ownerID,
			Date:           date,
			Domain:         row.Domain,
			Context:        row.Context,
			Title:          title,
			OriginalText:   text,
			NormalizedText: NormalizeText(text),
		})
		if err != nil {
			result.Failures = append(result.Failures, OperationFailure{
				Op:      "update",
				RowID:   row.ID,
				Domain:  string(row.Domain),
				Context: string(row.Context),
				Error:   err.Error(),
			})
			continue
		}
		mutated = true
		result.Updated = append(result.Updated, updated)
	}

	for _, pair := range plan.creates {
		inserted, err := s.store.InsertInterventionRows(ctx, []store.InterventionRow{{
			ID:             util.NewID("ivr"),
			CaseID:         input.CaseID,
			OwnerID:        ownerID,
			Date:           date,
			Domain:         pair.Domain,
			Context:        pair.Context,
			OriginType:     "manual",
			Title:          title,
			OriginalText:   text,
			NormalizedText: NormalizeText(text),
		}})
		if err != nil {
			result.Failures = append(result.Failures, OperationFailure{
				Op:      "create",
				Domain:  string(pair.Domain),
				Context: string(pair.Context),
				Error:   err.Error(),
			})
			continue
		}
		mutated = true
		result.Created = append(result.Created, inserted...)
	}

	for _, row := range plan.deletes {
		if _, err := s.store.DeleteInterventionRow(ctx, ownerID, row.ID); err != nil {
			result.Failures = append(result.Failures, OperationFailure{
				Op:      "delete",
				RowID:   row.ID,
				Domain:  string(row.Domain),
				Context: string(row.Context),
				Error:   err.Error(),
			})
			continue
		}
		mutated = true
		result.DeletedIDs = append(result.DeletedIDs, row.ID)
	}

	if mutated {
		s.touchCase(ctx, ownerID, input.CaseID)
	}

	rows, err := s.store.ListInterventions(ctx, ownerID, input.CaseID)
	if err == nil {
		result.Rows = rows
	}
	return result, nil
}

// touchCase refreshes the parent case's last-activity timestamp. Best-effort:
// the triggering mutation already committed, so a failed touch is only logged.
func (s *Service) touchCase(ctx context.Context, ownerID, caseID string) {
	if err := s.store.TouchCase(ctx, ownerID, caseID); err != nil {
		log.Printf("touch case %s: %v", caseID, err)
	}
}
