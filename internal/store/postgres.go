package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

const caseColumns = `id, owner_id, initials, institution_name, search_key, created_at, updated_at`

func scanCase(row interface{ Scan(...any) error }) (Case, error) {
	var item Case
	err := row.Scan(
		&item.ID,
		&item.OwnerID,
		&item.Initials,
		&item.InstitutionName,
		&item.SearchKey,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) CreateCase(ctx context.Context, item Case) (Case, error) {
	created, err := scanCase(s.db.QueryRowContext(ctx, `
		INSERT INTO cases (id, owner_id, initials, institution_name, search_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+caseColumns+`
	`, item.ID, item.OwnerID, item.Initials, item.InstitutionName, item.SearchKey))
	if err != nil {
		return Case{}, classify("create case", err)
	}
	return created, nil
}

func (s *PostgresStore) GetCase(ctx context.Context, ownerID, caseID string) (Case, error) {
	item, err := scanCase(s.db.QueryRowContext(ctx, `
		SELECT `+caseColumns+`
		FROM cases
		WHERE owner_id=$1 AND id=$2
	`, ownerID, caseID))
	if errors.Is(err, sql.ErrNoRows) {
		return Case{}, err
	}
	if err != nil {
		return Case{}, classify("get case", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateCase(ctx context.Context, item Case) (Case, error) {
	updated, err := scanCase(s.db.QueryRowContext(ctx, `
		UPDATE cases
		SET initials=$3, institution_name=$4, search_key=$5, updated_at=NOW()
		WHERE owner_id=$1 AND id=$2
		RETURNING `+caseColumns+`
	`, item.OwnerID, item.ID, item.Initials, item.InstitutionName, item.SearchKey))
	if errors.Is(err, sql.ErrNoRows) {
		return Case{}, err
	}
	if err != nil {
		return Case{}, classify("update case", err)
	}
	return updated, nil
}

// DeleteCase removes the case; intervention rows follow by cascade.
func (s *PostgresStore) DeleteCase(ctx context.Context, ownerID, caseID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cases WHERE owner_id=$1 AND id=$2`, ownerID, caseID)
	if err != nil {
		return classify("delete case", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete case rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TouchCase bumps the case's last-activity timestamp. A vanished case is not
// an error here; the triggering mutation already succeeded.
func (s *PostgresStore) TouchCase(ctx context.Context, ownerID, caseID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cases SET updated_at=NOW() WHERE owner_id=$1 AND id=$2
	`, ownerID, caseID)
	if err != nil {
		return classify("touch case", err)
	}
	return nil
}

func (s *PostgresStore) SearchCases(ctx context.Context, ownerID string, filter CaseFilter) ([]Case, error) {
	var (
		conditions []string
		args       []any
	)
	args = append(args, ownerID)
	conditions = append(conditions, "c.owner_id=$1")

	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(c.search_key ILIKE $%d OR c.initials ILIKE $%d OR c.institution_name ILIKE $%d)", n, n, n))
	}
	if filter.Institution != "" {
		args = append(args, "%"+filter.Institution+"%")
		conditions = append(conditions, fmt.Sprintf("c.institution_name ILIKE $%d", len(args)))
	}
	if filter.Domain != "" || len(filter.Contexts) > 0 {
		sub := []string{"r.case_id = c.id"}
		if filter.Domain != "" {
			args = append(args, string(filter.Domain))
			sub = append(sub, fmt.Sprintf("r.domain=$%d", len(args)))
		}
		if len(filter.Contexts) > 0 {
			contexts := make([]string, 0, len(filter.Contexts))
			for _, c := range filter.Contexts {
				contexts = append(contexts, string(c))
			}
			args = append(args, contexts)
			sub = append(sub, fmt.Sprintf("r.context = ANY($%d)", len(args)))
		}
		conditions = append(conditions, "EXISTS (SELECT 1 FROM intervention_rows r WHERE "+strings.Join(sub, " AND ")+")")
	}

	query := `
		SELECT ` + prefixColumns("c", caseColumns) + `
		FROM cases c
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY c.updated_at DESC, c.id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("search cases", err)
	}
	defer rows.Close()

	items := make([]Case, 0)
	for rows.Next() {
		item, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate cases", err)
	}
	return items, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, part := range parts {
		parts[i] = alias + "." + part
	}
	return strings.Join(parts, ", ")
}

const interventionColumns = `id, case_id, owner_id, date, domain, context, origin_type, title,
	original_text, normalized_text, COALESCE(summary, ''), COALESCE(attachment_ref, ''),
	created_at, updated_at`

func scanInterventionRow(row interface{ Scan(...any) error }) (InterventionRow, error) {
	var item InterventionRow
	err := row.Scan(
		&item.ID,
		&item.CaseID,
		&item.OwnerID,
		&item.Date,
		&item.Domain,
		&item.Context,
		&item.OriginType,
		&item.Title,
		&item.OriginalText,
		&item.NormalizedText,
		&item.Summary,
		&item.AttachmentRef,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) ListInterventions(ctx context.Context, ownerID, caseID string) ([]InterventionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+interventionColumns+`
		FROM intervention_rows
		WHERE owner_id=$1 AND case_id=$2
		ORDER BY date DESC, created_at DESC, id DESC
	`, ownerID, caseID)
	if err != nil {
		return nil, classify("list interventions", err)
	}
	defer rows.Close()

	items := make([]InterventionRow, 0)
	for rows.Next() {
		item, err := scanInterventionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intervention row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate interventions", err)
	}
	return items, nil
}

func (s *PostgresStore) GetInterventionRow(ctx context.Context, ownerID, rowID string) (InterventionRow, error) {
	item, err := scanInterventionRow(s.db.QueryRowContext(ctx, `
		SELECT `+interventionColumns+`
		FROM intervention_rows
		WHERE owner_id=$1 AND id=$2
	`, ownerID, rowID))
	if errors.Is(err, sql.ErrNoRows) {
		return InterventionRow{}, err
	}
	if err != nil {
		return InterventionRow{}, classify("get intervention row", err)
	}
	return item, nil
}

// InsertInterventionRows persists a fan-out batch as a single logical
// operation: either every row lands or none do.
func (s *PostgresStore) InsertInterventionRows(ctx context.Context, items []InterventionRow) ([]InterventionRow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin intervention batch", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := make([]InterventionRow, 0, len(items))
	for _, item := range items {
		row, err := scanInterventionRow(tx.QueryRowContext(ctx, `
			INSERT INTO intervention_rows
				(id, case_id, owner_id, date, domain, context, origin_type, title,
				 original_text, normalized_text, summary, attachment_ref)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NULLIF($12, ''))
			RETURNING `+interventionColumns+`
		`, item.ID, item.CaseID, item.OwnerID, item.Date, item.Domain, item.Context,
			item.OriginType, item.Title, item.OriginalText, item.NormalizedText,
			item.Summary, item.AttachmentRef))
		if err != nil {
			return nil, classify("insert intervention row", err)
		}
		inserted = append(inserted, row)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("commit intervention batch", err)
	}
	return inserted, nil
}

func (s *PostgresStore) UpdateInterventionRow(ctx context.Context, item InterventionRow) (InterventionRow, error) {
	updated, err := scanInterventionRow(s.db.QueryRowContext(ctx, `
		UPDATE intervention_rows
		SET date=$3, domain=$4, context=$5, title=$6, original_text=$7,
			normalized_text=$8, updated_at=NOW()
		WHERE owner_id=$1 AND id=$2
		RETURNING `+interventionColumns+`
	`, item.OwnerID, item.ID, item.Date, item.Domain, item.Context, item.Title,
		item.OriginalText, item.NormalizedText))
	if errors.Is(err, sql.ErrNoRows) {
		return InterventionRow{}, err
	}
	if err != nil {
		return InterventionRow{}, classify("update intervention row", err)
	}
	return updated, nil
}

// DeleteInterventionRow removes the row and reports the parent case id so the
// caller can still touch the case afterwards.
func (s *PostgresStore) DeleteInterventionRow(ctx context.Context, ownerID, rowID string) (string, error) {
	var caseID string
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM intervention_rows
		WHERE owner_id=$1 AND id=$2
		RETURNING case_id
	`, ownerID, rowID).Scan(&caseID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if err != nil {
		return "", classify("delete intervention row", err)
	}
	return caseID, nil
}
