package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel classifications for storage failures. The service layer matches on
// these instead of driver errors; raw pg error codes never cross the store
// boundary.
var (
	ErrConflict    = errors.New("storage conflict")
	ErrConstraint  = errors.New("storage constraint violation")
	ErrPermission  = errors.New("storage permission denied")
	ErrUnavailable = errors.New("storage unavailable")
)

// classify wraps a pg error with its taxonomy sentinel. sql.ErrNoRows is left
// alone so callers keep their errors.Is(err, sql.ErrNoRows) checks.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%s: %w: %s", op, ErrConflict, pgErr.ConstraintName)
		case pgErr.Code == "23514":
			// A failing domain/context check means the deployed schema lags
			// the binary, not that the request was malformed.
			return fmt.Errorf("%s: %w: %s", op, ErrConstraint, pgErr.ConstraintName)
		case pgErr.Code == "42501":
			return fmt.Errorf("%s: %w", op, ErrPermission)
		case pgErr.Code == "42P01" || pgErr.Code == "3D000":
			return fmt.Errorf("%s: %w: schema not provisioned", op, ErrUnavailable)
		case len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57"):
			return fmt.Errorf("%s: %w", op, ErrUnavailable)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}

	return fmt.Errorf("%s: %w", op, err)
}
