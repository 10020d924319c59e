package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyPgErrors(t *testing.T) {
	cases := []struct {
		name string
		code string
		want error
	}{
		{"unique violation", "23505", ErrConflict},
		{"check violation", "23514", ErrConstraint},
		{"insufficient privilege", "42501", ErrPermission},
		{"undefined table", "42P01", ErrUnavailable},
		{"missing database", "3D000", ErrUnavailable},
		{"connection failure", "08006", ErrUnavailable},
		{"admin shutdown", "57P01", ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("insert case", &pgconn.PgError{Code: tc.code})
			if !errors.Is(err, tc.want) {
				t.Fatalf("classify(%s) = %v, want %v", tc.code, err, tc.want)
			}
		})
	}
}

func TestClassifyLeavesOtherErrorsAlone(t *testing.T) {
	cause := fmt.Errorf("syntax error")
	err := classify("list rows", cause)
	for _, sentinel := range []error{ErrConflict, ErrConstraint, ErrPermission, ErrUnavailable} {
		if errors.Is(err, sentinel) {
			t.Fatalf("unexpected sentinel %v for %v", sentinel, err)
		}
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not wrapped: %v", err)
	}
}

func TestClassifyNil(t *testing.T) {
	if err := classify("noop", nil); err != nil {
		t.Fatalf("classify(nil) = %v", err)
	}
}
