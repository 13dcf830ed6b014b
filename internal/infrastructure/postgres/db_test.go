package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/drfirst/go-clinicrx/internal/domain"
)

func TestIsForeignKeyViolation(t *testing.T) {
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "prescription_patient_id_fkey"}

	if !IsForeignKeyViolation(fk) {
		t.Error("expected bare PgError 23503 to match")
	}
	if !IsForeignKeyViolation(fmt.Errorf("insert: %w", fk)) {
		t.Error("expected wrapped PgError 23503 to match")
	}
	if IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("unique violation must not match")
	}
	if IsForeignKeyViolation(errors.New("23503")) {
		t.Error("plain error must not match")
	}
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", 1, nil)
	if err == nil {
		t.Fatal("expected error for malformed url")
	}
	if !errors.Is(err, domain.ErrConnection) {
		t.Errorf("expected ErrConnection, got %v", err)
	}
}
