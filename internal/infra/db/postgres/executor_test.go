package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgconn"

	"video-pipeline/internal/domain"
)

func TestGetExecutor_RejectsUnknownHandles(t *testing.T) {
	if _, err := getExecutor(nil, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("nil pool and tx: want ErrInvalidArgument, got %v", err)
	}
	if _, err := getExecutor(nil, "not-a-tx"); !errors.Is(err, domain.ErrInvalidExecContext) {
		t.Fatalf("foreign tx: want ErrInvalidExecContext, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("23505 should be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) || isUniqueViolation(errors.New("x")) {
		t.Fatal("only 23505 is a unique violation")
	}
}
