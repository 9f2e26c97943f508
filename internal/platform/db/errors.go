package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/medconnect/telehealth/pkg/apperrors"
)

// SQLSTATE codes the services care about.
const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
	codeCheckViolation     = "23514"
	codeForeignKey         = "23503"
)

// ErrNotFound is the service-level sentinel so handlers map missing rows to 404.
var ErrNotFound = apperrors.ErrNotFound

var (
	ErrUniqueViolation     = errors.New("unique constraint violation")
	ErrExclusionViolation  = errors.New("exclusion constraint violation")
	ErrCheckViolation      = errors.New("check constraint violation")
	ErrForeignKeyViolation = errors.New("foreign key violation")
)

// MapError translates driver errors into the package sentinels. The original
// error stays in the chain; the violated constraint name is kept in the message.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	var sentinel error
	switch pgErr.Code {
	case codeUniqueViolation:
		sentinel = ErrUniqueViolation
	case codeExclusionViolation:
		sentinel = ErrExclusionViolation
	case codeCheckViolation:
		sentinel = ErrCheckViolation
	case codeForeignKey:
		sentinel = ErrForeignKeyViolation
	default:
		return err
	}
	return fmt.Errorf("%w (%s): %w", sentinel, pgErr.ConstraintName, err)
}

// ConstraintName returns the violated constraint carried by err, or "".
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
