package database

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE codes surfaced by the scheduling constraints.
const (
	CodeUniqueViolation     pq.ErrorCode = "23505"
	CodeForeignKeyViolation pq.ErrorCode = "23503"
	CodeCheckViolation      pq.ErrorCode = "23514"
	CodeExclusionViolation  pq.ErrorCode = "23P01"

	CodeInvalidTextRepresentation pq.ErrorCode = "22P02"
)

// Violation describes a constraint failure reported by PostgreSQL.
type Violation struct {
	Code       pq.ErrorCode
	Constraint string
}

// AsViolation extracts the constraint failure carried by err, if any.
func AsViolation(err error) (Violation, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return Violation{}, false
	}
	switch pqErr.Code {
	case CodeUniqueViolation, CodeForeignKeyViolation, CodeCheckViolation, CodeExclusionViolation:
		return Violation{Code: pqErr.Code, Constraint: pqErr.Constraint}, true
	}
	return Violation{}, false
}

// IsExclusionViolation reports an EXCLUDE constraint rejection.
func IsExclusionViolation(err error) bool {
	v, ok := AsViolation(err)
	return ok && v.Code == CodeExclusionViolation
}

// IsUniqueViolation reports a unique index rejection.
func IsUniqueViolation(err error) bool {
	v, ok := AsViolation(err)
	return ok && v.Code == CodeUniqueViolation
}

// IsForeignKeyViolation reports a dangling reference.
func IsForeignKeyViolation(err error) bool {
	v, ok := AsViolation(err)
	return ok && v.Code == CodeForeignKeyViolation
}

// IsInvalidTextRepresentation reports a value PostgreSQL could not parse into the column type, such as a
// malformed uuid.
func IsInvalidTextRepresentation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == CodeInvalidTextRepresentation
}
