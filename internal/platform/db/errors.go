package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hospital/hms/internal/platform/apperr"
)

// Postgres SQLSTATE codes that carry domain meaning.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgInvalidText         = "22P02"
)

// Classify converts a pgx error into the engine error taxonomy. Errors that
// are already *apperr.Error pass through untouched.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &apperr.Error{Kind: apperr.KindNotFound, Message: op + ": not found", Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &apperr.Error{Kind: apperr.KindConflict, Code: apperr.CodeDuplicateKey, Message: op + ": " + pgErr.ConstraintName, Err: err}
		case pgForeignKeyViolation:
			return &apperr.Error{Kind: apperr.KindNotFound, Message: op + ": referenced record does not exist", Err: err}
		case pgCheckViolation, pgInvalidText:
			return &apperr.Error{Kind: apperr.KindValidation, Code: apperr.CodeInvalidValue, Message: op + ": " + pgErr.Message, Err: err}
		}
	}
	return apperr.Storage(op, err)
}

// ConstraintName returns the violated constraint of a classified error, or "".
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
