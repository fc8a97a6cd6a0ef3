package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Error classes matched with errors.Is by handlers and metrics.
var (
	// ErrValidation indicates the submitted entry is rejected before any write.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrNotFound indicates the entry is missing or belongs to another company.
	ErrNotFound = errors.New("accounting: journal entry not found")
	// ErrReferenceNotFound indicates a missing entry type, fiscal period or account mapping.
	ErrReferenceNotFound = errors.New("accounting: reference not found")
	// ErrPersistence indicates the store rejected a write.
	ErrPersistence = errors.New("accounting: persistence failure")
)

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = validation("journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = validation("journal requires at least two lines")
	// ErrInvalidLine indicates a malformed line.
	ErrInvalidLine = validation("invalid journal line")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = validation("invalid status transition")
	// ErrInvalidFilter indicates a list filter outside the allow-list.
	ErrInvalidFilter = validation("invalid filter")
	// ErrSequenceBusy indicates the distributed sequence lock could not be obtained in time.
	ErrSequenceBusy = errors.New("accounting: sequence lock busy")
)

type validationError struct {
	msg string
}

func validation(msg string) error { return &validationError{msg: "accounting: " + msg} }

func (e *validationError) Error() string        { return e.msg }
func (e *validationError) Is(target error) bool { return target == ErrValidation }

// Invalid wraps a message as a validation error that also matches base.
func Invalid(base error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}

// ImbalanceError reports both computed sums of a rejected line set.
type ImbalanceError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf("accounting: journal lines must balance (debit %s, credit %s)", e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

// Is matches ErrValidation and ErrUnbalanced.
func (e *ImbalanceError) Is(target error) bool {
	return target == ErrValidation || target == ErrUnbalanced
}

// ReferenceError names the lookup that came back empty.
type ReferenceError struct {
	Kind string
	ID   int64
}

func (e *ReferenceError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("accounting: %s not found", e.Kind)
	}
	return fmt.Sprintf("accounting: %s %d not found", e.Kind, e.ID)
}

// Is matches ErrReferenceNotFound.
func (e *ReferenceError) Is(target error) bool { return target == ErrReferenceNotFound }

// PersistenceError carries a store failure such as a constraint violation.
type PersistenceError struct {
	Op         string
	Constraint string
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("accounting: %s: constraint %s: %v", e.Op, e.Constraint, e.Err)
	}
	return fmt.Sprintf("accounting: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence classifies store errors. Constraint violations become PersistenceError;
// other errors (connection loss, context cancellation) are returned unchanged.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503", "23502", "23514":
			return &PersistenceError{Op: op, Constraint: pgErr.ConstraintName, Err: err}
		}
	}
	return err
}

// IsDuplicateSequence reports whether err is the sequence unique index violation.
func IsDuplicateSequence(err error) bool {
	var perr *PersistenceError
	return errors.As(err, &perr) && perr.Constraint == ConstraintSequence
}

// ConstraintSequence names the unique index over (company, period, entry type, sequence).
const ConstraintSequence = "uq_journal_entries_sequence"
