package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindBusinessRule       Kind = "business_rule"
	KindExternalDependency Kind = "external_dependency"
	KindConflict           Kind = "conflict"
	KindInternal           Kind = "internal"
)

// Error is the structured error returned across package boundaries.
// Callers branch on Kind, never on Message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, message string) error {
	return New(KindValidation, op, message)
}

func NotFound(op, message string) error {
	return New(KindNotFound, op, message)
}

func BusinessRule(op, message string) error {
	return New(KindBusinessRule, op, message)
}

func Conflict(op, message string) error {
	return New(KindConflict, op, message)
}

// External marks a failure of a collaborator (attendance, leave, directory, store).
func External(op string, err error) error {
	return Wrap(KindExternalDependency, op, err)
}

// KindOf returns the kind of the outermost *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Reason is the message shown in per-item batch results.
func Reason(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
