package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrUserAlreadyExists       = errors.New("user already exists")
	ErrNilUser                 = errors.New("user is nil")
	ErrInsufficientFunds       = errors.New("insufficient balance")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrProductNotFound         = errors.New("product not found")
	ErrProductInactive         = errors.New("product is not active")
	ErrNilProduct              = errors.New("product is nil")
	ErrOrderNotFound           = errors.New("order not found")
	ErrNilTransaction          = errors.New("transaction is nil")
	ErrInvalidTransactionType  = errors.New("invalid transaction type")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentFailed           = errors.New("payment was declined")
	ErrDuplicatePayment        = errors.New("external transaction already used by another payment")
	ErrAmountMismatch          = errors.New("confirmed amount does not match payment")
	ErrCommissionNotFound      = errors.New("commission not found")
	ErrResourceNotFound        = errors.New("resource not found")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrRequestAlreadyProcessed = errors.New("request already processed")
	ErrInvalidCredentials      = fmt.Errorf("invalid credentials")
	ErrEmailExists             = fmt.Errorf("email already registered")
	ErrSlugExists              = fmt.Errorf("slug or name already taken")
	ErrUnauthorized            = fmt.Errorf("authentication required")
	ErrForbidden               = fmt.Errorf("insufficient permissions")
	ErrInternal                = fmt.Errorf("internal error")
	ErrInvalidInput            = fmt.Errorf("invalid input")
)

// Kind classifies an error for transport layers.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindBusiness     Kind = "business"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{ErrInvalidInput, ErrNilUser, ErrNilProduct, ErrNilTransaction, ErrInvalidTransactionType, ErrAmountMismatch}},
	{KindUnauthorized, []error{ErrUnauthorized, ErrInvalidCredentials}},
	{KindForbidden, []error{ErrForbidden}},
	{KindNotFound, []error{ErrUserNotFound, ErrProductNotFound, ErrOrderNotFound, ErrTransactionNotFound, ErrPaymentNotFound, ErrCommissionNotFound, ErrResourceNotFound}},
	{KindBusiness, []error{ErrInsufficientFunds, ErrInsufficientStock, ErrProductInactive, ErrPaymentFailed, ErrInvalidTransition}},
	{KindConflict, []error{ErrUserAlreadyExists, ErrEmailExists, ErrSlugExists, ErrDuplicatePayment, ErrRequestAlreadyProcessed}},
}

// KindOf walks the error chain and reports the first matching kind.
// Anything unrecognised is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindInternal
}

// Invalid wraps ErrInvalidInput with a field-level explanation.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
