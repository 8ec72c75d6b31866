package model

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
	ErrDuplicateOrderID   = errors.New("duplicate order id")
	ErrAlreadyPaid        = errors.New("invoice already paid")
	ErrNothingOwed        = errors.New("nothing owed on invoice")
	ErrInvoiceClosed      = errors.New("invoice is expired or cancelled")
)
