package types

import "errors"

// The full set of domain errors surfaced by the escrow engine. Every
// operation fails with exactly one of these; pkg/response maps them onto
// HTTP status codes.
var (
	ErrIntentNotFound        = errors.New("intent not found")
	ErrIntentAlreadyExecuted = errors.New("intent already executed or cancelled")
	ErrIntentCancelled       = errors.New("intent cancelled")
	ErrIntentExpired         = errors.New("intent expired")
	ErrOnlyCreatorCanCancel  = errors.New("only the intent creator can cancel")
	ErrInsufficientBalance   = errors.New("insufficient available balance")
	ErrPriceConditionNotMet  = errors.New("price condition not met")
	ErrInvalidPrice          = errors.New("invalid price")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidToken          = errors.New("invalid token")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrIntentStillActive     = errors.New("intent still active")
	ErrTransferFailed        = errors.New("token transfer failed")
	ErrMinBuyAmountNotMet    = errors.New("minimum buy amount not met")
)
