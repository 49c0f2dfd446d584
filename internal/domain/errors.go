package domain

import "errors"

var (
	// ErrUnknownOrder means the callback referenced an order id the store
	// does not know. Bitmarket should never do this, so it is surfaced, not
	// swallowed.
	ErrUnknownOrder = errors.New("unknown order")

	// ErrNotConfigured means api key/secret are missing or the gateway is
	// disabled in settings.
	ErrNotConfigured = errors.New("gateway not configured")

	// ErrOrderNotPending means checkout was attempted on an order that is no
	// longer awaiting payment.
	ErrOrderNotPending = errors.New("order is not in pending state")

	// ErrCreateCheckout wraps upstream failures while creating the payment
	// request. The customer only ever sees a generic message.
	ErrCreateCheckout = errors.New("could not create checkout")
)
