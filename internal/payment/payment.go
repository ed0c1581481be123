// Package payment talks to the external payment processor.
package payment

import (
	"context"
	"errors"
)

// ErrProcessor wraps every failure reported by the processor.
var ErrProcessor = errors.New("payment processor error")

// Intent is a processor-side charge in progress. The client uses
// ClientSecret to confirm the payment directly with the processor.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Processor creates payment intents.
type Processor interface {
	// CreatePaymentIntent charges amount, expressed in the currency's
	// minor unit (cents for usd).
	CreatePaymentIntent(ctx context.Context, amount int64, currency string) (Intent, error)
}
