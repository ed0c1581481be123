package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Stripe is a Processor backed by the Stripe API.
type Stripe struct {
	api *client.API
}

var _ Processor = (*Stripe)(nil)

// NewStripe returns a Stripe processor authenticated with secretKey.
func NewStripe(secretKey string) (*Stripe, error) {
	if secretKey == "" {
		return nil, errors.New("payment: stripe secret key is empty")
	}
	return newStripe(secretKey, nil), nil
}

// newStripe lets tests point the client at a local backend; nil backends
// means the real Stripe API.
func newStripe(secretKey string, backends *stripe.Backends) *Stripe {
	return &Stripe{api: client.New(secretKey, backends)}
}

// CreatePaymentIntent creates a card PaymentIntent.
func (s *Stripe) CreatePaymentIntent(ctx context.Context, amount int64, currency string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: create payment intent: %v", ErrProcessor, err)
	}
	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}
