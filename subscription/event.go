package subscription

import (
	"encoding/json"
	"fmt"

	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"
)

// Event is the closed set of webhook events the dispatcher understands. The
// unexported method keeps the set sealed so the dispatch switch stays
// exhaustive.
type Event interface {
	eventType() string
}

// CheckoutCompleted corresponds to checkout.session.completed
type CheckoutCompleted struct {
	Session stripe.CheckoutSession
}

// SubscriptionUpdated corresponds to customer.subscription.updated
type SubscriptionUpdated struct {
	Subscription stripe.Subscription
}

// SubscriptionDeleted corresponds to customer.subscription.deleted
type SubscriptionDeleted struct {
	Subscription stripe.Subscription
}

// UnhandledEvent is any verified event the dispatcher acknowledges but does
// not act on
type UnhandledEvent struct {
	Type string
}

func (e *CheckoutCompleted) eventType() string   { return eventCheckoutCompleted }
func (e *SubscriptionUpdated) eventType() string { return eventSubscriptionUpdated }
func (e *SubscriptionDeleted) eventType() string { return eventSubscriptionDeleted }
func (e *UnhandledEvent) eventType() string      { return e.Type }

// Verifier checks that a webhook delivery was signed by Stripe with the
// shared signing secret
type Verifier struct {
	secret string
}

// NewVerifier returns a Verifier for the given webhook signing secret
func NewVerifier(secret string) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty webhook signing secret is invalid")
	}
	return &Verifier{
		secret: secret,
	}, nil
}

// Verify validates sigHeader against the exact body bytes as transmitted.
// The payload must not be re-serialized before the call, the signature is
// computed over the raw bytes. On success the provider event is narrowed into
// the typed Event set.
func (v *Verifier) Verify(payload []byte, sigHeader string) (Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, v.secret)
	if err != nil {
		return nil, extErrors.Wrap(ErrInvalidSignature, err.Error())
	}

	// A correctly signed delivery can still carry no data object, the
	// handled types must not dereference it blindly
	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	switch event.Type {
	case eventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := unmarshalObject(raw, &session); err != nil {
			return nil, err
		}
		return &CheckoutCompleted{Session: session}, nil
	case eventSubscriptionUpdated:
		var sub stripe.Subscription
		if err := unmarshalObject(raw, &sub); err != nil {
			return nil, err
		}
		return &SubscriptionUpdated{Subscription: sub}, nil
	case eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := unmarshalObject(raw, &sub); err != nil {
			return nil, err
		}
		return &SubscriptionDeleted{Subscription: sub}, nil
	default:
		return &UnhandledEvent{Type: event.Type}, nil
	}
}

func unmarshalObject(raw json.RawMessage, dest interface{}) error {
	if len(raw) == 0 {
		return extErrors.Wrap(ErrInvalidPayload, "event carries no data object")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return extErrors.Wrap(ErrInvalidPayload, err.Error())
	}
	return nil
}
