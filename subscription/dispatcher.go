package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// Store is the slice of Manager the dispatcher needs. Kept narrow so the
// dispatcher can be exercised without a database.
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	CreateLink(ctx context.Context, link *PropertySubscription) error
	UpdateByStripeID(ctx context.Context, stripeSubscriptionID string, update Update) error
	GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, *PropertySubscription, error)
	PropertyIDForStripeSubscription(ctx context.Context, stripeSubscriptionID string) (string, error)
	Cancel(ctx context.Context, id string, endedAt time.Time) error
	DeactivateLink(ctx context.Context, linkID string, unlinkedAt time.Time) error
	GetActiveForProperty(ctx context.Context, propertyID string) (*Subscription, error)
}

// PropertyUpdater refreshes the denormalized summary on a property record
type PropertyUpdater interface {
	UpdateSummary(ctx context.Context, propertyID string, summary Summary) error
}

// ProfileLinker records the Stripe customer ID on a user profile, first write
// wins
type ProfileLinker interface {
	LinkStripeCustomer(ctx context.Context, userID string, customerID string) error
}

// SubscriptionFetcher retrieves the full subscription object from Stripe
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, stripeSubscriptionID string) (*stripe.Subscription, error)
}

// DispatcherOptions contains the explicitly injected collaborators for the
// Dispatcher, no package-level clients
type DispatcherOptions struct {
	Subscriptions Store
	Properties    PropertyUpdater
	Profiles      ProfileLinker
	Stripe        SubscriptionFetcher
	Tiers         *TierMapper
	Logger        *zap.Logger
}

// Dispatcher routes a verified webhook event to its mutation sequence. Each
// sequence is single pass with no retries; reliability against transient
// failure is delegated to Stripe's redelivery.
//
// Concurrent deliveries for the same Stripe subscription are not serialized
// and carry no ordering guard, an older update can overwrite a newer one.
type Dispatcher struct {
	DispatcherOptions
}

// NewDispatcher will create a Dispatcher with the given collaborators
func NewDispatcher(option DispatcherOptions) (*Dispatcher, error) {
	if option.Subscriptions == nil {
		return nil, fmt.Errorf("nil Subscriptions is invalid")
	}
	if option.Properties == nil {
		return nil, fmt.Errorf("nil Properties is invalid")
	}
	if option.Profiles == nil {
		return nil, fmt.Errorf("nil Profiles is invalid")
	}
	if option.Stripe == nil {
		return nil, fmt.Errorf("nil Stripe is invalid")
	}
	if option.Tiers == nil {
		return nil, fmt.Errorf("nil Tiers is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Dispatcher{
		DispatcherOptions: option,
	}, nil
}

// Dispatch runs the mutation sequence for one event. A nil return must be
// acknowledged with 200, ErrMissingRequiredData maps to 400, anything else
// is a fatal mutation failure (500). Partial writes from a failed sequence
// are not rolled back.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	switch e := event.(type) {
	case *CheckoutCompleted:
		return d.handleCheckoutCompleted(ctx, &e.Session)
	case *SubscriptionUpdated:
		return d.handleSubscriptionUpdated(ctx, &e.Subscription)
	case *SubscriptionDeleted:
		return d.handleSubscriptionDeleted(ctx, &e.Subscription)
	case *UnhandledEvent:
		d.Logger.Info("Acknowledging unhandled event type",
			zap.String("Type", e.Type),
		)
		return nil
	default:
		return fmt.Errorf("unknown event %T", event)
	}
}

type checkoutData struct {
	UserID         string `validate:"required"`
	PropertyID     string `validate:"required"`
	CustomerID     string `validate:"required"`
	SubscriptionID string `validate:"required"`
}

func checkoutDataFromSession(session *stripe.CheckoutSession) checkoutData {
	data := checkoutData{
		UserID:     session.Metadata["user_id"],
		PropertyID: session.Metadata["property_id"],
	}
	if len(data.UserID) == 0 {
		data.UserID = session.ClientReferenceID
	}
	if session.Customer != nil {
		data.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		data.SubscriptionID = session.Subscription.ID
	}
	return data
}

func (d *Dispatcher) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	data := checkoutDataFromSession(session)
	if err := validate.Struct(&data); err != nil {
		return extErrors.Wrap(ErrMissingRequiredData, err.Error())
	}

	logger := d.Logger.With(
		zap.String("UserID", data.UserID),
		zap.String("PropertyID", data.PropertyID),
		zap.String("StripeSubscriptionID", data.SubscriptionID),
	)

	// The checkout session only carries references, the authoritative
	// status/period bounds live on the subscription object.
	stripeSub, err := d.Stripe.FetchSubscription(ctx, data.SubscriptionID)
	if err != nil {
		return extErrors.Wrap(err, "Cannot fetch subscription from Stripe")
	}

	productID, priceID := lineItemIDs(stripeSub)
	tier := d.Tiers.Map(priceID)

	// First write wins, a profile that already has a customer ID keeps it.
	// Losing this write never fails the event.
	if err := d.Profiles.LinkStripeCustomer(ctx, data.UserID, data.CustomerID); err != nil {
		logger.Error("Unable to link Stripe customer to profile",
			zap.Error(err),
		)
	}

	record := &Subscription{
		ID:                   uuid.New().String(),
		UserID:               data.UserID,
		StripeCustomerID:     data.CustomerID,
		StripeSubscriptionID: data.SubscriptionID,
		StripeProductID:      productID,
		StripePriceID:        priceID,
		Status:               Status(stripeSub.Status),
		Tier:                 tier,
		CurrentPeriodStart:   time.Unix(stripeSub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:     time.Unix(stripeSub.CurrentPeriodEnd, 0),
		CancelAtPeriodEnd:    stripeSub.CancelAtPeriodEnd,
		Metadata:             Metadata(stripeSub.Metadata),
	}
	if err := d.Subscriptions.Create(ctx, record); err != nil {
		return extErrors.Wrap(err, "Cannot create subscription record")
	}

	link := &PropertySubscription{
		ID:             uuid.New().String(),
		PropertyID:     data.PropertyID,
		SubscriptionID: record.ID,
		Active:         true,
	}
	if err := d.Subscriptions.CreateLink(ctx, link); err != nil {
		return extErrors.Wrap(err, "Cannot link subscription to property")
	}

	d.refreshSummary(ctx, data.PropertyID, Summary{
		Tier:     tier,
		Status:   record.Status,
		RenewsAt: &record.CurrentPeriodEnd,
	})

	return nil
}

func (d *Dispatcher) handleSubscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	logger := d.Logger.With(
		zap.String("StripeSubscriptionID", sub.ID),
	)

	productID, priceID := lineItemIDs(sub)
	tier := d.Tiers.Map(priceID)
	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0)

	update := Update{
		Status:             Status(sub.Status),
		Tier:               tier,
		StripeProductID:    productID,
		StripePriceID:      priceID,
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:   periodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         unixTimePtr(sub.CanceledAt),
		EndedAt:            unixTimePtr(sub.EndedAt),
		Metadata:           Metadata(sub.Metadata),
	}
	if err := d.Subscriptions.UpdateByStripeID(ctx, sub.ID, update); err != nil {
		return extErrors.Wrap(err, "Cannot update subscription record")
	}

	propertyID, err := d.Subscriptions.PropertyIDForStripeSubscription(ctx, sub.ID)
	if err != nil {
		logger.Error("Unable to resolve property for subscription",
			zap.Error(err),
		)
		return nil
	}
	if len(propertyID) == 0 {
		logger.Warn("No property linked to subscription, skipping summary refresh")
		return nil
	}

	d.refreshSummary(ctx, propertyID, Summary{
		Tier:     tier,
		Status:   Status(sub.Status),
		RenewsAt: &periodEnd,
	})

	return nil
}

func (d *Dispatcher) handleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	logger := d.Logger.With(
		zap.String("StripeSubscriptionID", sub.ID),
	)

	record, link, err := d.Subscriptions.GetByStripeID(ctx, sub.ID)
	if err != nil {
		return extErrors.Wrap(err, "Cannot look up subscription record")
	}
	if record == nil {
		// Nothing to cancel is a success, redeliveries of a deletion for an
		// unknown subscription must be acknowledged
		logger.Info("No subscription record to cancel")
		return nil
	}

	endedAt := time.Now()
	if sub.EndedAt > 0 {
		endedAt = time.Unix(sub.EndedAt, 0)
	} else if sub.CanceledAt > 0 {
		endedAt = time.Unix(sub.CanceledAt, 0)
	}

	if err := d.Subscriptions.Cancel(ctx, record.ID, endedAt); err != nil {
		return extErrors.Wrap(err, "Cannot mark subscription record as canceled")
	}

	propertyID := ""
	if link != nil {
		propertyID = link.PropertyID
		if err := d.Subscriptions.DeactivateLink(ctx, link.ID, endedAt); err != nil {
			logger.Error("Unable to deactivate property link",
				zap.Error(err),
			)
		}
	}

	d.refreshSummary(ctx, propertyID, Summary{
		Tier:   record.Tier,
		Status: StatusCanceled,
	})

	return nil
}

// refreshSummary is best effort per the call sites: a missing property ID is
// a logged no-op and updater failures never escalate past a log line
func (d *Dispatcher) refreshSummary(ctx context.Context, propertyID string, summary Summary) {
	if len(propertyID) == 0 {
		d.Logger.Warn("No property ID available for summary refresh")
		return
	}
	if err := d.Properties.UpdateSummary(ctx, propertyID, summary); err != nil {
		d.Logger.Error("Unable to refresh property subscription summary",
			zap.String("PropertyID", propertyID),
			zap.Error(err),
		)
	}
}

func lineItemIDs(sub *stripe.Subscription) (productID string, priceID string) {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return "", ""
	}
	price := sub.Items.Data[0].Price
	if price == nil {
		return "", ""
	}
	if price.Product != nil {
		productID = price.Product.ID
	}
	return productID, price.ID
}

func unixTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0)
	return &t
}

type stripeFetcher struct {
	api *client.API
}

// NewStripeFetcher adapts an injected Stripe API client to the
// SubscriptionFetcher the dispatcher consumes
func NewStripeFetcher(api *client.API) SubscriptionFetcher {
	return &stripeFetcher{api: api}
}

func (f *stripeFetcher) FetchSubscription(ctx context.Context, stripeSubscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}
	return f.api.Subscriptions.Get(stripeSubscriptionID, params)
}
