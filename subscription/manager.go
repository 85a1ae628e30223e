package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ManagerOptions contains the configuration for the subscription Manager
type ManagerOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Manager handles the database operations relating to Subscriptions and
// their property links
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for subscriptions
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Subscription{}, &PropertySubscription{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize subscription.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// Create will insert a new subscription record
func (m *Manager) Create(ctx context.Context, sub *Subscription) error {
	result := m.DB.WithContext(ctx).Create(sub)
	if result.Error != nil {
		m.Logger.Error("Unable to create new subscription in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create subscription")
	}
	return nil
}

// CreateLink will insert a new property link for a subscription record
func (m *Manager) CreateLink(ctx context.Context, link *PropertySubscription) error {
	result := m.DB.WithContext(ctx).Create(link)
	if result.Error != nil {
		m.Logger.Error("Unable to create property link in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create property link")
	}
	return nil
}

// Update carries the mutable attributes refreshed from a subscription.updated
// event
type Update struct {
	Status             Status
	Tier               Tier
	StripeProductID    string
	StripePriceID      string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	EndedAt            *time.Time
	Metadata           Metadata
}

// UpdateByStripeID refreshes every subscription record matching the external
// subscription ID. Zero matched rows is a no-op, not an error.
func (m *Manager) UpdateByStripeID(ctx context.Context, stripeSubscriptionID string, update Update) error {
	result := m.DB.WithContext(ctx).
		Model(&Subscription{}).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Updates(map[string]interface{}{
			"status":               update.Status,
			"tier":                 update.Tier,
			"stripe_product_id":    update.StripeProductID,
			"stripe_price_id":      update.StripePriceID,
			"current_period_start": update.CurrentPeriodStart,
			"current_period_end":   update.CurrentPeriodEnd,
			"cancel_at_period_end": update.CancelAtPeriodEnd,
			"canceled_at":          update.CanceledAt,
			"ended_at":             update.EndedAt,
			"metadata":             update.Metadata,
		})
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot update subscription")
	}
	if result.RowsAffected == 0 {
		m.Logger.Warn("No subscription record matched for update",
			zap.String("StripeSubscriptionID", stripeSubscriptionID),
		)
	}
	return nil
}

// GetByStripeID returns the most recent subscription record for an external
// subscription ID along with its property link. Both are nil when no record
// exists; the link alone may be nil.
func (m *Manager) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, *PropertySubscription, error) {
	var sub Subscription
	result := m.DB.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Order("created_at desc").
		First(&sub)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, nil, extErrors.Wrap(result.Error, "Cannot get subscription by Stripe ID")
	}

	var link PropertySubscription
	linkResult := m.DB.WithContext(ctx).
		Where("subscription_id = ?", sub.ID).
		Order("created_at desc").
		First(&link)

	if errors.Is(linkResult.Error, gorm.ErrRecordNotFound) {
		return &sub, nil, nil
	}
	if linkResult.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(linkResult.Error),
		)
		return nil, nil, extErrors.Wrap(linkResult.Error, "Cannot get property link for subscription")
	}

	return &sub, &link, nil
}

// PropertyIDForStripeSubscription resolves which property an external
// subscription ID currently pays for, via the active link. Empty when none.
func (m *Manager) PropertyIDForStripeSubscription(ctx context.Context, stripeSubscriptionID string) (string, error) {
	var propertyID string
	result := m.DB.WithContext(ctx).
		Table("property_subscriptions").
		Select("property_subscriptions.property_id").
		Joins("JOIN subscriptions ON subscriptions.id = property_subscriptions.subscription_id").
		Where("subscriptions.stripe_subscription_id = ?", stripeSubscriptionID).
		Where("property_subscriptions.active = ?", true).
		Order("property_subscriptions.created_at desc").
		Limit(1).
		Scan(&propertyID)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return "", extErrors.Wrap(result.Error, "Cannot resolve property for subscription")
	}
	return propertyID, nil
}

// Cancel marks a subscription record as canceled with an end timestamp. The
// record is kept, cancellation is a status transition.
func (m *Manager) Cancel(ctx context.Context, id string, endedAt time.Time) error {
	result := m.DB.WithContext(ctx).
		Model(&Subscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   StatusCanceled,
			"ended_at": endedAt,
		})
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot mark subscription as canceled")
	}
	return nil
}

// DeactivateLink clears the active flag on a property link and records when
// it was unlinked
func (m *Manager) DeactivateLink(ctx context.Context, linkID string, unlinkedAt time.Time) error {
	result := m.DB.WithContext(ctx).
		Model(&PropertySubscription{}).
		Where("id = ?", linkID).
		Updates(map[string]interface{}{
			"active":      false,
			"unlinked_at": unlinkedAt,
		})
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot deactivate property link")
	}
	return nil
}

// GetActiveForProperty returns the newest subscription record actively linked
// to a property, or nil when the property has none
func (m *Manager) GetActiveForProperty(ctx context.Context, propertyID string) (*Subscription, error) {
	var sub Subscription
	result := m.DB.WithContext(ctx).
		Joins("JOIN property_subscriptions ON property_subscriptions.subscription_id = subscriptions.id").
		Where("property_subscriptions.property_id = ?", propertyID).
		Where("property_subscriptions.active = ?", true).
		Order("subscriptions.created_at desc").
		First(&sub)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get subscription for property")
	}

	return &sub, nil
}
