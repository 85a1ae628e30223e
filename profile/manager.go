package profile

import (
	"context"
	"fmt"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ManagerOptions contains the configuration for the profile Manager
type ManagerOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Manager handles the database operations relating to Profiles
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for profiles
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Profile{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize profile.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// LinkStripeCustomer records the Stripe customer ID on a profile, first write
// wins. A profile that already carries a customer ID, or no matching profile
// at all, leaves the row untouched without an error.
func (m *Manager) LinkStripeCustomer(ctx context.Context, userID string, customerID string) error {
	if len(userID) == 0 {
		return fmt.Errorf("empty userID is invalid")
	}
	if len(customerID) == 0 {
		return fmt.Errorf("empty customerID is invalid")
	}
	result := m.DB.WithContext(ctx).
		Model(&Profile{}).
		Where("id = ? AND stripe_customer_id IS NULL", userID).
		Update("stripe_customer_id", customerID)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot link Stripe customer to profile")
	}
	if result.RowsAffected == 0 {
		m.Logger.Debug("Stripe customer already linked or profile missing",
			zap.String("UserID", userID),
		)
	}
	return nil
}
