package property

import (
	"context"
	"fmt"

	"github.com/casafolio/billhook/subscription"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ManagerOptions contains the configuration for the property Manager
type ManagerOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Manager handles the database operations relating to Properties
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for properties
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Property{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize property.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// UpdateSummary overwrites the denormalized subscription summary on a
// property. Callers treat any failure as best effort, an empty property ID is
// a logged no-op.
func (m *Manager) UpdateSummary(ctx context.Context, propertyID string, summary subscription.Summary) error {
	if len(propertyID) == 0 {
		m.Logger.Warn("Skipping summary update without a property ID")
		return nil
	}
	result := m.DB.WithContext(ctx).
		Model(&Property{}).
		Where("id = ?", propertyID).
		Updates(map[string]interface{}{
			"subscription_tier":      string(summary.Tier),
			"subscription_status":    string(summary.Status),
			"subscription_renews_at": summary.RenewsAt,
		})
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot update property summary")
	}
	if result.RowsAffected == 0 {
		m.Logger.Warn("No property matched for summary update",
			zap.String("PropertyID", propertyID),
		)
	}
	return nil
}
