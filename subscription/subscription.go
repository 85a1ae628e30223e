package subscription

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Metadata carries the free-form key/value pairs Stripe attaches to a
// subscription. Stored as a jsonb column, gorm v1.20 has no serializer tags
// so it implements Valuer/Scanner itself.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported type %T for Metadata", value)
	}
}

// Subscription is the normalized record of one billing relationship.
// StripeSubscriptionID is indexed but deliberately not unique: redelivery of
// the same checkout event inserts a second row, and readers pick the most
// recent one. Rows are never deleted, cancellation is a status transition.
type Subscription struct {
	ID                   string     `json:"id" gorm:"primaryKey"`
	UserID               string     `json:"userId" gorm:"index"`
	StripeCustomerID     string     `json:"stripeCustomerId" gorm:"index"`
	StripeSubscriptionID string     `json:"stripeSubscriptionId" gorm:"index"`
	StripeProductID      string     `json:"stripeProductId"`
	StripePriceID        string     `json:"stripePriceId"`
	Status               Status     `json:"status"`
	Tier                 Tier       `json:"tier"`
	CurrentPeriodStart   time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd     time.Time  `json:"currentPeriodEnd"`
	CancelAtPeriodEnd    bool       `json:"cancelAtPeriodEnd"`
	CanceledAt           *time.Time `json:"canceledAt"`
	EndedAt              *time.Time `json:"endedAt"`
	Metadata             Metadata   `json:"metadata" gorm:"type:jsonb"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// PropertySubscription links a subscription record to the property it pays
// for. A property may accumulate historical links, readers filter on Active.
type PropertySubscription struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	PropertyID     string     `json:"propertyId" gorm:"index"`
	SubscriptionID string     `json:"subscriptionId" gorm:"index"`
	Active         bool       `json:"active"`
	UnlinkedAt     *time.Time `json:"unlinkedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Summary is the denormalized convenience copy of subscription state kept on
// the property record. It is derivable from Subscription plus its link and is
// never authoritative.
type Summary struct {
	Tier     Tier       `json:"tier"`
	Status   Status     `json:"status"`
	RenewsAt *time.Time `json:"renewsAt"`
}
