package property

import "time"

// Property is the parent entity a subscription pays for. The Subscription*
// columns are a denormalized convenience copy of the latest known
// subscription state, always derivable from the subscription tables and
// never authoritative.
type Property struct {
	ID                   string     `json:"id" gorm:"primaryKey"`
	OwnerID              string     `json:"ownerId" gorm:"index"`
	Address              string     `json:"address"`
	SubscriptionTier     string     `json:"subscriptionTier"`
	SubscriptionStatus   string     `json:"subscriptionStatus"`
	SubscriptionRenewsAt *time.Time `json:"subscriptionRenewsAt"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}
