package profile

import "time"

// Profile is the user record owning the Stripe customer identity.
// StripeCustomerID is set exactly once, the update is conditioned on the
// column being null.
type Profile struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	Email            string    `json:"email" gorm:"index"`
	StripeCustomerID *string   `json:"stripeCustomerId" gorm:"index"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
