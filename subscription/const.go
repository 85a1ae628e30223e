package subscription

// Status mirrors the lifecycle status reported by Stripe for a subscription
type Status string

// Defining the Stripe lifecycle statuses we persist
const (
	StatusActive            Status = "active"
	StatusTrialing          Status = "trialing"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusUnpaid            Status = "unpaid"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
)

// Tier is the internal plan label attached to a subscription
type Tier string

// Defining the tiers a property subscription can be on
const (
	TierFree      Tier = "free"
	TierBasic     Tier = "basic"
	TierPremium   Tier = "premium"
	TierConnected Tier = "connected"
)

// Stripe event type tags handled by the webhook
const (
	eventCheckoutCompleted   = "checkout.session.completed"
	eventSubscriptionUpdated = "customer.subscription.updated"
	eventSubscriptionDeleted = "customer.subscription.deleted"
)
