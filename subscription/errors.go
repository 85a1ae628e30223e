package subscription

import "errors"

// Sentinel errors surfaced by the Verifier and the Dispatcher. The HTTP layer
// maps them to status codes with errors.Is; anything else is a fatal mutation
// failure and becomes a 500.
var (
	ErrInvalidSignature    = errors.New("webhook signature verification failed")
	ErrInvalidPayload      = errors.New("webhook payload could not be parsed")
	ErrMissingRequiredData = errors.New("webhook event is missing required data")
)
