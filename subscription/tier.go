package subscription

import (
	"fmt"

	"go.uber.org/zap"
)

// TierMapperOptions contains the configuration for the TierMapper
type TierMapperOptions struct {
	// Mapping is keyed by Stripe Price ID. Multiple Price IDs (e.g. the
	// monthly and yearly variants) may map to the same Tier.
	Mapping map[string]Tier
	Logger  *zap.Logger
}

// TierMapper resolves a Stripe Price ID to the internal plan tier
type TierMapper struct {
	TierMapperOptions
}

// NewTierMapper returns a TierMapper for the configured price IDs
func NewTierMapper(option TierMapperOptions) (*TierMapper, error) {
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.Mapping == nil {
		option.Mapping = make(map[string]Tier)
	}
	return &TierMapper{
		TierMapperOptions: option,
	}, nil
}

// Map returns the tier for a price ID. An empty or unrecognized price ID maps
// to TierFree with a warning, it must never abort the caller.
func (t *TierMapper) Map(priceID string) Tier {
	if len(priceID) == 0 {
		t.Logger.Warn("Empty price ID, falling back to default tier")
		return TierFree
	}
	if tier, ok := t.Mapping[priceID]; ok {
		return tier
	}
	t.Logger.Warn("Unknown price ID, falling back to default tier",
		zap.String("PriceID", priceID),
	)
	return TierFree
}
