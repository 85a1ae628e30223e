package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewTierMapperRequiresLogger(t *testing.T) {
	_, err := NewTierMapper(TierMapperOptions{})
	assert.Error(t, err)
}

func TestTierMapperMap(t *testing.T) {
	mapper, err := NewTierMapper(TierMapperOptions{
		Mapping: map[string]Tier{
			"price_basic_monthly":   TierBasic,
			"price_basic_yearly":    TierBasic,
			"price_premium_monthly": TierPremium,
			"price_connected":       TierConnected,
		},
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	cases := []struct {
		priceID  string
		expected Tier
	}{
		{"price_basic_monthly", TierBasic},
		{"price_basic_yearly", TierBasic},
		{"price_premium_monthly", TierPremium},
		{"price_connected", TierConnected},
		{"price_from_another_account", TierFree},
		{"", TierFree},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, mapper.Map(tc.priceID), "priceID %q", tc.priceID)
	}
}

func TestTierMapperWithoutMapping(t *testing.T) {
	mapper, err := NewTierMapper(TierMapperOptions{
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, TierFree, mapper.Map("price_basic_monthly"))
}
