package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ad-reward-system/models"
)

func TestDailyQuota(t *testing.T) {
	cfg := DefaultEconomy

	tests := []struct {
		name     string
		streak   int
		verified bool
		want     int
	}{
		{"unverified stays on teaser quota", 0, false, 1},
		{"unverified long streak still teaser", 30, false, 1},
		{"verified with no streak", 0, true, 3},
		{"verified first tier", 1, true, 3},
		{"verified between tiers", 4, true, 5},
		{"verified week streak", 7, true, 15},
		{"verified month streak", 30, true, 50},
		{"verified beyond last tier", 400, true, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.DailyQuota(tt.streak, tt.verified)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := cfg.DailyQuota(-1, true)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestDailyQuotaMonotonic(t *testing.T) {
	cfg := DefaultEconomy

	prev := 0
	for streak := 0; streak <= 400; streak++ {
		quota, err := cfg.DailyQuota(streak, true)
		require.NoError(t, err)
		require.GreaterOrEqual(t, quota, prev, "quota dropped at streak %d", streak)
		prev = quota
	}
}

func TestRewardMultiplier(t *testing.T) {
	cfg := DefaultEconomy

	tests := []struct {
		streak   int
		verified bool
		want     int64
	}{
		{0, false, 1},
		{6, false, 1},
		{7, false, 2},
		{14, false, 4},
		{0, true, 20},
		{7, true, 40},
		{21, true, 160},
	}
	for _, tt := range tests {
		got, err := cfg.RewardMultiplier(tt.streak, tt.verified)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "streak=%d verified=%v", tt.streak, tt.verified)
	}

	_, err := cfg.RewardMultiplier(-5, false)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestRewardMultiplierCapped(t *testing.T) {
	cfg := DefaultEconomy

	atCap, err := cfg.RewardMultiplier(7*maxStreakDoublings, true)
	require.NoError(t, err)
	beyond, err := cfg.RewardMultiplier(7*(maxStreakDoublings+10), true)
	require.NoError(t, err)

	assert.Equal(t, atCap, beyond)
	assert.Positive(t, beyond)
}

func TestAdReward(t *testing.T) {
	cfg := DefaultEconomy

	reward, err := cfg.AdReward(0, false, true)
	require.NoError(t, err)
	assert.Equal(t, int64(100), reward)

	reward, err = cfg.AdReward(7, true, true)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), reward)

	// Early skip keeps half the reward.
	reward, err = cfg.AdReward(0, false, false)
	require.NoError(t, err)
	assert.Equal(t, int64(50), reward)

	reward, err = cfg.AdReward(7, true, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), reward)

	_, err = cfg.AdReward(-1, true, true)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestPointsToCurrency(t *testing.T) {
	cfg := DefaultEconomy

	amount, err := cfg.PointsToCurrency(10000)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, amount, 1e-9)

	amount, err = cfg.PointsToCurrency(25000)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, amount, 1e-9)

	amount, err = cfg.PointsToCurrency(0)
	require.NoError(t, err)
	assert.Zero(t, amount)

	_, err = cfg.PointsToCurrency(-1)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestNetPayout(t *testing.T) {
	cfg := DefaultEconomy

	assert.InDelta(t, 0.015, cfg.DevFee(1.0), 1e-9)
	assert.InDelta(t, 0.985, cfg.NetPayout(1.0), 1e-9)

	// Rounded down to the provider's 4-decimal precision.
	assert.InDelta(t, 0.0295, cfg.NetPayout(0.03), 1e-9)
}
