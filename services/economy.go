// services/economy.go
package services

import (
	"fmt"
	"math"

	"ad-reward-system/models"
)

// QuotaTier maps a minimum streak length to the daily ad quota it unlocks.
// Tiers are kept sorted ascending by MinStreak and quotas are monotonic
// non-decreasing, so the lookup always picks the largest qualifying tier.
type QuotaTier struct {
	MinStreak int
	Quota     int
}

// EconomyConfig carries every tunable of the reward economy. It is passed
// explicitly to the components that need it — there is no process-wide
// mutable settings singleton.
type EconomyConfig struct {
	BaseQuota   int // verified quota below the first tier
	TeaserQuota int // daily quota before verification
	QuotaTiers  []QuotaTier

	BaseRewardPoints   int64
	VerifiedMultiplier int64
	BaseMultiplier     int64
	MultiplierInterval int   // streak days per permanent doubling
	SkipPenaltyPercent int64 // reward % kept when the ad was skipped early

	CurrencyCode          string  // redeemable currency symbol, e.g. WLD
	PointsPerCurrencyUnit int64   // points per 1.0 unit of redeemable currency
	DevFeePercent         float64 // platform fee on claim payouts
	MinClaimCurrency      float64

	ReferralBonusPoints   int64 // one-shot signup bonus for the referred user
	ReferralAirdropPoints int64 // per-referral airdrop for the referrer

	ProtectionCostPoints int64 // price of one extra streak protection
	StreakWarningHours   int
	HistoryRetentionDays int
	LeaderboardSize      int
}

// DefaultEconomy mirrors the launch tuning of the reward program.
var DefaultEconomy = EconomyConfig{
	BaseQuota:   3,
	TeaserQuota: 1,
	QuotaTiers: []QuotaTier{
		{1, 3}, {3, 5}, {5, 8}, {7, 15}, {14, 25},
		{21, 35}, {30, 50}, {60, 80}, {90, 100},
	},
	BaseRewardPoints:      100,
	VerifiedMultiplier:    20,
	BaseMultiplier:        1,
	MultiplierInterval:    7,
	SkipPenaltyPercent:    50,
	CurrencyCode:          "WLD",
	PointsPerCurrencyUnit: 10000,
	DevFeePercent:         0.015,
	MinClaimCurrency:      0.01,
	ReferralBonusPoints:   5000,
	ReferralAirdropPoints: 5000,
	ProtectionCostPoints:  1000,
	StreakWarningHours:    2,
	HistoryRetentionDays:  90,
	LeaderboardSize:       100,
}

// maxStreakDoublings caps the exponent of the tenure multiplier so the
// int64 math stays safe for multi-year streaks (20 * 2^40 * 100 points
// per ad is still far below the int64 ceiling).
const maxStreakDoublings = 40

// DailyQuota returns the number of rewarded ad views permitted today.
// Unverified users stay on the teaser quota regardless of streak.
func (c EconomyConfig) DailyQuota(streakDays int, verified bool) (int, error) {
	if streakDays < 0 {
		return 0, fmt.Errorf("%w: negative streak %d", models.ErrInvalidArgument, streakDays)
	}
	if !verified {
		return c.TeaserQuota, nil
	}

	quota := c.BaseQuota
	for _, tier := range c.QuotaTiers {
		if streakDays >= tier.MinStreak {
			quota = tier.Quota
		} else {
			break
		}
	}
	return quota, nil
}

// RewardMultiplier combines the verification bonus with the streak tenure
// bonus: base * 2^floor(streak/interval), exponent capped.
func (c EconomyConfig) RewardMultiplier(streakDays int, verified bool) (int64, error) {
	if streakDays < 0 {
		return 0, fmt.Errorf("%w: negative streak %d", models.ErrInvalidArgument, streakDays)
	}

	base := c.BaseMultiplier
	if verified {
		base = c.VerifiedMultiplier
	}

	doublings := streakDays / c.MultiplierInterval
	if doublings > maxStreakDoublings {
		doublings = maxStreakDoublings
	}
	return base << uint(doublings), nil
}

// AdReward is the point reward for one ad view:
// floor(base * multiplier * (1 or skip penalty)).
//
// completedFully=false is only legal once the minimum engagement threshold
// was met — that gate lives in the ad player, not here.
func (c EconomyConfig) AdReward(streakDays int, verified, completedFully bool) (int64, error) {
	multiplier, err := c.RewardMultiplier(streakDays, verified)
	if err != nil {
		return 0, err
	}

	reward := c.BaseRewardPoints * multiplier
	if !completedFully {
		reward = reward * c.SkipPenaltyPercent / 100
	}
	return reward, nil
}

// PointsToCurrency converts points to redeemable currency units.
func (c EconomyConfig) PointsToCurrency(points int64) (float64, error) {
	if points < 0 {
		return 0, fmt.Errorf("%w: negative points %d", models.ErrInvalidArgument, points)
	}
	return float64(points) / float64(c.PointsPerCurrencyUnit), nil
}

// DevFee returns the platform fee withheld from a claim payout.
func (c EconomyConfig) DevFee(amount float64) float64 {
	return amount * c.DevFeePercent
}

// NetPayout is the currency amount actually transferred for a claim,
// rounded down to 4 decimals to match the provider's precision.
func (c EconomyConfig) NetPayout(amount float64) float64 {
	net := amount - c.DevFee(amount)
	return math.Floor(net*10000) / 10000
}
