// services/ledger.go
//
// Pure ledger operations. Every function transforms an immutable input
// record into a new output record — persistence is the caller's job,
// invoked right after a successful operation. No partial mutation is ever
// visible: an operation returns a fully-updated record or an error.
package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"ad-reward-system/models"
)

// ledgerPrinter formats point amounts with thousands separators for
// transaction descriptions.
var ledgerPrinter = message.NewPrinter(language.English)

func newTransaction(kind models.TransactionKind, amount int64, description, externalRef string, now time.Time) models.Transaction {
	return models.Transaction{
		ID:          uuid.NewString(),
		Date:        now.UTC(),
		Kind:        kind,
		Amount:      amount,
		Description: description,
		ExternalRef: externalRef,
	}
}

// ApplyAdWatch records one completed ad view: upserts today's history entry,
// bumps the counters, credits the points, recomputes the streak projection
// and grants the milestone bonus exactly on the transition to a milestone
// value. Must be called at most once per completed view — this is the sole
// way TotalPoints grows from gameplay.
func ApplyAdWatch(cfg EconomyConfig, rec models.UserProgress, pointsEarned int64, now time.Time) (models.UserProgress, error) {
	if pointsEarned < 0 {
		return models.UserProgress{}, fmt.Errorf("%w: negative points %d", models.ErrInvalidArgument, pointsEarned)
	}

	out := rec.Clone()
	today := utcDay(now).Format(models.DayFormat)
	if entry := out.ActivityHistory.Find(today); entry != nil {
		entry.ActionsCompleted++
	} else {
		out.ActivityHistory = append(out.ActivityHistory, models.ActivityDay{
			Date:             today,
			ActionsCompleted: 1,
		})
	}
	out.ActivityHistory = pruneHistory(out.ActivityHistory, cfg.HistoryRetentionDays, now)

	out.ActionsToday++
	out.TotalActions++
	out.TotalPoints += pointsEarned
	at := now.UTC()
	out.LastActionAt = &at

	out.CurrentStreak = CurrentStreakFromHistory(out.ActivityHistory, now)
	if out.CurrentStreak > out.LongestStreak {
		out.LongestStreak = out.CurrentStreak
	}

	// Milestone bonuses fire once, at the moment the streak reaches the
	// milestone value — not on every call while it sits there.
	if out.CurrentStreak != rec.CurrentStreak && IsMilestone(out.CurrentStreak) {
		bonus := MilestoneBonus(out.CurrentStreak)
		out.TotalPoints += bonus
		out.Transactions = append(out.Transactions, newTransaction(
			models.TransactionMilestone, bonus,
			ledgerPrinter.Sprintf("Day %d streak milestone: %d points", out.CurrentStreak, bonus),
			"", now,
		))
	}
	return out, nil
}

// ApplyClaim converts earned points into a currency payout. It is the only
// operation that increases ClaimedPoints, and it never lets ClaimedPoints
// exceed TotalPoints.
func ApplyClaim(cfg EconomyConfig, rec models.UserProgress, pointsToClaim int64, currencyAmount float64, externalRef string, now time.Time) (models.UserProgress, error) {
	if pointsToClaim <= 0 || currencyAmount < 0 {
		return models.UserProgress{}, fmt.Errorf("%w: claim of %d points / %f", models.ErrInvalidArgument, pointsToClaim, currencyAmount)
	}
	if pointsToClaim > rec.AvailableBalance() {
		return models.UserProgress{}, fmt.Errorf("%w: %d points requested, %d available",
			models.ErrInsufficientBalance, pointsToClaim, rec.AvailableBalance())
	}

	out := rec.Clone()
	out.ClaimedPoints += pointsToClaim
	out.Transactions = append(out.Transactions, newTransaction(
		models.TransactionClaim, pointsToClaim,
		ledgerPrinter.Sprintf("Claimed %d points for %.4f %s", pointsToClaim, currencyAmount, cfg.CurrencyCode),
		externalRef, now,
	))
	return out, nil
}

// ApplyClaimReversal is the compensating mutation for a claim whose external
// transfer failed after the optimistic write: the original claim entry stays
// in the audit trail and a reversal entry restores the balance.
func ApplyClaimReversal(rec models.UserProgress, pointsToRestore int64, reason string, now time.Time) (models.UserProgress, error) {
	if pointsToRestore <= 0 || pointsToRestore > rec.ClaimedPoints {
		return models.UserProgress{}, fmt.Errorf("%w: reversal of %d points with %d claimed",
			models.ErrInvalidArgument, pointsToRestore, rec.ClaimedPoints)
	}

	out := rec.Clone()
	out.ClaimedPoints -= pointsToRestore
	out.Transactions = append(out.Transactions, newTransaction(
		models.TransactionReversal, pointsToRestore,
		ledgerPrinter.Sprintf("Reversed claim of %d points: %s", pointsToRestore, reason),
		"", now,
	))
	return out, nil
}

// AttachTransactionRef stores the provider-assigned reference on an existing
// ledger entry once the external transfer settles.
func AttachTransactionRef(rec models.UserProgress, transactionID, externalRef string) (models.UserProgress, error) {
	out := rec.Clone()
	for i := range out.Transactions {
		if out.Transactions[i].ID == transactionID {
			out.Transactions[i].ExternalRef = externalRef
			return out, nil
		}
	}
	return models.UserProgress{}, fmt.Errorf("%w: unknown transaction %s", models.ErrInvalidArgument, transactionID)
}

// UnlockAchievement adds the achievement and credits its catalog reward.
// Unlocking twice is a no-op returning the record unchanged.
func UnlockAchievement(rec models.UserProgress, code string, now time.Time) (models.UserProgress, error) {
	if rec.HasAchievement(code) {
		return rec, nil
	}
	spec, ok := FindAchievement(code)
	if !ok {
		return models.UserProgress{}, fmt.Errorf("%w: unknown achievement %q", models.ErrInvalidArgument, code)
	}

	out := rec.Clone()
	out.Achievements = append(out.Achievements, models.UnlockedAchievement{
		Code:       spec.Code,
		UnlockedAt: now.UTC(),
	})
	out.TotalPoints += spec.Reward
	out.Transactions = append(out.Transactions, newTransaction(
		models.TransactionAchievement, spec.Reward,
		ledgerPrinter.Sprintf("Achievement unlocked: %s (+%d points)", spec.Name, spec.Reward),
		"", now,
	))
	return out, nil
}

// ApplyReferralBonus credits the one-shot signup bonus to a user who joined
// through a referral code. Applying twice is a no-op.
func ApplyReferralBonus(cfg EconomyConfig, rec models.UserProgress, referrerWallet string, now time.Time) (models.UserProgress, error) {
	if referrerWallet == "" {
		return models.UserProgress{}, fmt.Errorf("%w: empty referrer", models.ErrInvalidArgument)
	}
	if rec.Referral.BonusApplied {
		return rec, nil
	}

	out := rec.Clone()
	out.Referral.ReferredBy = referrerWallet
	out.Referral.BonusApplied = true
	out.TotalPoints += cfg.ReferralBonusPoints
	out.Transactions = append(out.Transactions, newTransaction(
		models.TransactionReferral, cfg.ReferralBonusPoints,
		ledgerPrinter.Sprintf("Referral signup bonus: %d points", cfg.ReferralBonusPoints),
		"", now,
	))
	return out, nil
}

// AddReferral records a successful referral on the referrer's side and
// credits the airdrop. Points are credited (rather than a bare quota bump)
// so the ledger stays consistent with the balance. Adding the same wallet
// twice is a no-op.
func AddReferral(cfg EconomyConfig, rec models.UserProgress, referredWallet string, now time.Time) (models.UserProgress, error) {
	if referredWallet == "" {
		return models.UserProgress{}, fmt.Errorf("%w: empty referred wallet", models.ErrInvalidArgument)
	}
	if rec.HasReferred(referredWallet) {
		return rec, nil
	}

	out := rec.Clone()
	out.Referral.Referrals = append(out.Referral.Referrals, referredWallet)
	out.TotalPoints += cfg.ReferralAirdropPoints
	out.Transactions = append(out.Transactions, newTransaction(
		models.TransactionReferral, cfg.ReferralAirdropPoints,
		ledgerPrinter.Sprintf("Referral airdrop: %d points", cfg.ReferralAirdropPoints),
		"", now,
	))
	return out, nil
}

// ResetStreakIfBroken zeroes the streak once a full calendar day has passed
// with no activity. When the gap is a single missed day and the user holds a
// streak protection, the protection is consumed instead: the missed day is
// backfilled as a protected entry so the streak stays re-derivable from the
// history alone. Callers invoke this on every session start — breakage is
// time-driven, not event-driven.
func ResetStreakIfBroken(rec models.UserProgress, now time.Time) models.UserProgress {
	if !IsStreakBroken(rec.LastActionAt, now) {
		return rec
	}

	out := rec.Clone()

	// A protection covers exactly one fully-missed day.
	if calendarDaysBetween(*rec.LastActionAt, now) == 2 && out.Protection.Remaining() > 0 {
		if out.Protection.FreeUses > 0 {
			out.Protection.FreeUses--
		} else {
			out.Protection.PurchasedUses--
		}

		missed := utcDay(now).AddDate(0, 0, -1)
		out.ActivityHistory = append(out.ActivityHistory, models.ActivityDay{
			Date:      missed.Format(models.DayFormat),
			Protected: true,
		})
		sort.Slice(out.ActivityHistory, func(i, j int) bool {
			return out.ActivityHistory[i].Date < out.ActivityHistory[j].Date
		})

		// Anchor the last action on the protected day so the next session
		// sees an unbroken streak instead of consuming another protection.
		out.LastActionAt = &missed
		out.CurrentStreak = CurrentStreakFromHistory(out.ActivityHistory, now)
		if out.CurrentStreak > out.LongestStreak {
			out.LongestStreak = out.CurrentStreak
		}

		// The backfill can move the streak onto a milestone value; the next
		// ad watch starts past it, so the bonus has to be granted here.
		if out.CurrentStreak != rec.CurrentStreak && IsMilestone(out.CurrentStreak) {
			bonus := MilestoneBonus(out.CurrentStreak)
			out.TotalPoints += bonus
			out.Transactions = append(out.Transactions, newTransaction(
				models.TransactionMilestone, bonus,
				ledgerPrinter.Sprintf("Day %d streak milestone: %d points", out.CurrentStreak, bonus),
				"", now,
			))
		}
		return out
	}

	out.CurrentStreak = 0
	out.LastActionAt = nil
	return out
}

// PurchaseStreakProtection spends available points on one extra protection.
func PurchaseStreakProtection(cfg EconomyConfig, rec models.UserProgress, now time.Time) (models.UserProgress, error) {
	if rec.AvailableBalance() < cfg.ProtectionCostPoints {
		return models.UserProgress{}, fmt.Errorf("%w: protection costs %d points, %d available",
			models.ErrInsufficientBalance, cfg.ProtectionCostPoints, rec.AvailableBalance())
	}

	out := rec.Clone()
	out.TotalPoints -= cfg.ProtectionCostPoints
	out.Protection.PurchasedUses++
	out.Transactions = append(out.Transactions, newTransaction(
		models.TransactionPurchase, -cfg.ProtectionCostPoints,
		ledgerPrinter.Sprintf("Bought streak protection for %d points", cfg.ProtectionCostPoints),
		"", now,
	))
	return out, nil
}

// RolloverDay resets the daily counter when the record was last touched on a
// previous calendar day and refills the weekly free streak protection.
func RolloverDay(rec models.UserProgress, now time.Time) models.UserProgress {
	out := rec
	if out.ActionsToday > 0 && !HasActedToday(out.LastActionAt, now) {
		out = out.Clone()
		out.ActionsToday = 0
	}

	if now.UTC().Sub(out.Protection.LastRefillAt) >= 7*24*time.Hour {
		out = out.Clone()
		if out.Protection.FreeUses < 1 {
			out.Protection.FreeUses = 1
		}
		out.Protection.LastRefillAt = utcDay(now)
	}
	return out
}

// ResetRecord wipes everything back to first-contact state. Only an explicit
// admin reset goes through here — records are never deleted.
func ResetRecord(rec models.UserProgress, now time.Time) models.UserProgress {
	fresh := models.UserProgress{
		ID:            rec.ID,
		WalletAddress: rec.WalletAddress,
		ReferralCode:  rec.ReferralCode,
		Version:       rec.Version,
	}
	fresh.Protection = models.StreakProtection{FreeUses: 1, LastRefillAt: utcDay(now)}
	fresh.Timestamps = rec.Timestamps
	return fresh
}
