// services/progress_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ad-reward-system/models"
)

// ProgressService is the single writer for UserProgress records. It loads a
// record, runs the pure ledger operations on it and persists the result with
// optimistic versioning — concurrent writers lose with ErrStaleRecord and
// are expected to reload and retry.
type ProgressService struct {
	DB       *gorm.DB
	Economy  EconomyConfig
	Payments *PaymentProviderClient

	now func() time.Time
}

func NewProgressService(db *gorm.DB, economy EconomyConfig, payments *PaymentProviderClient) *ProgressService {
	return &ProgressService{
		DB:       db,
		Economy:  economy,
		Payments: payments,
		now:      time.Now,
	}
}

func (s *ProgressService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// LoadOrCreate fetches the record for a wallet, creating it on first contact
// (idempotent).
func (s *ProgressService) LoadOrCreate(wallet string) (*models.UserProgress, error) {
	wallet = strings.ToLower(strings.TrimSpace(wallet))
	if wallet == "" {
		return nil, fmt.Errorf("%w: empty wallet address", models.ErrInvalidArgument)
	}

	var rec models.UserProgress
	err := s.DB.Where("wallet_address = ?", wallet).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rec = models.UserProgress{
			ID:              uuid.NewString(),
			WalletAddress:   wallet,
			ReferralCode:    models.ReferralCodeFor(wallet),
			ActivityHistory: models.ActivityHistory{},
			Achievements:    []models.UnlockedAchievement{},
			Referral:        models.ReferralData{Referrals: []string{}},
			Protection:      models.StreakProtection{FreeUses: 1, LastRefillAt: utcDay(s.clock())},
			Transactions:    []models.Transaction{},
		}
		if err := s.DB.Create(&rec).Error; err != nil {
			return nil, fmt.Errorf("creating progress record: %w", err)
		}
		return &rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading progress record: %w", err)
	}
	return &rec, nil
}

// save persists a mutated record guarded by the version it was loaded at.
// Zero rows updated means another writer got there first.
func (s *ProgressService) save(rec *models.UserProgress) error {
	loadedVersion := rec.Version
	rec.Version = loadedVersion + 1

	res := s.DB.Model(&models.UserProgress{}).
		Where("id = ? AND version = ?", rec.ID, loadedVersion).
		Select("*").Omit("id", "created_at", "deleted_at").
		Updates(rec)
	if res.Error != nil {
		return fmt.Errorf("persisting progress record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrStaleRecord
	}
	return nil
}

// normalize applies the time-driven transitions (day rollover, streak
// breakage) that must run before any quota or reward math.
func (s *ProgressService) normalize(rec models.UserProgress, now time.Time) models.UserProgress {
	out := RolloverDay(rec, now)
	return ResetStreakIfBroken(out, now)
}

// SessionStart loads the record and settles time-driven state. Called by the
// client on every app open, and by WatchAd internally, since streak breakage
// is driven by the calendar rather than by events.
func (s *ProgressService) SessionStart(wallet string) (*models.UserProgress, error) {
	now := s.clock()
	rec, err := s.LoadOrCreate(wallet)
	if err != nil {
		return nil, err
	}

	norm := s.normalize(*rec, now)
	if norm.ActionsToday != rec.ActionsToday ||
		norm.CurrentStreak != rec.CurrentStreak ||
		norm.Protection != rec.Protection ||
		(norm.LastActionAt == nil) != (rec.LastActionAt == nil) {
		if err := s.save(&norm); err != nil {
			return nil, err
		}
	}
	return &norm, nil
}

// unlockEarned sweeps the achievement catalog after a mutation and unlocks
// everything the record now qualifies for.
func (s *ProgressService) unlockEarned(rec models.UserProgress, now time.Time) models.UserProgress {
	for _, spec := range NewlyEarnedAchievements(&rec) {
		next, err := UnlockAchievement(rec, spec.Code, now)
		if err != nil {
			log.Printf("achievement unlock %s failed for %s: %v", spec.Code, rec.WalletAddress, err)
			continue
		}
		rec = next
		log.Printf("🏆 Achievement unlocked: %s → %s (+%d points)", spec.Code, rec.WalletAddress, spec.Reward)
	}
	return rec
}

// WatchAd records one finished ad view and returns the updated record plus
// the points earned. completedFully=false applies the early-skip penalty;
// the minimum-engagement gate lives in the ad player.
func (s *ProgressService) WatchAd(wallet string, completedFully bool) (*models.UserProgress, int64, error) {
	now := s.clock()
	rec, err := s.LoadOrCreate(wallet)
	if err != nil {
		return nil, 0, err
	}
	norm := s.normalize(*rec, now)

	quota, err := s.Economy.DailyQuota(norm.CurrentStreak, norm.Verified)
	if err != nil {
		return nil, 0, err
	}
	if norm.ActionsToday >= quota {
		return nil, 0, models.ErrQuotaExhausted
	}

	reward, err := s.Economy.AdReward(norm.CurrentStreak, norm.Verified, completedFully)
	if err != nil {
		return nil, 0, err
	}

	next, err := ApplyAdWatch(s.Economy, norm, reward, now)
	if err != nil {
		return nil, 0, err
	}
	next = s.unlockEarned(next, now)

	if err := s.save(&next); err != nil {
		return nil, 0, err
	}
	return &next, reward, nil
}

// ClaimResult summarizes a settled claim.
type ClaimResult struct {
	Points    int64   `json:"points"`
	Currency  float64 `json:"currency"`
	Fee       float64 `json:"fee"`
	Payout    float64 `json:"payout"`
	Reference string  `json:"reference"`
}

// Claim converts earned points into a provider payout. The ledger mutation
// is applied and persisted optimistically first; if the provider transfer
// then fails, a compensating reversal is written — the original entry is
// never rolled back in place.
func (s *ProgressService) Claim(wallet string, pointsToClaim int64) (*models.UserProgress, *ClaimResult, error) {
	now := s.clock()
	rec, err := s.LoadOrCreate(wallet)
	if err != nil {
		return nil, nil, err
	}

	currency, err := s.Economy.PointsToCurrency(pointsToClaim)
	if err != nil {
		return nil, nil, err
	}
	if currency < s.Economy.MinClaimCurrency {
		return nil, nil, fmt.Errorf("%w: %.4f %s requested, minimum is %.4f",
			models.ErrClaimBelowMinimum, currency, s.Economy.CurrencyCode, s.Economy.MinClaimCurrency)
	}
	payout := s.Economy.NetPayout(currency)

	next, err := ApplyClaim(s.Economy, *rec, pointsToClaim, currency, "", now)
	if err != nil {
		return nil, nil, err
	}
	claimTxID := next.Transactions[len(next.Transactions)-1].ID

	if err := s.save(&next); err != nil {
		return nil, nil, err
	}

	transfer, err := s.Payments.Transfer(wallet, payout, s.Economy.CurrencyCode)
	if err != nil {
		reversed, rerr := ApplyClaimReversal(next, pointsToClaim, "provider transfer failed", s.clock())
		if rerr != nil {
			log.Printf("❌ claim reversal failed for %s: %v", wallet, rerr)
		} else if serr := s.save(&reversed); serr != nil {
			log.Printf("❌ persisting claim reversal failed for %s: %v", wallet, serr)
		}
		return nil, nil, fmt.Errorf("claim transfer: %w", err)
	}

	final, err := AttachTransactionRef(next, claimTxID, transfer.Reference)
	if err == nil {
		if serr := s.save(&final); serr != nil {
			log.Printf("⚠️ claim %s settled but reference %s not persisted: %v", claimTxID, transfer.Reference, serr)
			final = next
		}
	} else {
		final = next
	}

	return &final, &ClaimResult{
		Points:    pointsToClaim,
		Currency:  currency,
		Fee:       s.Economy.DevFee(currency),
		Payout:    payout,
		Reference: transfer.Reference,
	}, nil
}

// RedeemReferralCode applies a referral code on the redeeming user and
// credits the referrer's airdrop. Both sides are idempotent.
func (s *ProgressService) RedeemReferralCode(wallet, code string) (*models.UserProgress, error) {
	now := s.clock()
	rec, err := s.LoadOrCreate(wallet)
	if err != nil {
		return nil, err
	}
	if rec.Referral.BonusApplied {
		return rec, nil
	}

	var referrer models.UserProgress
	err = s.DB.Where("referral_code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&referrer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: unknown referral code %q", models.ErrInvalidArgument, code)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up referral code: %w", err)
	}
	if referrer.WalletAddress == rec.WalletAddress {
		return nil, fmt.Errorf("%w: self-referral", models.ErrInvalidArgument)
	}

	next, err := ApplyReferralBonus(s.Economy, *rec, referrer.WalletAddress, now)
	if err != nil {
		return nil, err
	}
	if err := s.save(&next); err != nil {
		return nil, err
	}

	refNext, err := AddReferral(s.Economy, referrer, rec.WalletAddress, now)
	if err != nil {
		return nil, err
	}
	refNext = s.unlockEarned(refNext, now)
	if err := s.save(&refNext); err != nil {
		return nil, err
	}

	log.Printf("🤝 Referral: %s joined via %s", rec.WalletAddress, referrer.WalletAddress)
	return &next, nil
}

// MarkVerified flips the verified flag from the external provider's
// confirmation. The engine treats the flag as an opaque input.
func (s *ProgressService) MarkVerified(wallet string, verifiedAt time.Time) (*models.UserProgress, error) {
	rec, err := s.LoadOrCreate(wallet)
	if err != nil {
		return nil, err
	}
	if rec.Verified {
		return rec, nil
	}

	next := rec.Clone()
	next.Verified = true
	at := verifiedAt.UTC()
	next.VerifiedAt = &at
	next = s.unlockEarned(next, s.clock())

	if err := s.save(&next); err != nil {
		return nil, err
	}
	return &next, nil
}

// BuyStreakProtection spends points on one extra protection use.
func (s *ProgressService) BuyStreakProtection(wallet string) (*models.UserProgress, error) {
	rec, err := s.LoadOrCreate(wallet)
	if err != nil {
		return nil, err
	}
	next, err := PurchaseStreakProtection(s.Economy, *rec, s.clock())
	if err != nil {
		return nil, err
	}
	if err := s.save(&next); err != nil {
		return nil, err
	}
	return &next, nil
}

// ResetProgress wipes a record back to first-contact state (admin only).
func (s *ProgressService) ResetProgress(wallet string) (*models.UserProgress, error) {
	rec, err := s.LoadOrCreate(wallet)
	if err != nil {
		return nil, err
	}
	fresh := ResetRecord(*rec, s.clock())
	if err := s.save(&fresh); err != nil {
		return nil, err
	}
	log.Printf("♻️ Progress reset for %s", wallet)
	return &fresh, nil
}

// DashboardView is the caller-facing projection: every field is derived
// from the record, nothing here is hidden state.
type DashboardView struct {
	WalletAddress string `json:"wallet_address"`
	ReferralCode  string `json:"referral_code"`
	Verified      bool   `json:"verified"`

	CurrentStreak         int     `json:"current_streak"`
	LongestStreak         int     `json:"longest_streak"`
	StreakLevel           int     `json:"streak_level"`
	NextLevelThreshold    int     `json:"next_level_threshold"`
	StreakProgressPercent float64 `json:"streak_progress_percent"`
	StreakExpiryWarning   bool    `json:"streak_expiry_warning"`
	ProtectionRemaining   int     `json:"protection_remaining"`

	DailyQuota       int   `json:"daily_quota"`
	ActionsToday     int   `json:"actions_today"`
	ActionsRemaining int   `json:"actions_remaining"`
	NextAdReward     int64 `json:"next_ad_reward"`

	TotalPoints       int64   `json:"total_points"`
	ClaimedPoints     int64   `json:"claimed_points"`
	AvailableBalance  int64   `json:"available_balance"`
	AvailableCurrency float64 `json:"available_currency"`

	ReferralCount int `json:"referral_count"`
}

// Dashboard settles time-driven state and projects the record for the
// presentation layer.
func (s *ProgressService) Dashboard(wallet string) (*DashboardView, error) {
	rec, err := s.SessionStart(wallet)
	if err != nil {
		return nil, err
	}
	now := s.clock()

	quota, err := s.Economy.DailyQuota(rec.CurrentStreak, rec.Verified)
	if err != nil {
		return nil, err
	}
	nextReward, err := s.Economy.AdReward(rec.CurrentStreak, rec.Verified, true)
	if err != nil {
		return nil, err
	}
	availableCurrency, err := s.Economy.PointsToCurrency(rec.AvailableBalance())
	if err != nil {
		return nil, err
	}

	remaining := quota - rec.ActionsToday
	if remaining < 0 {
		remaining = 0
	}

	return &DashboardView{
		WalletAddress:         rec.WalletAddress,
		ReferralCode:          rec.ReferralCode,
		Verified:              rec.Verified,
		CurrentStreak:         rec.CurrentStreak,
		LongestStreak:         rec.LongestStreak,
		StreakLevel:           StreakLevel(rec.CurrentStreak),
		NextLevelThreshold:    NextLevelThreshold(StreakLevel(rec.CurrentStreak)),
		StreakProgressPercent: StreakProgressPercent(rec.CurrentStreak),
		StreakExpiryWarning:   NeedsExpiryWarning(rec.LastActionAt, now, s.Economy.StreakWarningHours),
		ProtectionRemaining:   rec.Protection.Remaining(),
		DailyQuota:            quota,
		ActionsToday:          rec.ActionsToday,
		ActionsRemaining:      remaining,
		NextAdReward:          nextReward,
		TotalPoints:           rec.TotalPoints,
		ClaimedPoints:         rec.ClaimedPoints,
		AvailableBalance:      rec.AvailableBalance(),
		AvailableCurrency:     availableCurrency,
		ReferralCount:         len(rec.Referral.Referrals),
	}, nil
}

// Calendar projects the trailing activity window for the given wallet.
func (s *ProgressService) Calendar(wallet string, windowDays int) ([]CalendarDay, error) {
	if windowDays <= 0 || windowDays > s.Economy.HistoryRetentionDays {
		windowDays = 30
	}
	rec, err := s.LoadOrCreate(wallet)
	if err != nil {
		return nil, err
	}
	return BuildCalendar(rec.ActivityHistory, windowDays, s.clock()), nil
}

// Transactions returns the audit trail, newest first.
func (s *ProgressService) Transactions(wallet string) ([]models.Transaction, error) {
	rec, err := s.LoadOrCreate(wallet)
	if err != nil {
		return nil, err
	}
	txs := append([]models.Transaction(nil), rec.Transactions...)
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	return txs, nil
}

// LeaderboardEntry is one anonymized row of the points leaderboard.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	Wallet        string `json:"wallet"` // masked
	TotalPoints   int64  `json:"total_points"`
	CurrentStreak int    `json:"current_streak"`
}

// Leaderboard returns the top earners with masked identities.
func (s *ProgressService) Leaderboard(limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > s.Economy.LeaderboardSize {
		limit = s.Economy.LeaderboardSize
	}

	var records []models.UserProgress
	if err := s.DB.Order("total_points DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("loading leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, len(records))
	for i, rec := range records {
		entries[i] = LeaderboardEntry{
			Rank:          i + 1,
			Wallet:        maskWallet(rec.WalletAddress),
			TotalPoints:   rec.TotalPoints,
			CurrentStreak: rec.CurrentStreak,
		}
	}
	return entries, nil
}

func maskWallet(wallet string) string {
	if len(wallet) <= 10 {
		return wallet
	}
	return wallet[:6] + "..." + wallet[len(wallet)-4:]
}
