package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ad-reward-system/models"
)

const (
	testWalletA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa11112222"
	testWalletB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb33334444"
	testWalletC = "0xcccccccccccccccccccccccccccccccc55556666"
)

// newTestService wires a ProgressService against an in-memory database with
// a controllable clock. Mutating the returned time pointer moves the clock.
func newTestService(t *testing.T) (*ProgressService, *time.Time) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UserProgress{}))

	current := testNow
	svc := NewProgressService(db, DefaultEconomy, nil)
	svc.now = func() time.Time { return current }
	return svc, &current
}

// newProviderServer fakes the external payment provider's transfer endpoint.
func newProviderServer(t *testing.T, status int, reference string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/payments/transfer", r.URL.Path)

		w.WriteHeader(status)
		if status == http.StatusOK {
			json.NewEncoder(w).Encode(TransferResponse{Reference: reference, Status: "success"})
		}
	}))
}

func seedPoints(t *testing.T, svc *ProgressService, wallet string, points int64) {
	t.Helper()

	rec, err := svc.LoadOrCreate(wallet)
	require.NoError(t, err)
	require.NoError(t, svc.DB.Model(&models.UserProgress{}).
		Where("id = ?", rec.ID).
		Update("total_points", points).Error)
}

func TestLoadOrCreateIdempotent(t *testing.T) {
	svc, _ := newTestService(t)

	first, err := svc.LoadOrCreate(testWalletA)
	require.NoError(t, err)
	assert.Equal(t, testWalletA, first.WalletAddress)
	assert.Equal(t, "11112222", first.ReferralCode)
	assert.Equal(t, 1, first.Protection.FreeUses)

	// Same wallet in shouty casing with whitespace resolves to the same record.
	second, err := svc.LoadOrCreate("  " + strings.ToUpper(testWalletA) + " ")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = svc.LoadOrCreate("   ")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestWatchAdTeaserQuota(t *testing.T) {
	svc, _ := newTestService(t)

	rec, reward, err := svc.WatchAd(testWalletA, true)
	require.NoError(t, err)
	assert.Equal(t, int64(100), reward)
	assert.Equal(t, 1, rec.ActionsToday)
	assert.Equal(t, 1, rec.CurrentStreak)

	// First view also unlocks First Steps.
	assert.True(t, rec.HasAchievement("first-steps"))
	assert.Equal(t, int64(600), rec.TotalPoints)

	// Unverified users get exactly one rewarded view per day.
	_, _, err = svc.WatchAd(testWalletA, true)
	assert.ErrorIs(t, err, models.ErrQuotaExhausted)
}

func TestWatchAdVerifiedQuota(t *testing.T) {
	svc, clock := newTestService(t)

	rec, err := svc.MarkVerified(testWalletA, *clock)
	require.NoError(t, err)
	assert.True(t, rec.Verified)
	assert.True(t, rec.HasAchievement("verified-god-mode"))

	for i := 0; i < 3; i++ {
		_, reward, err := svc.WatchAd(testWalletA, true)
		require.NoError(t, err)
		assert.Equal(t, int64(2000), reward)
	}

	_, _, err = svc.WatchAd(testWalletA, true)
	assert.ErrorIs(t, err, models.ErrQuotaExhausted)

	// The quota resets with the next calendar day.
	*clock = clock.AddDate(0, 0, 1)
	_, _, err = svc.WatchAd(testWalletA, true)
	require.NoError(t, err)
}

func TestWatchAdSkipPenalty(t *testing.T) {
	svc, _ := newTestService(t)

	_, reward, err := svc.WatchAd(testWalletA, false)
	require.NoError(t, err)
	assert.Equal(t, int64(50), reward)
}

func TestClaimSuccess(t *testing.T) {
	svc, _ := newTestService(t)
	srv := newProviderServer(t, http.StatusOK, "0xref123")
	defer srv.Close()
	svc.Payments = NewPaymentProviderClient(srv.URL, "test-token")

	seedPoints(t, svc, testWalletA, 50000)

	rec, result, err := svc.Claim(testWalletA, 10000)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), result.Points)
	assert.InDelta(t, 1.0, result.Currency, 1e-9)
	assert.InDelta(t, 0.015, result.Fee, 1e-9)
	assert.InDelta(t, 0.985, result.Payout, 1e-9)
	assert.Equal(t, "0xref123", result.Reference)

	assert.Equal(t, int64(10000), rec.ClaimedPoints)
	assert.Equal(t, int64(40000), rec.AvailableBalance())

	// The settled reference is persisted on the claim entry.
	reloaded, err := svc.LoadOrCreate(testWalletA)
	require.NoError(t, err)
	require.Len(t, reloaded.Transactions, 1)
	assert.Equal(t, models.TransactionClaim, reloaded.Transactions[0].Kind)
	assert.Equal(t, "0xref123", reloaded.Transactions[0].ExternalRef)
}

func TestClaimProviderFailureReverses(t *testing.T) {
	svc, _ := newTestService(t)
	srv := newProviderServer(t, http.StatusInternalServerError, "")
	defer srv.Close()
	svc.Payments = NewPaymentProviderClient(srv.URL, "test-token")

	seedPoints(t, svc, testWalletA, 50000)

	_, _, err := svc.Claim(testWalletA, 10000)
	require.Error(t, err)

	// Balance restored, both the claim and its reversal in the trail.
	reloaded, err := svc.LoadOrCreate(testWalletA)
	require.NoError(t, err)
	assert.Zero(t, reloaded.ClaimedPoints)
	require.Len(t, reloaded.Transactions, 2)
	assert.Equal(t, models.TransactionClaim, reloaded.Transactions[0].Kind)
	assert.Equal(t, models.TransactionReversal, reloaded.Transactions[1].Kind)
}

func TestClaimValidation(t *testing.T) {
	svc, _ := newTestService(t)
	seedPoints(t, svc, testWalletA, 1000)

	// 50 points converts below the minimum payout.
	_, _, err := svc.Claim(testWalletA, 50)
	assert.ErrorIs(t, err, models.ErrClaimBelowMinimum)

	_, _, err = svc.Claim(testWalletA, 2000)
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)
}

func TestSaveDetectsStaleVersion(t *testing.T) {
	svc, _ := newTestService(t)

	rec, err := svc.LoadOrCreate(testWalletA)
	require.NoError(t, err)
	stale := rec.Clone()

	rec.TotalPoints = 10
	require.NoError(t, svc.save(rec))

	stale.TotalPoints = 20
	assert.ErrorIs(t, svc.save(&stale), models.ErrStaleRecord)
}

func TestRedeemReferralCode(t *testing.T) {
	svc, _ := newTestService(t)

	referrer, err := svc.LoadOrCreate(testWalletA)
	require.NoError(t, err)

	redeemed, err := svc.RedeemReferralCode(testWalletB, referrer.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, DefaultEconomy.ReferralBonusPoints, redeemed.TotalPoints)
	assert.True(t, redeemed.Referral.BonusApplied)
	assert.Equal(t, testWalletA, redeemed.Referral.ReferredBy)

	// Referrer got the airdrop plus the first-referral achievement.
	reloaded, err := svc.LoadOrCreate(testWalletA)
	require.NoError(t, err)
	assert.Equal(t, DefaultEconomy.ReferralAirdropPoints+1000, reloaded.TotalPoints)
	require.Len(t, reloaded.Referral.Referrals, 1)
	assert.True(t, reloaded.HasAchievement("influencer"))

	// Redeeming twice changes nothing on either side.
	again, err := svc.RedeemReferralCode(testWalletB, referrer.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, redeemed.TotalPoints, again.TotalPoints)
	reloaded, err = svc.LoadOrCreate(testWalletA)
	require.NoError(t, err)
	assert.Len(t, reloaded.Referral.Referrals, 1)
}

func TestRedeemReferralCodeRejections(t *testing.T) {
	svc, _ := newTestService(t)

	referrer, err := svc.LoadOrCreate(testWalletA)
	require.NoError(t, err)

	_, err = svc.RedeemReferralCode(testWalletB, "NOSUCHCD")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = svc.RedeemReferralCode(testWalletA, referrer.ReferralCode)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestSessionStartBreaksStaleStreak(t *testing.T) {
	svc, clock := newTestService(t)

	// Burn the free protection so the break is not absorbed.
	rec, err := svc.LoadOrCreate(testWalletA)
	require.NoError(t, err)
	rec.Protection.FreeUses = 0
	require.NoError(t, svc.save(rec))

	_, _, err = svc.WatchAd(testWalletA, true)
	require.NoError(t, err)

	*clock = clock.AddDate(0, 0, 2)

	rec, err = svc.SessionStart(testWalletA)
	require.NoError(t, err)
	assert.Zero(t, rec.CurrentStreak)
	assert.Nil(t, rec.LastActionAt)
	assert.Zero(t, rec.ActionsToday)

	// The broken state is durable, not just projected.
	reloaded, err := svc.LoadOrCreate(testWalletA)
	require.NoError(t, err)
	assert.Zero(t, reloaded.CurrentStreak)
}

func TestSessionStartConsumesProtection(t *testing.T) {
	svc, clock := newTestService(t)

	_, _, err := svc.WatchAd(testWalletA, true)
	require.NoError(t, err)

	// Skip one full day; the free protection bridges the gap.
	*clock = clock.AddDate(0, 0, 2)

	rec, err := svc.SessionStart(testWalletA)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.CurrentStreak)
	assert.Zero(t, rec.Protection.FreeUses)

	missed := utcDay(*clock).AddDate(0, 0, -1).Format(models.DayFormat)
	entry := rec.ActivityHistory.Find(missed)
	require.NotNil(t, entry)
	assert.True(t, entry.Protected)

	// The next session must not consume anything further.
	again, err := svc.SessionStart(testWalletA)
	require.NoError(t, err)
	assert.Equal(t, 2, again.CurrentStreak)
	assert.Zero(t, again.Protection.Remaining())
}

func TestBuyStreakProtection(t *testing.T) {
	svc, _ := newTestService(t)
	seedPoints(t, svc, testWalletA, 1500)

	rec, err := svc.BuyStreakProtection(testWalletA)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Protection.PurchasedUses)
	assert.Equal(t, int64(500), rec.TotalPoints)

	_, err = svc.BuyStreakProtection(testWalletA)
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)
}

func TestResetProgress(t *testing.T) {
	svc, _ := newTestService(t)

	before, _, err := svc.WatchAd(testWalletA, true)
	require.NoError(t, err)
	require.Positive(t, before.TotalPoints)

	fresh, err := svc.ResetProgress(testWalletA)
	require.NoError(t, err)
	assert.Equal(t, before.ID, fresh.ID)
	assert.Equal(t, before.ReferralCode, fresh.ReferralCode)
	assert.Zero(t, fresh.TotalPoints)
	assert.Zero(t, fresh.CurrentStreak)
	assert.Empty(t, fresh.Transactions)

	reloaded, err := svc.LoadOrCreate(testWalletA)
	require.NoError(t, err)
	assert.Zero(t, reloaded.TotalPoints)
}

func TestDashboard(t *testing.T) {
	svc, _ := newTestService(t)

	view, err := svc.Dashboard(testWalletA)
	require.NoError(t, err)
	assert.Equal(t, 1, view.DailyQuota)
	assert.Equal(t, 1, view.ActionsRemaining)
	assert.Equal(t, int64(100), view.NextAdReward)
	assert.Zero(t, view.CurrentStreak)
	assert.False(t, view.Verified)

	_, _, err = svc.WatchAd(testWalletA, true)
	require.NoError(t, err)

	view, err = svc.Dashboard(testWalletA)
	require.NoError(t, err)
	assert.Equal(t, 1, view.ActionsToday)
	assert.Zero(t, view.ActionsRemaining)
	assert.Equal(t, int64(600), view.TotalPoints)
	assert.InDelta(t, 0.06, view.AvailableCurrency, 1e-9)
	assert.Equal(t, 1, view.CurrentStreak)
}

func TestCalendarProjection(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.WatchAd(testWalletA, true)
	require.NoError(t, err)

	calendar, err := svc.Calendar(testWalletA, 7)
	require.NoError(t, err)
	require.Len(t, calendar, 7)
	assert.True(t, calendar[6].IsToday)
	assert.True(t, calendar[6].WasActive)
	assert.False(t, calendar[0].WasActive)
}

func TestTransactionsNewestFirst(t *testing.T) {
	svc, clock := newTestService(t)
	seedPoints(t, svc, testWalletA, 50000)
	srv := newProviderServer(t, http.StatusOK, "0xref")
	defer srv.Close()
	svc.Payments = NewPaymentProviderClient(srv.URL, "test-token")

	_, _, err := svc.Claim(testWalletA, 10000)
	require.NoError(t, err)

	*clock = clock.Add(time.Minute)
	_, _, err = svc.Claim(testWalletA, 20000)
	require.NoError(t, err)

	txs, err := svc.Transactions(testWalletA)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(20000), txs[0].Amount)
	assert.Equal(t, int64(10000), txs[1].Amount)
}

func TestLeaderboard(t *testing.T) {
	svc, _ := newTestService(t)
	seedPoints(t, svc, testWalletA, 300)
	seedPoints(t, svc, testWalletB, 100)
	seedPoints(t, svc, testWalletC, 200)

	entries, err := svc.Leaderboard(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, int64(300), entries[0].TotalPoints)
	assert.Equal(t, int64(200), entries[1].TotalPoints)

	// Identities are masked.
	assert.Contains(t, entries[0].Wallet, "...")
	assert.NotEqual(t, testWalletA, entries[0].Wallet)
	assert.Equal(t, "0xaaaa...2222", entries[0].Wallet)
}
