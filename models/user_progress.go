package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// DayFormat is the canonical key for activity history dates. All day-boundary
// math in this service is done in UTC — device-local rollover would make the
// same streak count differently across time zones.
const DayFormat = "2006-01-02"

// ActivityDay is one calendar day's worth of completed ad views. Protected
// marks a missed day covered by a streak protection: it keeps the run
// contiguous even though no ad was watched.
type ActivityDay struct {
	Date             string `json:"date"` // UTC calendar day, YYYY-MM-DD
	ActionsCompleted int    `json:"actions_completed"`
	Protected        bool   `json:"protected,omitempty"`
}

// ActivityHistory holds the trailing activity window, oldest first,
// at most one entry per calendar date.
type ActivityHistory []ActivityDay

// Find returns the entry for the given date key, or nil.
func (h ActivityHistory) Find(date string) *ActivityDay {
	for i := range h {
		if h[i].Date == date {
			return &h[i]
		}
	}
	return nil
}

// TransactionKind classifies ledger entries.
type TransactionKind string

const (
	TransactionClaim       TransactionKind = "claim"
	TransactionReferral    TransactionKind = "referral"
	TransactionAchievement TransactionKind = "achievement"
	TransactionMilestone   TransactionKind = "milestone"
	TransactionPurchase    TransactionKind = "purchase"
	TransactionReversal    TransactionKind = "reversal"
)

// Transaction is a single append-only ledger entry. Entries are never
// mutated after creation, except for attaching the provider reference
// once the external transfer settles.
type Transaction struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Kind        TransactionKind `json:"kind"`
	Amount      int64           `json:"amount"` // points
	Description string          `json:"description"`
	ExternalRef string          `json:"external_ref,omitempty"` // provider-assigned transfer reference
}

// UnlockedAchievement records a one-time achievement unlock.
type UnlockedAchievement struct {
	Code       string    `json:"code"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// ReferralData tracks both sides of the referral program. BonusApplied is a
// one-shot flag: the signup bonus for being referred is credited at most once.
type ReferralData struct {
	ReferredBy   string   `json:"referred_by,omitempty"` // wallet of the user who referred us
	Referrals    []string `json:"referrals"`             // wallets we referred, no duplicates
	BonusApplied bool     `json:"bonus_applied"`
}

// StreakProtection lets a user survive one missed day. One free use refills
// weekly; extra uses are bought with points.
type StreakProtection struct {
	FreeUses      int       `json:"free_uses"`
	PurchasedUses int       `json:"purchased_uses"`
	LastRefillAt  time.Time `json:"last_refill_at"`
}

// Remaining returns the total protections available.
func (p StreakProtection) Remaining() int {
	return p.FreeUses + p.PurchasedUses
}

// UserProgress is the single durable record per user identity. It is created
// on first contact, mutated only by ledger operations, and never deleted
// except by an explicit admin reset. CurrentStreak is a cached projection of
// ActivityHistory, recomputed after every history mutation — the history is
// the source of truth.
type UserProgress struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	WalletAddress string `gorm:"uniqueIndex;not null" json:"wallet_address"`
	ReferralCode  string `gorm:"index;not null" json:"referral_code"`

	Verified   bool       `gorm:"default:false" json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	// Streak state
	CurrentStreak   int             `gorm:"default:0" json:"current_streak"`
	LongestStreak   int             `gorm:"default:0" json:"longest_streak"`
	ActivityHistory ActivityHistory `gorm:"serializer:json;type:jsonb" json:"activity_history"`
	LastActionAt    *time.Time      `json:"last_action_at,omitempty"`

	// Counters
	ActionsToday int   `gorm:"default:0" json:"actions_today"`
	TotalActions int64 `gorm:"default:0" json:"total_actions"`

	// Point accounting. Available balance = TotalPoints - ClaimedPoints,
	// always derived, never stored.
	TotalPoints   int64 `gorm:"default:0" json:"total_points"`
	ClaimedPoints int64 `gorm:"default:0" json:"claimed_points"`

	Achievements []UnlockedAchievement `gorm:"serializer:json;type:jsonb" json:"achievements"`
	Referral     ReferralData          `gorm:"serializer:json;type:jsonb" json:"referral"`
	Protection   StreakProtection      `gorm:"serializer:json;type:jsonb" json:"protection"`
	Transactions []Transaction         `gorm:"serializer:json;type:jsonb" json:"transactions"`

	// Optimistic concurrency: bumped on every save, saves guard on the
	// version they loaded.
	Version int64 `gorm:"default:0" json:"version"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// AvailableBalance is the portion of earned points not yet redeemed.
func (p *UserProgress) AvailableBalance() int64 {
	return p.TotalPoints - p.ClaimedPoints
}

// HasAchievement reports whether the achievement code is already unlocked.
func (p *UserProgress) HasAchievement(code string) bool {
	for _, a := range p.Achievements {
		if a.Code == code {
			return true
		}
	}
	return false
}

// HasReferred reports whether the wallet is already in the referral set.
func (p *UserProgress) HasReferred(wallet string) bool {
	for _, w := range p.Referral.Referrals {
		if strings.EqualFold(w, wallet) {
			return true
		}
	}
	return false
}

// Clone deep-copies the record so ledger operations can transform a copy
// without partial mutation ever becoming visible on the input.
func (p UserProgress) Clone() UserProgress {
	out := p
	out.ActivityHistory = append(ActivityHistory(nil), p.ActivityHistory...)
	out.Achievements = append([]UnlockedAchievement(nil), p.Achievements...)
	out.Transactions = append([]Transaction(nil), p.Transactions...)
	out.Referral.Referrals = append([]string(nil), p.Referral.Referrals...)
	return out
}

// ReferralCodeFor derives the shareable referral code from the wallet
// address: its last 8 characters, uppercased.
func ReferralCodeFor(walletAddress string) string {
	code := walletAddress
	if len(code) > 8 {
		code = code[len(code)-8:]
	}
	return strings.ToUpper(code)
}
