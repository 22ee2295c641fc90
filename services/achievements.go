// services/achievements.go
package services

import (
	"github.com/gosimple/slug"

	"ad-reward-system/models"
)

// AchievementSpec is a static catalog entry. Codes are slugs of the display
// name so they stay URL- and log-safe.
type AchievementSpec struct {
	Code        string
	Name        string
	Description string
	Reward      int64 // points credited on unlock
	Earned      func(p *models.UserProgress) bool
}

// AchievementCatalog holds every unlockable achievement. Unlocks are
// one-shot: the ledger ignores a second unlock of the same code.
var AchievementCatalog = []AchievementSpec{
	{
		Code:        slug.Make("First Steps"),
		Name:        "First Steps",
		Description: "Watched your first ad",
		Reward:      500,
		Earned:      func(p *models.UserProgress) bool { return p.TotalActions >= 1 },
	},
	{
		Code:        slug.Make("Dedicated"),
		Name:        "Dedicated",
		Description: "Kept a 7-day streak",
		Reward:      2000,
		Earned:      func(p *models.UserProgress) bool { return p.CurrentStreak >= 7 },
	},
	{
		Code:        slug.Make("Streak God"),
		Name:        "Streak God",
		Description: "Kept a 30-day streak",
		Reward:      10000,
		Earned:      func(p *models.UserProgress) bool { return p.CurrentStreak >= 30 },
	},
	{
		Code:        slug.Make("Centurion"),
		Name:        "Centurion",
		Description: "Watched 100 ads",
		Reward:      5000,
		Earned:      func(p *models.UserProgress) bool { return p.TotalActions >= 100 },
	},
	{
		Code:        slug.Make("Verified God Mode"),
		Name:        "Verified God Mode",
		Description: "Completed identity verification",
		Reward:      3000,
		Earned:      func(p *models.UserProgress) bool { return p.Verified },
	},
	{
		Code:        slug.Make("Influencer"),
		Name:        "Influencer",
		Description: "Referred your first friend",
		Reward:      1000,
		Earned:      func(p *models.UserProgress) bool { return len(p.Referral.Referrals) >= 1 },
	},
	{
		Code:        slug.Make("Viral King"),
		Name:        "Viral King",
		Description: "Referred 10 friends",
		Reward:      20000,
		Earned:      func(p *models.UserProgress) bool { return len(p.Referral.Referrals) >= 10 },
	},
}

// FindAchievement looks up a catalog entry by code.
func FindAchievement(code string) (AchievementSpec, bool) {
	for _, spec := range AchievementCatalog {
		if spec.Code == code {
			return spec, true
		}
	}
	return AchievementSpec{}, false
}

// NewlyEarnedAchievements returns catalog entries whose condition the record
// now satisfies but which are not yet unlocked.
func NewlyEarnedAchievements(p *models.UserProgress) []AchievementSpec {
	var earned []AchievementSpec
	for _, spec := range AchievementCatalog {
		if p.HasAchievement(spec.Code) {
			continue
		}
		if spec.Earned(p) {
			earned = append(earned, spec)
		}
	}
	return earned
}
