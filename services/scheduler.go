// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"ad-reward-system/models"
	"ad-reward-system/utils"
)

// StartMaintenanceScheduler runs the time-driven housekeeping: an hourly
// sweep that settles broken streaks server-side (clients that never come
// back would otherwise keep a stale streak on the leaderboard) and a nightly
// ledger archive to object storage.
func (s *ProgressService) StartMaintenanceScheduler(archiveEnabled bool) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every hour: settle streaks broken by the calendar.
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			s.sweepBrokenStreaks()
		}),
	)

	if archiveEnabled {
		// Once a day: archive the full ledger for audit.
		_, _ = sched.NewJob(
			gocron.DurationJob(24*time.Hour),
			gocron.NewTask(func() {
				if err := s.ArchiveLedger(); err != nil {
					log.Printf("[Scheduler] Ledger archive failed: %v", err)
				}
			}),
		)
	}
}

// sweepBrokenStreaks finds records whose streak the calendar has already
// broken and settles them through the same pure operation a session start
// would use.
func (s *ProgressService) sweepBrokenStreaks() {
	now := s.clock()
	cutoff := utcDay(now).AddDate(0, 0, -1) // last action before yesterday = broken

	var stale []models.UserProgress
	err := s.DB.Where("current_streak > 0 AND last_action_at < ?", cutoff).
		Limit(500).
		Find(&stale).Error
	if err != nil {
		log.Printf("[Scheduler] DB error: %v", err)
		return
	}

	for _, rec := range stale {
		next := ResetStreakIfBroken(rec, now)
		if next.CurrentStreak == rec.CurrentStreak && next.Protection == rec.Protection {
			continue
		}
		if err := s.save(&next); err != nil {
			// A concurrent session start may have settled it already.
			log.Printf("[Scheduler] Failed to settle streak for %s: %v", rec.WalletAddress, err)
			continue
		}
		log.Printf("⏱️ Settled broken streak for %s (was %d)", rec.WalletAddress, rec.CurrentStreak)
	}
}

// ledgerSnapshot is the archived shape: one entry per user with the full
// append-only transaction trail.
type ledgerSnapshot struct {
	WalletAddress string               `json:"wallet_address"`
	TotalPoints   int64                `json:"total_points"`
	ClaimedPoints int64                `json:"claimed_points"`
	Transactions  []models.Transaction `json:"transactions"`
}

// ArchiveLedger uploads a dated JSON snapshot of every user's transaction
// trail to object storage.
func (s *ProgressService) ArchiveLedger() error {
	var records []models.UserProgress
	if err := s.DB.Find(&records).Error; err != nil {
		return err
	}

	snapshot := make([]ledgerSnapshot, len(records))
	for i, rec := range records {
		snapshot[i] = ledgerSnapshot{
			WalletAddress: rec.WalletAddress,
			TotalPoints:   rec.TotalPoints,
			ClaimedPoints: rec.ClaimedPoints,
			Transactions:  rec.Transactions,
		}
	}

	key := "ledger/" + utcDay(s.clock()).Format(models.DayFormat) + ".json"
	url, err := utils.UploadLedgerArchive(key, snapshot)
	if err != nil {
		return err
	}
	log.Printf("📦 Ledger archived: %s (%d users)", url, len(records))
	return nil
}
