// handlers/progress_routes.go
package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"ad-reward-system/middleware"
	"ad-reward-system/models"
	"ad-reward-system/services"
)

// errorStatus maps engine error kinds onto HTTP statuses. Stale records and
// exhausted quotas are conflicts the client can resolve (reload, come back
// tomorrow); invalid arguments are the caller's bug.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument),
		errors.Is(err, models.ErrClaimBelowMinimum):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrInsufficientBalance),
		errors.Is(err, models.ErrQuotaExhausted),
		errors.Is(err, models.ErrStaleRecord):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

func SetupProgressRoutes(app *fiber.App, svc *services.ProgressService, provider *services.PaymentProviderClient) {
	// 🔐 Secured routes — require user context forwarded by the Gateway.
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	securedGroup.Get("/user/progress", func(c *fiber.Ctx) error {
		wallet := c.Locals("user_id").(string)

		view, err := svc.Dashboard(wallet)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(view)
	})

	securedGroup.Post("/user/session/start", func(c *fiber.Ctx) error {
		wallet := c.Locals("user_id").(string)

		rec, err := svc.SessionStart(wallet)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(rec)
	})

	securedGroup.Get("/user/progress/calendar", func(c *fiber.Ctx) error {
		wallet := c.Locals("user_id").(string)
		days, _ := strconv.Atoi(c.Query("days", "30"))

		calendar, err := svc.Calendar(wallet, days)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(calendar)
	})

	securedGroup.Get("/user/transactions", func(c *fiber.Ctx) error {
		wallet := c.Locals("user_id").(string)

		txs, err := svc.Transactions(wallet)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(txs)
	})

	securedGroup.Post("/user/ads/complete", func(c *fiber.Ctx) error {
		wallet := c.Locals("user_id").(string)

		var req struct {
			// CompletedFully=false means the user skipped after the
			// minimum watch time; the ad player enforces that gate.
			CompletedFully *bool `json:"completed_fully"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		completed := true
		if req.CompletedFully != nil {
			completed = *req.CompletedFully
		}

		rec, reward, err := svc.WatchAd(wallet, completed)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"points_earned": reward,
			"progress":      rec,
		})
	})

	securedGroup.Post("/user/claims", func(c *fiber.Ctx) error {
		wallet := c.Locals("user_id").(string)

		var req struct {
			Points int64 `json:"points"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		rec, result, err := svc.Claim(wallet, req.Points)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"claim":    result,
			"progress": rec,
		})
	})

	securedGroup.Post("/user/referrals/redeem", func(c *fiber.Ctx) error {
		wallet := c.Locals("user_id").(string)

		var req struct {
			Code string `json:"code"`
		}
		if err := c.BodyParser(&req); err != nil || req.Code == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "referral code required"})
		}

		rec, err := svc.RedeemReferralCode(wallet, req.Code)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(rec)
	})

	securedGroup.Post("/user/protection/buy", func(c *fiber.Ctx) error {
		wallet := c.Locals("user_id").(string)

		rec, err := svc.BuyStreakProtection(wallet)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(rec)
	})

	securedGroup.Get("/leaderboard", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "100"))

		entries, err := svc.Leaderboard(limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(entries)
	})

	// SSE authenticates from query params (EventSource cannot set headers),
	// so the stream lives outside the header-guarded /user/ prefix.
	app.Get("/sse/transactions", middleware.SSEAuthMiddleware(provider), svc.StreamUserTransactionsSSE)

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	adminGroup.Post("/verify", func(c *fiber.Ctx) error {
		var req struct {
			Wallet     string     `json:"wallet"`
			VerifiedAt *time.Time `json:"verified_at"`
		}
		if err := c.BodyParser(&req); err != nil || req.Wallet == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "wallet required"})
		}
		at := time.Now()
		if req.VerifiedAt != nil {
			at = *req.VerifiedAt
		}

		rec, err := svc.MarkVerified(req.Wallet, at)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(rec)
	})

	adminGroup.Post("/reset", func(c *fiber.Ctx) error {
		var req struct {
			Wallet string `json:"wallet"`
		}
		if err := c.BodyParser(&req); err != nil || req.Wallet == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "wallet required"})
		}

		rec, err := svc.ResetProgress(req.Wallet)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "progress reset", "progress": rec})
	})

	adminGroup.Post("/ledger/archive", func(c *fiber.Ctx) error {
		if err := svc.ArchiveLedger(); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "ledger archived"})
	})
}
