// workers/verification_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"ad-reward-system/services"
	"ad-reward-system/utils"
)

// VerificationEvent is one identity-verification confirmation from the
// provider. The engine never computes verification itself — it only mirrors
// the provider's attestations into the progress records.
type VerificationEvent struct {
	WalletAddress string    `json:"wallet_address"`
	VerifiedAt    time.Time `json:"verified_at"`
}

// GetVerificationsResponse is the top-level structure of the provider response.
type GetVerificationsResponse struct {
	Verifications []VerificationEvent `json:"verifications"`
}

// VerificationSyncWorker polls the payment/identity provider for new
// verification events and applies them through the progress service.
type VerificationSyncWorker struct {
	svc          *services.ProgressService
	interval     time.Duration
	baseURL      string
	endpointPath string // e.g. "/api/v1/public/verifications"
	serviceToken string
	httpClient   *http.Client
}

func NewVerificationSyncWorker(svc *services.ProgressService, providerBaseURL, endpointPath, serviceToken string) *VerificationSyncWorker {
	return &VerificationSyncWorker{
		svc:          svc,
		interval:     1 * time.Minute,
		baseURL:      providerBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

func (w *VerificationSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Verification Sync Worker (provider → user_progresses)…")
	go w.run(ctx)
}

func (w *VerificationSyncWorker) run(ctx context.Context) {
	// Backfill window on startup; afterwards only new events are fetched.
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Verification sync stopped.")
			return
		case <-ticker.C:
			tickTime := time.Now().UTC()

			events, err := w.fetchSince(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling verifications: %v", err)
				// Do NOT advance lastSyncTime on failure — retry same window
				continue
			}

			if len(events) == 0 {
				continue
			}
			log.Printf("📥 Received %d verification event(s) from provider.", len(events))

			applied := 0
			for _, ev := range events {
				if _, err := w.svc.MarkVerified(ev.WalletAddress, ev.VerifiedAt); err != nil {
					log.Printf("❌ Failed to mark %s verified: %v", ev.WalletAddress, err)
					continue
				}
				applied++
			}

			if applied == len(events) {
				lastSyncTime = tickTime
			}
			log.Printf("✅ Applied %d/%d verification event(s).", applied, len(events))
		}
	}
}

func (w *VerificationSyncWorker) fetchSince(ctx context.Context, since time.Time) ([]VerificationEvent, error) {
	u, err := url.Parse(fmt.Sprintf("%s%s", w.baseURL, w.endpointPath))
	if err != nil {
		return nil, fmt.Errorf("failed to parse provider URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var response GetVerificationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	return response.Verifications, nil
}
