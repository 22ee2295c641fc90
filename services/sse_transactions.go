package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"ad-reward-system/models"
)

// pendingTransactions returns the entries appended after the first sent
// ones. The trail is append-only, so a count cursor never drops entries
// that share a timestamp; an admin reset shrinks the trail, which rewinds
// the cursor to the new length.
func pendingTransactions(txs []models.Transaction, sent int) ([]models.Transaction, int) {
	if sent > len(txs) {
		sent = len(txs)
	}
	return txs[sent:], len(txs)
}

// StreamUserTransactionsSSE streams newly appended ledger entries for the
// authenticated user: milestone bonuses, settled claims, referral airdrops.
func (s *ProgressService) StreamUserTransactionsSSE(c *fiber.Ctx) error {
	wallet := c.Locals("user_id").(string)

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		sent := 0
		if rec, err := s.LoadOrCreate(wallet); err == nil {
			sent = len(rec.Transactions)
		} else {
			log.Printf("SSE init error for %s: %v", wallet, err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				rec, err := s.LoadOrCreate(wallet)
				if err != nil {
					log.Printf("SSE query error for %s: %v", wallet, err)
					continue
				}

				fresh, next := pendingTransactions(rec.Transactions, sent)
				if len(fresh) == 0 {
					sent = next
					continue
				}
				sent = next

				for _, tx := range fresh {
					payload, _ := json.Marshal(tx)
					fmt.Fprintf(w, "event: transaction\ndata: %s\n\n", payload)
				}

				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}
