package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"camly-reward-system/models"
	"camly-reward-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// StreamRewardsSSE streams newly credited ledger entries for the
// authenticated user as server-sent events, so the client can animate point
// drops without polling.
func (s *AccrualService) StreamRewardsSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		var lastMaxCreatedAt time.Time

		// Start the cursor at the user's latest entry so only fresh credit
		// streams out.
		var latest models.RewardLedgerEntry
		if err := s.DB.
			Where("user_id = ?", userID).
			Order("created_at DESC").
			First(&latest).Error; err == nil {
			lastMaxCreatedAt = latest.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Sugar.Warnf("SSE init error for user %s: %v", userID, err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				var fresh []models.RewardLedgerEntry

				err := s.DB.
					Where("user_id = ? AND created_at > ?", userID, lastMaxCreatedAt).
					Order("created_at ASC").
					Find(&fresh).Error
				if err != nil {
					utils.Sugar.Warnf("SSE query error for user %s: %v", userID, err)
					continue
				}
				if len(fresh) == 0 {
					continue
				}

				lastMaxCreatedAt = fresh[len(fresh)-1].CreatedAt

				for _, entry := range fresh {
					payload, _ := json.Marshal(entry)
					fmt.Fprintf(w, "event: reward\ndata: %s\n\n", payload)
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
