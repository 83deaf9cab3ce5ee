package services

import (
	"fmt"
	"time"

	"camly-reward-system/config"
	"camly-reward-system/models"
	"camly-reward-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CooldownStore guards short repeat-action windows (e.g., re-viewing the same
// video within 60s). Implementations should fail open: a cooldown outage must
// not block legitimate accrual — the ledger's unique key still prevents
// double credit.
type CooldownStore interface {
	TryAcquire(key string, ttl time.Duration) bool
}

// RewardAction is one item of an award batch.
type RewardAction struct {
	Kind            models.ActionKind `json:"kind"`
	ContentID       string            `json:"content_id"`
	ClientTimestamp *time.Time        `json:"client_timestamp,omitempty"`
	WatchedSeconds  int               `json:"watched_seconds,omitempty"`
	DurationSeconds int               `json:"duration_seconds,omitempty"`
}

// ActionOutcome reports the per-action result. A batch never succeeds or
// fails as a whole; callers must read these individually.
type ActionOutcome struct {
	Kind      models.ActionKind `json:"kind"`
	ContentID string            `json:"content_id"`
	Status    string            `json:"status"` // credited | rejected | error
	Reason    string            `json:"reason,omitempty"`
	Credited  int64             `json:"credited"`
	Approved  bool              `json:"approved"`
}

type AccrualService struct {
	DB       *gorm.DB
	Cfg      *config.AppConfig
	Gate     *FraudGate
	Cooldown CooldownStore
}

func NewAccrualService(db *gorm.DB, cfg *config.AppConfig, gate *FraudGate, cooldown CooldownStore) *AccrualService {
	return &AccrualService{DB: db, Cfg: cfg, Gate: gate, Cooldown: cooldown}
}

// AwardBatch processes each action independently; one invalid action never
// blocks the rest. Re-submitting an already-processed action is a no-op.
func (s *AccrualService) AwardBatch(userID string, actions []RewardAction) []ActionOutcome {
	outcomes := make([]ActionOutcome, 0, len(actions))
	for _, action := range actions {
		outcomes = append(outcomes, s.processAction(userID, action))
	}
	return outcomes
}

func (s *AccrualService) processAction(userID string, action RewardAction) ActionOutcome {
	out := ActionOutcome{Kind: action.Kind, ContentID: action.ContentID}

	// Sign-ins have no content; the day key makes them once-per-day by
	// construction through the ledger's unique index.
	if action.Kind == models.ActionSignin && action.ContentID == "" {
		action.ContentID = models.DayBucket(time.Now())
		out.ContentID = action.ContentID
	}

	if !models.ValidActionKind(action.Kind) || action.ContentID == "" {
		return rejected(out, "invalid_action")
	}

	if decision := s.Gate.CheckAccrual(userID, action.Kind); !decision.Allowed {
		if decision.Reason == "db_error" {
			return errored(out, "db_error")
		}
		return rejected(out, decision.Reason)
	}

	amount := s.Cfg.RewardAmounts[string(action.Kind)]
	if amount <= 0 {
		return rejected(out, "invalid_action")
	}

	// Early duplicate check for a precise reason code. The unique index at
	// insert time is the real guard; this read only avoids burning a
	// cooldown slot on an obvious repeat.
	var existing int64
	if err := s.DB.Model(&models.RewardLedgerEntry{}).
		Where("user_id = ? AND content_id = ? AND kind = ?", userID, action.ContentID, action.Kind).
		Count(&existing).Error; err != nil {
		return errored(out, "db_error")
	}
	if existing > 0 {
		return rejected(out, "duplicate")
	}

	day := models.DayBucket(time.Now())
	counter, err := s.todayCounter(userID, day)
	if err != nil {
		return errored(out, "db_error")
	}
	if limit, ok := s.Cfg.DailyKindLimits[string(action.Kind)]; ok && counter.CountFor(action.Kind) >= limit {
		return rejected(out, "daily_kind_cap")
	}
	if counter.EarnedTotal+amount > s.Cfg.DailyTotalCap {
		return rejected(out, "daily_total_cap")
	}

	if action.Kind == models.ActionView {
		if action.DurationSeconds <= 0 ||
			float64(action.WatchedSeconds) < s.Cfg.MinWatchRatio*float64(action.DurationSeconds) {
			return rejected(out, "watch_too_short")
		}
		cooldownKey := fmt.Sprintf("view:cd:%s:%s", userID, action.ContentID)
		if !s.Cooldown.TryAcquire(cooldownKey, time.Duration(s.Cfg.ViewCooldownSec)*time.Second) {
			return rejected(out, "view_cooldown")
		}
	}

	approved := s.Gate.AutoApprove(userID)

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		entry := models.RewardLedgerEntry{
			ID:        uuid.NewString(),
			UserID:    userID,
			ContentID: action.ContentID,
			Kind:      action.Kind,
			Amount:    amount,
			Status:    models.LedgerStatusPending,
		}
		if approved {
			entry.Status = models.LedgerStatusApproved
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "content_id"}, {Name: "kind"}},
			DoNothing: true,
		}).Create(&entry)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errDuplicateAction
		}

		if err := s.bumpCounter(tx, userID, day, action.Kind, amount); err != nil {
			return err
		}
		return s.creditBalance(tx, userID, amount, approved)
	})
	if err == errDuplicateAction {
		return rejected(out, "duplicate")
	}
	if err != nil {
		utils.Sugar.Errorw("accrual credit failed", "user_id", userID, "kind", action.Kind, "error", err)
		return errored(out, "db_error")
	}

	out.Status = "credited"
	out.Credited = amount
	out.Approved = approved
	return out
}

var errDuplicateAction = fmt.Errorf("action already rewarded")

// todayCounter fetches the day's counter, creating the row lazily.
func (s *AccrualService) todayCounter(userID, day string) (*models.DailyCounter, error) {
	counter := models.DailyCounter{ID: uuid.NewString(), UserID: userID, Day: day}
	if err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoNothing: true,
	}).Create(&counter).Error; err != nil {
		return nil, err
	}
	var fresh models.DailyCounter
	if err := s.DB.Where("user_id = ? AND day = ?", userID, day).First(&fresh).Error; err != nil {
		return nil, err
	}
	return &fresh, nil
}

// bumpCounter increments the per-kind count and earned subtotal as a single
// store-side update, never read-modify-write.
func (s *AccrualService) bumpCounter(tx *gorm.DB, userID, day string, kind models.ActionKind, amount int64) error {
	column := models.ColumnFor(kind)
	if column == "" {
		return fmt.Errorf("no counter column for kind %s", kind)
	}
	return tx.Model(&models.DailyCounter{}).
		Where("user_id = ? AND day = ?", userID, day).
		UpdateColumns(map[string]interface{}{
			column:         gorm.Expr(column+" + 1"),
			"earned_total": gorm.Expr("earned_total + ?", amount),
			"updated_at":   time.Now(),
		}).Error
}

// creditBalance applies an atomic increment to the user's running balance.
func (s *AccrualService) creditBalance(tx *gorm.DB, userID string, amount int64, approved bool) error {
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&models.RewardBalance{UserID: userID}).Error; err != nil {
		return err
	}
	column := "pending_amount"
	if approved {
		column = "approved_amount"
	}
	return tx.Model(&models.RewardBalance{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]interface{}{
			column:       gorm.Expr(column+" + ?", amount),
			"updated_at": time.Now(),
		}).Error
}

// ApproveEntry promotes a pending ledger entry after manual review, moving
// its amount from the pending to the approved balance in one transaction.
func (s *AccrualService) ApproveEntry(entryID string) (*models.RewardLedgerEntry, error) {
	var entry models.RewardLedgerEntry
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", entryID).First(&entry).Error; err != nil {
			return err
		}
		if entry.Status == models.LedgerStatusApproved {
			return nil // idempotent
		}
		res := tx.Model(&models.RewardLedgerEntry{}).
			Where("id = ? AND status = ?", entryID, models.LedgerStatusPending).
			Update("status", models.LedgerStatusApproved)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // lost the race to another reviewer
		}
		entry.Status = models.LedgerStatusApproved
		return tx.Model(&models.RewardBalance{}).
			Where("user_id = ?", entry.UserID).
			UpdateColumns(map[string]interface{}{
				"pending_amount":  gorm.Expr("pending_amount - ?", entry.Amount),
				"approved_amount": gorm.Expr("approved_amount + ?", entry.Amount),
				"updated_at":      time.Now(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func rejected(out ActionOutcome, reason string) ActionOutcome {
	out.Status = "rejected"
	out.Reason = reason
	return out
}

func errored(out ActionOutcome, reason string) ActionOutcome {
	out.Status = "error"
	out.Reason = reason
	return out
}

// --- HTTP handlers ---

// AwardBatchHandler credits the authenticated user for a batch of actions.
func (s *AccrualService) AwardBatchHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Actions []RewardAction `json:"actions"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if len(req.Actions) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No actions supplied"})
	}
	if len(req.Actions) > s.Cfg.MaxBatchActions {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Batch exceeds limit of %d actions", s.Cfg.MaxBatchActions),
		})
	}

	outcomes := s.AwardBatch(userID, req.Actions)

	var creditedTotal int64
	for _, o := range outcomes {
		creditedTotal += o.Credited
	}
	return c.JSON(fiber.Map{
		"results":        outcomes,
		"credited_total": creditedTotal,
	})
}

// GetBalanceHandler returns the user's running balance and today's counters.
func (s *AccrualService) GetBalanceHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var balance models.RewardBalance
	if err := s.DB.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			balance = models.RewardBalance{UserID: userID}
		} else {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
	}

	var counter models.DailyCounter
	_ = s.DB.Where("user_id = ? AND day = ?", userID, models.DayBucket(time.Now())).First(&counter).Error

	return c.JSON(fiber.Map{
		"balance":         balance,
		"today":           counter,
		"daily_total_cap": s.Cfg.DailyTotalCap,
	})
}

// GetHistoryHandler returns the user's ledger entries, newest first.
func (s *AccrualService) GetHistoryHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	page := c.QueryInt("page", 1)
	size := c.QueryInt("size", 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	var total int64
	s.DB.Model(&models.RewardLedgerEntry{}).Where("user_id = ?", userID).Count(&total)

	var entries []models.RewardLedgerEntry
	if err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&entries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch history"})
	}

	return c.JSON(fiber.Map{
		"entries":     entries,
		"page":        page,
		"size":        size,
		"total_items": total,
	})
}

// ApproveEntryHandler flips a pending entry to approved (admin review path).
func (s *AccrualService) ApproveEntryHandler(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid entry ID"})
	}
	entry, err := s.ApproveEntry(id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Entry not found"})
		}
		utils.Sugar.Errorw("approve entry failed", "entry_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to approve entry"})
	}
	return c.JSON(fiber.Map{"message": "Entry approved", "entry": entry})
}
