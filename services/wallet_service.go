package services

import (
	"camly-reward-system/chain"
	"camly-reward-system/config"
	"camly-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletService manages the user→address links that reconciliation uses to
// resolve transfer counterparties.
type WalletService struct {
	DB  *gorm.DB
	Cfg *config.AppConfig
}

func NewWalletService(db *gorm.DB, cfg *config.AppConfig) *WalletService {
	return &WalletService{DB: db, Cfg: cfg}
}

// LinkWalletHandler associates an address with the authenticated user.
// Re-linking the same address is an upsert; an address already claimed by
// another user is a conflict.
func (s *WalletService) LinkWalletHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Address   string `json:"address"`
		IsPrimary bool   `json:"is_primary"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if !chain.ValidAddress(req.Address) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid wallet address"})
	}
	address := chain.NormalizeAddress(req.Address)

	var existing models.WalletLink
	if err := s.DB.Where("address = ?", address).First(&existing).Error; err == nil {
		if existing.UserID != userID {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "This wallet is already linked to another account",
			})
		}
	} else if err != gorm.ErrRecordNotFound {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to check wallet link"})
	}

	if req.IsPrimary {
		// Only one primary per user.
		if err := s.DB.Model(&models.WalletLink{}).
			Where("user_id = ?", userID).
			UpdateColumn("is_primary", false).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update wallet links"})
		}
	}

	link := models.WalletLink{
		ID:        uuid.NewString(),
		UserID:    userID,
		Address:   address,
		ChainID:   s.Cfg.ChainID,
		IsPrimary: req.IsPrimary,
	}
	if err := s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"is_primary": req.IsPrimary,
		}),
	}).Create(&link).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to link wallet"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"link": link})
}

// ListWalletsHandler returns the authenticated user's linked addresses.
func (s *WalletService) ListWalletsHandler(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var links []models.WalletLink
	if err := s.DB.Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&links).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch wallet links"})
	}
	return c.JSON(fiber.Map{"wallets": links})
}
