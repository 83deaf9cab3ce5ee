package services

import (
	"context"
	"time"

	"camly-reward-system/chain"
	"camly-reward-system/config"
	"camly-reward-system/models"
	"camly-reward-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncResult summarizes one reconciliation pass over a (wallet, token) pair.
type SyncResult struct {
	Wallet         string `json:"wallet"`
	Token          string `json:"token"`
	FromBlock      uint64 `json:"from_block"`
	Processed      int    `json:"processed"`
	Duplicates     int    `json:"duplicates"`
	Failed         int    `json:"failed"`
	MaxBlock       uint64 `json:"max_block"`
	CursorAdvanced bool   `json:"cursor_advanced"`
	DryRun         bool   `json:"dry_run"`
	Error          string `json:"error,omitempty"`
}

// SyncService pulls confirmed token-transfer history from the indexing
// service into onchain_transfers, advancing a per-pair cursor so repeated
// runs re-fetch as little as possible. Every write is idempotent; running the
// same block range twice only bumps the duplicate counter.
type SyncService struct {
	DB    *gorm.DB
	Cfg   *config.AppConfig
	Pager chain.TransferPager
}

func NewSyncService(db *gorm.DB, cfg *config.AppConfig, pager chain.TransferPager) *SyncService {
	return &SyncService{DB: db, Cfg: cfg, Pager: pager}
}

// SyncWallet reconciles one wallet against one token contract.
//
// fromBlock == nil resumes from the stored cursor plus one (or block 0 for a
// first run); a non-nil fromBlock forces a re-scan from that block without
// rewinding the cursor. dryRun fetches and classifies each transfer against
// the stored rows but writes nothing, so an operator can audit drift before a
// real sync. Indexer errors abort the pass mid-stream and leave the cursor
// untouched, so the next run re-fetches the unfinished range.
func (s *SyncService) SyncWallet(ctx context.Context, wallet, token string, fromBlock *uint64, dryRun bool) (*SyncResult, error) {
	wallet = chain.NormalizeAddress(wallet)
	token = chain.NormalizeAddress(token)

	result := &SyncResult{Wallet: wallet, Token: token, DryRun: dryRun}

	var cursor models.SyncCursor
	haveCursor := true
	if err := s.DB.Where("wallet_address = ? AND chain_id = ? AND token_contract = ?",
		wallet, s.Cfg.ChainID, token).First(&cursor).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		haveCursor = false
	}

	start := uint64(0)
	switch {
	case fromBlock != nil:
		start = *fromBlock
	case haveCursor:
		start = cursor.LastBlockNumber + 1
	}
	result.FromBlock = start

	pageCursor := ""
	for {
		page, err := s.Pager.FetchPage(ctx, wallet, token, start, pageCursor, s.Cfg.IndexerPageSize)
		if err != nil {
			result.Error = err.Error()
			utils.Sugar.Warnf("⚠️ Sync aborted for %s: %v (processed=%d, cursor untouched)",
				wallet, err, result.Processed)
			return result, err
		}

		for _, event := range page.Transfers {
			if event.BlockNumber > result.MaxBlock {
				result.MaxBlock = event.BlockNumber
			}
			switch s.ingest(event, token, dryRun) {
			case ingestInserted:
				result.Processed++
			case ingestDuplicate:
				result.Duplicates++
			case ingestFailed:
				result.Failed++
			}
		}

		if page.NextCursor == "" {
			break
		}
		pageCursor = page.NextCursor
	}

	seen := result.Processed + result.Duplicates
	if !dryRun && seen > 0 && result.MaxBlock > cursor.LastBlockNumber {
		if err := s.advanceCursor(wallet, token, result.MaxBlock, int64(result.Processed)); err != nil {
			return result, err
		}
		result.CursorAdvanced = true
	}

	utils.Sugar.Infof("🔄 Sync %s/%s: %d new, %d dup, %d failed (from block %d, max %d)",
		wallet, token, result.Processed, result.Duplicates, result.Failed, start, result.MaxBlock)
	return result, nil
}

type ingestOutcome int

const (
	ingestInserted ingestOutcome = iota
	ingestDuplicate
	ingestFailed
)

// ingest records one transfer event. The natural-key unique index makes this
// safe to replay: a conflict is reported as a duplicate, not an error. In dry
// run the event is classified by a natural-key lookup instead of an insert.
func (s *SyncService) ingest(event chain.TransferEvent, token string, dryRun bool) ingestOutcome {
	amount, err := chain.FromBaseUnits(event.RawValue, s.Cfg.TokenDecimals)
	if err != nil {
		utils.Sugar.Warnw("skipping transfer with unparseable value",
			"tx_hash", event.TxHash, "log_index", event.LogIndex, "value", event.RawValue, "error", err)
		return ingestFailed
	}

	if dryRun {
		var existing int64
		if err := s.DB.Model(&models.OnchainTransfer{}).
			Where("chain_id = ? AND token_contract = ? AND tx_hash = ? AND log_index = ?",
				s.Cfg.ChainID, token, event.TxHash, event.LogIndex).
			Count(&existing).Error; err != nil {
			return ingestFailed
		}
		if existing > 0 {
			return ingestDuplicate
		}
		return ingestInserted
	}

	from := chain.NormalizeAddress(event.From)
	to := chain.NormalizeAddress(event.To)
	transfer := models.OnchainTransfer{
		ID:            uuid.NewString(),
		ChainID:       s.Cfg.ChainID,
		TokenContract: token,
		TxHash:        event.TxHash,
		LogIndex:      event.LogIndex,
		FromAddress:   from,
		ToAddress:     to,
		FromUserID:    s.resolveUser(from),
		ToUserID:      s.resolveUser(to),
		RawValue:      event.RawValue,
		Decimals:      s.Cfg.TokenDecimals,
		Amount:        amount,
		BlockNumber:   event.BlockNumber,
		BlockTime:     event.BlockTime,
	}

	res := s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "chain_id"}, {Name: "token_contract"}, {Name: "tx_hash"}, {Name: "log_index"},
		},
		DoNothing: true,
	}).Create(&transfer)
	if res.Error != nil {
		utils.Sugar.Warnw("failed to insert transfer",
			"tx_hash", event.TxHash, "log_index", event.LogIndex, "error", res.Error)
		return ingestFailed
	}
	if res.RowsAffected == 0 {
		return ingestDuplicate
	}
	return ingestInserted
}

// resolveUser maps an address to a user through wallet_links; unmatched
// addresses stay nil for later manual association.
func (s *SyncService) resolveUser(address string) *string {
	var link models.WalletLink
	if err := s.DB.Where("address = ?", address).First(&link).Error; err != nil {
		return nil
	}
	return &link.UserID
}

func (s *SyncService) advanceCursor(wallet, token string, maxBlock uint64, processed int64) error {
	now := time.Now()
	cursor := models.SyncCursor{
		ID:              uuid.NewString(),
		WalletAddress:   wallet,
		ChainID:         s.Cfg.ChainID,
		TokenContract:   token,
		LastBlockNumber: maxBlock,
		LastSyncedAt:    now,
		SyncedCount:     processed,
	}
	return s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet_address"}, {Name: "chain_id"}, {Name: "token_contract"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_block_number": maxBlock,
			"last_synced_at":    now,
			"synced_count":      gorm.Expr("sync_cursors.synced_count + ?", processed),
			"updated_at":        now,
		}),
	}).Create(&cursor).Error
}

// SyncAll reconciles every linked wallet against the configured token. One
// failing pair never blocks the rest; its error is captured in its result.
func (s *SyncService) SyncAll(ctx context.Context, dryRun bool) ([]*SyncResult, error) {
	var addresses []string
	if err := s.DB.Model(&models.WalletLink{}).
		Distinct("address").
		Pluck("address", &addresses).Error; err != nil {
		return nil, err
	}

	results := make([]*SyncResult, 0, len(addresses))
	for _, addr := range addresses {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := s.SyncWallet(ctx, addr, s.Cfg.TokenContract, nil, dryRun)
		if res == nil {
			res = &SyncResult{Wallet: addr, Token: s.Cfg.TokenContract, Error: err.Error()}
		}
		results = append(results, res)
	}
	return results, nil
}

// --- HTTP handlers (admin surface, behind the gateway service token) ---

// SyncWalletHandler runs an on-demand reconciliation for one wallet.
func (s *SyncService) SyncWalletHandler(c *fiber.Ctx) error {
	var req struct {
		Wallet    string  `json:"wallet"`
		Token     string  `json:"token,omitempty"`
		FromBlock *uint64 `json:"from_block,omitempty"`
		DryRun    bool    `json:"dry_run,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if !chain.ValidAddress(req.Wallet) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid wallet address"})
	}
	token := req.Token
	if token == "" {
		token = s.Cfg.TokenContract
	}

	result, err := s.SyncWallet(c.Context(), req.Wallet, token, req.FromBlock, req.DryRun)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Sync failed", "result": result})
	}
	return c.JSON(result)
}

// RunSyncHandler kicks a full reconciliation over all linked wallets.
func (s *SyncService) RunSyncHandler(c *fiber.Ctx) error {
	dryRun := c.QueryBool("dry_run", false)
	results, err := s.SyncAll(c.Context(), dryRun)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Sync run failed", "results": results})
	}
	return c.JSON(fiber.Map{"results": results})
}

// CursorsHandler exposes reconciliation progress per (wallet, token) pair.
func (s *SyncService) CursorsHandler(c *fiber.Ctx) error {
	var cursors []models.SyncCursor
	if err := s.DB.Order("last_synced_at DESC").Find(&cursors).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch cursors"})
	}
	return c.JSON(fiber.Map{"cursors": cursors})
}

// TransfersByWalletHandler lists recorded transfers touching an address, for
// support and fraud forensics.
func (s *SyncService) TransfersByWalletHandler(c *fiber.Ctx) error {
	wallet := chain.NormalizeAddress(c.Params("wallet"))
	if !chain.ValidAddress(wallet) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid wallet address"})
	}
	limit := c.QueryInt("limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}

	var transfers []models.OnchainTransfer
	if err := s.DB.Where("from_address = ? OR to_address = ?", wallet, wallet).
		Order("block_number DESC, log_index DESC").
		Limit(limit).
		Find(&transfers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch transfers"})
	}
	return c.JSON(fiber.Map{"wallet": wallet, "transfers": transfers})
}
