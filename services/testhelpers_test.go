package services

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	"camly-reward-system/chain"
	"camly-reward-system/config"
	"camly-reward-system/models"
	"camly-reward-system/utils"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	utils.Logger = zap.NewNop()
	utils.Sugar = utils.Logger.Sugar()
	os.Exit(m.Run())
}

// newTestDB opens a throwaway in-memory database. Each test gets its own
// shared-cache name so parallel tests never see each other's rows.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.RewardLedgerEntry{},
		&models.RewardBalance{},
		&models.DailyCounter{},
		&models.ClaimRequest{},
		&models.DailyClaimRecord{},
		&models.OnchainTransfer{},
		&models.SyncCursor{},
		&models.WalletLink{},
		&models.ProfileMirror{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		RewardAmounts: map[string]int64{
			"view":         2000,
			"like":         1000,
			"share":        3000,
			"upload_short": 10000,
			"upload_long":  20000,
			"signin":       5000,
		},
		DailyKindLimits: map[string]int{
			"view":         50,
			"like":         50,
			"share":        20,
			"upload_short": 5,
			"upload_long":  2,
			"signin":       1,
		},
		DailyTotalCap:       200000,
		MinWatchRatio:       0.3,
		ViewCooldownSec:     60,
		MaxBatchActions:     20,
		MinAccountAgeHours:  24,
		IPClusterMaxShared:  5,
		AutoApproveMaxScore: 50,

		MinClaimAmount:         200000,
		DailyClaimCap:          5000000,
		LifetimeClaimCap:       1000000000,
		ClaimPendingTimeoutSec: 120,

		ChainID:       56,
		TokenContract: "0x00000000000000000000000000000000000000aa",
		TokenDecimals: 6,

		IndexerPageSize: 100,
	}
}

// seedProfile inserts a clean, aged account so the fraud gate passes and
// auto-approval kicks in.
func seedProfile(t *testing.T, db *gorm.DB, userID string) {
	t.Helper()
	mirror := models.ProfileMirror{
		ID:               uuid.NewString(),
		ExternalUserID:   userID,
		Username:         "user-" + userID[:8],
		AccountCreatedAt: time.Now().Add(-90 * 24 * time.Hour),
	}
	if err := db.Create(&mirror).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

// fakeCooldown allows everything unless a key was already taken.
type fakeCooldown struct {
	mu    sync.Mutex
	taken map[string]bool
}

func newFakeCooldown() *fakeCooldown {
	return &fakeCooldown{taken: map[string]bool{}}
}

func (f *fakeCooldown) TryAcquire(key string, ttl time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.taken[key] {
		return false
	}
	f.taken[key] = true
	return true
}

// fakeLocks is an in-process LockStore.
type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: map[string]bool{}}
}

func (f *fakeLocks) AcquireStrict(key string, ttl time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return false
	}
	f.held[key] = true
	return true
}

func (f *fakeLocks) Release(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
}

// fakeTreasury records transfers instead of touching a chain. confirmWaits
// simulates a confirmation that never arrives: WaitForConfirmation blocks
// until the caller's context expires.
type fakeTreasury struct {
	balance      *big.Int
	balanceErr   error
	transferErr  error
	confirmErr   error
	confirmWaits bool

	mu        sync.Mutex
	transfers []fakeTransfer
}

type fakeTransfer struct {
	To     string
	Amount *big.Int
}

func newFakeTreasury(balance *big.Int) *fakeTreasury {
	return &fakeTreasury{balance: balance}
}

func (f *fakeTreasury) Address() string { return "0x00000000000000000000000000000000000000ff" }

func (f *fakeTreasury) BalanceOf(ctx context.Context, owner string) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeTreasury) Transfer(ctx context.Context, to string, amount *big.Int) (string, error) {
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, fakeTransfer{To: to, Amount: new(big.Int).Set(amount)})
	return fmt.Sprintf("0xtx%04d", len(f.transfers)), nil
}

func (f *fakeTreasury) WaitForConfirmation(ctx context.Context, txHash string) error {
	if f.confirmWaits {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.confirmErr
}

// fakePager serves prepared pages and records calls.
type fakePager struct {
	pages []chain.TransferPage
	errAt int // 1-based page index that errors; 0 = never
	calls []fakePagerCall
}

type fakePagerCall struct {
	Wallet    string
	Token     string
	FromBlock uint64
	Cursor    string
}

func (f *fakePager) FetchPage(ctx context.Context, wallet, token string, fromBlock uint64, cursor string, limit int) (*chain.TransferPage, error) {
	f.calls = append(f.calls, fakePagerCall{Wallet: wallet, Token: token, FromBlock: fromBlock, Cursor: cursor})
	idx := len(f.calls)
	if f.errAt > 0 && idx == f.errAt {
		return nil, fmt.Errorf("indexer unavailable")
	}
	if idx > len(f.pages) {
		return &chain.TransferPage{}, nil
	}
	page := f.pages[idx-1]
	return &page, nil
}
