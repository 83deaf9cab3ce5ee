package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
)

// AppConfig holds environment driven configuration values.
// Sensitive data (DB URL, treasury key, service tokens) must come from the
// environment or an .env file; only tuning knobs carry defaults.
type AppConfig struct {
	AppPort        string
	DatabaseURL    string
	AllowedOrigins []string
	ServiceToken   string // gateway <-> service shared token

	// Redis for cooldown windows and claim locks
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	// Logging
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	// Accrual policy
	RewardAmounts       map[string]int64 // action kind -> CAMLY units credited
	DailyKindLimits     map[string]int   // action kind -> max rewarded actions per day
	DailyTotalCap       int64            // max CAMLY earned per user per day, all kinds
	MinWatchRatio       float64          // watched/duration floor for view rewards
	ViewCooldownSec     int              // repeat-view window per (user, content)
	MaxBatchActions     int
	MinAccountAgeHours  int              // before upload kinds accrue
	IPClusterMaxShared  int              // accounts sharing a signup IP before denial
	AutoApproveMaxScore int              // suspicion score ceiling for auto-approval

	// Claim policy
	MinClaimAmount         int64
	DailyClaimCap          int64
	LifetimeClaimCap       int64
	ClaimPendingTimeoutSec int

	// Chain / treasury
	ChainRPCURL        string
	ChainID            int64
	TokenContract      string
	TokenDecimals      int
	TreasuryPrivateKey string
	Confirmations      int
	ConfirmPollSec     int

	// Transfer-history indexer
	IndexerBaseURL     string
	IndexerAPIKey      string
	IndexerPageSize    int
	IndexerPagesPerSec int
	SyncIntervalMin    int

	// Collaborator services (fire-and-forget sinks + profile source)
	AccountServiceURL string
	NotifyServiceURL  string
	ChatServiceURL    string
	FeedServiceURL    string

	// R2 audit export
	AuditExportEnabled bool
	R2AccountID        string
	R2AccessKeyID      string
	R2AccessKeySecret  string
	R2Bucket           string
}

var (
	cfg  *AppConfig
	once sync.Once
)

// Get returns the process-wide configuration, loading it on first use.
func Get() *AppConfig {
	once.Do(func() {
		cfg = load()
	})
	return cfg
}

func load() *AppConfig {
	c := &AppConfig{
		AppPort:        envStr("APP_PORT", "5300"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AllowedOrigins: splitCSV(envStr("ALLOWED_ORIGINS", "http://localhost:3000")),
		ServiceToken:   os.Getenv("CAMLY_SERVICE_TOKEN"),

		RedisHost:     envStr("REDIS_HOST", "127.0.0.1"),
		RedisPort:     envInt("REDIS_PORT", 6379),
		RedisDB:       envInt("REDIS_DB", 0),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		LogLevel:      envStr("LOG_LEVEL", "info"),
		LogPath:       envStr("LOG_PATH", "logs/reward-system.log"),
		LogMaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: envInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: envInt("LOG_MAX_AGE_DAYS", 7),
		LogCompress:   envBool("LOG_COMPRESS", true),

		RewardAmounts: map[string]int64{
			"view":         envInt64("REWARD_VIEW", 2000),
			"like":         envInt64("REWARD_LIKE", 1000),
			"share":        envInt64("REWARD_SHARE", 3000),
			"upload_short": envInt64("REWARD_UPLOAD_SHORT", 10000),
			"upload_long":  envInt64("REWARD_UPLOAD_LONG", 20000),
			"signin":       envInt64("REWARD_SIGNIN", 5000),
		},
		DailyKindLimits: map[string]int{
			"view":         envInt("LIMIT_VIEW_PER_DAY", 50),
			"like":         envInt("LIMIT_LIKE_PER_DAY", 50),
			"share":        envInt("LIMIT_SHARE_PER_DAY", 20),
			"upload_short": envInt("LIMIT_UPLOAD_SHORT_PER_DAY", 5),
			"upload_long":  envInt("LIMIT_UPLOAD_LONG_PER_DAY", 2),
			"signin":       envInt("LIMIT_SIGNIN_PER_DAY", 1),
		},
		DailyTotalCap:       envInt64("DAILY_TOTAL_CAP", 200000),
		MinWatchRatio:       envFloat("MIN_WATCH_RATIO", 0.3),
		ViewCooldownSec:     envInt("VIEW_COOLDOWN_SEC", 60),
		MaxBatchActions:     envInt("MAX_BATCH_ACTIONS", 20),
		MinAccountAgeHours:  envInt("MIN_ACCOUNT_AGE_HOURS", 24),
		IPClusterMaxShared:  envInt("IP_CLUSTER_MAX_SHARED", 5),
		AutoApproveMaxScore: envInt("AUTO_APPROVE_MAX_SCORE", 50),

		MinClaimAmount:         envInt64("MIN_CLAIM_AMOUNT", 200000),
		DailyClaimCap:          envInt64("DAILY_CLAIM_CAP", 5000000),
		LifetimeClaimCap:       envInt64("LIFETIME_CLAIM_CAP", 1000000000),
		ClaimPendingTimeoutSec: envInt("CLAIM_PENDING_TIMEOUT_SEC", 120),

		ChainRPCURL:        os.Getenv("CHAIN_RPC_URL"),
		ChainID:            envInt64("CHAIN_ID", 56),
		TokenContract:      os.Getenv("CAMLY_TOKEN_CONTRACT"),
		TokenDecimals:      envInt("CAMLY_TOKEN_DECIMALS", 18),
		TreasuryPrivateKey: os.Getenv("TREASURY_PRIVATE_KEY"),
		Confirmations:      envInt("CHAIN_CONFIRMATIONS", 3),
		ConfirmPollSec:     envInt("CHAIN_CONFIRM_POLL_SEC", 3),

		IndexerBaseURL:     os.Getenv("INDEXER_BASE_URL"),
		IndexerAPIKey:      os.Getenv("INDEXER_API_KEY"),
		IndexerPageSize:    envInt("INDEXER_PAGE_SIZE", 100),
		IndexerPagesPerSec: envInt("INDEXER_PAGES_PER_SEC", 4),
		SyncIntervalMin:    envInt("SYNC_INTERVAL_MIN", 30),

		AccountServiceURL: os.Getenv("ACCOUNT_SERVICE_URL"),
		NotifyServiceURL:  os.Getenv("NOTIFY_SERVICE_URL"),
		ChatServiceURL:    os.Getenv("CHAT_SERVICE_URL"),
		FeedServiceURL:    os.Getenv("FEED_SERVICE_URL"),

		AuditExportEnabled: envBool("AUDIT_EXPORT_ENABLED", false),
		R2AccountID:        os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:      os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret:  os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:           os.Getenv("R2_BUCKET_NAME"),
	}

	if c.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}
	if c.ServiceToken == "" {
		log.Fatal("CAMLY_SERVICE_TOKEN environment variable not set")
	}
	return c
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("invalid %s=%q, using default %d", key, v, def)
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Printf("invalid %s=%q, using default %d", key, v, def)
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("invalid %s=%q, using default %f", key, v, def)
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return def
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
