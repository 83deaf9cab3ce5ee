package services

import (
	"errors"
	"time"

	"camly-reward-system/config"
	"camly-reward-system/models"

	"gorm.io/gorm"
)

// GateDecision is the outcome of a fraud check: allow, or deny with a stable
// reason code the caller can render.
type GateDecision struct {
	Allowed bool
	Reason  string
}

func allow() GateDecision             { return GateDecision{Allowed: true} }
func deny(reason string) GateDecision { return GateDecision{Allowed: false, Reason: reason} }

// FraudGate is a pure decision function over the persisted profile mirror.
// It holds no mutable state of its own; every check reads fresh rows so
// concurrent requests can never observe a stale in-memory score.
type FraudGate struct {
	DB  *gorm.DB
	Cfg *config.AppConfig
}

func NewFraudGate(db *gorm.DB, cfg *config.AppConfig) *FraudGate {
	return &FraudGate{DB: db, Cfg: cfg}
}

func isUploadKind(kind models.ActionKind) bool {
	return kind == models.ActionUploadShort || kind == models.ActionUploadLong
}

// CheckAccrual decides whether userID may accrue a reward of the given kind.
// Ban is a hard deny. The age gate and IP-cluster heuristic apply to upload
// kinds only; view/like/share stay open so a fresh account can still engage.
func (g *FraudGate) CheckAccrual(userID string, kind models.ActionKind) GateDecision {
	profile, err := g.profile(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Mirror may lag behind a fresh signup. Engagement kinds pass
			// (the entry stays pending anyway); upload kinds wait for the
			// mirror since the age gate cannot be evaluated.
			if isUploadKind(kind) {
				return deny("account_too_new")
			}
			return allow()
		}
		return deny("db_error")
	}

	if profile.IsBanned {
		return deny("account_banned")
	}

	if isUploadKind(kind) {
		minAge := time.Duration(g.Cfg.MinAccountAgeHours) * time.Hour
		if time.Since(profile.AccountCreatedAt) < minAge {
			return deny("account_too_new")
		}
		if g.ipClusterSize(profile) > g.Cfg.IPClusterMaxShared {
			return deny("ip_cluster")
		}
	}

	return allow()
}

// SuspicionScore derives a fraud score from persisted counters and flags,
// computed fresh per call.
func (g *FraudGate) SuspicionScore(userID string) int {
	profile, err := g.profile(userID)
	if err != nil {
		// Unknown accounts are maximally suspicious: credit stays pending.
		return 100
	}

	score := 0
	if profile.IsBanned {
		return 100
	}
	minAge := time.Duration(g.Cfg.MinAccountAgeHours) * time.Hour
	if time.Since(profile.AccountCreatedAt) < minAge {
		score += 40
	}
	if g.ipClusterSize(profile) > g.Cfg.IPClusterMaxShared {
		score += 30
	}
	if profile.FraudFlagCount > 0 {
		score += 25 * profile.FraudFlagCount
	}
	if score > 100 {
		score = 100
	}
	return score
}

// AutoApprove reports whether a fresh credit for userID should be promoted to
// approved immediately, bypassing manual review.
func (g *FraudGate) AutoApprove(userID string) bool {
	return g.SuspicionScore(userID) <= g.Cfg.AutoApproveMaxScore
}

func (g *FraudGate) profile(userID string) (*models.ProfileMirror, error) {
	var profile models.ProfileMirror
	if err := g.DB.Where("external_user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// ipClusterSize counts other accounts sharing the signup IP fingerprint.
func (g *FraudGate) ipClusterSize(profile *models.ProfileMirror) int {
	if profile.SignupIPHash == "" {
		return 0
	}
	var count int64
	g.DB.Model(&models.ProfileMirror{}).
		Where("signup_ip_hash = ? AND external_user_id <> ?", profile.SignupIPHash, profile.ExternalUserID).
		Count(&count)
	return int(count)
}
