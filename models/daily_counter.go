package models

import "time"

// DailyCounter aggregates rewarded actions per (user, calendar day).
// Days are keyed by date string, never reset by mutation; counters only grow
// within a day.
type DailyCounter struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"not null;uniqueIndex:idx_counter_day" json:"user_id"`
	Day    string `gorm:"type:varchar(10);not null;uniqueIndex:idx_counter_day" json:"day"` // "2006-01-02" UTC

	ViewCount        int `gorm:"not null;default:0" json:"view_count"`
	LikeCount        int `gorm:"not null;default:0" json:"like_count"`
	ShareCount       int `gorm:"not null;default:0" json:"share_count"`
	UploadShortCount int `gorm:"not null;default:0" json:"upload_short_count"`
	UploadLongCount  int `gorm:"not null;default:0" json:"upload_long_count"`
	SigninCount      int `gorm:"not null;default:0" json:"signin_count"`

	EarnedTotal int64 `gorm:"not null;default:0" json:"earned_total"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DayBucket formats t as the UTC day key used by DailyCounter and DailyClaimRecord.
func DayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// CountFor returns the stored count for the given action kind.
func (d *DailyCounter) CountFor(kind ActionKind) int {
	switch kind {
	case ActionView:
		return d.ViewCount
	case ActionLike:
		return d.LikeCount
	case ActionShare:
		return d.ShareCount
	case ActionUploadShort:
		return d.UploadShortCount
	case ActionUploadLong:
		return d.UploadLongCount
	case ActionSignin:
		return d.SigninCount
	}
	return 0
}

// ColumnFor returns the counter column incremented for the given kind.
func ColumnFor(kind ActionKind) string {
	switch kind {
	case ActionView:
		return "view_count"
	case ActionLike:
		return "like_count"
	case ActionShare:
		return "share_count"
	case ActionUploadShort:
		return "upload_short_count"
	case ActionUploadLong:
		return "upload_long_count"
	case ActionSignin:
		return "signin_count"
	}
	return ""
}
