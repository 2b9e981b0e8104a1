package model

import "time"

// Link is a protected short link. The shield core only ever reads it.
type Link struct {
	ID               string     `db:"id" gorm:"primaryKey;size:36"`
	Slug             string     `db:"slug" gorm:"size:64;uniqueIndex;not null"`
	Title            string     `db:"title" gorm:"size:255"`
	Description      string     `db:"description" gorm:"type:text"`
	DestinationURL   string     `db:"destination_url" gorm:"type:text;not null"`
	ShieldEnabled    bool       `db:"shield_enabled" gorm:"not null;default:false"`
	IsUltraLink      bool       `db:"is_ultra_link" gorm:"not null;default:false"`
	ProtectionConfig string     `db:"protection_config" gorm:"type:text"`
	Disabled         bool       `db:"disabled" gorm:"not null;default:false"`
	ExpiresAt        *time.Time `db:"expires_at" gorm:"index"`
	Clicks           int64      `db:"clicks" gorm:"not null;default:0"`
	Views            int64      `db:"views" gorm:"not null;default:0"`
	CreatedAt        time.Time  `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `db:"updated_at" gorm:"autoUpdateTime"`
}
