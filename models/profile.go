// Package models contains domain entities and business models for the edition pipeline
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Profile represents an agent's branding, delivery preference, and ESP credential
type Profile struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_profiles_uuid;index:idx_profiles_uuid" json:"uuid"`

	// Branding fields rendered into every edition
	DisplayName      string  `gorm:"size:255;not null" json:"display_name"`
	OrganizationName *string `gorm:"size:255" json:"organization_name,omitempty"`
	Phone            *string `gorm:"size:20" json:"phone,omitempty"`
	Email            string  `gorm:"size:255;not null;uniqueIndex:uk_profiles_email" json:"email"`
	HeadshotURL      *string `gorm:"size:512" json:"headshot_url,omitempty"`
	LogoURL          *string `gorm:"size:512" json:"logo_url,omitempty"`
	AccentColor      *string `gorm:"size:16" json:"accent_color,omitempty"`

	// Topics steer the content collaborator when generating stories
	Topics pq.StringArray `gorm:"type:text[]" json:"topics,omitempty"`

	// Delivery preference: weekday name ("monday".."sunday") and "HH:MM" time of day
	SendWeekday *string `gorm:"size:16" json:"send_weekday,omitempty"`
	SendTime    *string `gorm:"size:8" json:"send_time,omitempty"`

	// ESP credential, owned by this row and mutated only by the token refresher
	// and connect flows
	ESPAccessToken     *string    `gorm:"type:text" json:"-"`
	ESPRefreshToken    *string    `gorm:"type:text" json:"-"`
	ESPTokenCapturedAt *time.Time `json:"-"`

	IsActive *bool `gorm:"default:true;index:idx_profiles_is_active" json:"is_active"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_profiles_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	SavedStories []SavedStory `gorm:"foreignKey:ProfileID" json:"-"`
	Editions     []Edition    `gorm:"foreignKey:ProfileID" json:"-"`
	AuditLogs    []AuditLog   `gorm:"foreignKey:ProfileID" json:"-"`
}

func (Profile) TableName() string {
	return "profiles"
}

// Connected reports whether the profile has ever completed the ESP OAuth flow.
// A profile without a refresh token must never reach the ESP.
func (p *Profile) Connected() bool {
	return p.ESPRefreshToken != nil && *p.ESPRefreshToken != ""
}

// HasSchedule reports whether a delivery preference is configured
func (p *Profile) HasSchedule() bool {
	return p.SendWeekday != nil && *p.SendWeekday != ""
}

// ProfileFilter represents filter criteria for profile queries
type ProfileFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	Email         *string
	IsActive      *bool
	SendWeekday   *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
