package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirphl/Kusanagi/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EditionStatus represents the lifecycle state of an edition
type EditionStatus string

const (
	EditionStatusDraft       EditionStatus = "draft"
	EditionStatusPreviewSent EditionStatus = "preview_sent"
	EditionStatusSent        EditionStatus = "sent"
	EditionStatusFailed      EditionStatus = "failed"
)

// String returns the string representation of the status
func (s EditionStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s EditionStatus) Valid() bool {
	switch s {
	case EditionStatusDraft, EditionStatusPreviewSent,
		EditionStatusSent, EditionStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions
func (s EditionStatus) Terminal() bool {
	return s == EditionStatusSent || s == EditionStatusFailed
}

// Scan implements the sql.Scanner interface for EditionStatus
func (s *EditionStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = EditionStatus(v)
	case []byte:
		*s = EditionStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into EditionStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for EditionStatus
func (s EditionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid EditionStatus: %s", s)
	}
	return string(s), nil
}

// EditionStory is the snapshot of a saved story embedded in an edition at
// generation time. The edition renders identically even if the source story
// rows change later.
type EditionStory struct {
	SavedStoryID  uint    `json:"saved_story_id"`
	Headline      string  `json:"headline"`
	Summary       string  `json:"summary"`
	SourceURL     *string `json:"source_url,omitempty"`
	Category      *string `json:"category,omitempty"`
	ViralityScore float64 `json:"virality_score"`
}

// EditionStories is the ordered jsonb snapshot column
type EditionStories []EditionStory

// Value implements the driver.Valuer interface for EditionStories
func (s EditionStories) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for EditionStories
func (s *EditionStories) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into EditionStories", value)
	}

	return json.Unmarshal(bytes, s)
}

// Edition represents one generated newsletter instance in the database
type Edition struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_editions_uuid;index:idx_editions_uuid" json:"uuid"`
	ProfileID uint           `gorm:"not null;index:idx_editions_profile_id" json:"profile_id"`
	Status    EditionStatus  `gorm:"type:edition_status;not null;default:'draft';index:idx_editions_status" json:"status"`
	Stories   EditionStories `gorm:"type:jsonb;not null" json:"stories"`
	HTML      string         `gorm:"type:text;not null" json:"-"`

	// Intended send time; nil when the profile has no delivery preference
	ScheduledAt *time.Time `gorm:"index:idx_editions_scheduled_at" json:"scheduled_at,omitempty"`

	// ESP identifier, set once the edition is pushed; the single source of
	// truth for preview and schedule calls
	CampaignActivityID *string `gorm:"size:255;index:idx_editions_campaign_activity_id" json:"campaign_activity_id,omitempty"`

	FailureReason *string `gorm:"type:text" json:"failure_reason,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_editions_created_at" json:"created_at"`
	PushedAt  *time.Time `json:"pushed_at,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	FailedAt  *time.Time `json:"failed_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Profile *Profile `gorm:"foreignKey:ProfileID;references:ID" json:"profile,omitempty"`
}

func (Edition) TableName() string {
	return "editions"
}

// BeforeCreate is called before creating a new record
func (e *Edition) BeforeCreate(tx *gorm.DB) error {
	if e.UUID == uuid.Nil {
		e.UUID = uuid.New()
	}
	if e.Status == "" {
		e.Status = EditionStatusDraft
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (e *Edition) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	e.UpdatedAt = &now
	return nil
}

// CanTransitionTo checks if the edition can transition to the given status.
// Transitions are monotonic: an edition never returns to draft, and
// sent/failed are terminal.
func (e *Edition) CanTransitionTo(newStatus EditionStatus) bool {
	switch e.Status {
	case EditionStatusDraft:
		return newStatus == EditionStatusPreviewSent ||
			newStatus == EditionStatusFailed
	case EditionStatusPreviewSent:
		return newStatus == EditionStatusSent ||
			newStatus == EditionStatusFailed
	default:
		return false
	}
}

// Pushed reports whether the edition has an ESP campaign on record
func (e *Edition) Pushed() bool {
	return e.CampaignActivityID != nil && *e.CampaignActivityID != ""
}

// GetStatusDisplayName returns a human-readable status name
func (e *Edition) GetStatusDisplayName() string {
	switch e.Status {
	case EditionStatusDraft:
		return "Draft"
	case EditionStatusPreviewSent:
		return "Preview Sent"
	case EditionStatusSent:
		return "Sent"
	case EditionStatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// EditionFilter represents filter criteria for editions
type EditionFilter struct {
	ID              *uint
	UUID            *uuid.UUID
	ProfileID       *uint
	Status          *EditionStatus
	ScheduledAfter  *time.Time
	ScheduledBefore *time.Time
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
}

// Edition failure reason constants
const (
	EditionFailureAuthRejected = "AuthRejected"
)
