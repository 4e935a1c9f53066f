package models

import (
	"time"

	"github.com/amirphl/Kusanagi/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SavedStory is a curated news item an agent has chosen for a future edition.
// One row per (profile, headline); re-saving the same headline overwrites the
// mutable fields instead of duplicating the row.
type SavedStory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_saved_stories_uuid" json:"uuid"`
	ProfileID uint      `gorm:"not null;index:idx_saved_stories_profile_id;uniqueIndex:uk_saved_stories_profile_headline" json:"profile_id"`

	Headline      string  `gorm:"size:512;not null;uniqueIndex:uk_saved_stories_profile_headline" json:"headline"`
	Summary       string  `gorm:"type:text;not null" json:"summary"`
	SourceURL     *string `gorm:"size:1024" json:"source_url,omitempty"`
	Category      *string `gorm:"size:128" json:"category,omitempty"`
	ViralityScore float64 `gorm:"not null;default:0;index:idx_saved_stories_virality_score" json:"virality_score"`

	// Set when an edition commits this story; a consumed story is never
	// selected again
	ConsumedByEditionID *uint `gorm:"index:idx_saved_stories_consumed_by" json:"consumed_by_edition_id,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_saved_stories_created_at" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Profile           *Profile `gorm:"foreignKey:ProfileID;references:ID" json:"profile,omitempty"`
	ConsumedByEdition *Edition `gorm:"foreignKey:ConsumedByEditionID;references:ID" json:"-"`
}

func (SavedStory) TableName() string {
	return "saved_stories"
}

// BeforeCreate is called before creating a new record
func (s *SavedStory) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (s *SavedStory) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	s.UpdatedAt = &now
	return nil
}

// Consumed reports whether the story has been used by a committed edition
func (s *SavedStory) Consumed() bool {
	return s.ConsumedByEditionID != nil
}

// SavedStoryFilter represents filter criteria for saved story queries
type SavedStoryFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	ProfileID     *uint
	Headline      *string
	Category      *string
	Unconsumed    *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
