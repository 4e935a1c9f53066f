// Package testing provides test fixtures and in-memory repositories for testing the edition pipeline
package testing

import (
	"fmt"
	"time"

	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/google/uuid"
)

// NewConnectedProfile builds a profile with a stored ESP credential and a
// weekly delivery preference
func NewConnectedProfile(id uint) *models.Profile {
	captured := utils.UTCNow().Add(-time.Hour)
	return &models.Profile{
		ID:                 id,
		UUID:               uuid.New(),
		DisplayName:        "Jordan Example",
		OrganizationName:   utils.ToPtr("Example Realty"),
		Email:              fmt.Sprintf("agent%d@example.com", id),
		AccentColor:        utils.ToPtr("#0b5394"),
		Topics:             []string{"housing market", "mortgage rates"},
		SendWeekday:        utils.ToPtr("monday"),
		SendTime:           utils.ToPtr("09:00"),
		ESPAccessToken:     utils.ToPtr("access-" + uuid.NewString()),
		ESPRefreshToken:    utils.ToPtr("refresh-" + uuid.NewString()),
		ESPTokenCapturedAt: &captured,
		IsActive:           utils.ToPtr(true),
		CreatedAt:          utils.UTCNow(),
		UpdatedAt:          utils.UTCNow(),
	}
}

// NewDisconnectedProfile builds a profile without any ESP credential
func NewDisconnectedProfile(id uint) *models.Profile {
	p := NewConnectedProfile(id)
	p.ESPAccessToken = nil
	p.ESPRefreshToken = nil
	p.ESPTokenCapturedAt = nil
	return p
}

// NewStory builds an unconsumed saved story
func NewStory(profileID uint, headline string, score float64) *models.SavedStory {
	return &models.SavedStory{
		UUID:          uuid.New(),
		ProfileID:     profileID,
		Headline:      headline,
		Summary:       "Summary of " + headline,
		SourceURL:     utils.ToPtr("https://news.example.com/" + uuid.NewString()),
		Category:      utils.ToPtr("Market"),
		ViralityScore: score,
		CreatedAt:     utils.UTCNow(),
	}
}

// NewDraftEdition builds a draft edition snapshotting the given stories
func NewDraftEdition(profileID uint, stories ...*models.SavedStory) *models.Edition {
	snapshot := make(models.EditionStories, 0, len(stories))
	for _, s := range stories {
		snapshot = append(snapshot, models.EditionStory{
			SavedStoryID:  s.ID,
			Headline:      s.Headline,
			Summary:       s.Summary,
			SourceURL:     s.SourceURL,
			Category:      s.Category,
			ViralityScore: s.ViralityScore,
		})
	}

	scheduledAt := utils.UTCNow().Add(48 * time.Hour)
	return &models.Edition{
		UUID:        uuid.New(),
		ProfileID:   profileID,
		Status:      models.EditionStatusDraft,
		Stories:     snapshot,
		HTML:        "<html><body>edition</body></html>",
		ScheduledAt: &scheduledAt,
		CreatedAt:   utils.UTCNow(),
	}
}

// NewPushedEdition builds a preview_sent edition with a campaign activity on record
func NewPushedEdition(profileID uint, stories ...*models.SavedStory) *models.Edition {
	e := NewDraftEdition(profileID, stories...)
	e.Status = models.EditionStatusPreviewSent
	e.CampaignActivityID = utils.ToPtr("activity-" + uuid.NewString())
	pushed := utils.UTCNow()
	e.PushedAt = &pushed
	return e
}
