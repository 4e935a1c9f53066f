package models

import (
	"testing"

	"github.com/amirphl/Kusanagi/utils"
	"github.com/stretchr/testify/assert"
)

func TestEditionStatus_Valid(t *testing.T) {
	assert.True(t, EditionStatusDraft.Valid())
	assert.True(t, EditionStatusPreviewSent.Valid())
	assert.True(t, EditionStatusSent.Valid())
	assert.True(t, EditionStatusFailed.Valid())
	assert.False(t, EditionStatus("queued").Valid())
	assert.False(t, EditionStatus("").Valid())
}

func TestEditionStatus_Terminal(t *testing.T) {
	assert.False(t, EditionStatusDraft.Terminal())
	assert.False(t, EditionStatusPreviewSent.Terminal())
	assert.True(t, EditionStatusSent.Terminal())
	assert.True(t, EditionStatusFailed.Terminal())
}

func TestEdition_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from    EditionStatus
		to      EditionStatus
		allowed bool
	}{
		{EditionStatusDraft, EditionStatusPreviewSent, true},
		{EditionStatusDraft, EditionStatusFailed, true},
		{EditionStatusDraft, EditionStatusSent, false},
		{EditionStatusDraft, EditionStatusDraft, false},
		{EditionStatusPreviewSent, EditionStatusSent, true},
		{EditionStatusPreviewSent, EditionStatusFailed, true},
		{EditionStatusPreviewSent, EditionStatusDraft, false},
		{EditionStatusSent, EditionStatusFailed, false},
		{EditionStatusSent, EditionStatusDraft, false},
		{EditionStatusFailed, EditionStatusPreviewSent, false},
		{EditionStatusFailed, EditionStatusSent, false},
	}

	for _, tc := range cases {
		e := &Edition{Status: tc.from}
		assert.Equalf(t, tc.allowed, e.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestEdition_Pushed(t *testing.T) {
	e := &Edition{}
	assert.False(t, e.Pushed())

	e.CampaignActivityID = utils.ToPtr("")
	assert.False(t, e.Pushed())

	e.CampaignActivityID = utils.ToPtr("activity-1")
	assert.True(t, e.Pushed())
}

func TestEditionStories_RoundTrip(t *testing.T) {
	stories := EditionStories{
		{
			SavedStoryID:  3,
			Headline:      "Open house weekend draws crowds",
			Summary:       "Turnout doubled over last month.",
			SourceURL:     utils.ToPtr("https://news.example.com/open-house"),
			ViralityScore: 0.6,
		},
	}

	val, err := stories.Value()
	assert.NoError(t, err)

	var decoded EditionStories
	assert.NoError(t, decoded.Scan(val))
	assert.Equal(t, stories, decoded)
}
