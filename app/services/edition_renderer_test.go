package services

import (
	"testing"

	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBranding() Branding {
	return Branding{
		DisplayName:      "Jordan Example",
		OrganizationName: "Example Realty",
		Email:            "jordan@example.com",
		AccentColor:      "#0b5394",
	}
}

func sampleStories() []models.EditionStory {
	return []models.EditionStory{
		{
			Headline:      "Rates dip for the first time this quarter",
			Summary:       "Average mortgage rates fell, improving affordability.",
			SourceURL:     utils.ToPtr("https://news.example.com/rates"),
			Category:      utils.ToPtr("Mortgage"),
			ViralityScore: 0.8,
		},
		{
			Headline:      "Inventory climbs in the metro area",
			Summary:       "Listings are up month over month.",
			ViralityScore: 0.4,
		},
	}
}

func TestRender_Deterministic(t *testing.T) {
	r := NewEditionRenderer()

	first, err := r.Render(sampleBranding(), sampleStories(), "March 17, 2025")
	require.NoError(t, err)
	second, err := r.Render(sampleBranding(), sampleStories(), "March 17, 2025")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRender_IncludesStoriesAndBranding(t *testing.T) {
	r := NewEditionRenderer()

	html, err := r.Render(sampleBranding(), sampleStories(), "March 17, 2025")
	require.NoError(t, err)

	assert.Contains(t, html, "Rates dip for the first time this quarter")
	assert.Contains(t, html, "Inventory climbs in the metro area")
	assert.Contains(t, html, "Jordan Example")
	assert.Contains(t, html, "Example Realty")
	assert.Contains(t, html, "#0b5394")
	assert.Contains(t, html, "March 17, 2025")
	assert.Contains(t, html, "https://news.example.com/rates")
}

func TestRender_EmptyStoriesShowPlaceholder(t *testing.T) {
	r := NewEditionRenderer()

	html, err := r.Render(sampleBranding(), nil, "March 17, 2025")
	require.NoError(t, err)
	assert.Contains(t, html, "No stories in this edition yet. Check back soon.")
}

func TestRender_MissingBrandingFallsBack(t *testing.T) {
	r := NewEditionRenderer()

	html, err := r.Render(Branding{}, nil, "")
	require.NoError(t, err)
	assert.Contains(t, html, "Your Name")
	assert.Contains(t, html, "#1a73e8")
	assert.Contains(t, html, "Latest Edition")
}

func TestRender_EscapesStoryContent(t *testing.T) {
	r := NewEditionRenderer()

	stories := []models.EditionStory{
		{
			Headline: `<script>alert("x")</script>`,
			Summary:  "Safe summary",
		},
	}

	html, err := r.Render(sampleBranding(), stories, "March 17, 2025")
	require.NoError(t, err)
	assert.NotContains(t, html, `<script>alert("x")</script>`)
}

func TestBrandingFromProfile(t *testing.T) {
	p := &models.Profile{
		DisplayName:      "Jordan Example",
		Email:            "jordan@example.com",
		OrganizationName: utils.ToPtr("Example Realty"),
		AccentColor:      utils.ToPtr("#0b5394"),
	}

	b := BrandingFromProfile(p)
	assert.Equal(t, "Jordan Example", b.DisplayName)
	assert.Equal(t, "Example Realty", b.OrganizationName)
	assert.Equal(t, "#0b5394", b.AccentColor)
	assert.Empty(t, b.LogoURL)
	assert.Empty(t, b.Phone)
}
