package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/amirphl/Kusanagi/config"
	"github.com/amirphl/Kusanagi/models"
)

// GeneratedStory is one item returned by the content-generation collaborator
type GeneratedStory struct {
	Headline      string  `json:"headline"`
	Summary       string  `json:"summary"`
	SourceURL     *string `json:"source_url,omitempty"`
	Category      *string `json:"category,omitempty"`
	ViralityScore float64 `json:"virality_score"`
}

// StoryGenerationService calls the content-generation collaborator. The
// collaborator is a black box to the pipeline; any failure aborts the calling
// flow after its bounded retry.
type StoryGenerationService interface {
	GenerateStories(ctx context.Context, profile *models.Profile) ([]GeneratedStory, error)
}

// StoryGenerationServiceImpl implements StoryGenerationService over HTTP
type StoryGenerationServiceImpl struct {
	config *config.ContentGenConfig
	client *http.Client
}

// NewStoryGenerationService creates a new story generation service
func NewStoryGenerationService(cfg *config.ContentGenConfig) StoryGenerationService {
	return &StoryGenerationServiceImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// GenerateStories asks the collaborator for story candidates steered by the
// profile's topics and organization
func (s *StoryGenerationServiceImpl) GenerateStories(ctx context.Context, profile *models.Profile) ([]GeneratedStory, error) {
	payload := struct {
		Topics       []string `json:"topics"`
		Organization string   `json:"organization,omitempty"`
	}{
		Topics: profile.Topics,
	}
	if profile.OrganizationName != nil {
		payload.Organization = *profile.OrganizationName
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal story generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/stories", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create story generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("x-api-key", s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("story generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("story generation returned %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var out struct {
		Stories []GeneratedStory `json:"stories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode story generation response: %w", err)
	}

	return out.Stories, nil
}

// MockStoryGenerationService implements StoryGenerationService for testing.
// Errs is consumed one entry per call so tests can script fail-then-succeed
// sequences against the retry policy.
type MockStoryGenerationService struct {
	Stories []GeneratedStory
	Errs    []error
	Calls   int
}

// NewMockStoryGenerationService creates a mock returning the given stories
func NewMockStoryGenerationService(stories []GeneratedStory) *MockStoryGenerationService {
	return &MockStoryGenerationService{Stories: stories}
}

func (m *MockStoryGenerationService) GenerateStories(ctx context.Context, profile *models.Profile) ([]GeneratedStory, error) {
	m.Calls++
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return m.Stories, nil
}
