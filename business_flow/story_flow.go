package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/app/services"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/amirphl/Kusanagi/utils"
)

// StoryFlow handles the curated-story business logic
type StoryFlow interface {
	GenerateStories(ctx context.Context, req *dto.GenerateStoriesRequest, metadata *ClientMetadata) (*dto.GenerateStoriesResponse, error)
	SaveStory(ctx context.Context, req *dto.SaveStoryRequest, metadata *ClientMetadata) (*dto.SaveStoryResponse, error)
	ListStories(ctx context.Context, req *dto.ListStoriesRequest, metadata *ClientMetadata) (*dto.ListStoriesResponse, error)
}

// StoryFlowImpl implements the story business flow
type StoryFlowImpl struct {
	profileRepo repository.ProfileRepository
	storyRepo   repository.SavedStoryRepository
	auditRepo   repository.AuditLogRepository
	storyGen    services.StoryGenerationService
}

// NewStoryFlow creates a new story flow instance
func NewStoryFlow(
	profileRepo repository.ProfileRepository,
	storyRepo repository.SavedStoryRepository,
	auditRepo repository.AuditLogRepository,
	storyGen services.StoryGenerationService,
) StoryFlow {
	return &StoryFlowImpl{
		profileRepo: profileRepo,
		storyRepo:   storyRepo,
		auditRepo:   auditRepo,
		storyGen:    storyGen,
	}
}

// GenerateStories refreshes the profile's story pool from the content
// collaborator and upserts the results
func (s *StoryFlowImpl) GenerateStories(ctx context.Context, req *dto.GenerateStoriesRequest, metadata *ClientMetadata) (*dto.GenerateStoriesResponse, error) {
	profile, err := getProfile(ctx, s.profileRepo, req.ProfileID)
	if err != nil {
		return nil, NewBusinessError("PROFILE_LOOKUP_FAILED", "Failed to lookup profile", err)
	}

	generated, err := generateStoriesWithRetry(ctx, s.storyGen, profile)
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionStoriesGenerationFailed, "Story generation failed", false, &errMsg, metadata)

		return nil, NewBusinessError("STORY_GENERATION_FAILED", "Story generation failed", fmt.Errorf("%w: %v", ErrStoryGenerationFailed, err))
	}

	saved, err := s.upsertGenerated(ctx, profile, generated)
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionStoriesGenerationFailed, "Failed to save generated stories", false, &errMsg, metadata)

		return nil, NewBusinessError("STORY_SAVE_FAILED", "Failed to save generated stories", err)
	}

	msg := fmt.Sprintf("Generated %d stories", len(saved))
	_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionStoriesGenerated, msg, true, nil, metadata)

	out := make([]dto.StoryDTO, 0, len(saved))
	for _, story := range saved {
		out = append(out, ToStoryDTO(story))
	}

	return &dto.GenerateStoriesResponse{
		Message: "Stories generated successfully",
		Stories: out,
	}, nil
}

// SaveStory saves a single curated story, overwriting the existing (profile,
// headline) row if present
func (s *StoryFlowImpl) SaveStory(ctx context.Context, req *dto.SaveStoryRequest, metadata *ClientMetadata) (*dto.SaveStoryResponse, error) {
	if req.Headline == "" {
		return nil, NewBusinessError("STORY_VALIDATION_FAILED", "Story validation failed", ErrHeadlineRequired)
	}
	if req.Summary == "" {
		return nil, NewBusinessError("STORY_VALIDATION_FAILED", "Story validation failed", ErrSummaryRequired)
	}

	profile, err := getProfile(ctx, s.profileRepo, req.ProfileID)
	if err != nil {
		return nil, NewBusinessError("PROFILE_LOOKUP_FAILED", "Failed to lookup profile", err)
	}

	story := &models.SavedStory{
		ProfileID:     profile.ID,
		Headline:      req.Headline,
		Summary:       req.Summary,
		SourceURL:     req.SourceURL,
		Category:      req.Category,
		ViralityScore: req.ViralityScore,
	}

	if err := s.storyRepo.Upsert(ctx, story); err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionStorySaved, "Failed to save story", false, &errMsg, metadata)

		return nil, NewBusinessError("STORY_SAVE_FAILED", "Failed to save story", err)
	}

	// On a conflicting upsert the in-memory struct keeps its own UUID; re-read
	// the canonical row
	stored, err := s.storyByHeadline(ctx, profile.ID, req.Headline)
	if err != nil {
		return nil, NewBusinessError("STORY_LOOKUP_FAILED", "Failed to lookup saved story", err)
	}

	msg := fmt.Sprintf("Story saved: %s", stored.UUID.String())
	_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionStorySaved, msg, true, nil, metadata)

	return &dto.SaveStoryResponse{
		Message: "Story saved successfully",
		Story:   ToStoryDTO(stored),
	}, nil
}

// ListStories lists the profile's saved stories, optionally restricted to
// those still eligible for an edition
func (s *StoryFlowImpl) ListStories(ctx context.Context, req *dto.ListStoriesRequest, metadata *ClientMetadata) (*dto.ListStoriesResponse, error) {
	if req.Page < 1 {
		return nil, NewBusinessError("INVALID_FILTER", "Invalid list filter", ErrInvalidPage)
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		return nil, NewBusinessError("INVALID_FILTER", "Invalid list filter", ErrInvalidPageSize)
	}

	profile, err := getProfile(ctx, s.profileRepo, req.ProfileID)
	if err != nil {
		return nil, NewBusinessError("PROFILE_LOOKUP_FAILED", "Failed to lookup profile", err)
	}

	filter := models.SavedStoryFilter{ProfileID: &profile.ID}
	orderBy := "created_at DESC"
	if req.OnlyUnconsumed {
		filter.Unconsumed = utils.ToPtr(true)
		orderBy = "virality_score DESC, id ASC"
	}

	offset := (req.Page - 1) * req.PageSize
	stories, err := s.storyRepo.ByFilter(ctx, filter, orderBy, req.PageSize, offset)
	if err != nil {
		return nil, NewBusinessError("STORY_LIST_FAILED", "Failed to list stories", err)
	}

	out := make([]dto.StoryDTO, 0, len(stories))
	for _, story := range stories {
		out = append(out, ToStoryDTO(story))
	}

	return &dto.ListStoriesResponse{
		Message: "Stories retrieved successfully",
		Stories: out,
	}, nil
}

func (s *StoryFlowImpl) upsertGenerated(ctx context.Context, profile *models.Profile, generated []services.GeneratedStory) ([]*models.SavedStory, error) {
	saved := make([]*models.SavedStory, 0, len(generated))
	for _, g := range generated {
		if g.Headline == "" || g.Summary == "" {
			continue
		}

		story := &models.SavedStory{
			ProfileID:     profile.ID,
			Headline:      g.Headline,
			Summary:       g.Summary,
			SourceURL:     g.SourceURL,
			Category:      g.Category,
			ViralityScore: g.ViralityScore,
		}
		if err := s.storyRepo.Upsert(ctx, story); err != nil {
			return nil, err
		}

		stored, err := s.storyByHeadline(ctx, profile.ID, g.Headline)
		if err != nil {
			return nil, err
		}
		saved = append(saved, stored)
	}

	return saved, nil
}

func (s *StoryFlowImpl) storyByHeadline(ctx context.Context, profileID uint, headline string) (*models.SavedStory, error) {
	filter := models.SavedStoryFilter{
		ProfileID: &profileID,
		Headline:  &headline,
	}
	stories, err := s.storyRepo.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(stories) == 0 {
		return nil, fmt.Errorf("story disappeared after upsert: %s", headline)
	}
	return stories[0], nil
}

// generateStoriesWithRetry applies the bounded retry policy to the content
// collaborator: one extra attempt after a backoff, honoring context
// cancellation while waiting
func generateStoriesWithRetry(ctx context.Context, storyGen services.StoryGenerationService, profile *models.Profile) ([]services.GeneratedStory, error) {
	var lastErr error
	backoff := utils.StoryGenerationBackoff

	for attempt := 0; attempt <= utils.StoryGenerationRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		stories, err := storyGen.GenerateStories(ctx, profile)
		if err == nil {
			return stories, nil
		}
		lastErr = err
	}

	return nil, lastErr
}
