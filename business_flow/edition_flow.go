package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/app/services"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/amirphl/Kusanagi/utils"
	"gorm.io/gorm"
)

// EditionFlow drives editions through draft, preview_sent, and the terminal
// states, calling the ESP gateway for delivery actions
type EditionFlow interface {
	GenerateEdition(ctx context.Context, req *dto.GenerateEditionRequest, metadata *ClientMetadata) (*dto.GenerateEditionResponse, error)
	PushEdition(ctx context.Context, req *dto.PushEditionRequest, metadata *ClientMetadata) (*dto.PushEditionResponse, error)
	SendPreview(ctx context.Context, req *dto.SendPreviewRequest, metadata *ClientMetadata) (*dto.SendPreviewResponse, error)
	ListEditions(ctx context.Context, req *dto.ListEditionsRequest, metadata *ClientMetadata) (*dto.ListEditionsResponse, error)
	GetEdition(ctx context.Context, req *dto.GetEditionRequest, metadata *ClientMetadata) (*dto.GetEditionResponse, error)
}

// EditionFlowImpl implements the edition business flow
type EditionFlowImpl struct {
	profileRepo repository.ProfileRepository
	storyRepo   repository.SavedStoryRepository
	editionRepo repository.EditionRepository
	auditRepo   repository.AuditLogRepository
	refresher   TokenRefresher
	gateway     services.ESPGateway
	renderer    services.EditionRenderer
	storyGen    services.StoryGenerationService
	db          *gorm.DB
}

// NewEditionFlow creates a new edition flow instance
func NewEditionFlow(
	profileRepo repository.ProfileRepository,
	storyRepo repository.SavedStoryRepository,
	editionRepo repository.EditionRepository,
	auditRepo repository.AuditLogRepository,
	refresher TokenRefresher,
	gateway services.ESPGateway,
	renderer services.EditionRenderer,
	storyGen services.StoryGenerationService,
	db *gorm.DB,
) EditionFlow {
	return &EditionFlowImpl{
		profileRepo: profileRepo,
		storyRepo:   storyRepo,
		editionRepo: editionRepo,
		auditRepo:   auditRepo,
		refresher:   refresher,
		gateway:     gateway,
		renderer:    renderer,
		storyGen:    storyGen,
		db:          db,
	}
}

// GenerateEdition refreshes the story pool, selects the most viral unconsumed
// stories, renders the HTML, computes the schedule, and persists a draft.
// Stories are not consumed here: a discarded draft must not burn them, so
// consumption is deferred to the push step.
func (s *EditionFlowImpl) GenerateEdition(ctx context.Context, req *dto.GenerateEditionRequest, metadata *ClientMetadata) (*dto.GenerateEditionResponse, error) {
	profile, err := getProfile(ctx, s.profileRepo, req.ProfileID)
	if err != nil {
		return nil, NewBusinessError("PROFILE_LOOKUP_FAILED", "Failed to lookup profile", err)
	}

	generated, err := generateStoriesWithRetry(ctx, s.storyGen, profile)
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionEditionGenerationFailed, "Story generation failed", false, &errMsg, metadata)

		return nil, NewBusinessError("STORY_GENERATION_FAILED", "Story generation failed", fmt.Errorf("%w: %v", ErrStoryGenerationFailed, err))
	}

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
			return nil, NewBusinessError("STORY_SAVE_FAILED", "Failed to save generated stories", err)
		}
	}

	eligible, err := s.storyRepo.ListEligible(ctx, profile.ID, utils.DefaultEditionStoryLimit)
	if err != nil {
		return nil, NewBusinessError("STORY_SELECTION_FAILED", "Failed to select stories", err)
	}

	// Snapshot the selection: the edition must render identically even if the
	// source rows change later
	snapshot := make(models.EditionStories, 0, len(eligible))
	for _, story := range eligible {
		snapshot = append(snapshot, models.EditionStory{
			SavedStoryID:  story.ID,
			Headline:      story.Headline,
			Summary:       story.Summary,
			SourceURL:     story.SourceURL,
			Category:      story.Category,
			ViralityScore: story.ViralityScore,
		})
	}

	now := utils.UTCNow()
	html, err := s.renderer.Render(services.BrandingFromProfile(profile), snapshot, now.Format("January 2, 2006"))
	if err != nil {
		return nil, NewBusinessError("EDITION_RENDER_FAILED", "Failed to render edition", err)
	}

	scheduledAt, err := NextSendInstant(profile.SendWeekday, profile.SendTime, now)
	if err != nil {
		return nil, NewBusinessError("SCHEDULE_COMPUTE_FAILED", "Failed to compute send time", err)
	}

	edition := &models.Edition{
		ProfileID:   profile.ID,
		Status:      models.EditionStatusDraft,
		Stories:     snapshot,
		HTML:        html,
		ScheduledAt: scheduledAt,
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.editionRepo.Save(txCtx, edition)
	})
	if err != nil {
		errMsg := fmt.Sprintf("Edition creation failed: %s", err.Error())
		_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionEditionGenerationFailed, errMsg, false, &errMsg, metadata)

		return nil, NewBusinessError("EDITION_CREATION_FAILED", "Edition creation failed", err)
	}

	msg := fmt.Sprintf("Edition created: %s", edition.UUID.String())
	_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionEditionGenerated, msg, true, nil, metadata)

	return &dto.GenerateEditionResponse{
		Message: "Edition generated successfully",
		Edition: ToEditionDTO(edition),
	}, nil
}

// PushEdition creates the ESP campaign for a draft edition. On success the
// edition moves to preview_sent and its stories are consumed; re-invoking on
// an edition past draft fails with InvalidState rather than creating a second
// campaign.
func (s *EditionFlowImpl) PushEdition(ctx context.Context, req *dto.PushEditionRequest, metadata *ClientMetadata) (*dto.PushEditionResponse, error) {
	edition, profile, err := s.loadOwnedEdition(ctx, req.UUID, req.ProfileID)
	if err != nil {
		return nil, err
	}

	if edition.Status != models.EditionStatusDraft {
		return nil, NewBusinessError("EDITION_INVALID_STATE", "Edition has already been pushed", ErrInvalidEditionState)
	}

	// Fail fast before any outbound HTTP
	if !profile.Connected() {
		return nil, NewBusinessError("ESP_NOT_CONNECTED", "Profile is not connected to the ESP", ErrNotConnected)
	}

	token, err := s.obtainToken(ctx, profile)
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionEditionPushFailed, "Failed to obtain ESP token", false, &errMsg, metadata)

		return nil, NewBusinessError("TOKEN_REFRESH_FAILED", "Failed to obtain ESP token", err)
	}

	params := campaignParams(profile, edition)

	activityID, err := s.gateway.CreateCampaign(ctx, token, params)
	if errors.Is(err, services.ErrUnauthorized) {
		// Exactly one forced refresh-and-retry; a second rejection is terminal
		activityID, err = s.retryAfterUnauthorized(ctx, profile, params)
		if errors.Is(err, ErrAuthRejected) {
			s.markFailed(ctx, edition, models.EditionFailureAuthRejected)

			errMsg := err.Error()
			_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionEditionPushFailed, "ESP rejected the credential after refresh", false, &errMsg, metadata)

			return nil, NewBusinessError("AUTH_REJECTED", "ESP rejected the credential; reconnect required", ErrAuthRejected)
		}
	}
	if err != nil {
		// Gateway and transport failures leave the edition in draft so the
		// push can be re-invoked
		errMsg := err.Error()
		_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionEditionPushFailed, "ESP campaign creation failed", false, &errMsg, metadata)

		return nil, NewBusinessError("EDITION_PUSH_FAILED", "Failed to create ESP campaign", err)
	}

	now := utils.UTCNow()
	ok, err := s.editionRepo.UpdateStatusFrom(ctx, edition.ID, models.EditionStatusDraft, models.EditionStatusPreviewSent, map[string]any{
		"campaign_activity_id": activityID,
		"pushed_at":            now,
	})
	if err != nil {
		return nil, NewBusinessError("EDITION_UPDATE_FAILED", "Failed to record pushed edition", err)
	}
	if !ok {
		return nil, NewBusinessError("EDITION_INVALID_STATE", "Edition left draft during push", ErrInvalidEditionState)
	}

	// Consumption is atomic per story; a failure here is retried by a later
	// push of the remainder, not rolled back
	for _, snap := range edition.Stories {
		if err := s.storyRepo.MarkConsumed(ctx, snap.SavedStoryID, edition.ID); err != nil {
			log.Printf("edition %s: failed to mark story %d consumed: %v", edition.UUID, snap.SavedStoryID, err)
		}
	}

	msg := fmt.Sprintf("Edition pushed: %s, activity %s", edition.UUID.String(), activityID)
	_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionEditionPushed, msg, true, nil, metadata)

	return &dto.PushEditionResponse{
		Message:            "Edition pushed successfully",
		CampaignActivityID: activityID,
		Status:             models.EditionStatusPreviewSent.String(),
	}, nil
}

// SendPreview sends the campaign as a test message to the profile's own
// address. Failures are non-fatal: the authoritative scheduled send does not
// depend on this best-effort notification, so the caller gets a warning
// instead of an error.
func (s *EditionFlowImpl) SendPreview(ctx context.Context, req *dto.SendPreviewRequest, metadata *ClientMetadata) (*dto.SendPreviewResponse, error) {
	edition, profile, err := s.loadOwnedEdition(ctx, req.UUID, req.ProfileID)
	if err != nil {
		return nil, err
	}

	// The activity id on the edition is the single source of truth; a preview
	// without it has nothing to send
	if !edition.Pushed() {
		return nil, NewBusinessError("EDITION_NOT_PUSHED", "Edition has not been pushed to the ESP", ErrEditionNotPushed)
	}

	if !profile.Connected() {
		return nil, NewBusinessError("ESP_NOT_CONNECTED", "Profile is not connected to the ESP", ErrNotConnected)
	}

	warning := s.sendPreviewEmail(ctx, profile, edition)
	if warning != nil {
		errMsg := *warning
		_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionEditionPreviewFailed, "Preview send failed", false, &errMsg, metadata)

		return &dto.SendPreviewResponse{
			Message: "Preview could not be sent",
			Warning: warning,
		}, nil
	}

	msg := fmt.Sprintf("Preview sent for edition %s", edition.UUID.String())
	_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionEditionPreviewSent, msg, true, nil, metadata)

	return &dto.SendPreviewResponse{
		Message: "Preview sent successfully",
	}, nil
}

// ListEditions lists the profile's editions, newest first
func (s *EditionFlowImpl) ListEditions(ctx context.Context, req *dto.ListEditionsRequest, metadata *ClientMetadata) (*dto.ListEditionsResponse, error) {
	if req.Page < 1 {
		return nil, NewBusinessError("INVALID_FILTER", "Invalid list filter", ErrInvalidPage)
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		return nil, NewBusinessError("INVALID_FILTER", "Invalid list filter", ErrInvalidPageSize)
	}

	offset := (req.Page - 1) * req.PageSize
	editions, err := s.editionRepo.ByProfileID(ctx, req.ProfileID, req.PageSize, offset)
	if err != nil {
		return nil, NewBusinessError("EDITION_LIST_FAILED", "Failed to list editions", err)
	}

	out := make([]dto.EditionDTO, 0, len(editions))
	for _, edition := range editions {
		out = append(out, ToEditionDTO(edition))
	}

	return &dto.ListEditionsResponse{
		Message:  "Editions retrieved successfully",
		Editions: out,
	}, nil
}

// GetEdition fetches one edition including its rendered HTML
func (s *EditionFlowImpl) GetEdition(ctx context.Context, req *dto.GetEditionRequest, metadata *ClientMetadata) (*dto.GetEditionResponse, error) {
	edition, _, err := s.loadOwnedEdition(ctx, req.UUID, req.ProfileID)
	if err != nil {
		return nil, err
	}

	return &dto.GetEditionResponse{
		Message: "Edition retrieved successfully",
		Edition: ToEditionDTO(edition),
		HTML:    edition.HTML,
	}, nil
}

// loadOwnedEdition loads an edition by UUID and checks ownership
func (s *EditionFlowImpl) loadOwnedEdition(ctx context.Context, uuid string, profileID uint) (*models.Edition, *models.Profile, error) {
	edition, err := s.editionRepo.ByUUID(ctx, uuid)
	if err != nil {
		return nil, nil, NewBusinessError("EDITION_LOOKUP_FAILED", "Failed to lookup edition", err)
	}
	if edition == nil {
		return nil, nil, NewBusinessError("EDITION_NOT_FOUND", "Edition not found", ErrEditionNotFound)
	}
	if edition.ProfileID != profileID {
		return nil, nil, NewBusinessError("EDITION_ACCESS_DENIED", "Edition access denied", ErrEditionAccessDenied)
	}

	profile, err := getProfile(ctx, s.profileRepo, profileID)
	if err != nil {
		return nil, nil, NewBusinessError("PROFILE_LOOKUP_FAILED", "Failed to lookup profile", err)
	}

	return edition, profile, nil
}

// obtainToken applies the standard refresh discipline: one retry on a lost
// refresh race, then fall back to the stored (possibly stale) access token on
// RefreshFailed since the gateway surfaces a 401 if the fallback is truly
// invalid.
func (s *EditionFlowImpl) obtainToken(ctx context.Context, profile *models.Profile) (string, error) {
	token, err := s.refresher.EnsureValidToken(ctx, profile.ID)
	if err == nil {
		return token, nil
	}

	if IsConcurrentRefresh(err) {
		token, err = s.refresher.EnsureValidToken(ctx, profile.ID)
		if err == nil {
			return token, nil
		}
	}

	if services.IsRefreshError(err) && profile.ESPAccessToken != nil && *profile.ESPAccessToken != "" {
		return *profile.ESPAccessToken, nil
	}

	return "", err
}

// retryAfterUnauthorized performs the single forced refresh-and-retry. Any
// failure on this path, including a failed forced refresh, maps to
// ErrAuthRejected unless the retry hits a non-auth gateway error.
func (s *EditionFlowImpl) retryAfterUnauthorized(ctx context.Context, profile *models.Profile, params services.CampaignParams) (string, error) {
	token, err := s.refresher.ForceRefresh(ctx, profile.ID)
	if err != nil {
		return "", fmt.Errorf("%w: forced refresh failed: %v", ErrAuthRejected, err)
	}

	activityID, err := s.gateway.CreateCampaign(ctx, token, params)
	if errors.Is(err, services.ErrUnauthorized) {
		return "", fmt.Errorf("%w: token rejected twice", ErrAuthRejected)
	}
	if err != nil {
		return "", err
	}

	return activityID, nil
}

// sendPreviewEmail obtains a token and sends the test message, applying the
// same one-retry discipline on a 401. Returns a warning string on failure.
func (s *EditionFlowImpl) sendPreviewEmail(ctx context.Context, profile *models.Profile, edition *models.Edition) *string {
	token, err := s.obtainToken(ctx, profile)
	if err != nil {
		return utils.ToPtr(fmt.Sprintf("failed to obtain ESP token: %v", err))
	}

	recipients := []string{profile.Email}
	err = s.gateway.SendTestEmail(ctx, token, *edition.CampaignActivityID, recipients)
	if errors.Is(err, services.ErrUnauthorized) {
		token, rerr := s.refresher.ForceRefresh(ctx, profile.ID)
		if rerr != nil {
			return utils.ToPtr(fmt.Sprintf("forced refresh failed: %v", rerr))
		}
		err = s.gateway.SendTestEmail(ctx, token, *edition.CampaignActivityID, recipients)
	}
	if err != nil {
		return utils.ToPtr(fmt.Sprintf("preview send failed: %v", err))
	}

	return nil
}

// markFailed transitions a draft edition to failed with a reason. Best
// effort: the push error it accompanies is what the caller sees.
func (s *EditionFlowImpl) markFailed(ctx context.Context, edition *models.Edition, reason string) {
	now := utils.UTCNow()
	_, err := s.editionRepo.UpdateStatusFrom(ctx, edition.ID, edition.Status, models.EditionStatusFailed, map[string]any{
		"failure_reason": reason,
		"failed_at":      now,
	})
	if err != nil {
		log.Printf("edition %s: failed to mark failed: %v", edition.UUID, err)
	}
}

// campaignParams builds the ESP campaign payload from profile branding and
// the edition snapshot
func campaignParams(profile *models.Profile, edition *models.Edition) services.CampaignParams {
	subject := fmt.Sprintf("%s's latest edition", profile.DisplayName)
	if len(edition.Stories) > 0 {
		subject = edition.Stories[0].Headline
	}

	return services.CampaignParams{
		Name:        fmt.Sprintf("edition-%s", edition.UUID.String()),
		Subject:     subject,
		FromName:    profile.DisplayName,
		FromEmail:   profile.Email,
		ReplyTo:     profile.Email,
		HTMLContent: edition.HTML,
	}
}
