// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"time"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/amirphl/Kusanagi/utils"
)

// ClientMetadata holds all client-related information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// createAuditLog writes one best-effort audit row; flows ignore its error
func createAuditLog(ctx context.Context, auditRepo repository.AuditLogRepository, profile *models.Profile, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) error {
	var profileID *uint
	if profile != nil {
		profileID = &profile.ID
	}

	ipAddress := ""
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		ProfileID:    profileID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
	}

	// Extract request ID from context if available
	requestID := ctx.Value(utils.RequestIDKey)
	if requestID != nil {
		requestIDStr, ok := requestID.(string)
		if ok {
			audit.RequestID = &requestIDStr
		}
	}

	return auditRepo.Save(ctx, audit)
}

// getProfile loads a profile by id, mapping absence to ErrProfileNotFound
func getProfile(ctx context.Context, profileRepo repository.ProfileRepository, profileID uint) (*models.Profile, error) {
	profile, err := profileRepo.ByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	if profile.IsActive != nil && !*profile.IsActive {
		return nil, ErrProfileInactive
	}
	return profile, nil
}

// ToProfileDTO converts a profile model to its response representation
func ToProfileDTO(profile *models.Profile) dto.GetProfileResponse {
	return dto.GetProfileResponse{
		UUID:             profile.UUID.String(),
		DisplayName:      profile.DisplayName,
		OrganizationName: profile.OrganizationName,
		Phone:            profile.Phone,
		Email:            profile.Email,
		HeadshotURL:      profile.HeadshotURL,
		LogoURL:          profile.LogoURL,
		AccentColor:      profile.AccentColor,
		Topics:           profile.Topics,
		SendWeekday:      profile.SendWeekday,
		SendTime:         profile.SendTime,
		ESPConnected:     profile.Connected(),
		CreatedAt:        profile.CreatedAt.Format(time.RFC3339),
	}
}

// ToStoryDTO converts a saved story model to its response representation
func ToStoryDTO(story *models.SavedStory) dto.StoryDTO {
	return dto.StoryDTO{
		UUID:          story.UUID.String(),
		Headline:      story.Headline,
		Summary:       story.Summary,
		SourceURL:     story.SourceURL,
		Category:      story.Category,
		ViralityScore: story.ViralityScore,
		Consumed:      story.Consumed(),
		CreatedAt:     story.CreatedAt.Format(time.RFC3339),
	}
}

// ToEditionDTO converts an edition model to its response representation. The
// rendered HTML is deliberately excluded; GetEdition returns it separately.
func ToEditionDTO(edition *models.Edition) dto.EditionDTO {
	stories := make([]dto.EditionStoryDTO, 0, len(edition.Stories))
	for _, s := range edition.Stories {
		stories = append(stories, dto.EditionStoryDTO{
			Headline:      s.Headline,
			Summary:       s.Summary,
			SourceURL:     s.SourceURL,
			Category:      s.Category,
			ViralityScore: s.ViralityScore,
		})
	}

	out := dto.EditionDTO{
		UUID:               edition.UUID.String(),
		Status:             edition.Status.String(),
		Stories:            stories,
		CampaignActivityID: edition.CampaignActivityID,
		FailureReason:      edition.FailureReason,
		CreatedAt:          edition.CreatedAt.Format(time.RFC3339),
	}
	out.ScheduledAt = formatTimePtr(edition.ScheduledAt)
	out.PushedAt = formatTimePtr(edition.PushedAt)
	out.SentAt = formatTimePtr(edition.SentAt)
	out.FailedAt = formatTimePtr(edition.FailedAt)

	return out
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return utils.ToPtr(t.Format(time.RFC3339))
}
