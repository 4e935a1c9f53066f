package businessflow

import (
	"context"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
)

// ProfileFlow handles profile branding and delivery preference management
type ProfileFlow interface {
	GetProfile(ctx context.Context, profileID uint, metadata *ClientMetadata) (*dto.GetProfileResponse, error)
	UpdateProfile(ctx context.Context, req *dto.UpdateProfileRequest, metadata *ClientMetadata) (*dto.UpdateProfileResponse, error)
}

// ProfileFlowImpl implements the profile business flow
type ProfileFlowImpl struct {
	profileRepo repository.ProfileRepository
	auditRepo   repository.AuditLogRepository
}

// NewProfileFlow creates a new profile flow instance
func NewProfileFlow(
	profileRepo repository.ProfileRepository,
	auditRepo repository.AuditLogRepository,
) ProfileFlow {
	return &ProfileFlowImpl{
		profileRepo: profileRepo,
		auditRepo:   auditRepo,
	}
}

// GetProfile returns the profile's branding, topics, delivery preference and
// connection status. Token material never leaves this layer.
func (s *ProfileFlowImpl) GetProfile(ctx context.Context, profileID uint, metadata *ClientMetadata) (*dto.GetProfileResponse, error) {
	profile, err := getProfile(ctx, s.profileRepo, profileID)
	if err != nil {
		return nil, NewBusinessError("PROFILE_LOOKUP_FAILED", "Failed to lookup profile", err)
	}

	resp := ToProfileDTO(profile)
	return &resp, nil
}

// UpdateProfile applies a partial update to branding and delivery preference.
// Only non-nil fields are touched; credential columns are out of reach here.
func (s *ProfileFlowImpl) UpdateProfile(ctx context.Context, req *dto.UpdateProfileRequest, metadata *ClientMetadata) (*dto.UpdateProfileResponse, error) {
	profile, err := getProfile(ctx, s.profileRepo, req.ProfileID)
	if err != nil {
		return nil, NewBusinessError("PROFILE_LOOKUP_FAILED", "Failed to lookup profile", err)
	}

	if req.SendWeekday != nil && *req.SendWeekday != "" {
		if _, err := ParseWeekday(*req.SendWeekday); err != nil {
			return nil, NewBusinessError("PROFILE_VALIDATION_FAILED", "Invalid send weekday", err)
		}
	}
	if req.SendTime != nil && *req.SendTime != "" {
		if _, _, err := ParseTimeOfDay(*req.SendTime); err != nil {
			return nil, NewBusinessError("PROFILE_VALIDATION_FAILED", "Invalid send time", err)
		}
	}

	applyProfileUpdate(profile, req)

	if err := s.profileRepo.Update(ctx, *profile); err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionProfileUpdated, "Profile update failed", false, &errMsg, metadata)

		return nil, NewBusinessError("PROFILE_UPDATE_FAILED", "Failed to update profile", err)
	}

	_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionProfileUpdated, "Profile updated", true, nil, metadata)

	return &dto.UpdateProfileResponse{
		Message: "Profile updated successfully",
		Profile: ToProfileDTO(profile),
	}, nil
}

func applyProfileUpdate(profile *models.Profile, req *dto.UpdateProfileRequest) {
	if req.DisplayName != nil {
		profile.DisplayName = *req.DisplayName
	}
	if req.OrganizationName != nil {
		profile.OrganizationName = req.OrganizationName
	}
	if req.Phone != nil {
		profile.Phone = req.Phone
	}
	if req.Email != nil {
		profile.Email = *req.Email
	}
	if req.HeadshotURL != nil {
		profile.HeadshotURL = req.HeadshotURL
	}
	if req.LogoURL != nil {
		profile.LogoURL = req.LogoURL
	}
	if req.AccentColor != nil {
		profile.AccentColor = req.AccentColor
	}
	if req.Topics != nil {
		profile.Topics = req.Topics
	}
	if req.SendWeekday != nil {
		profile.SendWeekday = req.SendWeekday
	}
	if req.SendTime != nil {
		profile.SendTime = req.SendTime
	}
}
