package businessflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/app/services"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/amirphl/Kusanagi/utils"
)

// ESPConnectFlow handles connecting and disconnecting a profile's ESP account
type ESPConnectFlow interface {
	Connect(ctx context.Context, req *dto.ConnectESPRequest, metadata *ClientMetadata) (*dto.ConnectESPResponse, error)
	Disconnect(ctx context.Context, req *dto.DisconnectESPRequest, metadata *ClientMetadata) (*dto.DisconnectESPResponse, error)
}

// ESPConnectFlowImpl implements the ESP connect business flow
type ESPConnectFlowImpl struct {
	profileRepo repository.ProfileRepository
	authClient  services.ESPAuthClient
	locker      RefreshLocker
	auditRepo   repository.AuditLogRepository
}

// NewESPConnectFlow creates a new ESP connect flow instance
func NewESPConnectFlow(
	profileRepo repository.ProfileRepository,
	authClient services.ESPAuthClient,
	locker RefreshLocker,
	auditRepo repository.AuditLogRepository,
) ESPConnectFlow {
	return &ESPConnectFlowImpl{
		profileRepo: profileRepo,
		authClient:  authClient,
		locker:      locker,
		auditRepo:   auditRepo,
	}
}

// Connect exchanges an OAuth authorization code for a token pair and stores it
// on the profile. The write goes through the same lease and CAS as a refresh
// so a connect cannot race an in-flight refresh.
func (s *ESPConnectFlowImpl) Connect(ctx context.Context, req *dto.ConnectESPRequest, metadata *ClientMetadata) (*dto.ConnectESPResponse, error) {
	if req.Code == "" {
		return nil, NewBusinessError("ESP_CONNECT_FAILED", "Authorization code is required", ErrAuthorizationCodeRequired)
	}

	profile, err := getProfile(ctx, s.profileRepo, req.ProfileID)
	if err != nil {
		return nil, NewBusinessError("PROFILE_LOOKUP_FAILED", "Failed to lookup profile", err)
	}

	pair, err := s.authClient.ExchangeAuthorizationCode(ctx, req.Code)
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionESPConnectFailed, "Authorization code exchange failed", false, &errMsg, metadata)

		return nil, NewBusinessError("ESP_CONNECT_FAILED", "Authorization code exchange failed", err)
	}
	if pair.RefreshToken == "" {
		errMsg := "exchange response missing refresh token"
		_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionESPConnectFailed, errMsg, false, &errMsg, metadata)

		return nil, NewBusinessError("ESP_CONNECT_FAILED", "Exchange response missing refresh token", errors.New(errMsg))
	}

	release, acquired, err := s.locker.TryAcquire(ctx, profile.UUID.String())
	if err != nil {
		return nil, NewBusinessError("ESP_CONNECT_FAILED", "Failed to acquire credential lease", err)
	}
	if !acquired {
		return nil, NewBusinessError("CONCURRENT_REFRESH", "Credential is being refreshed", ErrConcurrentRefresh)
	}
	defer release()

	ok, err := s.profileRepo.UpdateCredentialCAS(ctx, profile.ID, profile.ESPTokenCapturedAt, pair.AccessToken, pair.RefreshToken, utils.UTCNow())
	if err != nil {
		return nil, NewBusinessError("ESP_CONNECT_FAILED", "Failed to persist credential", err)
	}
	if !ok {
		return nil, NewBusinessError("CONCURRENT_REFRESH", "Credential changed during connect", ErrConcurrentRefresh)
	}

	msg := fmt.Sprintf("ESP connected for profile %s", profile.UUID.String())
	_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionESPConnected, msg, true, nil, metadata)

	return &dto.ConnectESPResponse{
		Message:   "ESP connected successfully",
		Connected: true,
	}, nil
}

// Disconnect drops the stored token pair. Editions already scheduled at the
// ESP are untouched; only future privileged calls are affected.
func (s *ESPConnectFlowImpl) Disconnect(ctx context.Context, req *dto.DisconnectESPRequest, metadata *ClientMetadata) (*dto.DisconnectESPResponse, error) {
	profile, err := getProfile(ctx, s.profileRepo, req.ProfileID)
	if err != nil {
		return nil, NewBusinessError("PROFILE_LOOKUP_FAILED", "Failed to lookup profile", err)
	}

	if err := s.profileRepo.ClearCredential(ctx, profile.ID); err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionESPDisconnected, "Failed to clear credential", false, &errMsg, metadata)

		return nil, NewBusinessError("ESP_DISCONNECT_FAILED", "Failed to clear credential", err)
	}

	_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionESPDisconnected, "ESP disconnected", true, nil, metadata)

	return &dto.DisconnectESPResponse{
		Message: "ESP disconnected successfully",
	}, nil
}
