package businessflow

import (
	"context"
	"fmt"

	"github.com/amirphl/Kusanagi/app/services"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/amirphl/Kusanagi/utils"
)

// TokenRefresher owns the ESP credential lifecycle. Callers never read or
// write token columns directly; every privileged ESP call obtains its bearer
// token here.
//
// The refresh is unconditional rather than expiry-gated: the access token's
// lifetime is opaque and short, so one extra round trip per push beats
// trusting a clock-skewed estimate.
type TokenRefresher interface {
	// EnsureValidToken refreshes the stored credential and returns the new
	// access token. Fails with ErrNotConnected when no refresh token is on
	// file, ErrConcurrentRefresh when another refresh holds the lease or won
	// the persist race, or a services.RefreshError when the authorization
	// server declines. On RefreshError the caller may fall back to the stored
	// (possibly stale) access token.
	EnsureValidToken(ctx context.Context, profileID uint) (string, error)

	// ForceRefresh is the retry path after the ESP rejects a token mid-call
	ForceRefresh(ctx context.Context, profileID uint) (string, error)
}

// TokenRefresherImpl implements TokenRefresher
type TokenRefresherImpl struct {
	profileRepo repository.ProfileRepository
	authClient  services.ESPAuthClient
	locker      RefreshLocker
	auditRepo   repository.AuditLogRepository
}

// NewTokenRefresher creates a new token refresher
func NewTokenRefresher(
	profileRepo repository.ProfileRepository,
	authClient services.ESPAuthClient,
	locker RefreshLocker,
	auditRepo repository.AuditLogRepository,
) TokenRefresher {
	return &TokenRefresherImpl{
		profileRepo: profileRepo,
		authClient:  authClient,
		locker:      locker,
		auditRepo:   auditRepo,
	}
}

// EnsureValidToken refreshes the credential and returns the fresh access token
func (s *TokenRefresherImpl) EnsureValidToken(ctx context.Context, profileID uint) (string, error) {
	return s.refresh(ctx, profileID)
}

// ForceRefresh refreshes the credential regardless of any prior attempt in
// this request. Identical mechanics to EnsureValidToken; kept separate so the
// one-retry policy at the call site reads as intent.
func (s *TokenRefresherImpl) ForceRefresh(ctx context.Context, profileID uint) (string, error) {
	return s.refresh(ctx, profileID)
}

// refresh serializes per profile: a lease keyed by profile UUID excludes
// concurrent refreshes across instances, and the capture-timestamp CAS on the
// persist catches any writer that slipped past the lease. Losing either race
// fails with ErrConcurrentRefresh; the caller re-reads and retries once.
func (s *TokenRefresherImpl) refresh(ctx context.Context, profileID uint) (string, error) {
	profile, err := getProfile(ctx, s.profileRepo, profileID)
	if err != nil {
		return "", err
	}
	if !profile.Connected() {
		return "", ErrNotConnected
	}

	release, acquired, err := s.locker.TryAcquire(ctx, profile.UUID.String())
	if err != nil {
		return "", fmt.Errorf("failed to acquire refresh lease: %w", err)
	}
	if !acquired {
		return "", ErrConcurrentRefresh
	}
	defer release()

	pair, err := s.authClient.RefreshAccessToken(ctx, *profile.ESPRefreshToken)
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionTokenRefreshFailed, "ESP token refresh failed", false, &errMsg, nil)
		return "", err
	}

	// ESPs rotate the refresh token; fall back to the current one when the
	// response omits it
	refreshToken := pair.RefreshToken
	if refreshToken == "" {
		refreshToken = *profile.ESPRefreshToken
	}

	ok, err := s.profileRepo.UpdateCredentialCAS(ctx, profile.ID, profile.ESPTokenCapturedAt, pair.AccessToken, refreshToken, utils.UTCNow())
	if err != nil {
		return "", fmt.Errorf("failed to persist refreshed credential: %w", err)
	}
	if !ok {
		return "", ErrConcurrentRefresh
	}

	_ = createAuditLog(ctx, s.auditRepo, profile, models.AuditActionTokenRefreshed, "ESP token refreshed", true, nil, nil)

	return pair.AccessToken, nil
}
