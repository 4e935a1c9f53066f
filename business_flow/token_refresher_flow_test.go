package businessflow

import (
	"context"
	"testing"

	"github.com/amirphl/Kusanagi/app/services"
	"github.com/amirphl/Kusanagi/models"
	apptest "github.com/amirphl/Kusanagi/testing"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sideEffectLocker runs a callback between lease acquisition attempts so tests
// can simulate a writer slipping past the lease
type sideEffectLocker struct {
	inner     RefreshLocker
	onAcquire func()
}

func (l *sideEffectLocker) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	if l.onAcquire != nil {
		l.onAcquire()
	}
	return l.inner.TryAcquire(ctx, key)
}

func newRefresherFixture(profile *models.Profile, pair *services.TokenPair) (*TokenRefresherImpl, *apptest.FakeProfileRepository, *services.MockESPAuthClient, *apptest.FakeAuditLogRepository) {
	profileRepo := apptest.NewFakeProfileRepository(profile)
	authClient := services.NewMockESPAuthClient(pair)
	auditRepo := apptest.NewFakeAuditLogRepository()
	refresher := NewTokenRefresher(profileRepo, authClient, NewLocalRefreshLocker(), auditRepo)
	return refresher.(*TokenRefresherImpl), profileRepo, authClient, auditRepo
}

func TestTokenRefresher_RefreshPersistsNewCredential(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	oldRefresh := *profile.ESPRefreshToken
	pair := &services.TokenPair{AccessToken: "fresh-access", RefreshToken: "fresh-refresh"}

	refresher, profileRepo, authClient, auditRepo := newRefresherFixture(profile, pair)

	token, err := refresher.EnsureValidToken(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", token)
	assert.Equal(t, 1, authClient.RefreshCalls)

	stored, err := profileRepo.ByID(context.Background(), profile.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ESPAccessToken)
	assert.Equal(t, "fresh-access", *stored.ESPAccessToken)
	assert.Equal(t, "fresh-refresh", *stored.ESPRefreshToken)
	assert.NotEqual(t, oldRefresh, *stored.ESPRefreshToken)

	assert.Contains(t, auditRepo.ActionsSeen(), models.AuditActionTokenRefreshed)
}

func TestTokenRefresher_KeepsRefreshTokenWhenResponseOmitsIt(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	oldRefresh := *profile.ESPRefreshToken
	pair := &services.TokenPair{AccessToken: "fresh-access"} // no rotation

	refresher, profileRepo, _, _ := newRefresherFixture(profile, pair)

	token, err := refresher.EnsureValidToken(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", token)

	stored, err := profileRepo.ByID(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.Equal(t, oldRefresh, *stored.ESPRefreshToken)
}

func TestTokenRefresher_NotConnected(t *testing.T) {
	profile := apptest.NewDisconnectedProfile(1)
	refresher, _, authClient, _ := newRefresherFixture(profile, &services.TokenPair{AccessToken: "unused"})

	_, err := refresher.EnsureValidToken(context.Background(), profile.ID)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, authClient.RefreshCalls)
}

func TestTokenRefresher_ProfileNotFound(t *testing.T) {
	refresher, _, _, _ := newRefresherFixture(apptest.NewConnectedProfile(1), &services.TokenPair{AccessToken: "unused"})

	_, err := refresher.EnsureValidToken(context.Background(), 999)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestTokenRefresher_HeldLeaseFailsConcurrentRefresh(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	profileRepo := apptest.NewFakeProfileRepository(profile)
	authClient := services.NewMockESPAuthClient(&services.TokenPair{AccessToken: "fresh-access"})
	locker := NewLocalRefreshLocker()
	refresher := NewTokenRefresher(profileRepo, authClient, locker, apptest.NewFakeAuditLogRepository())

	// Another refresh holds the lease for this profile
	release, acquired, err := locker.TryAcquire(context.Background(), profile.UUID.String())
	require.NoError(t, err)
	require.True(t, acquired)
	defer release()

	_, err = refresher.EnsureValidToken(context.Background(), profile.ID)
	assert.ErrorIs(t, err, ErrConcurrentRefresh)
	assert.Equal(t, 0, authClient.RefreshCalls)
}

func TestTokenRefresher_PersistRaceFailsConcurrentRefresh(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	profileRepo := apptest.NewFakeProfileRepository(profile)
	authClient := services.NewMockESPAuthClient(&services.TokenPair{AccessToken: "fresh-access"})
	auditRepo := apptest.NewFakeAuditLogRepository()

	// A competing writer persists a new credential after this refresh read the
	// profile but before it acquires the lease, so the capture-timestamp CAS
	// must miss
	locker := &sideEffectLocker{
		inner: NewLocalRefreshLocker(),
		onAcquire: func() {
			stored, err := profileRepo.ByID(context.Background(), profile.ID)
			require.NoError(t, err)
			ok, err := profileRepo.UpdateCredentialCAS(context.Background(), profile.ID, stored.ESPTokenCapturedAt, "rival-access", "rival-refresh", utils.UTCNow())
			require.NoError(t, err)
			require.True(t, ok)
		},
	}
	refresher := NewTokenRefresher(profileRepo, authClient, locker, auditRepo)

	_, err := refresher.EnsureValidToken(context.Background(), profile.ID)
	assert.ErrorIs(t, err, ErrConcurrentRefresh)

	// The rival's credential survives
	stored, err := profileRepo.ByID(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "rival-access", *stored.ESPAccessToken)
}

func TestTokenRefresher_DeclinedRefreshSurfacesRefreshError(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	refresher, profileRepo, authClient, auditRepo := newRefresherFixture(profile, nil)
	authClient.Err = &services.RefreshError{StatusCode: 400, Body: "invalid_grant"}

	_, err := refresher.EnsureValidToken(context.Background(), profile.ID)
	require.Error(t, err)
	assert.True(t, services.IsRefreshError(err))

	// The stored credential is untouched; callers may fall back to it
	stored, err := profileRepo.ByID(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.Equal(t, *profile.ESPAccessToken, *stored.ESPAccessToken)

	assert.Contains(t, auditRepo.ActionsSeen(), models.AuditActionTokenRefreshFailed)
}

func TestTokenRefresher_ReleasesLeaseAfterRefresh(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	refresher, _, authClient, _ := newRefresherFixture(profile, &services.TokenPair{AccessToken: "fresh-access"})

	_, err := refresher.EnsureValidToken(context.Background(), profile.ID)
	require.NoError(t, err)

	// A second refresh must not collide with the first one's lease
	_, err = refresher.ForceRefresh(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, authClient.RefreshCalls)
}
