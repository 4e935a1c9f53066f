package businessflow

import (
	"context"
	"testing"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/app/services"
	"github.com/amirphl/Kusanagi/models"
	apptest "github.com/amirphl/Kusanagi/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_StoresExchangedCredential(t *testing.T) {
	profile := apptest.NewDisconnectedProfile(1)
	profileRepo := apptest.NewFakeProfileRepository(profile)
	authClient := services.NewMockESPAuthClient(&services.TokenPair{AccessToken: "initial-access", RefreshToken: "initial-refresh"})
	auditRepo := apptest.NewFakeAuditLogRepository()
	flow := NewESPConnectFlow(profileRepo, authClient, NewLocalRefreshLocker(), auditRepo)

	resp, err := flow.Connect(context.Background(), &dto.ConnectESPRequest{ProfileID: 1, Code: "auth-code"}, meta())
	require.NoError(t, err)
	assert.True(t, resp.Connected)
	assert.Equal(t, 1, authClient.ExchangeCalls)

	stored, err := profileRepo.ByID(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, stored.Connected())
	assert.Equal(t, "initial-access", *stored.ESPAccessToken)
	assert.Equal(t, "initial-refresh", *stored.ESPRefreshToken)
	assert.NotNil(t, stored.ESPTokenCapturedAt)

	assert.Contains(t, auditRepo.ActionsSeen(), models.AuditActionESPConnected)
}

func TestConnect_RequiresAuthorizationCode(t *testing.T) {
	profileRepo := apptest.NewFakeProfileRepository(apptest.NewDisconnectedProfile(1))
	authClient := services.NewMockESPAuthClient(nil)
	flow := NewESPConnectFlow(profileRepo, authClient, NewLocalRefreshLocker(), apptest.NewFakeAuditLogRepository())

	_, err := flow.Connect(context.Background(), &dto.ConnectESPRequest{ProfileID: 1, Code: ""}, meta())
	require.Error(t, err)
	assert.True(t, IsAuthorizationCodeRequired(err))
	assert.Equal(t, 0, authClient.ExchangeCalls)
}

func TestConnect_ExchangeFailure(t *testing.T) {
	profileRepo := apptest.NewFakeProfileRepository(apptest.NewDisconnectedProfile(1))
	authClient := services.NewMockESPAuthClient(nil)
	authClient.Err = &services.RefreshError{StatusCode: 400, Body: "invalid_grant"}
	auditRepo := apptest.NewFakeAuditLogRepository()
	flow := NewESPConnectFlow(profileRepo, authClient, NewLocalRefreshLocker(), auditRepo)

	_, err := flow.Connect(context.Background(), &dto.ConnectESPRequest{ProfileID: 1, Code: "bad-code"}, meta())
	require.Error(t, err)

	stored, lookupErr := profileRepo.ByID(context.Background(), 1)
	require.NoError(t, lookupErr)
	assert.False(t, stored.Connected())

	assert.Contains(t, auditRepo.ActionsSeen(), models.AuditActionESPConnectFailed)
}

func TestConnect_RejectsExchangeWithoutRefreshToken(t *testing.T) {
	profileRepo := apptest.NewFakeProfileRepository(apptest.NewDisconnectedProfile(1))
	authClient := services.NewMockESPAuthClient(&services.TokenPair{AccessToken: "initial-access"})
	flow := NewESPConnectFlow(profileRepo, authClient, NewLocalRefreshLocker(), apptest.NewFakeAuditLogRepository())

	_, err := flow.Connect(context.Background(), &dto.ConnectESPRequest{ProfileID: 1, Code: "auth-code"}, meta())
	require.Error(t, err)

	stored, lookupErr := profileRepo.ByID(context.Background(), 1)
	require.NoError(t, lookupErr)
	assert.False(t, stored.Connected())
}

func TestConnect_HeldLeaseFailsConcurrentRefresh(t *testing.T) {
	profile := apptest.NewDisconnectedProfile(1)
	profileRepo := apptest.NewFakeProfileRepository(profile)
	authClient := services.NewMockESPAuthClient(&services.TokenPair{AccessToken: "initial-access", RefreshToken: "initial-refresh"})
	locker := NewLocalRefreshLocker()
	flow := NewESPConnectFlow(profileRepo, authClient, locker, apptest.NewFakeAuditLogRepository())

	release, acquired, err := locker.TryAcquire(context.Background(), profile.UUID.String())
	require.NoError(t, err)
	require.True(t, acquired)
	defer release()

	_, err = flow.Connect(context.Background(), &dto.ConnectESPRequest{ProfileID: 1, Code: "auth-code"}, meta())
	require.Error(t, err)
	assert.True(t, IsConcurrentRefresh(err))
}

func TestDisconnect_ClearsCredential(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	profileRepo := apptest.NewFakeProfileRepository(profile)
	auditRepo := apptest.NewFakeAuditLogRepository()
	flow := NewESPConnectFlow(profileRepo, services.NewMockESPAuthClient(nil), NewLocalRefreshLocker(), auditRepo)

	_, err := flow.Disconnect(context.Background(), &dto.DisconnectESPRequest{ProfileID: 1}, meta())
	require.NoError(t, err)

	stored, err := profileRepo.ByID(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, stored.Connected())
	assert.Nil(t, stored.ESPAccessToken)
	assert.Nil(t, stored.ESPTokenCapturedAt)

	assert.Contains(t, auditRepo.ActionsSeen(), models.AuditActionESPDisconnected)
}
