package businessflow

import (
	"context"
	"testing"

	"github.com/amirphl/Kusanagi/app/dto"
	apptest "github.com/amirphl/Kusanagi/testing"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProfile_ExcludesTokenMaterial(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	flow := NewProfileFlow(apptest.NewFakeProfileRepository(profile), apptest.NewFakeAuditLogRepository())

	resp, err := flow.GetProfile(context.Background(), 1, meta())
	require.NoError(t, err)
	assert.Equal(t, profile.UUID.String(), resp.UUID)
	assert.Equal(t, profile.DisplayName, resp.DisplayName)

	// Connection status is a boolean; the tokens themselves never appear
	assert.True(t, resp.ESPConnected)
}

func TestGetProfile_NotFound(t *testing.T) {
	flow := NewProfileFlow(apptest.NewFakeProfileRepository(), apptest.NewFakeAuditLogRepository())

	_, err := flow.GetProfile(context.Background(), 42, meta())
	require.Error(t, err)
	assert.True(t, IsProfileNotFound(err))
}

func TestUpdateProfile_PartialUpdate(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	profileRepo := apptest.NewFakeProfileRepository(profile)
	flow := NewProfileFlow(profileRepo, apptest.NewFakeAuditLogRepository())

	resp, err := flow.UpdateProfile(context.Background(), &dto.UpdateProfileRequest{
		ProfileID:   1,
		DisplayName: utils.ToPtr("Casey Realtor"),
		SendWeekday: utils.ToPtr("friday"),
		SendTime:    utils.ToPtr("07:30"),
	}, meta())
	require.NoError(t, err)
	assert.Equal(t, "Casey Realtor", resp.Profile.DisplayName)

	stored, err := profileRepo.ByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Casey Realtor", stored.DisplayName)
	assert.Equal(t, "friday", *stored.SendWeekday)
	assert.Equal(t, "07:30", *stored.SendTime)

	// Untouched fields keep their values
	assert.Equal(t, profile.Email, stored.Email)
	assert.True(t, stored.Connected())
}

func TestUpdateProfile_RejectsInvalidPreference(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	flow := NewProfileFlow(apptest.NewFakeProfileRepository(profile), apptest.NewFakeAuditLogRepository())

	_, err := flow.UpdateProfile(context.Background(), &dto.UpdateProfileRequest{
		ProfileID:   1,
		SendWeekday: utils.ToPtr("funday"),
	}, meta())
	require.Error(t, err)
	assert.True(t, IsInvalidWeekday(err))

	_, err = flow.UpdateProfile(context.Background(), &dto.UpdateProfileRequest{
		ProfileID: 1,
		SendTime:  utils.ToPtr("half past nine"),
	}, meta())
	require.Error(t, err)
	assert.True(t, IsInvalidTimeOfDay(err))
}
