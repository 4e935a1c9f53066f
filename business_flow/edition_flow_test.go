package businessflow

import (
	"context"
	"testing"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/app/services"
	"github.com/amirphl/Kusanagi/models"
	apptest "github.com/amirphl/Kusanagi/testing"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type editionFlowFixture struct {
	flow        EditionFlow
	profileRepo *apptest.FakeProfileRepository
	storyRepo   *apptest.FakeSavedStoryRepository
	editionRepo *apptest.FakeEditionRepository
	auditRepo   *apptest.FakeAuditLogRepository
	gateway     *services.MockESPGateway
	authClient  *services.MockESPAuthClient
	storyGen    *services.MockStoryGenerationService
}

func newEditionFlowFixture(profile *models.Profile, stories []*models.SavedStory, editions []*models.Edition) *editionFlowFixture {
	f := &editionFlowFixture{
		profileRepo: apptest.NewFakeProfileRepository(profile),
		storyRepo:   apptest.NewFakeSavedStoryRepository(stories...),
		editionRepo: apptest.NewFakeEditionRepository(editions...),
		auditRepo:   apptest.NewFakeAuditLogRepository(),
		gateway:     services.NewMockESPGateway("activity-123"),
		authClient:  services.NewMockESPAuthClient(&services.TokenPair{AccessToken: "fresh-access", RefreshToken: "fresh-refresh"}),
		storyGen:    services.NewMockStoryGenerationService(nil),
	}

	refresher := NewTokenRefresher(f.profileRepo, f.authClient, NewLocalRefreshLocker(), f.auditRepo)
	f.flow = NewEditionFlow(
		f.profileRepo,
		f.storyRepo,
		f.editionRepo,
		f.auditRepo,
		refresher,
		f.gateway,
		services.NewEditionRenderer(),
		f.storyGen,
		nil,
	)
	return f
}

func meta() *ClientMetadata {
	return NewClientMetadata("203.0.113.9", "test-agent")
}

func TestGenerateEdition_SelectsMostViralUnconsumed(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	low := apptest.NewStory(1, "Low score story", 0.2)
	high := apptest.NewStory(1, "High score story", 0.9)
	consumed := apptest.NewStory(1, "Already used story", 0.99)
	consumed.ConsumedByEditionID = utils.ToPtr(uint(7))

	f := newEditionFlowFixture(profile, []*models.SavedStory{low, high, consumed}, nil)
	f.storyGen.Stories = []services.GeneratedStory{
		{Headline: "Generated story", Summary: "A fresh summary", ViralityScore: 0.5},
		{Headline: "", Summary: "Missing headline, skipped"},
	}

	resp, err := f.flow.GenerateEdition(context.Background(), &dto.GenerateEditionRequest{ProfileID: 1}, meta())
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, models.EditionStatusDraft.String(), resp.Edition.Status)
	require.Len(t, resp.Edition.Stories, 3)

	// Snapshot is ordered by virality, and the consumed story never appears
	assert.Equal(t, "High score story", resp.Edition.Stories[0].Headline)
	assert.Equal(t, "Generated story", resp.Edition.Stories[1].Headline)
	assert.Equal(t, "Low score story", resp.Edition.Stories[2].Headline)

	// Monday 09:00 preference yields a schedule
	require.NotNil(t, resp.Edition.ScheduledAt)

	stored, err := f.editionRepo.ByUUID(context.Background(), resp.Edition.UUID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.EditionStatusDraft, stored.Status)
	assert.NotEmpty(t, stored.HTML)
	require.NotNil(t, stored.ScheduledAt)
	assert.True(t, stored.ScheduledAt.After(utils.UTCNow()))

	// Generation must not consume anything; consumption waits for the push
	eligible, err := f.storyRepo.ListEligible(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Len(t, eligible, 3)

	assert.Contains(t, f.auditRepo.ActionsSeen(), models.AuditActionEditionGenerated)
}

func TestGenerateEdition_NoSchedulePreference(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	profile.SendWeekday = nil
	profile.SendTime = nil

	f := newEditionFlowFixture(profile, []*models.SavedStory{apptest.NewStory(1, "Solo story", 0.4)}, nil)

	resp, err := f.flow.GenerateEdition(context.Background(), &dto.GenerateEditionRequest{ProfileID: 1}, meta())
	require.NoError(t, err)
	assert.Nil(t, resp.Edition.ScheduledAt)
}

func TestGenerateEdition_StoryGenerationFailure(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	f := newEditionFlowFixture(profile, nil, nil)
	f.storyGen.Errs = []error{assert.AnError, assert.AnError}

	_, err := f.flow.GenerateEdition(context.Background(), &dto.GenerateEditionRequest{ProfileID: 1}, meta())
	require.Error(t, err)
	assert.True(t, IsStoryGenerationFailed(err))

	// First attempt plus the single retry
	assert.Equal(t, 2, f.storyGen.Calls)
	assert.Contains(t, f.auditRepo.ActionsSeen(), models.AuditActionEditionGenerationFailed)
}

func TestGenerateEdition_RetriesOnceThenSucceeds(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	f := newEditionFlowFixture(profile, nil, nil)
	f.storyGen.Errs = []error{assert.AnError}
	f.storyGen.Stories = []services.GeneratedStory{
		{Headline: "Second attempt story", Summary: "Recovered", ViralityScore: 0.7},
	}

	resp, err := f.flow.GenerateEdition(context.Background(), &dto.GenerateEditionRequest{ProfileID: 1}, meta())
	require.NoError(t, err)
	assert.Equal(t, 2, f.storyGen.Calls)
	require.Len(t, resp.Edition.Stories, 1)
	assert.Equal(t, "Second attempt story", resp.Edition.Stories[0].Headline)
}

func TestPushEdition_Success(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	s1 := apptest.NewStory(1, "First story", 0.9)
	s2 := apptest.NewStory(1, "Second story", 0.5)
	f := newEditionFlowFixture(profile, []*models.SavedStory{s1, s2}, nil)

	edition := apptest.NewDraftEdition(1, s1, s2)
	require.NoError(t, f.editionRepo.Save(context.Background(), edition))

	resp, err := f.flow.PushEdition(context.Background(), &dto.PushEditionRequest{UUID: edition.UUID.String(), ProfileID: 1}, meta())
	require.NoError(t, err)
	assert.Equal(t, "activity-123", resp.CampaignActivityID)
	assert.Equal(t, models.EditionStatusPreviewSent.String(), resp.Status)
	assert.Equal(t, 1, f.gateway.CreateCalls)

	// Campaign payload carries the profile's identity and the first headline
	assert.Equal(t, "First story", f.gateway.LastParams.Subject)
	assert.Equal(t, profile.DisplayName, f.gateway.LastParams.FromName)
	assert.Equal(t, profile.Email, f.gateway.LastParams.FromEmail)

	stored, err := f.editionRepo.ByUUID(context.Background(), edition.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, models.EditionStatusPreviewSent, stored.Status)
	require.NotNil(t, stored.CampaignActivityID)
	assert.Equal(t, "activity-123", *stored.CampaignActivityID)
	assert.NotNil(t, stored.PushedAt)

	// Both snapshotted stories are consumed by this edition
	for _, id := range []uint{s1.ID, s2.ID} {
		story, err := f.storyRepo.ByID(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, story.ConsumedByEditionID)
		assert.Equal(t, stored.ID, *story.ConsumedByEditionID)
	}

	assert.Contains(t, f.auditRepo.ActionsSeen(), models.AuditActionEditionPushed)
}

func TestPushEdition_DoublePushCreatesNoSecondCampaign(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	s1 := apptest.NewStory(1, "Only story", 0.8)
	f := newEditionFlowFixture(profile, []*models.SavedStory{s1}, nil)

	edition := apptest.NewDraftEdition(1, s1)
	require.NoError(t, f.editionRepo.Save(context.Background(), edition))

	req := &dto.PushEditionRequest{UUID: edition.UUID.String(), ProfileID: 1}

	_, err := f.flow.PushEdition(context.Background(), req, meta())
	require.NoError(t, err)

	_, err = f.flow.PushEdition(context.Background(), req, meta())
	require.Error(t, err)
	assert.True(t, IsInvalidEditionState(err))
	assert.Equal(t, 1, f.gateway.CreateCalls)
}

func TestPushEdition_DisconnectedProfileNeverCallsESP(t *testing.T) {
	profile := apptest.NewDisconnectedProfile(1)
	f := newEditionFlowFixture(profile, nil, nil)

	edition := apptest.NewDraftEdition(1)
	require.NoError(t, f.editionRepo.Save(context.Background(), edition))

	_, err := f.flow.PushEdition(context.Background(), &dto.PushEditionRequest{UUID: edition.UUID.String(), ProfileID: 1}, meta())
	require.Error(t, err)
	assert.True(t, IsNotConnected(err))
	assert.Equal(t, 0, f.gateway.CreateCalls)
	assert.Equal(t, 0, f.authClient.RefreshCalls)
}

func TestPushEdition_UnauthorizedOnceThenSuccess(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	s1 := apptest.NewStory(1, "Retry story", 0.6)
	f := newEditionFlowFixture(profile, []*models.SavedStory{s1}, nil)
	f.gateway.Responses = []error{services.ErrUnauthorized}

	edition := apptest.NewDraftEdition(1, s1)
	require.NoError(t, f.editionRepo.Save(context.Background(), edition))

	resp, err := f.flow.PushEdition(context.Background(), &dto.PushEditionRequest{UUID: edition.UUID.String(), ProfileID: 1}, meta())
	require.NoError(t, err)
	assert.Equal(t, "activity-123", resp.CampaignActivityID)

	// Initial attempt plus exactly one forced retry
	assert.Equal(t, 2, f.gateway.CreateCalls)
	assert.Equal(t, 2, f.authClient.RefreshCalls)

	stored, err := f.editionRepo.ByUUID(context.Background(), edition.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, models.EditionStatusPreviewSent, stored.Status)
}

func TestPushEdition_UnauthorizedTwiceIsTerminal(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	f := newEditionFlowFixture(profile, nil, nil)
	f.gateway.Responses = []error{services.ErrUnauthorized, services.ErrUnauthorized}

	edition := apptest.NewDraftEdition(1)
	require.NoError(t, f.editionRepo.Save(context.Background(), edition))

	_, err := f.flow.PushEdition(context.Background(), &dto.PushEditionRequest{UUID: edition.UUID.String(), ProfileID: 1}, meta())
	require.Error(t, err)
	assert.True(t, IsAuthRejected(err))

	// No third call after the second rejection
	assert.Equal(t, 2, f.gateway.CreateCalls)

	stored, err := f.editionRepo.ByUUID(context.Background(), edition.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, models.EditionStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, models.EditionFailureAuthRejected, *stored.FailureReason)
	assert.NotNil(t, stored.FailedAt)
}

func TestPushEdition_GatewayFailureLeavesDraftRetryable(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	s1 := apptest.NewStory(1, "Transient story", 0.6)
	f := newEditionFlowFixture(profile, []*models.SavedStory{s1}, nil)
	f.gateway.Responses = []error{&services.GatewayError{StatusCode: 503, Body: "maintenance"}}

	edition := apptest.NewDraftEdition(1, s1)
	require.NoError(t, f.editionRepo.Save(context.Background(), edition))

	req := &dto.PushEditionRequest{UUID: edition.UUID.String(), ProfileID: 1}

	_, err := f.flow.PushEdition(context.Background(), req, meta())
	require.Error(t, err)
	assert.False(t, IsAuthRejected(err))

	stored, err := f.editionRepo.ByUUID(context.Background(), edition.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, models.EditionStatusDraft, stored.Status)

	// The same edition pushes cleanly once the outage clears
	resp, err := f.flow.PushEdition(context.Background(), req, meta())
	require.NoError(t, err)
	assert.Equal(t, "activity-123", resp.CampaignActivityID)
}

func TestPushEdition_ConsumptionFailureDoesNotFailPush(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	s1 := apptest.NewStory(1, "Sticky story", 0.9)
	s2 := apptest.NewStory(1, "Smooth story", 0.5)
	f := newEditionFlowFixture(profile, []*models.SavedStory{s1, s2}, nil)
	f.storyRepo.MarkConsumedErrs = []error{assert.AnError, nil}

	edition := apptest.NewDraftEdition(1, s1, s2)
	require.NoError(t, f.editionRepo.Save(context.Background(), edition))

	resp, err := f.flow.PushEdition(context.Background(), &dto.PushEditionRequest{UUID: edition.UUID.String(), ProfileID: 1}, meta())
	require.NoError(t, err)
	assert.Equal(t, models.EditionStatusPreviewSent.String(), resp.Status)

	// The second story was still consumed despite the first one's failure
	second, err := f.storyRepo.ByID(context.Background(), s2.ID)
	require.NoError(t, err)
	assert.NotNil(t, second.ConsumedByEditionID)

	first, err := f.storyRepo.ByID(context.Background(), s1.ID)
	require.NoError(t, err)
	assert.Nil(t, first.ConsumedByEditionID)
}

func TestPushEdition_NotFoundAndAccessDenied(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	other := apptest.NewConnectedProfile(2)
	f := newEditionFlowFixture(profile, nil, nil)
	require.NoError(t, f.profileRepo.Save(context.Background(), other))

	edition := apptest.NewDraftEdition(1)
	require.NoError(t, f.editionRepo.Save(context.Background(), edition))

	_, err := f.flow.PushEdition(context.Background(), &dto.PushEditionRequest{UUID: "00000000-0000-0000-0000-000000000000", ProfileID: 1}, meta())
	assert.True(t, IsEditionNotFound(err))

	_, err = f.flow.PushEdition(context.Background(), &dto.PushEditionRequest{UUID: edition.UUID.String(), ProfileID: 2}, meta())
	assert.True(t, IsEditionAccessDenied(err))
	assert.Equal(t, 0, f.gateway.CreateCalls)
}

func TestSendPreview_Success(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	f := newEditionFlowFixture(profile, nil, nil)

	edition := apptest.NewPushedEdition(1)
	require.NoError(t, f.editionRepo.Save(context.Background(), edition))

	resp, err := f.flow.SendPreview(context.Background(), &dto.SendPreviewRequest{UUID: edition.UUID.String(), ProfileID: 1}, meta())
	require.NoError(t, err)
	assert.Nil(t, resp.Warning)
	assert.Equal(t, 1, f.gateway.TestSendCalls)
	assert.Equal(t, []string{profile.Email}, f.gateway.LastRecipients)
	assert.Contains(t, f.auditRepo.ActionsSeen(), models.AuditActionEditionPreviewSent)
}

func TestSendPreview_RequiresPush(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	f := newEditionFlowFixture(profile, nil, nil)

	edition := apptest.NewDraftEdition(1)
	require.NoError(t, f.editionRepo.Save(context.Background(), edition))

	_, err := f.flow.SendPreview(context.Background(), &dto.SendPreviewRequest{UUID: edition.UUID.String(), ProfileID: 1}, meta())
	require.Error(t, err)
	assert.True(t, IsEditionNotPushed(err))
	assert.Equal(t, 0, f.gateway.TestSendCalls)
}

func TestSendPreview_FailureIsNonFatal(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	f := newEditionFlowFixture(profile, nil, nil)
	f.gateway.Responses = []error{&services.GatewayError{StatusCode: 500, Body: "boom"}}

	edition := apptest.NewPushedEdition(1)
	require.NoError(t, f.editionRepo.Save(context.Background(), edition))

	resp, err := f.flow.SendPreview(context.Background(), &dto.SendPreviewRequest{UUID: edition.UUID.String(), ProfileID: 1}, meta())
	require.NoError(t, err)
	require.NotNil(t, resp.Warning)
	assert.Contains(t, *resp.Warning, "boom")

	// The edition stays deliverable
	stored, err := f.editionRepo.ByUUID(context.Background(), edition.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, models.EditionStatusPreviewSent, stored.Status)

	assert.Contains(t, f.auditRepo.ActionsSeen(), models.AuditActionEditionPreviewFailed)
}

func TestSendPreview_RetriesOnceOnUnauthorized(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	f := newEditionFlowFixture(profile, nil, nil)
	f.gateway.Responses = []error{services.ErrUnauthorized}

	edition := apptest.NewPushedEdition(1)
	require.NoError(t, f.editionRepo.Save(context.Background(), edition))

	resp, err := f.flow.SendPreview(context.Background(), &dto.SendPreviewRequest{UUID: edition.UUID.String(), ProfileID: 1}, meta())
	require.NoError(t, err)
	assert.Nil(t, resp.Warning)
	assert.Equal(t, 2, f.gateway.TestSendCalls)
}

func TestListEditions_Pagination(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	f := newEditionFlowFixture(profile, nil, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.editionRepo.Save(context.Background(), apptest.NewDraftEdition(1)))
	}

	resp, err := f.flow.ListEditions(context.Background(), &dto.ListEditionsRequest{ProfileID: 1, Page: 1, PageSize: 2}, meta())
	require.NoError(t, err)
	assert.Len(t, resp.Editions, 2)

	resp, err = f.flow.ListEditions(context.Background(), &dto.ListEditionsRequest{ProfileID: 1, Page: 2, PageSize: 2}, meta())
	require.NoError(t, err)
	assert.Len(t, resp.Editions, 1)

	_, err = f.flow.ListEditions(context.Background(), &dto.ListEditionsRequest{ProfileID: 1, Page: 0, PageSize: 2}, meta())
	assert.True(t, IsInvalidPage(err))

	_, err = f.flow.ListEditions(context.Background(), &dto.ListEditionsRequest{ProfileID: 1, Page: 1, PageSize: 500}, meta())
	assert.True(t, IsInvalidPageSize(err))
}

func TestGetEdition_IncludesHTML(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	f := newEditionFlowFixture(profile, nil, nil)

	edition := apptest.NewDraftEdition(1)
	require.NoError(t, f.editionRepo.Save(context.Background(), edition))

	resp, err := f.flow.GetEdition(context.Background(), &dto.GetEditionRequest{UUID: edition.UUID.String(), ProfileID: 1}, meta())
	require.NoError(t, err)
	assert.Equal(t, edition.HTML, resp.HTML)
	assert.Equal(t, edition.UUID.String(), resp.Edition.UUID)
}
