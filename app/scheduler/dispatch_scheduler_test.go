package scheduler

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/amirphl/Kusanagi/app/services"
	businessflow "github.com/amirphl/Kusanagi/business_flow"
	"github.com/amirphl/Kusanagi/models"
	apptest "github.com/amirphl/Kusanagi/testing"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchFixture struct {
	scheduler   *DispatchScheduler
	profileRepo *apptest.FakeProfileRepository
	editionRepo *apptest.FakeEditionRepository
	auditRepo   *apptest.FakeAuditLogRepository
	gateway     *services.MockESPGateway
	authClient  *services.MockESPAuthClient
}

func newDispatchFixture(profile *models.Profile, editions ...*models.Edition) *dispatchFixture {
	f := &dispatchFixture{
		profileRepo: apptest.NewFakeProfileRepository(profile),
		editionRepo: apptest.NewFakeEditionRepository(editions...),
		auditRepo:   apptest.NewFakeAuditLogRepository(),
		gateway:     services.NewMockESPGateway("activity-123"),
		authClient:  services.NewMockESPAuthClient(&services.TokenPair{AccessToken: "fresh-access", RefreshToken: "fresh-refresh"}),
	}

	refresher := businessflow.NewTokenRefresher(f.profileRepo, f.authClient, businessflow.NewLocalRefreshLocker(), f.auditRepo)
	f.scheduler = &DispatchScheduler{
		profileRepo: f.profileRepo,
		editionRepo: f.editionRepo,
		auditRepo:   f.auditRepo,
		refresher:   refresher,
		gateway:     f.gateway,
		logger:      log.New(io.Discard, "", 0),
		interval:    time.Minute,
		batchSize:   50,
	}
	return f
}

func duePushedEdition(profileID uint) *models.Edition {
	e := apptest.NewPushedEdition(profileID)
	past := utils.UTCNow().Add(-time.Hour)
	e.ScheduledAt = &past
	return e
}

func TestDispatchEdition_MarksSent(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	edition := duePushedEdition(1)
	f := newDispatchFixture(profile, edition)

	err := f.scheduler.dispatchEdition(context.Background(), edition)
	require.NoError(t, err)
	assert.Equal(t, 1, f.gateway.ScheduleCalls)

	stored, err := f.editionRepo.ByUUID(context.Background(), edition.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, models.EditionStatusSent, stored.Status)
	assert.NotNil(t, stored.SentAt)

	assert.Contains(t, f.auditRepo.ActionsSeen(), models.AuditActionEditionDispatched)
}

func TestDispatchEdition_LateSweepNudgesSendTimeForward(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	edition := duePushedEdition(1)
	f := newDispatchFixture(profile, edition)

	got := f.scheduler.sendInstant(edition)
	assert.True(t, got.After(utils.UTCNow()), "past schedules must move into the future")

	future := utils.UTCNow().Add(2 * time.Hour)
	edition.ScheduledAt = &future
	assert.Equal(t, future, f.scheduler.sendInstant(edition))
}

func TestDispatchEdition_UnauthorizedOnceThenSuccess(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	edition := duePushedEdition(1)
	f := newDispatchFixture(profile, edition)
	f.gateway.Responses = []error{services.ErrUnauthorized}

	err := f.scheduler.dispatchEdition(context.Background(), edition)
	require.NoError(t, err)
	assert.Equal(t, 2, f.gateway.ScheduleCalls)

	stored, err := f.editionRepo.ByUUID(context.Background(), edition.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, models.EditionStatusSent, stored.Status)
}

func TestDispatchEdition_UnauthorizedTwiceIsTerminal(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	edition := duePushedEdition(1)
	f := newDispatchFixture(profile, edition)
	f.gateway.Responses = []error{services.ErrUnauthorized, services.ErrUnauthorized}

	err := f.scheduler.dispatchEdition(context.Background(), edition)
	require.Error(t, err)
	assert.Equal(t, 2, f.gateway.ScheduleCalls)

	stored, lookupErr := f.editionRepo.ByUUID(context.Background(), edition.UUID.String())
	require.NoError(t, lookupErr)
	assert.Equal(t, models.EditionStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, models.EditionFailureAuthRejected, *stored.FailureReason)
}

func TestDispatchEdition_TransientGatewayFailureLeavesRetryable(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)
	edition := duePushedEdition(1)
	f := newDispatchFixture(profile, edition)
	f.gateway.Responses = []error{&services.GatewayError{StatusCode: 502, Body: "bad gateway"}}

	err := f.scheduler.dispatchEdition(context.Background(), edition)
	require.Error(t, err)

	stored, lookupErr := f.editionRepo.ByUUID(context.Background(), edition.UUID.String())
	require.NoError(t, lookupErr)
	assert.Equal(t, models.EditionStatusPreviewSent, stored.Status)

	// The next sweep retries and succeeds
	err = f.scheduler.dispatchEdition(context.Background(), stored)
	require.NoError(t, err)
}

func TestDispatchEdition_DisconnectedProfileIsRetriedLater(t *testing.T) {
	profile := apptest.NewDisconnectedProfile(1)
	edition := duePushedEdition(1)
	f := newDispatchFixture(profile, edition)

	err := f.scheduler.dispatchEdition(context.Background(), edition)
	require.Error(t, err)
	assert.Equal(t, 0, f.gateway.ScheduleCalls)

	// The edition stays preview_sent; the profile may reconnect
	stored, lookupErr := f.editionRepo.ByUUID(context.Background(), edition.UUID.String())
	require.NoError(t, lookupErr)
	assert.Equal(t, models.EditionStatusPreviewSent, stored.Status)
}

func TestRunOnce_OnlyDispatchesDueEditions(t *testing.T) {
	profile := apptest.NewConnectedProfile(1)

	due := duePushedEdition(1)
	notDue := apptest.NewPushedEdition(1)
	draft := apptest.NewDraftEdition(1)
	past := utils.UTCNow().Add(-time.Hour)
	draft.ScheduledAt = &past

	f := newDispatchFixture(profile, due, notDue, draft)

	listed, err := f.editionRepo.ListDueForDispatch(context.Background(), utils.UTCNow(), 50)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, due.UUID, listed[0].UUID)
}
