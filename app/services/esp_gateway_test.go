package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/Kusanagi/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatewayForServer(srv *httptest.Server) ESPGateway {
	return NewESPGateway(&config.ESPConfig{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	})
}

func TestCreateCampaign_ParsesActivityID(t *testing.T) {
	var gotAuth, gotPath string
	var gotPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"campaign_id":"c-1","campaign_activities":[{"campaign_activity_id":"a-99"}]}`))
	}))
	defer srv.Close()

	gw := gatewayForServer(srv)
	activityID, err := gw.CreateCampaign(context.Background(), "tok-1", CampaignParams{
		Name:        "edition-abc",
		Subject:     "Housing inventory up",
		FromName:    "Jordan",
		FromEmail:   "jordan@example.com",
		ReplyTo:     "jordan@example.com",
		HTMLContent: "<html></html>",
	})
	require.NoError(t, err)
	assert.Equal(t, "a-99", activityID)

	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "/emails", gotPath)
	assert.Equal(t, "edition-abc", gotPayload["name"])
}

func TestCreateCampaign_FallsBackToCampaignID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"campaign_id":"c-7","campaign_activities":[]}`))
	}))
	defer srv.Close()

	activityID, err := gatewayForServer(srv).CreateCampaign(context.Background(), "tok", CampaignParams{})
	require.NoError(t, err)
	assert.Equal(t, "c-7", activityID)
}

func TestCreateCampaign_UnauthorizedMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := gatewayForServer(srv).CreateCampaign(context.Background(), "stale", CampaignParams{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateCampaign_NonAuthFailureCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance window"))
	}))
	defer srv.Close()

	_, err := gatewayForServer(srv).CreateCampaign(context.Background(), "tok", CampaignParams{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
	assert.True(t, IsGatewayError(err))

	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, http.StatusServiceUnavailable, ge.StatusCode)
	assert.Equal(t, "maintenance window", ge.Body)
}

func TestSendTestEmail_PostsRecipients(t *testing.T) {
	var gotPath string
	var gotPayload struct {
		EmailAddresses []string `json:"email_addresses"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := gatewayForServer(srv).SendTestEmail(context.Background(), "tok", "a-99", []string{"agent@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "/emails/activities/a-99/tests", gotPath)
	assert.Equal(t, []string{"agent@example.com"}, gotPayload.EmailAddresses)
}

func TestScheduleCampaign_SendsUTCInstant(t *testing.T) {
	var gotPath string
	var gotPayload struct {
		ScheduledDate string `json:"scheduled_date"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
	}))
	defer srv.Close()

	at := time.Date(2025, 3, 17, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	err := gatewayForServer(srv).ScheduleCampaign(context.Background(), "tok", "a-99", at)
	require.NoError(t, err)
	assert.Equal(t, "/emails/activities/a-99/schedules", gotPath)
	assert.Equal(t, "2025-03-17T08:00:00Z", gotPayload.ScheduledDate)
}
