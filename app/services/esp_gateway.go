package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/amirphl/Kusanagi/config"
)

// ErrUnauthorized is returned when the ESP rejects the supplied access token.
// Callers apply a single forced refresh-and-retry on this condition; every
// other failure surfaces as a GatewayError and is not retried automatically.
var ErrUnauthorized = errors.New("esp rejected the access token")

// GatewayError carries an opaque non-2xx ESP response
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("esp returned %d: %s", e.StatusCode, e.Body)
}

// IsGatewayError reports whether err wraps a GatewayError
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// CampaignParams holds the fields needed to create an email campaign
type CampaignParams struct {
	Name        string
	Subject     string
	FromName    string
	FromEmail   string
	ReplyTo     string
	HTMLContent string
}

// ESPGateway wraps the ESP's campaign HTTP API. Every call takes a
// caller-supplied bearer token; the gateway never reads or refreshes
// credentials itself.
type ESPGateway interface {
	// CreateCampaign creates an email campaign and returns the campaign
	// activity identifier used for test sends and scheduling
	CreateCampaign(ctx context.Context, token string, params CampaignParams) (string, error)

	// SendTestEmail sends the campaign as a test message to the recipients
	SendTestEmail(ctx context.Context, token, activityID string, recipients []string) error

	// ScheduleCampaign schedules the campaign activity for delivery at the
	// given instant
	ScheduleCampaign(ctx context.Context, token, activityID string, at time.Time) error
}

// ESPGatewayImpl implements ESPGateway over HTTP
type ESPGatewayImpl struct {
	config *config.ESPConfig
	client *http.Client
}

// NewESPGateway creates a new ESP gateway
func NewESPGateway(cfg *config.ESPConfig) ESPGateway {
	return &ESPGatewayImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// campaignCreateRequest mirrors the ESP's campaign creation payload
type campaignCreateRequest struct {
	Name       string                    `json:"name"`
	Activities []campaignActivityRequest `json:"email_campaign_activities"`
}

type campaignActivityRequest struct {
	FormatType   int    `json:"format_type"`
	FromName     string `json:"from_name"`
	FromEmail    string `json:"from_email"`
	ReplyToEmail string `json:"reply_to_email"`
	Subject      string `json:"subject"`
	HTMLContent  string `json:"html_content"`
}

type campaignCreateResponse struct {
	CampaignID string `json:"campaign_id"`
	Activities []struct {
		CampaignActivityID string `json:"campaign_activity_id"`
	} `json:"campaign_activities"`
}

// CreateCampaign creates a campaign and extracts the primary activity id
func (g *ESPGatewayImpl) CreateCampaign(ctx context.Context, token string, params CampaignParams) (string, error) {
	payload := campaignCreateRequest{
		Name: params.Name,
		Activities: []campaignActivityRequest{
			{
				FormatType:   5,
				FromName:     params.FromName,
				FromEmail:    params.FromEmail,
				ReplyToEmail: params.ReplyTo,
				Subject:      params.Subject,
				HTMLContent:  params.HTMLContent,
			},
		},
	}

	var out campaignCreateResponse
	if err := g.post(ctx, token, "/emails", payload, &out); err != nil {
		return "", err
	}

	if len(out.Activities) > 0 && out.Activities[0].CampaignActivityID != "" {
		return out.Activities[0].CampaignActivityID, nil
	}
	if out.CampaignID != "" {
		return out.CampaignID, nil
	}

	return "", fmt.Errorf("campaign created but no activity id in response")
}

// SendTestEmail sends the campaign activity as a test message
func (g *ESPGatewayImpl) SendTestEmail(ctx context.Context, token, activityID string, recipients []string) error {
	payload := struct {
		EmailAddresses []string `json:"email_addresses"`
	}{
		EmailAddresses: recipients,
	}

	path := fmt.Sprintf("/emails/activities/%s/tests", activityID)
	return g.post(ctx, token, path, payload, nil)
}

// ScheduleCampaign schedules the campaign activity for delivery
func (g *ESPGatewayImpl) ScheduleCampaign(ctx context.Context, token, activityID string, at time.Time) error {
	payload := struct {
		ScheduledDate string `json:"scheduled_date"`
	}{
		ScheduledDate: at.UTC().Format(time.RFC3339),
	}

	path := fmt.Sprintf("/emails/activities/%s/schedules", activityID)
	return g.post(ctx, token, path, payload, nil)
}

func (g *ESPGatewayImpl) post(ctx context.Context, token, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal esp request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create esp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("esp request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &GatewayError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(bodyBytes)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode esp response: %w", err)
		}
	}

	return nil
}

// MockESPGateway implements ESPGateway for testing. Responses is consumed one
// entry per call so tests can script an unauthorized-then-success sequence.
type MockESPGateway struct {
	Responses      []error
	CampaignID     string
	CreateCalls    int
	TestSendCalls  int
	ScheduleCalls  int
	LastParams     CampaignParams
	LastRecipients []string
}

// NewMockESPGateway creates a mock gateway returning the given campaign id
func NewMockESPGateway(campaignID string) *MockESPGateway {
	return &MockESPGateway{CampaignID: campaignID}
}

func (m *MockESPGateway) nextErr() error {
	if len(m.Responses) == 0 {
		return nil
	}
	err := m.Responses[0]
	m.Responses = m.Responses[1:]
	return err
}

func (m *MockESPGateway) CreateCampaign(ctx context.Context, token string, params CampaignParams) (string, error) {
	m.CreateCalls++
	m.LastParams = params
	if err := m.nextErr(); err != nil {
		return "", err
	}
	return m.CampaignID, nil
}

func (m *MockESPGateway) SendTestEmail(ctx context.Context, token, activityID string, recipients []string) error {
	m.TestSendCalls++
	m.LastRecipients = recipients
	return m.nextErr()
}

func (m *MockESPGateway) ScheduleCampaign(ctx context.Context, token, activityID string, at time.Time) error {
	m.ScheduleCalls++
	return m.nextErr()
}
