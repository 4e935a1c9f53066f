package dto

// EditionStoryDTO represents one snapshotted story inside an edition
type EditionStoryDTO struct {
	Headline      string  `json:"headline"`
	Summary       string  `json:"summary"`
	SourceURL     *string `json:"source_url,omitempty"`
	Category      *string `json:"category,omitempty"`
	ViralityScore float64 `json:"virality_score"`
}

// EditionDTO represents an edition in responses
type EditionDTO struct {
	UUID               string            `json:"uuid"`
	Status             string            `json:"status"`
	Stories            []EditionStoryDTO `json:"stories"`
	ScheduledAt        *string           `json:"scheduled_at,omitempty"`
	CampaignActivityID *string           `json:"campaign_activity_id,omitempty"`
	FailureReason      *string           `json:"failure_reason,omitempty"`
	CreatedAt          string            `json:"created_at"`
	PushedAt           *string           `json:"pushed_at,omitempty"`
	SentAt             *string           `json:"sent_at,omitempty"`
	FailedAt           *string           `json:"failed_at,omitempty"`
}

// GenerateEditionRequest represents the request to generate a draft edition
type GenerateEditionRequest struct {
	ProfileID uint `json:"-"`
}

// GenerateEditionResponse represents the response to edition generation
type GenerateEditionResponse struct {
	Message string     `json:"message"`
	Edition EditionDTO `json:"edition"`
}

// PushEditionRequest represents the request to push a draft edition to the ESP
type PushEditionRequest struct {
	UUID      string `json:"-"`
	ProfileID uint   `json:"-"`
}

// PushEditionResponse represents the response to pushing an edition
type PushEditionResponse struct {
	Message            string `json:"message"`
	CampaignActivityID string `json:"campaign_activity_id"`
	Status             string `json:"status"`
}

// SendPreviewRequest represents the request to send a preview email
type SendPreviewRequest struct {
	UUID      string `json:"-"`
	ProfileID uint   `json:"-"`
}

// SendPreviewResponse represents the response to a preview send. Warning is
// set when the preview failed but the edition remains deliverable.
type SendPreviewResponse struct {
	Message string  `json:"message"`
	Warning *string `json:"warning,omitempty"`
}

// ListEditionsRequest represents the request to list editions
type ListEditionsRequest struct {
	ProfileID uint `json:"-"`
	Page      int  `json:"-"`
	PageSize  int  `json:"-"`
}

// ListEditionsResponse represents the response to listing editions
type ListEditionsResponse struct {
	Message  string       `json:"message"`
	Editions []EditionDTO `json:"editions"`
}

// GetEditionRequest represents the request to fetch one edition
type GetEditionRequest struct {
	UUID      string `json:"-"`
	ProfileID uint   `json:"-"`
}

// GetEditionResponse represents the response to fetching one edition
type GetEditionResponse struct {
	Message string     `json:"message"`
	Edition EditionDTO `json:"edition"`
	HTML    string     `json:"html"`
}
