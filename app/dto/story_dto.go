package dto

// StoryDTO represents a saved story in responses
type StoryDTO struct {
	UUID          string  `json:"uuid"`
	Headline      string  `json:"headline"`
	Summary       string  `json:"summary"`
	SourceURL     *string `json:"source_url,omitempty"`
	Category      *string `json:"category,omitempty"`
	ViralityScore float64 `json:"virality_score"`
	Consumed      bool    `json:"consumed"`
	CreatedAt     string  `json:"created_at"`
}

// GenerateStoriesRequest represents the request to refresh the story pool from
// the content-generation collaborator
type GenerateStoriesRequest struct {
	ProfileID uint `json:"-"`
}

// GenerateStoriesResponse represents the response to story generation
type GenerateStoriesResponse struct {
	Message string     `json:"message"`
	Stories []StoryDTO `json:"stories"`
}

// SaveStoryRequest represents the request to save a curated story
type SaveStoryRequest struct {
	ProfileID     uint    `json:"-"`
	Headline      string  `json:"headline" validate:"required,min=1,max=512"`
	Summary       string  `json:"summary" validate:"required,min=1"`
	SourceURL     *string `json:"source_url,omitempty" validate:"omitempty,url"`
	Category      *string `json:"category,omitempty" validate:"omitempty,max=128"`
	ViralityScore float64 `json:"virality_score" validate:"gte=0"`
}

// SaveStoryResponse represents the response to saving a story
type SaveStoryResponse struct {
	Message string   `json:"message"`
	Story   StoryDTO `json:"story"`
}

// ListStoriesRequest represents the request to list saved stories
type ListStoriesRequest struct {
	ProfileID      uint `json:"-"`
	OnlyUnconsumed bool `json:"-"`
	Page           int  `json:"-"`
	PageSize       int  `json:"-"`
}

// ListStoriesResponse represents the response to listing saved stories
type ListStoriesResponse struct {
	Message string     `json:"message"`
	Stories []StoryDTO `json:"stories"`
}
