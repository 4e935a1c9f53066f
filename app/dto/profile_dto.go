package dto

// GetProfileResponse represents a profile in responses
type GetProfileResponse struct {
	UUID             string   `json:"uuid"`
	DisplayName      string   `json:"display_name"`
	OrganizationName *string  `json:"organization_name,omitempty"`
	Phone            *string  `json:"phone,omitempty"`
	Email            string   `json:"email"`
	HeadshotURL      *string  `json:"headshot_url,omitempty"`
	LogoURL          *string  `json:"logo_url,omitempty"`
	AccentColor      *string  `json:"accent_color,omitempty"`
	Topics           []string `json:"topics,omitempty"`
	SendWeekday      *string  `json:"send_weekday,omitempty"`
	SendTime         *string  `json:"send_time,omitempty"`
	ESPConnected     bool     `json:"esp_connected"`
	CreatedAt        string   `json:"created_at"`
}

// UpdateProfileRequest represents the request to update branding and delivery
// preference. Credential fields are not updatable through this surface.
type UpdateProfileRequest struct {
	ProfileID        uint     `json:"-"`
	DisplayName      *string  `json:"display_name,omitempty" validate:"omitempty,min=1,max=255"`
	OrganizationName *string  `json:"organization_name,omitempty" validate:"omitempty,max=255"`
	Phone            *string  `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email            *string  `json:"email,omitempty" validate:"omitempty,email"`
	HeadshotURL      *string  `json:"headshot_url,omitempty" validate:"omitempty,url"`
	LogoURL          *string  `json:"logo_url,omitempty" validate:"omitempty,url"`
	AccentColor      *string  `json:"accent_color,omitempty" validate:"omitempty,max=16"`
	Topics           []string `json:"topics,omitempty" validate:"omitempty,max=20,dive,min=1,max=128"`
	SendWeekday      *string  `json:"send_weekday,omitempty" validate:"omitempty,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	SendTime         *string  `json:"send_time,omitempty" validate:"omitempty,len=5"`
}

// UpdateProfileResponse represents the response to a profile update
type UpdateProfileResponse struct {
	Message string             `json:"message"`
	Profile GetProfileResponse `json:"profile"`
}
