package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for dashboard access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the time-to-live for dashboard refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Edition pipeline constants
const (
	// DefaultEditionStoryLimit is the maximum number of stories per edition
	DefaultEditionStoryLimit = 10

	// DefaultSendTime is used when a profile has a send weekday but no time-of-day
	DefaultSendTime = "09:00"

	// StoryGenerationRetries is the number of extra attempts against the
	// content collaborator after the first failure
	StoryGenerationRetries = 1

	// StoryGenerationBackoff is the delay before the retry attempt
	StoryGenerationBackoff = 2 * time.Second

	// RefreshLeaseTTL bounds how long a per-profile token refresh lease is held
	RefreshLeaseTTL = 30 * time.Second
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)
