// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/Kusanagi/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// ProfileRepository defines operations for agent profiles. Credential columns
// are written only through the dedicated credential methods so that every
// mutation goes through the token refresher's serialization discipline.
type ProfileRepository interface {
	Repository[models.Profile, models.ProfileFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Profile, error)
	ByEmail(ctx context.Context, email string) (*models.Profile, error)
	Update(ctx context.Context, profile models.Profile) error

	// UpdateCredentialCAS persists a new token pair only if the stored capture
	// timestamp still equals prevCapturedAt. Returns false when another writer
	// got there first.
	UpdateCredentialCAS(ctx context.Context, profileID uint, prevCapturedAt *time.Time, accessToken, refreshToken string, capturedAt time.Time) (bool, error)

	// ClearCredential removes the stored token pair (disconnect)
	ClearCredential(ctx context.Context, profileID uint) error
}

// SavedStoryRepository defines operations for curated stories
type SavedStoryRepository interface {
	Repository[models.SavedStory, models.SavedStoryFilter]
	ByUUID(ctx context.Context, uuid string) (*models.SavedStory, error)
	ListByProfile(ctx context.Context, profileID uint, limit, offset int) ([]*models.SavedStory, error)

	// ListEligible returns unconsumed stories for the profile ordered by
	// virality score descending, truncated to limit
	ListEligible(ctx context.Context, profileID uint, limit int) ([]*models.SavedStory, error)

	// Upsert inserts the story or, when a row with the same (profile,
	// headline) exists, overwrites its mutable fields
	Upsert(ctx context.Context, story *models.SavedStory) error

	// MarkConsumed stamps a single story with the edition that used it.
	// Atomic per story; already-consumed stories are left untouched.
	MarkConsumed(ctx context.Context, storyID, editionID uint) error
}

// EditionRepository defines operations for editions
type EditionRepository interface {
	Repository[models.Edition, models.EditionFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Edition, error)
	ByProfileID(ctx context.Context, profileID uint, limit, offset int) ([]*models.Edition, error)
	Update(ctx context.Context, edition models.Edition) error

	// UpdateStatusFrom transitions the edition from an expected status,
	// applying extra column updates in the same statement. Returns false when
	// the edition was not in the expected status (lost race or caller error).
	UpdateStatusFrom(ctx context.Context, id uint, from, to models.EditionStatus, extra map[string]any) (bool, error)

	// ListDueForDispatch returns preview_sent editions whose scheduled send
	// time falls at or before the given instant
	ListDueForDispatch(ctx context.Context, before time.Time, limit int) ([]*models.Edition, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByProfile(ctx context.Context, profileID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
	ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}
