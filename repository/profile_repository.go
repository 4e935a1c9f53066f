package repository

import (
	"context"
	"time"

	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
	"gorm.io/gorm"
)

// ProfileRepositoryImpl implements the ProfileRepository interface
type ProfileRepositoryImpl struct {
	*BaseRepository[models.Profile, models.ProfileFilter]
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &ProfileRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Profile, models.ProfileFilter](db),
	}
}

// ByUUID retrieves a profile by UUID
func (r *ProfileRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Profile, error) {
	parsedUUID, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	filter := models.ProfileFilter{UUID: &parsedUUID}
	profiles, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}

	if len(profiles) == 0 {
		return nil, nil
	}

	return profiles[0], nil
}

// ByEmail retrieves a profile by email
func (r *ProfileRepositoryImpl) ByEmail(ctx context.Context, email string) (*models.Profile, error) {
	filter := models.ProfileFilter{Email: &email}
	profiles, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}

	if len(profiles) == 0 {
		return nil, nil
	}

	return profiles[0], nil
}

// Update updates a profile's branding and preference columns. Credential
// columns are excluded; they move only through UpdateCredentialCAS and
// ClearCredential.
func (r *ProfileRepositoryImpl) Update(ctx context.Context, profile models.Profile) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.Profile{}).
		Where("id = ?", profile.ID).
		Omit("esp_access_token", "esp_refresh_token", "esp_token_captured_at").
		Updates(map[string]any{
			"display_name":      profile.DisplayName,
			"organization_name": profile.OrganizationName,
			"phone":             profile.Phone,
			"email":             profile.Email,
			"headshot_url":      profile.HeadshotURL,
			"logo_url":          profile.LogoURL,
			"accent_color":      profile.AccentColor,
			"topics":            profile.Topics,
			"send_weekday":      profile.SendWeekday,
			"send_time":         profile.SendTime,
			"is_active":         profile.IsActive,
			"updated_at":        utils.UTCNow(),
		}).Error
	if err != nil {
		return err
	}

	return nil
}

// UpdateCredentialCAS persists a token pair with an optimistic check on the
// previous capture timestamp. IS NOT DISTINCT FROM makes the predicate hold
// for the never-captured (NULL) case too.
func (r *ProfileRepositoryImpl) UpdateCredentialCAS(ctx context.Context, profileID uint, prevCapturedAt *time.Time, accessToken, refreshToken string, capturedAt time.Time) (bool, error) {
	db := r.getDB(ctx)

	res := db.Model(&models.Profile{}).
		Where("id = ?", profileID).
		Where("esp_token_captured_at IS NOT DISTINCT FROM ?", prevCapturedAt).
		Updates(map[string]any{
			"esp_access_token":      accessToken,
			"esp_refresh_token":     refreshToken,
			"esp_token_captured_at": capturedAt,
			"updated_at":            utils.UTCNow(),
		})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// ClearCredential removes the stored ESP token pair
func (r *ProfileRepositoryImpl) ClearCredential(ctx context.Context, profileID uint) error {
	db := r.getDB(ctx)

	return db.Model(&models.Profile{}).
		Where("id = ?", profileID).
		Updates(map[string]any{
			"esp_access_token":      nil,
			"esp_refresh_token":     nil,
			"esp_token_captured_at": nil,
			"updated_at":            utils.UTCNow(),
		}).Error
}

// ByFilter retrieves profiles based on filter criteria
func (r *ProfileRepositoryImpl) ByFilter(ctx context.Context, filter models.ProfileFilter, orderBy string, limit, offset int) ([]*models.Profile, error) {
	db := r.getDB(ctx)

	var profiles []*models.Profile
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&profiles).Error
	if err != nil {
		return nil, err
	}

	return profiles, nil
}

// Count returns the number of profiles matching the filter
func (r *ProfileRepositoryImpl) Count(ctx context.Context, filter models.ProfileFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	var profile models.Profile
	query := r.applyFilter(db.Model(&profile), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any profile matching the filter exists
func (r *ProfileRepositoryImpl) Exists(ctx context.Context, filter models.ProfileFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *ProfileRepositoryImpl) applyFilter(db *gorm.DB, filter models.ProfileFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.Email != nil {
		db = db.Where("email = ?", *filter.Email)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}
	if filter.SendWeekday != nil {
		db = db.Where("send_weekday = ?", *filter.SendWeekday)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}

	return db
}
