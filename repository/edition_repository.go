package repository

import (
	"context"
	"time"

	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
	"gorm.io/gorm"
)

// EditionRepositoryImpl implements the EditionRepository interface
type EditionRepositoryImpl struct {
	*BaseRepository[models.Edition, models.EditionFilter]
}

// NewEditionRepository creates a new edition repository
func NewEditionRepository(db *gorm.DB) EditionRepository {
	return &EditionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Edition, models.EditionFilter](db),
	}
}

// ByUUID retrieves an edition by UUID
func (r *EditionRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Edition, error) {
	parsedUUID, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	filter := models.EditionFilter{UUID: &parsedUUID}
	editions, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}

	if len(editions) == 0 {
		return nil, nil
	}

	return editions[0], nil
}

// ByProfileID retrieves editions by profile ID with pagination
func (r *EditionRepositoryImpl) ByProfileID(ctx context.Context, profileID uint, limit, offset int) ([]*models.Edition, error) {
	filter := models.EditionFilter{ProfileID: &profileID}
	return r.ByFilter(ctx, filter, "created_at DESC", limit, offset)
}

// Update updates an edition
func (r *EditionRepositoryImpl) Update(ctx context.Context, edition models.Edition) error {
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

	now := utils.UTCNow()
	edition.UpdatedAt = &now

	err = db.Save(&edition).Error
	if err != nil {
		return err
	}

	return nil
}

// UpdateStatusFrom performs a guarded state transition: the row is updated
// only while still in the expected status, so concurrent pushers and the
// dispatch sweep cannot double-apply a transition. Zero rows affected means
// the edition had already left the expected status.
func (r *EditionRepositoryImpl) UpdateStatusFrom(ctx context.Context, id uint, from, to models.EditionStatus, extra map[string]any) (bool, error) {
	db := r.getDB(ctx)

	updates := map[string]any{
		"status":     to,
		"updated_at": utils.UTCNow(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := db.Model(&models.Edition{}).
		Where("id = ?", id).
		Where("status = ?", from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// ListDueForDispatch returns preview_sent editions whose scheduled send time
// has arrived, oldest first
func (r *EditionRepositoryImpl) ListDueForDispatch(ctx context.Context, before time.Time, limit int) ([]*models.Edition, error) {
	db := r.getDB(ctx)

	var editions []*models.Edition
	query := db.
		Where("status = ?", models.EditionStatusPreviewSent).
		Where("scheduled_at IS NOT NULL").
		Where("scheduled_at <= ?", before).
		Order("scheduled_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&editions).Error
	if err != nil {
		return nil, err
	}

	return editions, nil
}

// ByFilter retrieves editions based on filter criteria
func (r *EditionRepositoryImpl) ByFilter(ctx context.Context, filter models.EditionFilter, orderBy string, limit, offset int) ([]*models.Edition, error) {
	db := r.getDB(ctx)

	var editions []*models.Edition
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

	query = query.Preload("Profile")

	err := query.Find(&editions).Error
	if err != nil {
		return nil, err
	}

	return editions, nil
}

// Count returns the number of editions matching the filter
func (r *EditionRepositoryImpl) Count(ctx context.Context, filter models.EditionFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	var edition models.Edition
	query := r.applyFilter(db.Model(&edition), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any edition matching the filter exists
func (r *EditionRepositoryImpl) Exists(ctx context.Context, filter models.EditionFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *EditionRepositoryImpl) applyFilter(db *gorm.DB, filter models.EditionFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.ProfileID != nil {
		db = db.Where("profile_id = ?", *filter.ProfileID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.ScheduledAfter != nil {
		db = db.Where("scheduled_at > ?", *filter.ScheduledAfter)
	}
	if filter.ScheduledBefore != nil {
		db = db.Where("scheduled_at < ?", *filter.ScheduledBefore)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}

	return db
}
