package repository

import (
	"context"

	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SavedStoryRepositoryImpl implements the SavedStoryRepository interface
type SavedStoryRepositoryImpl struct {
	*BaseRepository[models.SavedStory, models.SavedStoryFilter]
}

// NewSavedStoryRepository creates a new saved story repository
func NewSavedStoryRepository(db *gorm.DB) SavedStoryRepository {
	return &SavedStoryRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SavedStory, models.SavedStoryFilter](db),
	}
}

// ByUUID retrieves a saved story by UUID
func (r *SavedStoryRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.SavedStory, error) {
	parsedUUID, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	filter := models.SavedStoryFilter{UUID: &parsedUUID}
	stories, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}

	if len(stories) == 0 {
		return nil, nil
	}

	return stories[0], nil
}

// ListByProfile retrieves saved stories for a profile with pagination
func (r *SavedStoryRepositoryImpl) ListByProfile(ctx context.Context, profileID uint, limit, offset int) ([]*models.SavedStory, error) {
	filter := models.SavedStoryFilter{ProfileID: &profileID}
	return r.ByFilter(ctx, filter, "created_at DESC", limit, offset)
}

// ListEligible returns unconsumed stories for the profile, highest virality
// first. The id tiebreak keeps the ordering stable across calls.
func (r *SavedStoryRepositoryImpl) ListEligible(ctx context.Context, profileID uint, limit int) ([]*models.SavedStory, error) {
	filter := models.SavedStoryFilter{
		ProfileID:  &profileID,
		Unconsumed: utils.ToPtr(true),
	}
	return r.ByFilter(ctx, filter, "virality_score DESC, id ASC", limit, 0)
}

// Upsert inserts the story, or overwrites the mutable fields of the existing
// (profile_id, headline) row. The consumed-by reference is never touched so a
// re-save cannot resurrect a consumed story.
func (r *SavedStoryRepositoryImpl) Upsert(ctx context.Context, story *models.SavedStory) error {
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

	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "profile_id"}, {Name: "headline"}},
		DoUpdates: clause.Assignments(map[string]any{
			"summary":        story.Summary,
			"source_url":     story.SourceURL,
			"category":       story.Category,
			"virality_score": story.ViralityScore,
			"updated_at":     utils.UTCNow(),
		}),
	}).Create(story).Error
	if err != nil {
		return err
	}

	return nil
}

// MarkConsumed stamps one story with the consuming edition. The IS NULL guard
// keeps the write idempotent and protects stories already claimed by another
// edition.
func (r *SavedStoryRepositoryImpl) MarkConsumed(ctx context.Context, storyID, editionID uint) error {
	db := r.getDB(ctx)

	now := utils.UTCNow()
	return db.Model(&models.SavedStory{}).
		Where("id = ?", storyID).
		Where("consumed_by_edition_id IS NULL").
		Updates(map[string]any{
			"consumed_by_edition_id": editionID,
			"updated_at":             now,
		}).Error
}

// ByFilter retrieves saved stories based on filter criteria
func (r *SavedStoryRepositoryImpl) ByFilter(ctx context.Context, filter models.SavedStoryFilter, orderBy string, limit, offset int) ([]*models.SavedStory, error) {
	db := r.getDB(ctx)

	var stories []*models.SavedStory
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

	err := query.Find(&stories).Error
	if err != nil {
		return nil, err
	}

	return stories, nil
}

// Count returns the number of saved stories matching the filter
func (r *SavedStoryRepositoryImpl) Count(ctx context.Context, filter models.SavedStoryFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	var story models.SavedStory
	query := r.applyFilter(db.Model(&story), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any saved story matching the filter exists
func (r *SavedStoryRepositoryImpl) Exists(ctx context.Context, filter models.SavedStoryFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *SavedStoryRepositoryImpl) applyFilter(db *gorm.DB, filter models.SavedStoryFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.ProfileID != nil {
		db = db.Where("profile_id = ?", *filter.ProfileID)
	}
	if filter.Headline != nil {
		db = db.Where("headline = ?", *filter.Headline)
	}
	if filter.Category != nil {
		db = db.Where("category = ?", *filter.Category)
	}
	if filter.Unconsumed != nil && *filter.Unconsumed {
		db = db.Where("consumed_by_edition_id IS NULL")
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}

	return db
}
