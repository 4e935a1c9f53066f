package testing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/google/uuid"
)

// FakeProfileRepository is an in-memory ProfileRepository for flow tests
type FakeProfileRepository struct {
	mu       sync.Mutex
	profiles map[uint]*models.Profile
	nextID   uint

	// CASCalls counts UpdateCredentialCAS invocations, successful or not
	CASCalls int
}

// NewFakeProfileRepository creates an empty in-memory profile repository
func NewFakeProfileRepository(profiles ...*models.Profile) *FakeProfileRepository {
	r := &FakeProfileRepository{
		profiles: make(map[uint]*models.Profile),
		nextID:   1,
	}
	for _, p := range profiles {
		r.put(p)
	}
	return r
}

func (r *FakeProfileRepository) put(p *models.Profile) {
	if p.ID == 0 {
		p.ID = r.nextID
	}
	if p.ID >= r.nextID {
		r.nextID = p.ID + 1
	}
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	cp := *p
	r.profiles[p.ID] = &cp
}

func (r *FakeProfileRepository) ByID(ctx context.Context, id uint) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *FakeProfileRepository) ByUUID(ctx context.Context, id string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.UUID.String() == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *FakeProfileRepository) ByEmail(ctx context.Context, email string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *FakeProfileRepository) ByFilter(ctx context.Context, filter models.ProfileFilter, orderBy string, limit, offset int) ([]*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Profile
	for _, p := range r.profiles {
		if filter.ID != nil && p.ID != *filter.ID {
			continue
		}
		if filter.UUID != nil && p.UUID != *filter.UUID {
			continue
		}
		if filter.Email != nil && p.Email != *filter.Email {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *FakeProfileRepository) Save(ctx context.Context, p *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(p)
	return nil
}

func (r *FakeProfileRepository) SaveBatch(ctx context.Context, profiles []*models.Profile) error {
	for _, p := range profiles {
		if err := r.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *FakeProfileRepository) Count(ctx context.Context, filter models.ProfileFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *FakeProfileRepository) Exists(ctx context.Context, filter models.ProfileFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *FakeProfileRepository) Update(ctx context.Context, p models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.profiles[p.ID]
	if !ok {
		return nil
	}
	// Credential columns are out of reach for plain updates
	p.ESPAccessToken = stored.ESPAccessToken
	p.ESPRefreshToken = stored.ESPRefreshToken
	p.ESPTokenCapturedAt = stored.ESPTokenCapturedAt
	cp := p
	r.profiles[p.ID] = &cp
	return nil
}

func (r *FakeProfileRepository) UpdateCredentialCAS(ctx context.Context, profileID uint, prevCapturedAt *time.Time, accessToken, refreshToken string, capturedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CASCalls++

	p, ok := r.profiles[profileID]
	if !ok {
		return false, nil
	}
	if !timePtrEqual(p.ESPTokenCapturedAt, prevCapturedAt) {
		return false, nil
	}

	p.ESPAccessToken = utils.ToPtr(accessToken)
	p.ESPRefreshToken = utils.ToPtr(refreshToken)
	p.ESPTokenCapturedAt = &capturedAt
	return true, nil
}

func (r *FakeProfileRepository) ClearCredential(ctx context.Context, profileID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[profileID]
	if !ok {
		return nil
	}
	p.ESPAccessToken = nil
	p.ESPRefreshToken = nil
	p.ESPTokenCapturedAt = nil
	return nil
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// FakeSavedStoryRepository is an in-memory SavedStoryRepository for flow tests
type FakeSavedStoryRepository struct {
	mu      sync.Mutex
	stories map[uint]*models.SavedStory
	nextID  uint

	// MarkConsumedErrs scripts errors for successive MarkConsumed calls
	MarkConsumedErrs []error
	markConsumedIdx  int
}

// NewFakeSavedStoryRepository creates an in-memory story repository
func NewFakeSavedStoryRepository(stories ...*models.SavedStory) *FakeSavedStoryRepository {
	r := &FakeSavedStoryRepository{
		stories: make(map[uint]*models.SavedStory),
		nextID:  1,
	}
	for _, s := range stories {
		r.put(s)
	}
	return r
}

func (r *FakeSavedStoryRepository) put(s *models.SavedStory) {
	if s.ID == 0 {
		s.ID = r.nextID
	}
	if s.ID >= r.nextID {
		r.nextID = s.ID + 1
	}
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	cp := *s
	r.stories[s.ID] = &cp
}

func (r *FakeSavedStoryRepository) ByID(ctx context.Context, id uint) (*models.SavedStory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stories[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *FakeSavedStoryRepository) ByUUID(ctx context.Context, id string) (*models.SavedStory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stories {
		if s.UUID.String() == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *FakeSavedStoryRepository) ByFilter(ctx context.Context, filter models.SavedStoryFilter, orderBy string, limit, offset int) ([]*models.SavedStory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SavedStory
	for _, s := range r.stories {
		if filter.ID != nil && s.ID != *filter.ID {
			continue
		}
		if filter.ProfileID != nil && s.ProfileID != *filter.ProfileID {
			continue
		}
		if filter.Headline != nil && s.Headline != *filter.Headline {
			continue
		}
		if filter.Category != nil && (s.Category == nil || *s.Category != *filter.Category) {
			continue
		}
		if filter.Unconsumed != nil && *filter.Unconsumed && s.Consumed() {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *FakeSavedStoryRepository) Save(ctx context.Context, s *models.SavedStory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(s)
	return nil
}

func (r *FakeSavedStoryRepository) SaveBatch(ctx context.Context, stories []*models.SavedStory) error {
	for _, s := range stories {
		if err := r.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *FakeSavedStoryRepository) Count(ctx context.Context, filter models.SavedStoryFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *FakeSavedStoryRepository) Exists(ctx context.Context, filter models.SavedStoryFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *FakeSavedStoryRepository) ListByProfile(ctx context.Context, profileID uint, limit, offset int) ([]*models.SavedStory, error) {
	return r.ByFilter(ctx, models.SavedStoryFilter{ProfileID: &profileID}, "", limit, offset)
}

func (r *FakeSavedStoryRepository) ListEligible(ctx context.Context, profileID uint, limit int) ([]*models.SavedStory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SavedStory
	for _, s := range r.stories {
		if s.ProfileID != profileID || s.Consumed() {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ViralityScore != out[j].ViralityScore {
			return out[i].ViralityScore > out[j].ViralityScore
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *FakeSavedStoryRepository) Upsert(ctx context.Context, story *models.SavedStory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stories {
		if s.ProfileID == story.ProfileID && s.Headline == story.Headline {
			s.Summary = story.Summary
			s.SourceURL = story.SourceURL
			s.Category = story.Category
			s.ViralityScore = story.ViralityScore
			now := utils.UTCNow()
			s.UpdatedAt = &now
			return nil
		}
	}
	r.put(story)
	return nil
}

func (r *FakeSavedStoryRepository) MarkConsumed(ctx context.Context, storyID, editionID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.markConsumedIdx < len(r.MarkConsumedErrs) {
		err := r.MarkConsumedErrs[r.markConsumedIdx]
		r.markConsumedIdx++
		if err != nil {
			return err
		}
	}

	s, ok := r.stories[storyID]
	if !ok {
		return nil
	}
	if s.ConsumedByEditionID != nil {
		return nil
	}
	s.ConsumedByEditionID = &editionID
	return nil
}

// FakeEditionRepository is an in-memory EditionRepository for flow tests
type FakeEditionRepository struct {
	mu       sync.Mutex
	editions map[uint]*models.Edition
	nextID   uint
}

// NewFakeEditionRepository creates an in-memory edition repository
func NewFakeEditionRepository(editions ...*models.Edition) *FakeEditionRepository {
	r := &FakeEditionRepository{
		editions: make(map[uint]*models.Edition),
		nextID:   1,
	}
	for _, e := range editions {
		r.put(e)
	}
	return r
}

func (r *FakeEditionRepository) put(e *models.Edition) {
	if e.ID == 0 {
		e.ID = r.nextID
	}
	if e.ID >= r.nextID {
		r.nextID = e.ID + 1
	}
	if e.UUID == uuid.Nil {
		e.UUID = uuid.New()
	}
	if e.Status == "" {
		e.Status = models.EditionStatusDraft
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = utils.UTCNow()
	}
	cp := *e
	r.editions[e.ID] = &cp
}

func (r *FakeEditionRepository) ByID(ctx context.Context, id uint) (*models.Edition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.editions[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *FakeEditionRepository) ByUUID(ctx context.Context, id string) (*models.Edition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.editions {
		if e.UUID.String() == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *FakeEditionRepository) ByProfileID(ctx context.Context, profileID uint, limit, offset int) ([]*models.Edition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Edition
	for _, e := range r.editions {
		if e.ProfileID != profileID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *FakeEditionRepository) ByFilter(ctx context.Context, filter models.EditionFilter, orderBy string, limit, offset int) ([]*models.Edition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Edition
	for _, e := range r.editions {
		if filter.ID != nil && e.ID != *filter.ID {
			continue
		}
		if filter.ProfileID != nil && e.ProfileID != *filter.ProfileID {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *FakeEditionRepository) Save(ctx context.Context, e *models.Edition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(e)
	return nil
}

func (r *FakeEditionRepository) SaveBatch(ctx context.Context, editions []*models.Edition) error {
	for _, e := range editions {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *FakeEditionRepository) Count(ctx context.Context, filter models.EditionFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *FakeEditionRepository) Exists(ctx context.Context, filter models.EditionFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *FakeEditionRepository) Update(ctx context.Context, e models.Edition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := e
	r.editions[e.ID] = &cp
	return nil
}

func (r *FakeEditionRepository) UpdateStatusFrom(ctx context.Context, id uint, from, to models.EditionStatus, extra map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.editions[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	for col, val := range extra {
		switch col {
		case "campaign_activity_id":
			if s, ok := val.(string); ok {
				e.CampaignActivityID = &s
			}
		case "failure_reason":
			if s, ok := val.(string); ok {
				e.FailureReason = &s
			}
		case "pushed_at":
			if t, ok := val.(time.Time); ok {
				e.PushedAt = &t
			}
		case "sent_at":
			if t, ok := val.(time.Time); ok {
				e.SentAt = &t
			}
		case "failed_at":
			if t, ok := val.(time.Time); ok {
				e.FailedAt = &t
			}
		}
	}
	return true, nil
}

func (r *FakeEditionRepository) ListDueForDispatch(ctx context.Context, before time.Time, limit int) ([]*models.Edition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Edition
	for _, e := range r.editions {
		if e.Status != models.EditionStatusPreviewSent {
			continue
		}
		if e.ScheduledAt == nil || e.ScheduledAt.After(before) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FakeAuditLogRepository is an in-memory AuditLogRepository for flow tests
type FakeAuditLogRepository struct {
	mu     sync.Mutex
	Logs   []*models.AuditLog
	nextID uint
}

// NewFakeAuditLogRepository creates an in-memory audit log repository
func NewFakeAuditLogRepository() *FakeAuditLogRepository {
	return &FakeAuditLogRepository{nextID: 1}
}

func (r *FakeAuditLogRepository) ByID(ctx context.Context, id uint) (*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.Logs {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, nil
}

func (r *FakeAuditLogRepository) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for _, l := range r.Logs {
		if filter.Action != nil && l.Action != *filter.Action {
			continue
		}
		if filter.ProfileID != nil && (l.ProfileID == nil || *l.ProfileID != *filter.ProfileID) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *FakeAuditLogRepository) Save(ctx context.Context, l *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.ID == 0 {
		l.ID = r.nextID
		r.nextID++
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = utils.UTCNow()
	}
	r.Logs = append(r.Logs, l)
	return nil
}

func (r *FakeAuditLogRepository) SaveBatch(ctx context.Context, logs []*models.AuditLog) error {
	for _, l := range logs {
		if err := r.Save(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (r *FakeAuditLogRepository) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	out, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(out)), nil
}

func (r *FakeAuditLogRepository) Exists(ctx context.Context, filter models.AuditLogFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *FakeAuditLogRepository) ListByProfile(ctx context.Context, profileID uint, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{ProfileID: &profileID}, "", limit, offset)
}

func (r *FakeAuditLogRepository) ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{Action: &action}, "", limit, offset)
}

func (r *FakeAuditLogRepository) ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for _, l := range r.Logs {
		if l.IsFailed() {
			out = append(out, l)
		}
	}
	return out, nil
}

// ActionsSeen returns the recorded audit actions in order, for assertions
func (r *FakeAuditLogRepository) ActionsSeen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Logs))
	for _, l := range r.Logs {
		out = append(out, l.Action)
	}
	return out
}
