// Package scheduler
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/amirphl/Kusanagi/app/services"
	businessflow "github.com/amirphl/Kusanagi/business_flow"
	"github.com/amirphl/Kusanagi/config"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/amirphl/Kusanagi/utils"
)

// DispatchScheduler periodically sweeps for pushed editions whose scheduled
// send time has arrived and schedules them at the ESP. The status guard on
// the preview_sent to sent transition makes concurrent sweeps safe; at most
// one instance wins the update.
type DispatchScheduler struct {
	profileRepo repository.ProfileRepository
	editionRepo repository.EditionRepository
	auditRepo   repository.AuditLogRepository
	refresher   businessflow.TokenRefresher
	gateway     services.ESPGateway
	logger      *log.Logger
	interval    time.Duration
	batchSize   int

	logFile *os.File
}

// NewDispatchScheduler creates a new dispatch scheduler
func NewDispatchScheduler(
	profileRepo repository.ProfileRepository,
	editionRepo repository.EditionRepository,
	auditRepo repository.AuditLogRepository,
	refresher businessflow.TokenRefresher,
	gateway services.ESPGateway,
	cfg config.DispatchConfig,
) *DispatchScheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	s := &DispatchScheduler{
		profileRepo: profileRepo,
		editionRepo: editionRepo,
		auditRepo:   auditRepo,
		refresher:   refresher,
		gateway:     gateway,
		interval:    interval,
		batchSize:   batchSize,
	}

	// Initialize scheduler-specific logger (to stdout and persistent file)
	if err := s.initSchedulerLogger(); err != nil {
		// Fallback to default stdout logger if file logger init fails
		s.logger = log.Default()
		s.logger.Printf("dispatcher: failed to initialize file logger: %v", err)
	}

	return s
}

// initSchedulerLogger configures a logger that writes to both stdout and a persistent file under data/ (or /data)
func (s *DispatchScheduler) initSchedulerLogger() error {
	// Prefer relative data/ then fallback to /data for containerized environments
	candidates := []string{
		filepath.Join("data"),
		"/data",
	}
	for _, dir := range candidates {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		logPath := filepath.Join(dir, "dispatcher.log")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			continue
		}
		s.logFile = f
		mw := io.MultiWriter(os.Stdout, f)
		s.logger = log.New(mw, "dispatcher ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		return nil
	}
	return fmt.Errorf("could not create dispatcher log file in any candidate directory")
}

// Start launches the sweep loop in a background goroutine and returns a stop function
func (s *DispatchScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				if s.logFile != nil {
					_ = s.logFile.Close()
				}
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *DispatchScheduler) runOnce(ctx context.Context) {
	due, err := s.editionRepo.ListDueForDispatch(ctx, utils.UTCNow(), s.batchSize)
	if err != nil {
		s.logger.Printf("dispatcher: list due editions failed: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}
	s.logger.Printf("dispatcher: %d editions due for dispatch", len(due))

	for _, ed := range due {
		edition := ed
		go func() {
			if err := s.dispatchEdition(ctx, edition); err != nil {
				s.logger.Printf("dispatcher: dispatch edition %s failed: %v", edition.UUID, err)
			}
		}()
	}
}

// dispatchEdition schedules one edition's campaign at the ESP and marks it
// sent. Transient failures leave the edition in preview_sent so the next
// sweep retries; a credential rejected after a forced refresh is terminal.
func (s *DispatchScheduler) dispatchEdition(ctx context.Context, edition *models.Edition) error {
	if !edition.Pushed() {
		return fmt.Errorf("edition %s has no campaign activity on record", edition.UUID)
	}

	profile, err := s.profileRepo.ByID(ctx, edition.ProfileID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if profile == nil || !profile.Connected() {
		// Retried next sweep; the profile may reconnect
		return fmt.Errorf("profile %d is not connected to the esp", edition.ProfileID)
	}

	token, err := s.obtainToken(ctx, profile)
	if err != nil {
		return fmt.Errorf("obtain token: %w", err)
	}

	sendAt := s.sendInstant(edition)

	err = s.gateway.ScheduleCampaign(ctx, token, *edition.CampaignActivityID, sendAt)
	if errors.Is(err, services.ErrUnauthorized) {
		token, rerr := s.refresher.ForceRefresh(ctx, profile.ID)
		if rerr != nil {
			s.markAuthRejected(ctx, edition, profile)
			return fmt.Errorf("forced refresh failed: %w", rerr)
		}
		err = s.gateway.ScheduleCampaign(ctx, token, *edition.CampaignActivityID, sendAt)
		if errors.Is(err, services.ErrUnauthorized) {
			s.markAuthRejected(ctx, edition, profile)
			return fmt.Errorf("esp rejected the token twice for edition %s", edition.UUID)
		}
	}
	if err != nil {
		return fmt.Errorf("schedule campaign: %w", err)
	}

	now := utils.UTCNow()
	ok, err := s.editionRepo.UpdateStatusFrom(ctx, edition.ID, models.EditionStatusPreviewSent, models.EditionStatusSent, map[string]any{
		"sent_at": now,
	})
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if !ok {
		// Another sweep or operator action got there first
		s.logger.Printf("dispatcher: edition %s left preview_sent before mark, skipping", edition.UUID)
		return nil
	}

	s.audit(ctx, profile, models.AuditActionEditionDispatched, fmt.Sprintf("Edition %s scheduled at ESP for %s", edition.UUID, sendAt.Format(time.RFC3339)), true, nil)
	s.logger.Printf("dispatcher: edition %s dispatched, sending at %s", edition.UUID, sendAt.Format(time.RFC3339))

	return nil
}

// obtainToken mirrors the push path's refresh discipline: a lost refresh race
// or declined refresh falls back to the stored token and lets the gateway's
// 401 be the judge.
func (s *DispatchScheduler) obtainToken(ctx context.Context, profile *models.Profile) (string, error) {
	token, err := s.refresher.EnsureValidToken(ctx, profile.ID)
	if err == nil {
		return token, nil
	}

	if businessflow.IsConcurrentRefresh(err) {
		token, err = s.refresher.EnsureValidToken(ctx, profile.ID)
		if err == nil {
			return token, nil
		}
	}

	if services.IsRefreshError(err) && profile.ESPAccessToken != nil && *profile.ESPAccessToken != "" {
		return *profile.ESPAccessToken, nil
	}

	return "", err
}

// sendInstant returns the instant handed to the ESP. The ESP refuses past
// dates, so a sweep that runs late nudges the send slightly into the future.
func (s *DispatchScheduler) sendInstant(edition *models.Edition) time.Time {
	floor := utils.UTCNow().Add(time.Minute)
	if edition.ScheduledAt != nil && edition.ScheduledAt.After(floor) {
		return *edition.ScheduledAt
	}
	return floor
}

func (s *DispatchScheduler) markAuthRejected(ctx context.Context, edition *models.Edition, profile *models.Profile) {
	now := utils.UTCNow()
	_, err := s.editionRepo.UpdateStatusFrom(ctx, edition.ID, models.EditionStatusPreviewSent, models.EditionStatusFailed, map[string]any{
		"failure_reason": models.EditionFailureAuthRejected,
		"failed_at":      now,
	})
	if err != nil {
		s.logger.Printf("dispatcher: mark edition %s failed errored: %v", edition.UUID, err)
	}

	reason := models.EditionFailureAuthRejected
	s.audit(ctx, profile, models.AuditActionEditionPushFailed, fmt.Sprintf("Edition %s dispatch failed: credential rejected", edition.UUID), false, &reason)
}

func (s *DispatchScheduler) audit(ctx context.Context, profile *models.Profile, action, description string, success bool, errorMsg *string) {
	audit := &models.AuditLog{
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		ErrorMessage: errorMsg,
	}
	if profile != nil {
		audit.ProfileID = &profile.ID
	}
	if err := s.auditRepo.Save(ctx, audit); err != nil {
		s.logger.Printf("dispatcher: audit write failed: %v", err)
	}
}
