// Package service implements the reminder business logic: CRUD with
// schedule validation, previews, and the background trigger processor.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lyrebird-dev/chime/internal/models"
	"github.com/lyrebird-dev/chime/internal/notify"
	"github.com/lyrebird-dev/chime/internal/repository"
	"github.com/lyrebird-dev/chime/internal/schedule"
)

// ValidationError marks a request rejected for bad input rather than an
// internal failure.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err describes invalid client input.
func IsValidationError(err error) bool {
	var ve *ValidationError
	var ce *schedule.ConfigError
	return errors.As(err, &ve) || errors.As(err, &ce)
}

// ReminderService owns reminder lifecycle operations.
type ReminderService struct {
	reminders       repository.ReminderRepository
	notifier        notify.Notifier
	log             *logrus.Logger
	defaultTimezone string
	now             func() int64
}

// NewReminderService creates the reminder service.
func NewReminderService(reminders repository.ReminderRepository, notifier notify.Notifier, defaultTimezone string, log *logrus.Logger) *ReminderService {
	return &ReminderService{
		reminders:       reminders,
		notifier:        notifier,
		log:             log,
		defaultTimezone: defaultTimezone,
		now:             nowUnix,
	}
}

// CreateReminderRequest is the payload for creating a reminder.
type CreateReminderRequest struct {
	ChatID         string          `json:"chat_id"`
	Content        string          `json:"content"`
	ScheduleType   string          `json:"schedule_type"`
	ScheduleConfig json.RawMessage `json:"schedule_config"`
	Timezone       string          `json:"timezone"`
}

// UpdateReminderRequest is the payload for updating a reminder. Nil
// fields keep their current value.
type UpdateReminderRequest struct {
	ChatID         *string         `json:"chat_id"`
	Content        *string         `json:"content"`
	ScheduleType   *string         `json:"schedule_type"`
	ScheduleConfig json.RawMessage `json:"schedule_config"`
	Timezone       *string         `json:"timezone"`
	Status         *string         `json:"status"`
}

// Create validates the request, computes the first trigger instant and
// stores the reminder.
func (s *ReminderService) Create(ctx context.Context, userID int64, req CreateReminderRequest) (*models.Reminder, error) {
	if req.Content == "" {
		return nil, validationErrorf("content is required")
	}
	if len(req.Content) > models.MaxContentLength {
		return nil, validationErrorf("content must be at most %d characters", models.MaxContentLength)
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = s.defaultTimezone
	}
	if !schedule.KnownTimezone(timezone) {
		return nil, validationErrorf("unsupported timezone: %q", timezone)
	}

	spec, err := schedule.ParseConfig(schedule.Type(req.ScheduleType), req.ScheduleConfig)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next, ok := schedule.NextTrigger(spec, timezone, now)
	if !ok {
		return nil, validationErrorf("schedule has no upcoming occurrence")
	}

	reminder := &models.Reminder{
		UserID:         userID,
		ChatID:         req.ChatID,
		Content:        req.Content,
		ScheduleType:   req.ScheduleType,
		ScheduleConfig: req.ScheduleConfig,
		Timezone:       timezone,
		Status:         models.ReminderStatusActive,
		NextTriggerAt:  next,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.reminders.Create(ctx, reminder); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"reminder_id":     reminder.ID,
		"user_id":         userID,
		"schedule_type":   reminder.ScheduleType,
		"next_trigger_at": reminder.NextTriggerAt,
	}).Info("Reminder created")
	return reminder, nil
}

// Get returns a single reminder owned by the user.
func (s *ReminderService) Get(ctx context.Context, userID, id int64) (*models.Reminder, error) {
	return s.reminders.GetByID(ctx, userID, id)
}

// List returns the user's reminders and the total match count.
func (s *ReminderService) List(ctx context.Context, userID int64, filter repository.ListFilter) ([]*models.Reminder, int, error) {
	if filter.Status != "" {
		switch filter.Status {
		case models.ReminderStatusActive, models.ReminderStatusPaused, models.ReminderStatusCompleted:
		default:
			return nil, 0, validationErrorf("invalid status filter: %q", filter.Status)
		}
	}
	return s.reminders.List(ctx, userID, filter)
}

// Update applies a partial update, re-validates the schedule and
// recomputes the next trigger instant. Resuming a paused reminder clears
// its failure state.
func (s *ReminderService) Update(ctx context.Context, userID, id int64, req UpdateReminderRequest) (*models.Reminder, error) {
	reminder, err := s.reminders.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.ChatID != nil {
		reminder.ChatID = *req.ChatID
	}
	if req.Content != nil {
		if *req.Content == "" {
			return nil, validationErrorf("content is required")
		}
		if len(*req.Content) > models.MaxContentLength {
			return nil, validationErrorf("content must be at most %d characters", models.MaxContentLength)
		}
		reminder.Content = *req.Content
	}
	if req.ScheduleType != nil {
		reminder.ScheduleType = *req.ScheduleType
	}
	if req.ScheduleConfig != nil {
		reminder.ScheduleConfig = req.ScheduleConfig
	}
	if req.Timezone != nil {
		if !schedule.KnownTimezone(*req.Timezone) {
			return nil, validationErrorf("unsupported timezone: %q", *req.Timezone)
		}
		reminder.Timezone = *req.Timezone
	}
	if req.Status != nil {
		switch models.ReminderStatus(*req.Status) {
		case models.ReminderStatusActive, models.ReminderStatusPaused:
			reminder.Status = models.ReminderStatus(*req.Status)
		default:
			return nil, validationErrorf("status must be active or paused")
		}
	}

	spec, err := schedule.ParseConfig(schedule.Type(reminder.ScheduleType), reminder.ScheduleConfig)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next, ok := schedule.NextTrigger(spec, reminder.Timezone, now)
	if !ok {
		return nil, validationErrorf("schedule has no upcoming occurrence")
	}
	reminder.NextTriggerAt = next
	reminder.UpdatedAt = now

	if err := s.reminders.Update(ctx, reminder); err != nil {
		return nil, err
	}
	reminder.Attempts = 0
	reminder.LastError = nil

	s.log.WithFields(logrus.Fields{
		"reminder_id":     reminder.ID,
		"user_id":         userID,
		"next_trigger_at": reminder.NextTriggerAt,
	}).Info("Reminder updated")
	return reminder, nil
}

// Delete removes a reminder owned by the user.
func (s *ReminderService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.reminders.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"reminder_id": id, "user_id": userID}).Info("Reminder deleted")
	return nil
}

// BulkResult reports the outcome of one entry in a bulk create.
type BulkResult struct {
	Reminder *models.Reminder `json:"reminder,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// CreateBulk creates each reminder independently. A failing entry does
// not abort the rest.
func (s *ReminderService) CreateBulk(ctx context.Context, userID int64, reqs []CreateReminderRequest) []BulkResult {
	results := make([]BulkResult, 0, len(reqs))
	for _, req := range reqs {
		reminder, err := s.Create(ctx, userID, req)
		if err != nil {
			results = append(results, BulkResult{Error: err.Error()})
			continue
		}
		results = append(results, BulkResult{Reminder: reminder})
	}
	return results
}

// TestTrigger sends the reminder immediately without touching its
// schedule or failure counters.
func (s *ReminderService) TestTrigger(ctx context.Context, userID, id int64) error {
	reminder, err := s.reminders.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}
	if reminder.ChatID == "" {
		return validationErrorf("reminder has no notification channel configured")
	}
	return s.notifier.Send(ctx, reminder.ChatID, reminder.Content)
}

// Preview returns up to count upcoming trigger instants for the reminder.
func (s *ReminderService) Preview(ctx context.Context, userID, id int64, count int) ([]int64, error) {
	reminder, err := s.reminders.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	spec, err := schedule.ParseConfig(schedule.Type(reminder.ScheduleType), reminder.ScheduleConfig)
	if err != nil {
		return nil, err
	}
	return schedule.Preview(spec, reminder.Timezone, count, s.now()), nil
}
