// Package repository defines the persistence interfaces the service layer
// depends on. The postgres subpackage provides the production
// implementations.
package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/lyrebird-dev/chime/internal/models"
)

// ErrNotFound is returned when a row does not exist or is not visible to
// the requesting user.
var ErrNotFound = errors.New("not found")

// ListFilter narrows reminder listings. Zero values mean "no filter".
type ListFilter struct {
	Status models.ReminderStatus
	Limit  int
	Offset int
}

// ReminderRepository stores reminders. Every mutating method bumps the
// row version so concurrent writers can detect lost updates.
type ReminderRepository interface {
	Create(ctx context.Context, reminder *models.Reminder) error
	GetByID(ctx context.Context, userID, id int64) (*models.Reminder, error)
	List(ctx context.Context, userID int64, filter ListFilter) ([]*models.Reminder, int, error)
	Update(ctx context.Context, reminder *models.Reminder) error
	Delete(ctx context.Context, userID, id int64) error

	// SelectDue returns active reminders with next_trigger_at <= now,
	// oldest first, at most limit rows.
	SelectDue(ctx context.Context, now int64, limit int) ([]*models.Reminder, error)

	// Claim marks a due reminder as being processed using an optimistic
	// version check. It returns false when another worker already claimed
	// the row or its status changed.
	Claim(ctx context.Context, id, version, now int64) (bool, error)

	// Reschedule stores the next trigger instant after a successful send
	// and clears failure bookkeeping.
	Reschedule(ctx context.Context, id, nextTriggerAt, now int64) error

	// MarkCompleted finishes a reminder that has no further occurrence.
	MarkCompleted(ctx context.Context, id, now int64) error

	// RecordFailure increments the attempt counter and stores the error
	// without advancing next_trigger_at, so the reminder stays due.
	RecordFailure(ctx context.Context, id int64, lastError string, now int64) (attempts int, err error)

	// Pause takes a repeatedly failing reminder out of rotation.
	Pause(ctx context.Context, id int64, lastError string, now int64) error
}

// IdempotencyRepository stores request replay records keyed by the
// client-supplied Idempotency-Key header.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string, userID int64) (json.RawMessage, error)
	Save(ctx context.Context, key string, userID int64, response json.RawMessage, now int64) error
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)
}

// UserRepository resolves API tokens to users.
type UserRepository interface {
	GetByToken(ctx context.Context, token string) (*models.User, error)
}
