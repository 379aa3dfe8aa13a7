// Package postgres implements the repository interfaces on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lyrebird-dev/chime/internal/models"
	"github.com/lyrebird-dev/chime/internal/repository"
)

// ReminderRepository is the PostgreSQL-backed reminder store.
type ReminderRepository struct {
	db *sql.DB
}

// NewReminderRepository creates a new reminder repository.
func NewReminderRepository(db *sql.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

const reminderColumns = `id, user_id, chat_id, content, schedule_type, schedule_config,
	timezone, status, next_trigger_at, last_triggered_at, attempts, last_error,
	version, created_at, updated_at`

func scanReminder(row interface{ Scan(...any) error }) (*models.Reminder, error) {
	var r models.Reminder
	err := row.Scan(
		&r.ID, &r.UserID, &r.ChatID, &r.Content, &r.ScheduleType, &r.ScheduleConfig,
		&r.Timezone, &r.Status, &r.NextTriggerAt, &r.LastTriggeredAt, &r.Attempts, &r.LastError,
		&r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	query := `
		INSERT INTO reminders (user_id, chat_id, content, schedule_type, schedule_config,
			timezone, status, next_trigger_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id, version`

	err := r.db.QueryRowContext(ctx, query,
		reminder.UserID, reminder.ChatID, reminder.Content, reminder.ScheduleType,
		reminder.ScheduleConfig, reminder.Timezone, reminder.Status,
		reminder.NextTriggerAt, reminder.CreatedAt,
	).Scan(&reminder.ID, &reminder.Version)
	if err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

func (r *ReminderRepository) GetByID(ctx context.Context, userID, id int64) (*models.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE id = $1 AND user_id = $2`

	reminder, err := scanReminder(r.db.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return reminder, nil
}

func (r *ReminderRepository) List(ctx context.Context, userID int64, filter repository.ListFilter) ([]*models.Reminder, int, error) {
	where := "WHERE user_id = $1"
	args := []any{userID}
	if filter.Status != "" {
		where += " AND status = $2"
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reminders "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reminders: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM reminders %s ORDER BY next_trigger_at ASC, id ASC LIMIT %d OFFSET %d",
		reminderColumns, where, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, reminder)
	}
	return reminders, total, rows.Err()
}

func (r *ReminderRepository) Update(ctx context.Context, reminder *models.Reminder) error {
	query := `
		UPDATE reminders
		SET chat_id = $1, content = $2, schedule_type = $3, schedule_config = $4,
			timezone = $5, status = $6, next_trigger_at = $7, attempts = 0,
			last_error = NULL, version = version + 1, updated_at = $8
		WHERE id = $9 AND user_id = $10
		RETURNING version`

	err := r.db.QueryRowContext(ctx, query,
		reminder.ChatID, reminder.Content, reminder.ScheduleType, reminder.ScheduleConfig,
		reminder.Timezone, reminder.Status, reminder.NextTriggerAt, reminder.UpdatedAt,
		reminder.ID, reminder.UserID,
	).Scan(&reminder.Version)
	if err == sql.ErrNoRows {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	return nil
}

func (r *ReminderRepository) Delete(ctx context.Context, userID, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ReminderRepository) SelectDue(ctx context.Context, now int64, limit int) ([]*models.Reminder, error) {
	query := `SELECT ` + reminderColumns + `
		FROM reminders
		WHERE status = 'active' AND next_trigger_at <= $1
		ORDER BY next_trigger_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select due reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

func (r *ReminderRepository) Claim(ctx context.Context, id, version, now int64) (bool, error) {
	query := `
		UPDATE reminders
		SET version = version + 1, last_triggered_at = $1, updated_at = $1
		WHERE id = $2 AND version = $3 AND status = 'active'`

	result, err := r.db.ExecContext(ctx, query, now, id, version)
	if err != nil {
		return false, fmt.Errorf("failed to claim reminder: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim reminder: %w", err)
	}
	return affected == 1, nil
}

func (r *ReminderRepository) Reschedule(ctx context.Context, id, nextTriggerAt, now int64) error {
	query := `
		UPDATE reminders
		SET next_trigger_at = $1, attempts = 0, last_error = NULL,
			version = version + 1, updated_at = $2
		WHERE id = $3`

	if _, err := r.db.ExecContext(ctx, query, nextTriggerAt, now, id); err != nil {
		return fmt.Errorf("failed to reschedule reminder: %w", err)
	}
	return nil
}

func (r *ReminderRepository) MarkCompleted(ctx context.Context, id, now int64) error {
	query := `
		UPDATE reminders
		SET status = 'completed', attempts = 0, last_error = NULL,
			version = version + 1, updated_at = $1
		WHERE id = $2`

	if _, err := r.db.ExecContext(ctx, query, now, id); err != nil {
		return fmt.Errorf("failed to complete reminder: %w", err)
	}
	return nil
}

func (r *ReminderRepository) RecordFailure(ctx context.Context, id int64, lastError string, now int64) (int, error) {
	query := `
		UPDATE reminders
		SET attempts = attempts + 1, last_error = $1,
			version = version + 1, updated_at = $2
		WHERE id = $3
		RETURNING attempts`

	var attempts int
	err := r.db.QueryRowContext(ctx, query, lastError, now, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("failed to record failure: %w", err)
	}
	return attempts, nil
}

func (r *ReminderRepository) Pause(ctx context.Context, id int64, lastError string, now int64) error {
	query := `
		UPDATE reminders
		SET status = 'paused', last_error = $1,
			version = version + 1, updated_at = $2
		WHERE id = $3`

	if _, err := r.db.ExecContext(ctx, query, lastError, now, id); err != nil {
		return fmt.Errorf("failed to pause reminder: %w", err)
	}
	return nil
}
