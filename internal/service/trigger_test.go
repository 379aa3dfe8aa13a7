package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/lyrebird-dev/chime/internal/metrics"
	"github.com/lyrebird-dev/chime/internal/models"
	"github.com/lyrebird-dev/chime/internal/repository"
)

type fakeReminderRepo struct {
	mu        sync.Mutex
	reminders map[int64]*models.Reminder
	lostClaim map[int64]bool
	selectErr error
	claimErr  map[int64]error
}

func newFakeReminderRepo(reminders ...*models.Reminder) *fakeReminderRepo {
	repo := &fakeReminderRepo{
		reminders: make(map[int64]*models.Reminder),
		lostClaim: make(map[int64]bool),
		claimErr:  make(map[int64]error),
	}
	for _, r := range reminders {
		repo.reminders[r.ID] = r
	}
	return repo
}

func (f *fakeReminderRepo) get(id int64) *models.Reminder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reminders[id]
}

func (f *fakeReminderRepo) Create(ctx context.Context, r *models.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = int64(len(f.reminders) + 1)
	r.Version = 1
	f.reminders[r.ID] = r
	return nil
}

func (f *fakeReminderRepo) GetByID(ctx context.Context, userID, id int64) (*models.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok || r.UserID != userID {
		return nil, repository.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (f *fakeReminderRepo) List(ctx context.Context, userID int64, filter repository.ListFilter) ([]*models.Reminder, int, error) {
	return nil, 0, nil
}

func (f *fakeReminderRepo) Update(ctx context.Context, r *models.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.reminders[r.ID]
	if !ok {
		return repository.ErrNotFound
	}
	clone := *r
	clone.Version = stored.Version + 1
	clone.Attempts = 0
	clone.LastError = nil
	f.reminders[r.ID] = &clone
	r.Version = clone.Version
	return nil
}

func (f *fakeReminderRepo) Delete(ctx context.Context, userID, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reminders[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.reminders, id)
	return nil
}

func (f *fakeReminderRepo) SelectDue(ctx context.Context, now int64, limit int) ([]*models.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	var due []*models.Reminder
	for _, r := range f.reminders {
		if r.IsDue(now) && len(due) < limit {
			clone := *r
			due = append(due, &clone)
		}
	}
	return due, nil
}

func (f *fakeReminderRepo) Claim(ctx context.Context, id, version, now int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.claimErr[id]; err != nil {
		return false, err
	}
	r, ok := f.reminders[id]
	if !ok || f.lostClaim[id] || r.Version != version || r.Status != models.ReminderStatusActive {
		return false, nil
	}
	r.Version++
	r.LastTriggeredAt = &now
	return true, nil
}

func (f *fakeReminderRepo) Reschedule(ctx context.Context, id, nextTriggerAt, now int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.reminders[id]
	r.NextTriggerAt = nextTriggerAt
	r.Attempts = 0
	r.LastError = nil
	r.Version++
	return nil
}

func (f *fakeReminderRepo) MarkCompleted(ctx context.Context, id, now int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.reminders[id]
	r.Status = models.ReminderStatusCompleted
	r.Attempts = 0
	r.LastError = nil
	r.Version++
	return nil
}

func (f *fakeReminderRepo) RecordFailure(ctx context.Context, id int64, lastError string, now int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.reminders[id]
	r.Attempts++
	r.LastError = &lastError
	r.Version++
	return r.Attempts, nil
}

func (f *fakeReminderRepo) Pause(ctx context.Context, id int64, lastError string, now int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.reminders[id]
	r.Status = models.ReminderStatusPaused
	r.LastError = &lastError
	r.Version++
	return nil
}

type fakeIdempotencyRepo struct {
	mu          sync.Mutex
	lastCutoff  int64
	cleanupRuns int
}

func (f *fakeIdempotencyRepo) Get(ctx context.Context, key string, userID int64) (json.RawMessage, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeIdempotencyRepo) Save(ctx context.Context, key string, userID int64, response json.RawMessage, now int64) error {
	return nil
}

func (f *fakeIdempotencyRepo) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCutoff = cutoff
	f.cleanupRuns++
	return 2, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	fail map[string]error
	sent []string
}

func (f *fakeNotifier) Send(ctx context.Context, chatID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestProcessor(repo *fakeReminderRepo, idem *fakeIdempotencyRepo, notifier *fakeNotifier) *TriggerProcessor {
	return NewTriggerProcessor(repo, idem, notifier, metrics.New(prometheus.NewRegistry()), testLogger())
}

func testReminder(id int64, scheduleType, config string, nextTriggerAt int64) *models.Reminder {
	return &models.Reminder{
		ID:             id,
		UserID:         1,
		ChatID:         "100200300",
		Content:        "water the plants",
		ScheduleType:   scheduleType,
		ScheduleConfig: json.RawMessage(config),
		Timezone:       "UTC",
		Status:         models.ReminderStatusActive,
		NextTriggerAt:  nextTriggerAt,
		Version:        1,
	}
}

func TestTickDeliversAndReschedules(t *testing.T) {
	now := time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC).Unix()
	repo := newFakeReminderRepo(testReminder(1, "daily", `{"time":"10:00"}`, now))
	idem := &fakeIdempotencyRepo{}
	notifier := &fakeNotifier{}
	p := newTestProcessor(repo, idem, notifier)

	stats, err := p.RunTick(context.Background(), now)
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if stats.Processed != 1 || stats.Failed != 0 || stats.Completed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(notifier.sent))
	}

	r := repo.get(1)
	if r.NextTriggerAt <= now {
		t.Errorf("next_trigger_at = %d, want > %d", r.NextTriggerAt, now)
	}
	if r.Status != models.ReminderStatusActive {
		t.Errorf("status = %s, want active", r.Status)
	}
	if r.Attempts != 0 || r.LastError != nil {
		t.Errorf("failure state not reset: attempts=%d lastError=%v", r.Attempts, r.LastError)
	}
	if r.LastTriggeredAt == nil || *r.LastTriggeredAt != now {
		t.Errorf("last_triggered_at = %v, want %d", r.LastTriggeredAt, now)
	}
}

func TestTickLateFireReschedulesForward(t *testing.T) {
	// Due two days before the tick runs: the reminder fires once and
	// realigns to the occurrence after the claim time, not to the next
	// slot after the stale trigger time.
	due := time.Date(2026, time.January, 1, 10, 0, 0, 0, time.UTC).Unix()
	now := time.Date(2026, time.January, 3, 10, 0, 0, 0, time.UTC).Unix()
	repo := newFakeReminderRepo(testReminder(1, "daily", `{"time":"10:00"}`, due))
	notifier := &fakeNotifier{}
	p := newTestProcessor(repo, &fakeIdempotencyRepo{}, notifier)

	stats, err := p.RunTick(context.Background(), now)
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if stats.Processed != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	r := repo.get(1)
	if r.NextTriggerAt <= now {
		t.Fatalf("next_trigger_at = %d, want > %d (rescheduled into the past)", r.NextTriggerAt, now)
	}
	if want := time.Date(2026, time.January, 4, 10, 0, 0, 0, time.UTC).Unix(); r.NextTriggerAt != want {
		t.Errorf("next_trigger_at = %d, want %d", r.NextTriggerAt, want)
	}

	// The next tick must not send again for the same occurrence.
	stats, err = p.RunTick(context.Background(), now+60)
	if err != nil {
		t.Fatalf("second RunTick: %v", err)
	}
	if stats.Processed != 0 {
		t.Errorf("second tick stats = %+v, want idle", stats)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("sent %d notifications for one occurrence, want 1", len(notifier.sent))
	}
}

func TestTickCompletesOneShot(t *testing.T) {
	now := time.Date(2026, time.March, 1, 9, 30, 0, 0, time.UTC).Unix()
	repo := newFakeReminderRepo(testReminder(1, "once", `{"at_unix":1772357400}`, now))
	notifier := &fakeNotifier{}
	p := newTestProcessor(repo, &fakeIdempotencyRepo{}, notifier)

	stats, err := p.RunTick(context.Background(), now)
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if stats.Completed != 1 {
		t.Errorf("stats.Completed = %d, want 1", stats.Completed)
	}
	if got := repo.get(1).Status; got != models.ReminderStatusCompleted {
		t.Errorf("status = %s, want completed", got)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("sent %d messages, want 1", len(notifier.sent))
	}
}

func TestTickCompletesPastEndDate(t *testing.T) {
	// Last firing before the end date cutoff: the schedule has nowhere to go.
	now := time.Date(2026, time.January, 1, 10, 0, 0, 0, time.UTC).Unix()
	repo := newFakeReminderRepo(testReminder(1, "daily", `{"time":"10:00","end_date":"2026-01-02"}`, now))
	p := newTestProcessor(repo, &fakeIdempotencyRepo{}, &fakeNotifier{})

	stats, err := p.RunTick(context.Background(), now)
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if stats.Completed != 1 {
		t.Errorf("stats.Completed = %d, want 1", stats.Completed)
	}
	if got := repo.get(1).Status; got != models.ReminderStatusCompleted {
		t.Errorf("status = %s, want completed", got)
	}
}

func TestTickSkipsLostClaim(t *testing.T) {
	now := time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC).Unix()
	repo := newFakeReminderRepo(testReminder(1, "daily", `{"time":"10:00"}`, now))
	repo.lostClaim[1] = true
	notifier := &fakeNotifier{}
	p := newTestProcessor(repo, &fakeIdempotencyRepo{}, notifier)

	stats, err := p.RunTick(context.Background(), now)
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if stats.Skipped != 1 || stats.Processed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(notifier.sent))
	}
}

func TestTickRetriesThenPauses(t *testing.T) {
	now := time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC).Unix()
	reminder := testReminder(1, "daily", `{"time":"10:00"}`, now)
	repo := newFakeReminderRepo(reminder)
	notifier := &fakeNotifier{fail: map[string]error{"100200300": errors.New("chat not found")}}
	p := newTestProcessor(repo, &fakeIdempotencyRepo{}, notifier)

	for attempt := 1; attempt <= 2; attempt++ {
		stats, err := p.RunTick(context.Background(), now)
		if err != nil {
			t.Fatalf("RunTick %d: %v", attempt, err)
		}
		if stats.Failed != 1 || stats.Paused != 0 {
			t.Fatalf("RunTick %d stats = %+v", attempt, stats)
		}
		r := repo.get(1)
		if r.Attempts != attempt {
			t.Fatalf("attempts = %d after tick %d", r.Attempts, attempt)
		}
		if r.Status != models.ReminderStatusActive {
			t.Fatalf("status = %s after tick %d, want active", r.Status, attempt)
		}
		if r.NextTriggerAt != now {
			t.Fatalf("next_trigger_at advanced on failure: %d", r.NextTriggerAt)
		}
	}

	stats, err := p.RunTick(context.Background(), now)
	if err != nil {
		t.Fatalf("final RunTick: %v", err)
	}
	if stats.Paused != 1 {
		t.Errorf("stats.Paused = %d, want 1", stats.Paused)
	}

	r := repo.get(1)
	if r.Status != models.ReminderStatusPaused {
		t.Errorf("status = %s, want paused", r.Status)
	}
	if r.Attempts != MaxAttempts {
		t.Errorf("attempts = %d, want %d", r.Attempts, MaxAttempts)
	}
	if r.LastError == nil || *r.LastError != "chat not found" {
		t.Errorf("last_error = %v, want chat not found", r.LastError)
	}

	// A paused reminder must not be selected again.
	stats, err = p.RunTick(context.Background(), now)
	if err != nil {
		t.Fatalf("post-pause RunTick: %v", err)
	}
	if stats.Processed != 0 || stats.Failed != 0 {
		t.Errorf("post-pause stats = %+v, want idle tick", stats)
	}
}

func TestTickFailsWithoutChatID(t *testing.T) {
	now := time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC).Unix()
	reminder := testReminder(1, "daily", `{"time":"10:00"}`, now)
	reminder.ChatID = ""
	repo := newFakeReminderRepo(reminder)
	notifier := &fakeNotifier{}
	p := newTestProcessor(repo, &fakeIdempotencyRepo{}, notifier)

	stats, err := p.RunTick(context.Background(), now)
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("stats.Failed = %d, want 1", stats.Failed)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(notifier.sent))
	}
	r := repo.get(1)
	if r.Attempts != 1 || r.LastError == nil {
		t.Errorf("failure not recorded: attempts=%d lastError=%v", r.Attempts, r.LastError)
	}
}

func TestTickIsolatesPerReminderErrors(t *testing.T) {
	now := time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC).Unix()
	broken := testReminder(1, "daily", `{"time":"10:00"}`, now)
	healthy := testReminder(2, "daily", `{"time":"10:00"}`, now)
	repo := newFakeReminderRepo(broken, healthy)
	repo.claimErr[1] = errors.New("connection reset")
	notifier := &fakeNotifier{}
	p := newTestProcessor(repo, &fakeIdempotencyRepo{}, notifier)

	stats, err := p.RunTick(context.Background(), now)
	if err == nil {
		t.Fatal("RunTick: no error, want claim error surfaced")
	}
	if stats.Processed != 1 {
		t.Errorf("stats.Processed = %d, want 1", stats.Processed)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("sent %d messages, want 1", len(notifier.sent))
	}
}

func TestTickInvalidStoredConfigTakesFailurePath(t *testing.T) {
	// The config row was corrupted after creation: delivery succeeds but
	// rescheduling cannot. The reminder must surface the error through
	// attempts/last_error rather than quietly completing.
	now := time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC).Unix()
	repo := newFakeReminderRepo(testReminder(1, "daily", `{"time":"25:00"}`, now))
	notifier := &fakeNotifier{}
	p := newTestProcessor(repo, &fakeIdempotencyRepo{}, notifier)

	stats, err := p.RunTick(context.Background(), now)
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if stats.Failed != 1 || stats.Completed != 0 {
		t.Errorf("stats = %+v, want one failure and no completion", stats)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("sent %d messages, want 1", len(notifier.sent))
	}

	r := repo.get(1)
	if r.Status != models.ReminderStatusActive {
		t.Errorf("status = %s, want active", r.Status)
	}
	if r.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", r.Attempts)
	}
	if r.LastError == nil {
		t.Fatal("last_error not set")
	}
	if got := *r.LastError; !strings.Contains(got, "invalid schedule configuration") {
		t.Errorf("last_error = %q", got)
	}
}

func TestProcessorTotals(t *testing.T) {
	now := time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC).Unix()
	repo := newFakeReminderRepo(testReminder(1, "daily", `{"time":"10:00"}`, now))
	p := newTestProcessor(repo, &fakeIdempotencyRepo{}, &fakeNotifier{})

	if _, err := p.RunTick(context.Background(), now); err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if _, err := p.RunTick(context.Background(), now+60); err != nil {
		t.Fatalf("second RunTick: %v", err)
	}

	ticks, processed := p.Totals()
	if ticks != 2 {
		t.Errorf("total ticks = %d, want 2", ticks)
	}
	if processed != 1 {
		t.Errorf("total processed = %d, want 1", processed)
	}
}

func TestTickSelectError(t *testing.T) {
	repo := newFakeReminderRepo()
	repo.selectErr = errors.New("database down")
	p := newTestProcessor(repo, &fakeIdempotencyRepo{}, &fakeNotifier{})

	if _, err := p.RunTick(context.Background(), time.Now().Unix()); err == nil {
		t.Fatal("RunTick: no error")
	}
}

func TestTickCleansIdempotencyKeys(t *testing.T) {
	now := time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC).Unix()
	idem := &fakeIdempotencyRepo{}
	p := newTestProcessor(newFakeReminderRepo(), idem, &fakeNotifier{})

	if _, err := p.RunTick(context.Background(), now); err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if idem.cleanupRuns != 1 {
		t.Fatalf("cleanup ran %d times, want 1", idem.cleanupRuns)
	}
	if want := now - 86400; idem.lastCutoff != want {
		t.Errorf("cutoff = %d, want %d", idem.lastCutoff, want)
	}
}
