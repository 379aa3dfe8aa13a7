package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/lyrebird-dev/chime/internal/models"
	"github.com/lyrebird-dev/chime/internal/repository"
	"github.com/lyrebird-dev/chime/internal/service"
)

// maxBulkReminders bounds a single bulk create request.
const maxBulkReminders = 50

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	save, handled := s.replayIdempotent(w, r)
	if handled {
		return
	}

	var req service.CreateReminderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	reminder, err := s.reminders.Create(r.Context(), userID(r), req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	save(reminder)
	respondJSON(w, http.StatusCreated, reminder)
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	filter := repository.ListFilter{
		Status: models.ReminderStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	reminders, total, err := s.reminders.List(r.Context(), userID(r), filter)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if reminders == nil {
		reminders = []*models.Reminder{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"reminders": reminders,
		"total":     total,
	})
}

func (s *Server) handleGetReminder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	reminder, err := s.reminders.Get(r.Context(), userID(r), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reminder)
}

func (s *Server) handleUpdateReminder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	var req service.UpdateReminderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	reminder, err := s.reminders.Update(r.Context(), userID(r), id, req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reminder)
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if err := s.reminders.Delete(r.Context(), userID(r), id); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleCreateBulk(w http.ResponseWriter, r *http.Request) {
	save, handled := s.replayIdempotent(w, r)
	if handled {
		return
	}

	var reqs []service.CreateReminderRequest
	if err := decodeJSON(r, &reqs); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if len(reqs) == 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "request must contain at least one reminder")
		return
	}
	if len(reqs) > maxBulkReminders {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("at most %d reminders per request", maxBulkReminders))
		return
	}

	results := s.reminders.CreateBulk(r.Context(), userID(r), reqs)
	data := map[string]any{"results": results}
	save(data)
	respondJSON(w, http.StatusOK, data)
}

func (s *Server) handleTestTrigger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if err := s.reminders.TestTrigger(r.Context(), userID(r), id); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sent": true})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	occurrences, err := s.reminders.Preview(r.Context(), userID(r), id, queryInt(r, "count", 5))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"occurrences": occurrences})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
