package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lyrebird-dev/chime/internal/repository"
	"github.com/lyrebird-dev/chime/internal/service"
)

type contextKey string

const userIDKey contextKey = "user_id"

// envelope is the uniform response shape: {"success":true,"data":...} or
// {"success":false,"error":{"code":...,"message":...}}.
type envelope struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Error   *errorPayload `json:"error,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: &errorPayload{Code: code, Message: message}})
}

// respondServiceError maps a service error to its HTTP shape.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "reminder not found")
	case service.IsValidationError(err):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		s.log.WithError(err).Error("Request failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// pathID extracts the {id} path segment as an int64.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}

// authenticated resolves the Bearer token to a user and stores the user
// id on the request context.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}

		user, err := s.users.GetByToken(r.Context(), token)
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}
		if err != nil {
			s.log.WithError(err).Error("Token lookup failed")
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, user.ID)
		next(w, r.WithContext(ctx))
	}
}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

// replayIdempotent serves a stored response for a repeated Idempotency-Key
// and returns true. When the key is fresh, the caller proceeds and the
// returned save function records the response it produced.
func (s *Server) replayIdempotent(w http.ResponseWriter, r *http.Request) (save func(any), handled bool) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return func(any) {}, false
	}

	uid := userID(r)
	stored, err := s.idempotency.Get(r.Context(), key, uid)
	if err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(stored)
		return nil, true
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.log.WithError(err).Error("Idempotency lookup failed")
	}

	return func(data any) {
		body, err := json.Marshal(envelope{Success: true, Data: data})
		if err != nil {
			return
		}
		if err := s.idempotency.Save(r.Context(), key, uid, body, time.Now().Unix()); err != nil {
			s.log.WithError(err).Error("Idempotency save failed")
		}
	}, false
}
