package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/abroad-advisor/internal/domain"
	"github.com/ashureev/abroad-advisor/internal/identity"
)

// ProfileHandler serves the current user's applicant profile.
type ProfileHandler struct {
	*Handler
}

// NewProfileHandler creates a profile handler.
func NewProfileHandler(base *Handler) *ProfileHandler {
	return &ProfileHandler{Handler: base}
}

// RegisterRoutes registers profile routes.
func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.PutProfile)
		r.Delete("/profile", h.DeleteProfile)
	})
}

// GetMe returns the current user's information.
func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    user.UserID,
		"username":   user.Username,
		"session_id": identity.SessionIDFromContext(r.Context()),
	})
}

// GetProfile returns the saved profile, or an empty one.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	p, err := h.repo.GetProfile(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load profile", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	if p == nil {
		p = &domain.Profile{UserID: userID}
	}
	JSON(w, http.StatusOK, p)
}

// profileRequest is the writable part of a profile.
type profileRequest struct {
	Name            string            `json:"name"`
	GPA             *float64          `json:"gpa"`
	GPAScale        *float64          `json:"gpa_scale"`
	TestScores      map[string]string `json:"test_scores"`
	TargetCountries []string          `json:"target_countries"`
	TargetMajors    []string          `json:"target_majors"`
	TargetDegree    string            `json:"target_degree"`
	Notes           string            `json:"notes"`
}

var errInvalidProfile = errors.New("invalid profile")

func (req profileRequest) validate() error {
	if req.GPAScale != nil && (*req.GPAScale <= 0 || *req.GPAScale > 100) {
		return fmt.Errorf("%w: gpa_scale must be in (0, 100]", errInvalidProfile)
	}
	if req.GPA != nil {
		scale := 4.0
		if req.GPAScale != nil {
			scale = *req.GPAScale
		}
		if *req.GPA < 0 || *req.GPA > scale {
			return fmt.Errorf("%w: gpa must be between 0 and %g", errInvalidProfile, scale)
		}
	}
	if len(req.Notes) > 4000 {
		return fmt.Errorf("%w: notes exceed 4000 bytes", errInvalidProfile)
	}
	return nil
}

// PutProfile replaces the current user's profile.
func (h *ProfileHandler) PutProfile(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	p := &domain.Profile{
		UserID:          userID,
		Name:            strings.TrimSpace(req.Name),
		GPA:             req.GPA,
		GPAScale:        req.GPAScale,
		TestScores:      req.TestScores,
		TargetCountries: req.TargetCountries,
		TargetMajors:    req.TargetMajors,
		TargetDegree:    strings.TrimSpace(req.TargetDegree),
		Notes:           req.Notes,
	}
	if err := h.repo.UpsertProfile(r.Context(), p); err != nil {
		slog.Error("Failed to save profile", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to save profile")
		return
	}

	saved, err := h.repo.GetProfile(r.Context(), userID)
	if err != nil || saved == nil {
		slog.Error("Failed to reload profile", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	slog.Info("Profile updated", "user_id", userID)
	JSON(w, http.StatusOK, saved)
}

// DeleteProfile removes the current user's profile.
func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.repo.DeleteProfile(r.Context(), userID); err != nil {
		slog.Error("Failed to delete profile", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to delete profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
