package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mgorbach/review-assignment-service/internal/api/apierrors"
	"github.com/mgorbach/review-assignment-service/internal/model"
)

const handlerTimeout = 5 * time.Second

// Service is the part of the service layer the HTTP handlers rely on.
type Service interface {
	CreateTeam(ctx context.Context, team model.Team) (model.Team, error)
	GetTeam(ctx context.Context, teamName string) (model.Team, error)
	DeactivateTeamMembers(ctx context.Context, teamName string) (int, error)
	SetUserIsActive(ctx context.Context, userID string, isActive bool) (model.User, error)
	CreatePR(ctx context.Context, prID, prName, authorID string) (model.PullRequest, error)
	MergePR(ctx context.Context, prID string) (model.PullRequest, error)
	ReassignReviewer(ctx context.Context, prID, oldReviewerID string) (model.PullRequest, string, error)
	GetPRsForReviewer(ctx context.Context, userID string) ([]model.PullRequestShort, error)
	UserAssignmentStats(ctx context.Context) (map[string]int, error)
	Reset(ctx context.Context) error
	Health(ctx context.Context) error
}

type Handler struct {
	svc          Service
	log          *zap.Logger
	resetEnabled bool
}

func NewHandler(svc Service, logger *zap.Logger, resetEnabled bool) *Handler {
	return &Handler{svc: svc, log: logger, resetEnabled: resetEnabled}
}

func RegisterRoutes(r *chi.Mux, h *Handler) {
	r.Post("/team/add", withTimeout(h.createTeam))
	r.Get("/team/get", withTimeout(h.getTeam))
	r.Post("/team/deactivate_members", withTimeout(h.deactivateTeamMembers))

	r.Post("/users/setIsActive", withTimeout(h.setUserIsActive))
	r.Get("/users/getReview", withTimeout(h.getUserReviews))

	r.Post("/pullRequest/create", withTimeout(h.createPullRequest))
	r.Post("/pullRequest/merge", withTimeout(h.mergePullRequest))
	r.Post("/pullRequest/reassign", withTimeout(h.reassignReviewer))

	r.Get("/stats/user_assignments", withTimeout(h.userAssignmentStats))

	r.Post("/reset", withTimeout(h.reset))
	r.Get("/health", withTimeout(h.health))
}

func withTimeout(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code apierrors.ErrorCode, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func (h *Handler) handleSvcError(w http.ResponseWriter, err error) {
	var apiErr apierrors.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case apierrors.TeamExists, apierrors.PRExists, apierrors.PRAlreadyMerged,
			apierrors.NotAssigned, apierrors.NoCandidate:
			writeError(w, http.StatusConflict, apiErr.Code, apiErr.Message)
		case apierrors.NotFound:
			writeError(w, http.StatusNotFound, apiErr.Code, apiErr.Message)
		case apierrors.BadRequest:
			writeError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message)
		default:
			writeError(w, http.StatusInternalServerError, apiErr.Code, apiErr.Message)
		}
		return
	}
	h.log.Error("unhandled service error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, apierrors.InternalError, "internal error")
}

func (h *Handler) createTeam(w http.ResponseWriter, r *http.Request) {
	var team model.Team
	if err := json.NewDecoder(r.Body).Decode(&team); err != nil {
		writeError(w, http.StatusBadRequest, apierrors.BadRequest, "invalid JSON body")
		return
	}
	if team.TeamName == "" {
		writeError(w, http.StatusBadRequest, apierrors.BadRequest, "team_name is required")
		return
	}
	for _, m := range team.Members {
		if m.UserID == "" || m.Username == "" {
			writeError(w, http.StatusBadRequest, apierrors.BadRequest, "each member needs user_id and username")
			return
		}
	}

	created, err := h.svc.CreateTeam(r.Context(), team)
	if err != nil {
		h.handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"team": created})
}

func (h *Handler) getTeam(w http.ResponseWriter, r *http.Request) {
	teamName := r.URL.Query().Get("team_name")
	if teamName == "" {
		writeError(w, http.StatusBadRequest, apierrors.BadRequest, "team_name query parameter is required")
		return
	}

	team, err := h.svc.GetTeam(r.Context(), teamName)
	if err != nil {
		h.handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (h *Handler) deactivateTeamMembers(w http.ResponseWriter, r *http.Request) {
	teamName := r.URL.Query().Get("team_name")
	if teamName == "" {
		writeError(w, http.StatusBadRequest, apierrors.BadRequest, "team_name query parameter is required")
		return
	}

	count, err := h.svc.DeactivateTeamMembers(r.Context(), teamName)
	if err != nil {
		h.handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"team_name":         teamName,
		"deactivated_count": count,
	})
}

func (h *Handler) setUserIsActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		IsActive *bool  `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apierrors.BadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.IsActive == nil {
		writeError(w, http.StatusBadRequest, apierrors.BadRequest, "user_id and is_active are required")
		return
	}

	user, err := h.svc.SetUserIsActive(r.Context(), req.UserID, *req.IsActive)
	if err != nil {
		h.handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) getUserReviews(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, apierrors.BadRequest, "user_id query parameter is required")
		return
	}

	prs, err := h.svc.GetPRsForReviewer(r.Context(), userID)
	if err != nil {
		h.handleSvcError(w, err)
		return
	}
	if prs == nil {
		prs = []model.PullRequestShort{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       userID,
		"pull_requests": prs,
	})
}

func (h *Handler) createPullRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PullRequestID   string `json:"pull_request_id"`
		PullRequestName string `json:"pull_request_name"`
		AuthorID        string `json:"author_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apierrors.BadRequest, "invalid JSON body")
		return
	}
	if req.PullRequestID == "" || req.PullRequestName == "" || req.AuthorID == "" {
		writeError(w, http.StatusBadRequest, apierrors.BadRequest, "pull_request_id, pull_request_name and author_id are required")
		return
	}

	pr, err := h.svc.CreatePR(r.Context(), req.PullRequestID, req.PullRequestName, req.AuthorID)
	if err != nil {
		h.handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"pr": pr})
}

func (h *Handler) mergePullRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PullRequestID string `json:"pull_request_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apierrors.BadRequest, "invalid JSON body")
		return
	}
	if req.PullRequestID == "" {
		writeError(w, http.StatusBadRequest, apierrors.BadRequest, "pull_request_id is required")
		return
	}

	pr, err := h.svc.MergePR(r.Context(), req.PullRequestID)
	if err != nil {
		h.handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pr": pr})
}

func (h *Handler) reassignReviewer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PullRequestID string `json:"pull_request_id"`
		OldReviewerID string `json:"old_reviewer_id"`
		// Accepted as a legacy alias for old_reviewer_id.
		OldUserID string `json:"old_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apierrors.BadRequest, "invalid JSON body")
		return
	}
	oldReviewer := req.OldReviewerID
	if oldReviewer == "" {
		oldReviewer = req.OldUserID
	}
	if req.PullRequestID == "" || oldReviewer == "" {
		writeError(w, http.StatusBadRequest, apierrors.BadRequest, "pull_request_id and old_reviewer_id are required")
		return
	}

	pr, replacedBy, err := h.svc.ReassignReviewer(r.Context(), req.PullRequestID, oldReviewer)
	if err != nil {
		h.handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pr":          pr,
		"replaced_by": replacedBy,
	})
}

func (h *Handler) userAssignmentStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.UserAssignmentStats(r.Context())
	if err != nil {
		h.handleSvcError(w, err)
		return
	}

	type userStat struct {
		UserID           string `json:"user_id"`
		AssignmentsCount int    `json:"assignments_count"`
	}
	stats := make([]userStat, 0, len(counts))
	for userID, n := range counts {
		stats = append(stats, userStat{UserID: userID, AssignmentsCount: n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].UserID < stats[j].UserID })

	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if !h.resetEnabled {
		writeError(w, http.StatusForbidden, apierrors.ResetDisabled, "reset is disabled on this instance")
		return
	}
	if err := h.svc.Reset(r.Context()); err != nil {
		h.handleSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset_ok"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Health(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, apierrors.InternalError, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
