package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/scribe/internal/models"
	pkghttp "github.com/BradenHooton/scribe/pkg/http"
	"github.com/go-chi/chi/v5"
)

// LifecycleService defines the account lifecycle operations
type LifecycleService interface {
	GetUser(ctx context.Context, userID string) (*models.UserAccount, error)
	ChangeRole(ctx context.Context, actor models.Actor, userID, newRole, reason string) (*models.UserAccount, error)
	Suspend(ctx context.Context, actor models.Actor, userID, reason string) (*models.UserAccount, error)
	Unsuspend(ctx context.Context, actor models.Actor, userID, reason string) (*models.UserAccount, error)
	ScheduleDeletion(ctx context.Context, actor models.Actor, userID, reason string, graceDays int) (*models.UserAccount, error)
	CancelDeletion(ctx context.Context, actor models.Actor, userID, reason string) (*models.UserAccount, error)
}

// TrialService defines trial eligibility operations
type TrialService interface {
	GrantTrial(ctx context.Context, actor models.Actor, userID, tier string, durationDays int, reason string, force bool) (*models.TrialDecision, error)
	History(ctx context.Context, userID string) ([]*models.TrialGrant, error)
}

// AdminUserHandler handles account lifecycle and trial requests
type AdminUserHandler struct {
	lifecycle LifecycleService
	trials    TrialService
	ipConfig  *pkghttp.IPConfig
	logger    *slog.Logger
}

// NewAdminUserHandler creates a new AdminUserHandler
func NewAdminUserHandler(lifecycle LifecycleService, trials TrialService, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AdminUserHandler {
	return &AdminUserHandler{
		lifecycle: lifecycle,
		trials:    trials,
		ipConfig:  ipConfig,
		logger:    logger,
	}
}

// RegisterRoutes registers the account routes under /users
func (h *AdminUserHandler) RegisterRoutes(router chi.Router) {
	router.Route("/users/{id}", func(r chi.Router) {
		r.Get("/", h.GetUser)
		r.Post("/role", h.ChangeRole)
		r.Post("/suspend", h.Suspend)
		r.Post("/unsuspend", h.Unsuspend)
		r.Post("/schedule-deletion", h.ScheduleDeletion)
		r.Post("/cancel-deletion", h.CancelDeletion)
		r.Post("/grant-trial", h.GrantTrial)
		r.Get("/trials", h.ListTrials)
	})
}

// GetUser handles GET /admin/users/{id}
func (h *AdminUserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	user, err := h.lifecycle.GetUser(r.Context(), userID)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, userToResponse(user))
}

// ChangeRole handles POST /admin/users/{id}/role
func (h *AdminUserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req ChangeRoleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.lifecycle.ChangeRole(r.Context(), actorFromRequest(r, h.ipConfig), userID, req.Role, req.Reason)
	h.writeUser(w, user, err)
}

// Suspend handles POST /admin/users/{id}/suspend
func (h *AdminUserHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.reasonOnly(w, r, h.lifecycle.Suspend)
}

// Unsuspend handles POST /admin/users/{id}/unsuspend
func (h *AdminUserHandler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	h.reasonOnly(w, r, h.lifecycle.Unsuspend)
}

// CancelDeletion handles POST /admin/users/{id}/cancel-deletion
func (h *AdminUserHandler) CancelDeletion(w http.ResponseWriter, r *http.Request) {
	h.reasonOnly(w, r, h.lifecycle.CancelDeletion)
}

// ScheduleDeletion handles POST /admin/users/{id}/schedule-deletion
func (h *AdminUserHandler) ScheduleDeletion(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req ScheduleDeletionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.lifecycle.ScheduleDeletion(r.Context(), actorFromRequest(r, h.ipConfig), userID, req.Reason, req.GraceDays)
	h.writeUser(w, user, err)
}

// GrantTrial handles POST /admin/users/{id}/grant-trial. A refused non-forced
// grant is a normal 200 response carrying the trial history.
func (h *AdminUserHandler) GrantTrial(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req GrantTrialRequest
	if err := decodeJSON(r, &req, false); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	decision, err := h.trials.GrantTrial(r.Context(), actorFromRequest(r, h.ipConfig),
		userID, req.Tier, req.DurationDays, req.Reason, req.Force)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	if decision.Granted() {
		pkghttp.WriteJSON(w, http.StatusCreated, TrialGrantedResponse{
			Decision: string(decision.Outcome),
			Grant:    trialToResponse(decision.Grant),
		})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TrialNeedsForceResponse{
		Decision:     string(decision.Outcome),
		HasUsedTrial: decision.Ineligibility.HasUsedTrial,
		CanForce:     decision.Ineligibility.CanForce,
		History:      trialsToResponse(decision.Ineligibility.History),
	})
}

// ListTrials handles GET /admin/users/{id}/trials
func (h *AdminUserHandler) ListTrials(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	history, err := h.trials.History(r.Context(), userID)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"trials": trialsToResponse(history),
		"total":  len(history),
	})
}

type reasonMutation func(ctx context.Context, actor models.Actor, userID, reason string) (*models.UserAccount, error)

func (h *AdminUserHandler) reasonOnly(w http.ResponseWriter, r *http.Request, op reasonMutation) {
	userID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req ReasonRequest
	if err := decodeJSON(r, &req, false); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := op(r.Context(), actorFromRequest(r, h.ipConfig), userID, req.Reason)
	h.writeUser(w, user, err)
}

func (h *AdminUserHandler) writeUser(w http.ResponseWriter, user *models.UserAccount, err error) {
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, userToResponse(user))
}
