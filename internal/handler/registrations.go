package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/Shivanand-hulikatti/eventreg/internal/auth"
	"github.com/Shivanand-hulikatti/eventreg/internal/model"
	"github.com/Shivanand-hulikatti/eventreg/internal/service"
	"github.com/go-chi/chi/v5"
)

// RegistrationHandler serves the /registrations routes.
type RegistrationHandler struct {
	svc *service.RegistrationService
}

func NewRegistrationHandler(svc *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

// Register handles POST /registrations.
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	reg, err := h.svc.RegisterUser(r.Context(), auth.IdentityFrom(r.Context()), req.EventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// List handles GET /registrations (admin) with optional eventId, status,
// limit and offset query parameters.
func (h *RegistrationHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	regs, err := h.svc.GetRegistrations(r.Context(), auth.IdentityFrom(r.Context()), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

// ListForUser handles GET /registrations/user/{userId}.
func (h *RegistrationHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.GetUserRegistrations(r.Context(), auth.IdentityFrom(r.Context()), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

// Unregister handles DELETE /registrations/{eventId} and returns the
// cancelled registration.
func (h *RegistrationHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.UnregisterEvent(r.Context(), auth.IdentityFrom(r.Context()), chi.URLParam(r, "eventId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func parseFilter(r *http.Request) (model.RegistrationFilter, error) {
	q := r.URL.Query()
	status, err := model.ParseStatus(q.Get("status"))
	if err != nil {
		return model.RegistrationFilter{}, err
	}
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		return model.RegistrationFilter{}, err
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		return model.RegistrationFilter{}, err
	}
	return model.RegistrationFilter{
		EventID: q.Get("eventId"),
		Status:  status,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", model.ErrInvalidInput, name)
	}
	return n, nil
}
