package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Shivanand-hulikatti/eventreg/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const problemContentType = "application/problem+json"

const problemTypeBase = "https://eventreg.dev/problems/"

// Problem is an RFC 7807 body extended with a stable machine code.
type Problem struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Status    int               `json:"status"`
	Code      model.Code        `json:"code"`
	Detail    string            `json:"detail,omitempty"`
	Instance  string            `json:"instance,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

var statuses = map[model.Code]int{
	model.CodeAuthRequired:       http.StatusUnauthorized,
	model.CodeForbidden:          http.StatusForbidden,
	model.CodeNotOwner:           http.StatusForbidden,
	model.CodeEventNotFound:      http.StatusNotFound,
	model.CodeEventFull:          http.StatusConflict,
	model.CodeAlreadyRegistered:  http.StatusConflict,
	model.CodeNotRegistered:      http.StatusNotFound,
	model.CodeRegistrationClosed: http.StatusConflict,
	model.CodeInvalidInput:       http.StatusBadRequest,
	model.CodeTransient:          http.StatusServiceUnavailable,
}

func statusFor(code model.Code) int {
	if status, ok := statuses[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError classifies err and writes the matching problem response.
// Server-side failures never leak their message to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := model.CodeOf(err)
	status := statusFor(code)

	p := Problem{
		Type:      problemTypeBase + string(code),
		Title:     http.StatusText(status),
		Status:    status,
		Code:      code,
		Instance:  r.URL.Path,
		RequestID: RequestID(r.Context()),
	}
	if status < http.StatusInternalServerError {
		p.Detail = err.Error()
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		p.Errors = fieldErrors(verrs)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	logger := zerolog.Ctx(r.Context())
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).
		Int("status", status).
		Str("code", string(code)).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Msg(p.Title)

	writeProblem(w, p)
}

func writeProblem(w http.ResponseWriter, p Problem) {
	payload, err := json.Marshal(p)
	if err != nil {
		w.Header().Set("Content-Type", problemContentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"about:blank","title":"Internal Server Error","status":500,"code":"internal"}`))
		return
	}
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(p.Status)
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
