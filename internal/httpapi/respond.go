// Package httpapi exposes the account service over HTTP: JSON endpoints
// behind a chi router, a uniform response envelope, and bearer-token
// middleware.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/davitran/accountd/internal/account"
	"github.com/davitran/accountd/internal/observability/logger"
)

// envelope is the uniform response shape. Data carries success payloads,
// Errors carries field-level validation failures.
type envelope struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, env envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		logger.Named("httpapi").Warn("response encode failed", zap.Error(err))
	}
}

func respondOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: http.StatusOK, Status: "success", Message: message, Data: data})
}

func respondCreated(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusCreated, envelope{Code: http.StatusCreated, Status: "success", Message: message, Data: data})
}

func respondAccepted(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusAccepted, envelope{Code: http.StatusAccepted, Status: "success", Message: message})
}

func respondFail(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, envelope{Code: code, Status: "error", Message: message})
}

// respondValidation reports field-level failures from the validator as a
// map of field name to constraint tag.
func respondValidation(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		respondFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	writeJSON(w, http.StatusBadRequest, envelope{
		Code:    http.StatusBadRequest,
		Status:  "error",
		Message: "validation failed",
		Errors:  fields,
	})
}

// badCodeMessage is deliberately the same for an expired, unknown, or
// mismatched code so a caller cannot probe which emails have pending codes.
const badCodeMessage = "invalid or expired code"

// respondError maps service errors onto the envelope. Anything unmapped is
// an internal error; the detail goes to the log, not the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case account.IsChallengeRejection(err):
		respondFail(w, http.StatusBadRequest, badCodeMessage)
	case errors.Is(err, account.ErrUserNotFound):
		respondFail(w, http.StatusNotFound, "user not found")
	case errors.Is(err, account.ErrEmailTaken):
		respondFail(w, http.StatusConflict, "email already used")
	case errors.Is(err, account.ErrInvalidCredentials):
		respondFail(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, account.ErrTokenInvalid):
		respondFail(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, account.ErrAccountDisabled):
		respondFail(w, http.StatusForbidden, "account is inactive")
	case errors.Is(err, account.ErrAccountUnverified):
		respondFail(w, http.StatusForbidden, "account is unverified")
	case errors.Is(err, account.ErrForbidden):
		respondFail(w, http.StatusForbidden, "insufficient role")
	default:
		logger.Named("httpapi").Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.Error(err))
		respondFail(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON decodes the body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
