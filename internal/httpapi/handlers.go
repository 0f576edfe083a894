package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/davitran/accountd/internal/account"
	"github.com/davitran/accountd/internal/observability/logger"
)

// Handler holds the HTTP surface dependencies. One Handler serves all
// routes.
type Handler struct {
	svc      *account.Service
	validate *validator.Validate
	metrics  *metrics
	log      *zap.Logger
}

func NewHandler(svc *account.Service, reg prometheus.Registerer) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		metrics:  newMetrics(reg),
		log:      logger.Named("httpapi"),
	}
}

// decode reads and validates the body into dst, answering the request
// itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		respondFail(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondValidation(w, err)
		return false
	}
	return true
}

func (h *Handler) handleGetOTP(w http.ResponseWriter, r *http.Request) {
	var req getOTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.RequestRegistrationCode(r.Context(), req.Email); err != nil {
		respondError(w, r, err)
		return
	}
	h.metrics.codesIssued.WithLabelValues("registration").Inc()
	respondAccepted(w, "verification code sent")
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.Register(r.Context(), account.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Code:      req.OTP,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.metrics.registrations.Inc()
	respondCreated(w, "account created", toUserView(u))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.logins.WithLabelValues("failure").Inc()
		respondError(w, r, err)
		return
	}
	h.metrics.logins.WithLabelValues("success").Inc()
	respondOK(w, "login successful", loginResponse{
		User:         toUserView(res.User),
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresOn:    res.ExpiresOn,
	})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		respondError(w, r, err)
		return
	}
	h.metrics.codesIssued.WithLabelValues("password_reset").Inc()
	respondAccepted(w, "reset code sent")
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, req.Password, req.OTP); err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "password updated", nil)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	u, err := h.svc.Profile(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "profile", toUserView(u))
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	claims := claimsFrom(r.Context())
	u, err := h.svc.UpdateProfile(r.Context(), claims.UserID, account.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Avatar:    req.Avatar,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "profile updated", toUserView(u))
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "users", toUserViews(users))
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "user", toUserView(u))
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.CreateUser(r.Context(), account.CreateUserInput{
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Role:       req.Role,
		IsActive:   req.IsActive,
		IsVerified: req.IsVerified,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondCreated(w, "user created", toUserView(u))
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.UpdateUserByEmail(r.Context(), req.Email, account.UserUpdate{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Role:       req.Role,
		Avatar:     req.Avatar,
		IsActive:   req.IsActive,
		IsVerified: req.IsVerified,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "user updated", toUserView(u))
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, "user deleted", nil)
}

func (h *Handler) handleImportUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := rowsFromUpload(r)
	if err != nil {
		respondFail(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.svc.ImportUsers(r.Context(), rows)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.metrics.imports.Add(float64(report.Imported))
	respondOK(w, "import finished", importResponse{
		Imported: report.Imported,
		Skipped:  report.Skipped,
	})
}
