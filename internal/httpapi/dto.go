package httpapi

import (
	"time"

	"github.com/davitran/accountd/internal/account"
)

type getOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	OTP       string `json:"otp" validate:"required,numeric"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type updateProfileRequest struct {
	FirstName *string `json:"firstName" validate:"omitempty,min=1"`
	LastName  *string `json:"lastName" validate:"omitempty,min=1"`
	Avatar    *string `json:"avatar" validate:"omitempty,url"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	OTP      string `json:"otp" validate:"required,numeric"`
}

type createUserRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Role       string `json:"role" validate:"omitempty,oneof=root admin manager deliver customer"`
	IsActive   bool   `json:"isActive"`
	IsVerified bool   `json:"isVerified"`
}

// updateUserRequest selects the target by email; nil fields are untouched.
type updateUserRequest struct {
	Email      string  `json:"email" validate:"required,email"`
	FirstName  *string `json:"firstName" validate:"omitempty,min=1"`
	LastName   *string `json:"lastName" validate:"omitempty,min=1"`
	Role       *string `json:"role" validate:"omitempty,oneof=root admin manager deliver customer"`
	Avatar     *string `json:"avatar" validate:"omitempty,url"`
	IsActive   *bool   `json:"isActive"`
	IsVerified *bool   `json:"isVerified"`
}

// userView is the outward user shape. The password digest never leaves the
// service.
type userView struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Role       string    `json:"role"`
	Avatar     string    `json:"avatar,omitempty"`
	IsActive   bool      `json:"isActive"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toUserView(u *account.User) userView {
	return userView{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Role:       u.Role,
		Avatar:     u.Avatar,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func toUserViews(users []account.User) []userView {
	out := make([]userView, len(users))
	for i := range users {
		out[i] = toUserView(&users[i])
	}
	return out
}

type loginResponse struct {
	User         userView `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresOn    int64    `json:"expiresOn"`
}

type importResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}
