package domain

import "time"

// Account roles form a closed set. Role is assigned at registration
// (always RoleClient) and only changes through administrative tooling.
const (
	RoleAdmin      = "Admin"
	RoleManager    = "Manager"
	RoleClient     = "Client"
	RoleTechnician = "Technician"
)

// ValidRole reports whether role belongs to the closed role set.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleClient, RoleTechnician:
		return true
	}
	return false
}

// User is the account record. Email and phone are globally unique.
// Verified flips false->true exactly once and is never reset here.
// PendingToken holds the single currently-live verification/reset/2FA
// token; minting a new one supersedes the old by overwrite.
// Version backs optimistic-concurrency updates in the durable store.
type User struct {
	UserID       string    `json:"id" dynamodbav:"user_id"`
	Email        string    `json:"email" dynamodbav:"email"`
	Phone        string    `json:"phone" dynamodbav:"phone"`
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	Role         string    `json:"role" dynamodbav:"role"`
	Verified     bool      `json:"verified" dynamodbav:"verified"`
	PendingToken *string   `json:"-" dynamodbav:"pending_token"`
	Version      int64     `json:"-" dynamodbav:"version"`
	CreatedAt    time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated" dynamodbav:"updated_at"`
}

type RegisterRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"required"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type NewPasswordRequest struct {
	NewPassword       string `json:"new_password"`
	ConfirmPassword   string `json:"confirm_password"`
	Email             string `json:"email"`
	VerificationToken string `json:"verification_token"`
}
