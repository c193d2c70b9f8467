package domain

// Response is the generic {message, status} pair returned by auth operations.
// Status carries the HTTP status the transport should answer with.
type Response struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// LoginResult is returned by a successful second-factor verification.
type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Message      string `json:"message"`
	Status       int    `json:"status"`
}

// ResetAuthorization is returned by a successful password-reset OTP check.
// VerificationToken is the still-valid pending token, handed back as a
// one-time capability for the follow-up password replacement call.
type ResetAuthorization struct {
	Message           string `json:"message"`
	VerificationToken string `json:"verification_token"`
	Status            int    `json:"status"`
}

// TokenClaims is the payload carried by a signed verification or session token.
type TokenClaims struct {
	Email  string `json:"email"`
	OTP    string `json:"otp,omitempty"`
	Role   string `json:"role,omitempty"`
	UserID string `json:"user_id,omitempty"`
}
