package auth

import "fmt"

// Outbound message composition. Plain text only; rendering anything richer
// belongs to whatever sits behind the mailer.

const (
	subjectVerifyAccount   = "Verify your account"
	subjectAccountVerified = "Your account is verified"
	subjectLoginCode       = "Your login code"
	subjectPasswordReset   = "Reset your password"
	subjectPasswordChanged = "Your password was changed"
)

func verifyAccountBody(otp string, ttlMinutes int) string {
	return fmt.Sprintf(
		"Welcome!\n\nYour verification code is %s. It expires in %d minutes.\n\nIf you did not create this account, ignore this message.",
		otp, ttlMinutes,
	)
}

func accountVerifiedBody() string {
	return "Your account has been verified. You can now log in."
}

func loginCodeBody(otp string, ttlMinutes int) string {
	return fmt.Sprintf(
		"Your login code is %s. It expires in %d minutes.\n\nIf you did not try to log in, reset your password now.",
		otp, ttlMinutes,
	)
}

func passwordResetBody(otp string, ttlMinutes int) string {
	return fmt.Sprintf(
		"Your password reset code is %s. It expires in %d minutes.\n\nIf you did not request a reset, ignore this message.",
		otp, ttlMinutes,
	)
}

func passwordChangedBody() string {
	return "Your password was changed. If this was not you, contact support immediately."
}
