package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/firetrack360/identity/internal/domain"
	"github.com/firetrack360/identity/internal/pkg/id"
)

type directoryService interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) (*domain.User, error)
}

type tokenProvider interface {
	Issue(c domain.TokenClaims, ttl time.Duration) (string, error)
	Sign(c domain.TokenClaims, ttl time.Duration) (string, error)
	Validate(tokenStr string) (*domain.TokenClaims, error)
}

type passwordHasher interface {
	Hash(plain string) (string, error)
	Compare(plain, hash string) bool
}

type notifier interface {
	Enqueue(ctx context.Context, job domain.NotificationJob) error
}

// Service is the auth state machine: registration with email ownership
// proof, OTP-gated login, and self-service password recovery. Every
// operation is a thin orchestration over the user directory, the token
// provider, and the notification queue.
type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.Response, error)
	VerifyAccount(ctx context.Context, req domain.VerifyRequest) (*domain.Response, error)
	Login(ctx context.Context, req domain.LoginRequest) (*domain.Response, error)
	VerifyLogin(ctx context.Context, req domain.VerifyRequest) (*domain.LoginResult, error)
	ForgetPassword(ctx context.Context, email string) (*domain.Response, error)
	VerifyPasswordReset(ctx context.Context, req domain.VerifyRequest) (*domain.ResetAuthorization, error)
	ReplaceForgotPassword(ctx context.Context, req domain.NewPasswordRequest) (*domain.Response, error)
	ResendVerificationOtp(ctx context.Context, email string) (*domain.Response, error)
}

type ServiceDeps struct {
	Directory directoryService
	Tokens    tokenProvider
	Hasher    passwordHasher
	Notifier  notifier

	VerificationTTL time.Duration
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
}

type service struct {
	directory directoryService
	tokens    tokenProvider
	hasher    passwordHasher
	notifier  notifier

	verificationTTL time.Duration
	accessTTL       time.Duration
	refreshTTL      time.Duration
}

func NewService(deps ServiceDeps) Service {
	return &service{
		directory:       deps.Directory,
		tokens:          deps.Tokens,
		hasher:          deps.Hasher,
		notifier:        deps.Notifier,
		verificationTTL: deps.VerificationTTL,
		accessTTL:       deps.AccessTTL,
		refreshTTL:      deps.RefreshTTL,
	}
}

// Register creates an unverified account and sends a verification OTP.
// The OTP lives only inside the signed pending token; the response never
// reveals it.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Response, error) {
	if req.Password != req.ConfirmPassword {
		return nil, fmt.Errorf("passwords do not match: %w", domain.ErrBadRequest)
	}

	if err := s.ensureUnused(ctx, req.Email, req.Phone); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	token, code, err := s.mint(domain.TokenClaims{Email: req.Email, Role: domain.RoleClient})
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		UserID:       id.New(),
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
		Role:         domain.RoleClient,
		Verified:     false,
		PendingToken: &token,
	}
	if _, err := s.directory.Create(ctx, u); err != nil {
		return nil, err
	}

	s.notify(ctx, req.Email, subjectVerifyAccount, verifyAccountBody(code, s.ttlMinutes()))

	return &domain.Response{
		Message: "registration accepted, check your email for the verification code",
		Status:  http.StatusCreated,
	}, nil
}

// VerifyAccount flips the account to verified. The transition is
// one-directional; verifying an already-verified account is a no-op.
func (s *service) VerifyAccount(ctx context.Context, req domain.VerifyRequest) (*domain.Response, error) {
	u, err := s.directory.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if u.Verified {
		return &domain.Response{Message: "account already verified", Status: http.StatusOK}, nil
	}

	if err := s.checkPendingOTP(u, req.Email, req.OTP); err != nil {
		return nil, err
	}

	if _, err := s.directory.Update(ctx, u.UserID, map[string]interface{}{
		"verified":      true,
		"pending_token": nil,
	}); err != nil {
		return nil, err
	}

	s.notify(ctx, u.Email, subjectAccountVerified, accountVerifiedBody())

	return &domain.Response{Message: "account verified", Status: http.StatusOK}, nil
}

// Login checks the first factor and, on success, mints a fresh login OTP.
// No session credentials are issued here; the caller must complete
// VerifyLogin. A new login overwrites any prior pending token, so the most
// recent OTP is the only one that can succeed.
func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*domain.Response, error) {
	u, err := s.directory.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if !s.hasher.Compare(req.Password, u.PasswordHash) {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if !u.Verified {
		return nil, fmt.Errorf("account not verified: %w", domain.ErrUnauthorized)
	}

	token, code, err := s.mint(domain.TokenClaims{Email: u.Email, Role: u.Role})
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.Update(ctx, u.UserID, map[string]interface{}{
		"pending_token": token,
	}); err != nil {
		return nil, err
	}

	s.notify(ctx, u.Email, subjectLoginCode, loginCodeBody(code, s.ttlMinutes()))

	return &domain.Response{Message: "login code sent, check your email", Status: http.StatusOK}, nil
}

// VerifyLogin checks the second factor and issues the session token pair.
func (s *service) VerifyLogin(ctx context.Context, req domain.VerifyRequest) (*domain.LoginResult, error) {
	u, err := s.directory.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if err := s.checkPendingOTP(u, req.Email, req.OTP); err != nil {
		return nil, err
	}

	if _, err := s.directory.Update(ctx, u.UserID, map[string]interface{}{
		"pending_token": nil,
	}); err != nil {
		return nil, err
	}

	access, err := s.tokens.Sign(domain.TokenClaims{Email: u.Email, Role: u.Role}, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.tokens.Sign(domain.TokenClaims{Email: u.Email, Role: u.Role, UserID: u.UserID}, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &domain.LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		Message:      "login successful",
		Status:       http.StatusOK,
	}, nil
}

// ForgetPassword starts password recovery by minting a reset OTP. The
// claims carry no role; a reset token must not double as anything else.
func (s *service) ForgetPassword(ctx context.Context, email string) (*domain.Response, error) {
	u, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	token, code, err := s.mint(domain.TokenClaims{Email: u.Email})
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.Update(ctx, u.UserID, map[string]interface{}{
		"pending_token": token,
	}); err != nil {
		return nil, err
	}

	s.notify(ctx, u.Email, subjectPasswordReset, passwordResetBody(code, s.ttlMinutes()))

	return &domain.Response{Message: "password reset code sent, check your email", Status: http.StatusOK}, nil
}

// VerifyPasswordReset checks the reset OTP but keeps the pending token in
// place, returning it as the one-time capability for the replacement call.
func (s *service) VerifyPasswordReset(ctx context.Context, req domain.VerifyRequest) (*domain.ResetAuthorization, error) {
	u, err := s.directory.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if err := s.checkPendingOTP(u, req.Email, req.OTP); err != nil {
		return nil, err
	}

	return &domain.ResetAuthorization{
		Message:           "reset code verified",
		VerificationToken: *u.PendingToken,
		Status:            http.StatusOK,
	}, nil
}

// ReplaceForgotPassword consumes the reset capability and stores the new
// password.
func (s *service) ReplaceForgotPassword(ctx context.Context, req domain.NewPasswordRequest) (*domain.Response, error) {
	if req.NewPassword == "" || req.ConfirmPassword == "" || req.Email == "" || req.VerificationToken == "" {
		return nil, fmt.Errorf("all fields are required: %w", domain.ErrBadRequest)
	}
	if req.NewPassword != req.ConfirmPassword {
		return nil, fmt.Errorf("passwords do not match: %w", domain.ErrBadRequest)
	}

	claims, err := s.tokens.Validate(req.VerificationToken)
	if err != nil {
		return nil, fmt.Errorf("reset token rejected: %w", domain.ErrUnauthorized)
	}
	if claims.Email != req.Email {
		return nil, fmt.Errorf("reset token does not belong to this account: %w", domain.ErrUnauthorized)
	}

	u, err := s.directory.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.directory.Update(ctx, u.UserID, map[string]interface{}{
		"password_hash": hash,
		"pending_token": nil,
	}); err != nil {
		return nil, err
	}

	s.notify(ctx, u.Email, subjectPasswordChanged, passwordChangedBody())

	return &domain.Response{Message: "password updated", Status: http.StatusOK}, nil
}

// ResendVerificationOtp re-runs the verification half of registration.
func (s *service) ResendVerificationOtp(ctx context.Context, email string) (*domain.Response, error) {
	u, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.Verified {
		return nil, fmt.Errorf("account already verified: %w", domain.ErrBadRequest)
	}

	token, code, err := s.mint(domain.TokenClaims{Email: u.Email, Role: u.Role})
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.Update(ctx, u.UserID, map[string]interface{}{
		"pending_token": token,
	}); err != nil {
		return nil, err
	}

	s.notify(ctx, u.Email, subjectVerifyAccount, verifyAccountBody(code, s.ttlMinutes()))

	return &domain.Response{Message: "verification code sent, check your email", Status: http.StatusOK}, nil
}

// ensureUnused fails with Conflict when either unique field already belongs
// to an account. The durable store re-checks transactionally on create; this
// pre-check just produces the friendlier error before any hashing work.
func (s *service) ensureUnused(ctx context.Context, email, phone string) error {
	if _, err := s.directory.FindByEmail(ctx, email); err == nil {
		return fmt.Errorf("email already in use: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if _, err := s.directory.FindByPhone(ctx, phone); err == nil {
		return fmt.Errorf("phone already in use: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

// mint issues a verification token and recovers the OTP it embeds by
// validating the freshly signed token. The token is the only durable home
// of the OTP; nothing else stores the code.
func (s *service) mint(c domain.TokenClaims) (token, code string, err error) {
	token, err = s.tokens.Issue(c, s.verificationTTL)
	if err != nil {
		return "", "", fmt.Errorf("issue verification token: %w", err)
	}
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return "", "", fmt.Errorf("decode freshly minted token: %w", err)
	}
	return token, claims.OTP, nil
}

// checkPendingOTP validates the account's live pending token against the
// submitted email and OTP.
func (s *service) checkPendingOTP(u *domain.User, email, otp string) error {
	if u.PendingToken == nil || *u.PendingToken == "" {
		return fmt.Errorf("no pending verification: %w", domain.ErrUnauthorized)
	}
	claims, err := s.tokens.Validate(*u.PendingToken)
	if err != nil {
		return fmt.Errorf("pending token rejected: %w", domain.ErrUnauthorized)
	}
	if claims.Email != email || claims.OTP != otp {
		return fmt.Errorf("verification code mismatch: %w", domain.ErrUnauthorized)
	}
	return nil
}

// notify enqueues an outbound email. Queue failures are logged and
// swallowed; notification loss never fails an auth flow.
func (s *service) notify(ctx context.Context, recipient, subject, body string) {
	err := s.notifier.Enqueue(ctx, domain.NotificationJob{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Channel:   domain.ChannelEmail,
	})
	if err != nil {
		slog.Error("failed to enqueue notification", "recipient", recipient, "subject", subject, "err", err)
	}
}

func (s *service) ttlMinutes() int {
	return int(s.verificationTTL.Minutes())
}
