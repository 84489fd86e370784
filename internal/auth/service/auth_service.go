package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/akilapilapitiya/TrueGate-sub001/internal/audit"
	apierr "github.com/akilapilapitiya/TrueGate-sub001/internal/auth"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/models"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/store"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/token"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/validation"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/mail"
)

// Store is the credential store surface the flow controller depends on.
// *store.SQLiteStore is the production implementation.
type Store interface {
	Insert(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByResetToken(ctx context.Context, resetToken string) (*models.User, error)
	UpdateProfile(ctx context.Context, email string, update models.ProfileUpdate) error
	Delete(ctx context.Context, email string) error
	RecordLoginFailure(ctx context.Context, email string, threshold int) (int, bool, error)
	RecordLoginSuccess(ctx context.Context, email string, at time.Time) error
	Unlock(ctx context.Context, email string) error
	SetPassword(ctx context.Context, email, hashedPassword string) error
	SetResetToken(ctx context.Context, email, resetToken string, expires time.Time) error
	SetVerificationToken(ctx context.Context, email, verificationToken string, expires time.Time) error
	ConsumeResetToken(ctx context.Context, email, resetToken, newHashedPassword string) (bool, error)
	ConsumeVerificationToken(ctx context.Context, email, verificationToken string) (bool, error)
	List(ctx context.Context, opts store.ListOptions) ([]models.User, int, error)
}

// Auditor receives security events. *audit.Recorder is the production
// implementation.
type Auditor interface {
	Record(e audit.Event)
}

// Mailer queues outbound transactional email. Enqueue must not block.
type Mailer interface {
	Enqueue(msg mail.Message)
}

// Config holds the credential-lifecycle policy knobs.
type Config struct {
	TokenExpiry      time.Duration // bearer token lifetime
	ResetTTL         time.Duration // password-reset secret lifetime
	VerificationTTL  time.Duration // email-verification secret lifetime
	LockoutThreshold int           // failed logins before locked=true
	BcryptCost       int
	BaseURL          string // absolute URL prefix used in emails
}

// AuthService orchestrates registration, login, and the password and
// verification flows. Every security-relevant branch emits an audit event
// before returning.
type AuthService struct {
	store     Store
	tokens    *token.Service
	auditor   Auditor
	mailer    Mailer
	validator *validation.PasswordValidator
	logger    *zap.Logger
	config    Config
}

func NewAuthService(
	st Store,
	tokens *token.Service,
	auditor Auditor,
	mailer Mailer,
	logger *zap.Logger,
	config Config,
) *AuthService {
	if config.LockoutThreshold == 0 {
		config.LockoutThreshold = 5
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.ResetTTL == 0 {
		config.ResetTTL = time.Hour
	}
	if config.VerificationTTL == 0 {
		config.VerificationTTL = 24 * time.Hour
	}

	return &AuthService{
		store:     st,
		tokens:    tokens,
		auditor:   auditor,
		mailer:    mailer,
		validator: validation.NewPasswordValidator(validation.DefaultPasswordPolicy()),
		logger:    logger,
		config:    config,
	}
}

// RequestMeta identifies the caller for audit purposes.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// RegisterInput carries the registration fields.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	BirthDate string
	Gender    string
	Contact   string
}

// Register creates a new, unverified account and queues the verification
// email. Duplicate emails (case-insensitive) fail with ErrUserExists.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (models.PublicUser, error) {
	email := store.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" || in.FirstName == "" {
		return models.PublicUser{}, fmt.Errorf("%w: email, password and firstName", apierr.ErrMissingFields)
	}

	if err := s.validator.Validate(in.Password); err != nil {
		return models.PublicUser{}, err
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return models.PublicUser{}, apierr.ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.config.BcryptCost)
	if err != nil {
		return models.PublicUser{}, err
	}

	secret, expires, err := s.tokens.IssueSecret(s.config.VerificationTTL)
	if err != nil {
		return models.PublicUser{}, err
	}

	user := &models.User{
		Email:               email,
		FirstName:           in.FirstName,
		LastName:            in.LastName,
		BirthDate:           in.BirthDate,
		Gender:              in.Gender,
		Contact:             in.Contact,
		Role:                models.RoleUser,
		HashedPassword:      string(hash),
		Verified:            false,
		VerificationToken:   secret,
		VerificationExpires: &expires,
	}

	if err := s.store.Insert(ctx, user); err != nil {
		return models.PublicUser{}, err
	}

	s.mailer.Enqueue(mail.VerificationEmail(email, secret, s.config.BaseURL))

	s.auditor.Record(audit.NewEvent(audit.LevelAudit, audit.EventRegisterSuccess,
		audit.RiskLow, meta.IP, meta.UserAgent, email, nil))

	created, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return user.Public(), nil
	}
	return created.Public(), nil
}

// LoginResult is what a successful login returns to the client.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      models.PublicUser
}

// Login authenticates the credentials. Every failure path returns
// ErrInvalidCredentials (or ErrAccountLocked, which handlers map to the same
// generic 401) so responses never reveal whether the email exists. A locked
// account rejects even the correct password until an admin unlocks it.
func (s *AuthService) Login(ctx context.Context, email, password string, meta RequestMeta) (LoginResult, error) {
	email = store.NormalizeEmail(email)

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		s.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventLoginFailure,
			audit.RiskLow, meta.IP, meta.UserAgent, email,
			map[string]any{"reason": "unknown user"}))
		return LoginResult{}, apierr.ErrInvalidCredentials
	}

	if user.Locked {
		s.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventLoginLocked,
			audit.RiskHigh, meta.IP, meta.UserAgent, email, nil))
		return LoginResult{}, apierr.ErrAccountLocked
	}

	if len(user.AllowedIPs) > 0 && !contains(user.AllowedIPs, meta.IP) {
		s.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventLoginBlockedIP,
			audit.RiskHigh, meta.IP, meta.UserAgent, email, nil))
		return LoginResult{}, apierr.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return LoginResult{}, s.recordLoginFailure(ctx, email, meta)
	}

	now := time.Now()
	if err := s.store.RecordLoginSuccess(ctx, email, now); err != nil {
		return LoginResult{}, err
	}

	signed, expiresAt, err := s.tokens.Issue(email, user.Role)
	if err != nil {
		return LoginResult{}, err
	}

	s.auditor.Record(audit.NewEvent(audit.LevelInfo, audit.EventLoginSuccess,
		audit.RiskLow, meta.IP, meta.UserAgent, email, nil))

	user.LastLogin = &now
	user.LoginAttempts = 0
	return LoginResult{Token: signed, ExpiresAt: expiresAt, User: user.Public()}, nil
}

func (s *AuthService) recordLoginFailure(ctx context.Context, email string, meta RequestMeta) error {
	attempts, locked, err := s.store.RecordLoginFailure(ctx, email, s.config.LockoutThreshold)
	if err != nil {
		return apierr.ErrInvalidCredentials
	}

	risk := audit.RiskMedium
	if attempts >= s.config.LockoutThreshold {
		risk = audit.RiskHigh
	}
	s.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventLoginFailure,
		risk, meta.IP, meta.UserAgent, email,
		map[string]any{"attempts": attempts}))

	if locked && attempts == s.config.LockoutThreshold {
		s.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventAccountLocked,
			audit.RiskHigh, meta.IP, meta.UserAgent, email,
			map[string]any{"attempts": attempts}))
	}

	return apierr.ErrInvalidCredentials
}

// ForgotPassword never reports whether the email exists. When it does, a
// fresh single-use reset secret is stored and emailed.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, meta RequestMeta) error {
	email = store.NormalizeEmail(email)

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		s.auditor.Record(audit.NewEvent(audit.LevelInfo, audit.EventPasswordResetRequest,
			audit.RiskLow, meta.IP, meta.UserAgent, email,
			map[string]any{"known": false}))
		return nil
	}

	secret, expires, err := s.tokens.IssueSecret(s.config.ResetTTL)
	if err != nil {
		return err
	}

	if err := s.store.SetResetToken(ctx, email, secret, expires); err != nil {
		return err
	}

	s.mailer.Enqueue(mail.ResetEmail(user.Email, secret, s.config.BaseURL))

	s.auditor.Record(audit.NewEvent(audit.LevelAudit, audit.EventPasswordResetRequest,
		audit.RiskLow, meta.IP, meta.UserAgent, email,
		map[string]any{"known": true}))

	return nil
}

// ResetPassword consumes the single-use reset secret and replaces the
// password hash in the same atomic state change. A secret that was already
// consumed, expired, or never issued fails identically.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string, meta RequestMeta) error {
	if err := s.validator.Validate(newPassword); err != nil {
		return err
	}

	user, err := s.store.FindByResetToken(ctx, resetToken)
	if err != nil {
		s.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventPasswordResetFailure,
			audit.RiskMedium, meta.IP, meta.UserAgent, "",
			map[string]any{"reason": "unknown token"}))
		return apierr.ErrSecretMismatch
	}

	if err := s.tokens.CheckSecret(resetToken, user.ResetToken, user.ResetExpires); err != nil {
		s.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventPasswordResetFailure,
			audit.RiskMedium, meta.IP, meta.UserAgent, user.Email, nil))
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.config.BcryptCost)
	if err != nil {
		return err
	}

	consumed, err := s.store.ConsumeResetToken(ctx, user.Email, resetToken, string(hash))
	if err != nil {
		return err
	}
	if !consumed {
		// Lost the race against a concurrent consumption of the same secret.
		s.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventPasswordResetFailure,
			audit.RiskMedium, meta.IP, meta.UserAgent, user.Email,
			map[string]any{"reason": "already consumed"}))
		return apierr.ErrSecretMismatch
	}

	s.auditor.Record(audit.NewEvent(audit.LevelAudit, audit.EventPasswordResetSuccess,
		audit.RiskLow, meta.IP, meta.UserAgent, user.Email, nil))

	return nil
}

// VerifyEmail consumes the verification secret and marks the account verified.
func (s *AuthService) VerifyEmail(ctx context.Context, email, verificationToken string, meta RequestMeta) error {
	email = store.NormalizeEmail(email)

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		s.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventEmailVerifyFailure,
			audit.RiskMedium, meta.IP, meta.UserAgent, email, nil))
		return apierr.ErrSecretMismatch
	}

	if err := s.tokens.CheckSecret(verificationToken, user.VerificationToken, user.VerificationExpires); err != nil {
		s.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventEmailVerifyFailure,
			audit.RiskMedium, meta.IP, meta.UserAgent, email, nil))
		return err
	}

	consumed, err := s.store.ConsumeVerificationToken(ctx, email, verificationToken)
	if err != nil {
		return err
	}
	if !consumed {
		s.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventEmailVerifyFailure,
			audit.RiskMedium, meta.IP, meta.UserAgent, email,
			map[string]any{"reason": "already consumed"}))
		return apierr.ErrSecretMismatch
	}

	s.auditor.Record(audit.NewEvent(audit.LevelAudit, audit.EventEmailVerified,
		audit.RiskLow, meta.IP, meta.UserAgent, email, nil))

	return nil
}

// ResendVerification reissues a fresh verification secret for the
// authenticated caller, invalidating the previous one.
func (s *AuthService) ResendVerification(ctx context.Context, email string, meta RequestMeta) error {
	email = store.NormalizeEmail(email)

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return apierr.ErrUserNotFound
	}
	if user.Verified {
		return nil
	}

	secret, expires, err := s.tokens.IssueSecret(s.config.VerificationTTL)
	if err != nil {
		return err
	}

	if err := s.store.SetVerificationToken(ctx, email, secret, expires); err != nil {
		return err
	}

	s.mailer.Enqueue(mail.VerificationEmail(user.Email, secret, s.config.BaseURL))

	s.auditor.Record(audit.NewEvent(audit.LevelAudit, audit.EventVerificationResent,
		audit.RiskLow, meta.IP, meta.UserAgent, email, nil))

	return nil
}

// ChangePassword requires the current password before accepting the new one.
func (s *AuthService) ChangePassword(ctx context.Context, email, currentPassword, newPassword string, meta RequestMeta) error {
	email = store.NormalizeEmail(email)

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return apierr.ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(currentPassword)); err != nil {
		s.auditor.Record(audit.NewEvent(audit.LevelSecurity, audit.EventLoginFailure,
			audit.RiskMedium, meta.IP, meta.UserAgent, email,
			map[string]any{"operation": "change-password"}))
		return apierr.ErrPasswordMismatch
	}

	if err := s.validator.Validate(newPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.config.BcryptCost)
	if err != nil {
		return err
	}

	if err := s.store.SetPassword(ctx, email, string(hash)); err != nil {
		return err
	}

	s.auditor.Record(audit.NewEvent(audit.LevelAudit, audit.EventPasswordChanged,
		audit.RiskLow, meta.IP, meta.UserAgent, email, nil))

	return nil
}

// UpdateProfile applies the allow-listed profile fields. Anything else in the
// request body was already discarded by the handler's typed decode.
func (s *AuthService) UpdateProfile(ctx context.Context, email string, update models.ProfileUpdate) (models.PublicUser, error) {
	email = store.NormalizeEmail(email)

	if !update.Empty() {
		if err := s.store.UpdateProfile(ctx, email, update); err != nil {
			return models.PublicUser{}, err
		}
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return models.PublicUser{}, err
	}
	return user.Public(), nil
}

// DeleteUser removes an account. Admin-only at the route layer.
func (s *AuthService) DeleteUser(ctx context.Context, email string, meta RequestMeta) error {
	email = store.NormalizeEmail(email)

	if err := s.store.Delete(ctx, email); err != nil {
		return err
	}

	s.auditor.Record(audit.NewEvent(audit.LevelAudit, audit.EventUserDeleted,
		audit.RiskMedium, meta.IP, meta.UserAgent, email, nil))

	return nil
}

// UnlockUser clears a lockout. Admin-only at the route layer; there is no
// automatic expiry on the locked state.
func (s *AuthService) UnlockUser(ctx context.Context, email string, meta RequestMeta) error {
	email = store.NormalizeEmail(email)

	if err := s.store.Unlock(ctx, email); err != nil {
		return err
	}

	s.auditor.Record(audit.NewEvent(audit.LevelAudit, audit.EventAccountUnlocked,
		audit.RiskMedium, meta.IP, meta.UserAgent, email, nil))

	return nil
}

// ListUsers returns a page of public user projections for the admin listing.
func (s *AuthService) ListUsers(ctx context.Context, opts store.ListOptions) ([]models.PublicUser, models.Pagination, error) {
	users, total, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, models.Pagination{}, err
	}

	public := make([]models.PublicUser, 0, len(users))
	for i := range users {
		public = append(public, users[i].Public())
	}

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PerPage < 1 || opts.PerPage > 100 {
		opts.PerPage = 20
	}
	totalPages := (total + opts.PerPage - 1) / opts.PerPage

	return public, models.Pagination{
		CurrentPage:  opts.Page,
		TotalPages:   totalPages,
		TotalUsers:   total,
		UsersPerPage: opts.PerPage,
	}, nil
}

// GetUser loads a single public projection.
func (s *AuthService) GetUser(ctx context.Context, email string) (models.PublicUser, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return models.PublicUser{}, err
	}
	return user.Public(), nil
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

// IsValidationError reports whether err should surface as a 400.
func IsValidationError(err error) bool {
	return errors.Is(err, validation.ErrPasswordTooShort) ||
		errors.Is(err, validation.ErrPasswordTooLong) ||
		errors.Is(err, validation.ErrMissingUppercase) ||
		errors.Is(err, validation.ErrMissingLowercase) ||
		errors.Is(err, validation.ErrMissingNumber) ||
		errors.Is(err, validation.ErrMissingSpecial)
}
