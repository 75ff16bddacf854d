// Package app holds the application services and business logic.
package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"bookstore/internal/domain"

	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials indicates that the provided email or password was incorrect.
	ErrInvalidCredentials = domain.NewError(domain.KindAuth, "invalid credentials")
	// ErrNotAuthenticated indicates that the session has no authenticated user.
	ErrNotAuthenticated = domain.NewError(domain.KindAuth, "not authenticated")
	// ErrForbidden indicates that the session user may not perform the operation.
	ErrForbidden = domain.NewError(domain.KindForbidden, "forbidden")
	// ErrInvalidPayload indicates missing or malformed input.
	ErrInvalidPayload = domain.NewError(domain.KindValidation, "invalid payload")
	// ErrEmailTaken indicates that an account already uses the email address.
	ErrEmailTaken = domain.NewError(domain.KindConflict, "email already registered")
	// ErrUserNotFound indicates that the user does not exist.
	ErrUserNotFound = domain.NewError(domain.KindNotFound, "user not found")
	// ErrSSORefused indicates an account that must sign in with its password.
	ErrSSORefused = domain.NewError(domain.KindForbidden, "single sign-on is not available for this account")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// LoginResult tells the caller whether login completed or awaits a 2FA code.
type LoginResult struct {
	TwoFactorPending bool
}

// RegisterInput carries the fields of a self-service registration.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// AuthService handles login, two-factor verification and registration.
type AuthService struct {
	users      domain.UserRepository
	challenges challenger
	hasher     passwordHasher
	log        *zap.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(users domain.UserRepository, challenges domain.ChallengeRepository, mailer domain.Mailer, opts ...Option) *AuthService {
	o := buildOptions(opts)
	return &AuthService{
		users:      users,
		challenges: newChallenger(challenges, mailer, o),
		hasher:     newPasswordHasher(o.bcryptCost),
		log:        o.log,
	}
}

// Login verifies credentials. Accounts without 2FA are authenticated immediately;
// otherwise a code is mailed and st.Pending2FA is set while st.User stays empty.
func (s *AuthService) Login(ctx context.Context, st *domain.SessionState, email, password string) (LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, domain.Dependency("internal error", fmt.Errorf("get user: %w", err))
	}
	if user == nil || !s.hasher.matches(user.PasswordHash, password) {
		return LoginResult{}, ErrInvalidCredentials
	}

	if !user.TwoFactorEnabled {
		s.signIn(ctx, st, user)
		s.log.Info("user logged in", zap.Int64("user_id", user.ID))
		return LoginResult{}, nil
	}
	return s.challenge(ctx, st, user)
}

// challenge mails a login code and leaves the session waiting for Verify2FA.
func (s *AuthService) challenge(ctx context.Context, st *domain.SessionState, user *domain.User) (LoginResult, error) {
	pending, err := s.challenges.issue(ctx, user, loginCodeMail)
	if err != nil {
		return LoginResult{}, err
	}
	s.clearSession(ctx, st)
	st.Pending2FA = pending
	s.log.Info("2fa challenge issued", zap.Int64("user_id", user.ID))
	return LoginResult{TwoFactorPending: true}, nil
}

func (s *AuthService) signIn(ctx context.Context, st *domain.SessionState, user *domain.User) {
	s.clearSession(ctx, st)
	st.User = user.Snapshot()
}

// clearSession empties every slot and drops the records of pending challenges.
func (s *AuthService) clearSession(ctx context.Context, st *domain.SessionState) {
	s.challenges.discard(ctx, &st.Pending2FA)
	s.challenges.discard(ctx, &st.PendingPasswordChange)
	st.Clear()
}

// Verify2FA completes a pending login. It is the only way a 2FA-enabled account
// becomes authenticated.
func (s *AuthService) Verify2FA(ctx context.Context, st *domain.SessionState, code string) error {
	pending, err := s.challenges.verify(ctx, &st.Pending2FA, code)
	if err != nil {
		return err
	}
	if err := s.challenges.consume(ctx, &st.Pending2FA, pending); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, pending.UserID)
	if err != nil {
		return domain.Dependency("internal error", fmt.Errorf("get user: %w", err))
	}
	if user == nil {
		return ErrUserGone
	}

	s.signIn(ctx, st, user)
	s.log.Info("2fa verified", zap.Int64("user_id", user.ID))
	return nil
}

// Register creates a user-role account. It does not log the account in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = normalizeEmail(in.Email)

	if in.FirstName == "" || in.LastName == "" {
		return nil, domain.NewError(domain.KindValidation, "first and last name are required")
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if !validPassword(in.Password) {
		return nil, errPasswordTooShort
	}

	hash, err := s.hasher.hash(in.Password)
	if err != nil {
		return nil, domain.Dependency("internal error", fmt.Errorf("hash password: %w", err))
	}

	user, err := s.users.Create(ctx, &domain.User{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	})
	if errors.Is(err, domain.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, domain.Dependency("internal error", fmt.Errorf("create user: %w", err))
	}
	s.log.Info("user registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// LoginExternal authenticates an identity asserted by the SSO provider,
// provisioning a user-role account on first sight. Accounts with 2FA enabled
// still receive an emailed code; admin accounts without 2FA are refused.
func (s *AuthService) LoginExternal(ctx context.Context, st *domain.SessionState, email, firstName, lastName string) (LoginResult, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return LoginResult{}, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, domain.Dependency("internal error", fmt.Errorf("get user: %w", err))
	}
	if user == nil {
		user, err = s.users.Create(ctx, &domain.User{
			FirstName: firstName,
			LastName:  lastName,
			Email:     email,
			Role:      domain.RoleUser,
		})
		if errors.Is(err, domain.ErrDuplicate) {
			// Lost a race with a concurrent first login.
			user, err = s.users.GetByEmail(ctx, email)
		}
		if err != nil {
			return LoginResult{}, domain.Dependency("internal error", fmt.Errorf("provision user: %w", err))
		}
		if user == nil {
			return LoginResult{}, ErrUserGone
		}
	}

	if user.TwoFactorEnabled {
		return s.challenge(ctx, st, user)
	}
	if user.Role != domain.RoleUser {
		s.log.Warn("sso refused for privileged account", zap.Int64("user_id", user.ID))
		return LoginResult{}, ErrSSORefused
	}

	s.signIn(ctx, st, user)
	s.log.Info("user logged in via sso", zap.Int64("user_id", user.ID))
	return LoginResult{}, nil
}

// CreateInitialAdmin creates an admin account if no users exist yet.
func (s *AuthService) CreateInitialAdmin(ctx context.Context, in RegisterInput) (*domain.User, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return nil, domain.Dependency("internal error", fmt.Errorf("count users: %w", err))
	}
	if count > 0 {
		return nil, domain.NewError(domain.KindConflict, "users already exist")
	}

	user, err := s.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	user.Role = domain.RoleAdmin
	if _, err := s.users.Update(ctx, user); err != nil {
		return nil, domain.Dependency("internal error", fmt.Errorf("promote user: %w", err))
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validateEmail(email string) error {
	if email == "" {
		return domain.NewError(domain.KindValidation, "email is required")
	}
	if !emailPattern.MatchString(email) {
		return domain.NewError(domain.KindValidation, "invalid email format")
	}
	return nil
}

// ConstantTimeCompare performs a constant-time comparison of two strings.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
