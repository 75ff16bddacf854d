package app

import (
	"context"
	"fmt"
	"strings"

	"bookstore/internal/domain"

	"go.uber.org/zap"
)

var (
	errPasswordTooShort = domain.NewError(domain.KindValidation,
		fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	// ErrChallengeMismatch indicates a password-change challenge issued to another identity.
	ErrChallengeMismatch = domain.NewError(domain.KindForbidden, "challenge does not belong to this session")
)

// ProfileService manages the authenticated user's own account.
type ProfileService struct {
	users      domain.UserRepository
	challenges challenger
	hasher     passwordHasher
	log        *zap.Logger
}

// NewProfileService creates a ProfileService.
func NewProfileService(users domain.UserRepository, challenges domain.ChallengeRepository, mailer domain.Mailer, opts ...Option) *ProfileService {
	o := buildOptions(opts)
	return &ProfileService{
		users:      users,
		challenges: newChallenger(challenges, mailer, o),
		hasher:     newPasswordHasher(o.bcryptCost),
		log:        o.log,
	}
}

// Get returns the current user's account.
func (s *ProfileService) Get(ctx context.Context, st *domain.SessionState) (*domain.User, error) {
	if !st.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	return s.currentUser(ctx, st)
}

// Update changes the user's name and refreshes the session snapshot.
func (s *ProfileService) Update(ctx context.Context, st *domain.SessionState, firstName, lastName string) (*domain.User, error) {
	if !st.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, domain.NewError(domain.KindValidation, "first and last name are required")
	}

	user, err := s.currentUser(ctx, st)
	if err != nil {
		return nil, err
	}
	user.FirstName = firstName
	user.LastName = lastName
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	st.User = user.Snapshot()
	return user, nil
}

// SetTwoFactor enables or disables emailed login codes for the current user.
func (s *ProfileService) SetTwoFactor(ctx context.Context, st *domain.SessionState, enabled bool) error {
	if !st.Authenticated() {
		return ErrNotAuthenticated
	}
	user, err := s.currentUser(ctx, st)
	if err != nil {
		return err
	}
	user.TwoFactorEnabled = enabled
	if err := s.save(ctx, user); err != nil {
		return err
	}
	s.log.Info("2fa setting changed", zap.Int64("user_id", user.ID), zap.Bool("enabled", enabled))
	return nil
}

// RequestPasswordChange mails a confirmation code and stores it in st.PendingPasswordChange.
func (s *ProfileService) RequestPasswordChange(ctx context.Context, st *domain.SessionState) error {
	if !st.Authenticated() {
		return ErrNotAuthenticated
	}
	user, err := s.currentUser(ctx, st)
	if err != nil {
		return err
	}

	pending, err := s.challenges.issue(ctx, user, passwordCodeMail)
	if err != nil {
		return err
	}
	s.challenges.discard(ctx, &st.Pending2FA)
	s.challenges.discard(ctx, &st.PendingPasswordChange)
	st.PendingPasswordChange = pending
	s.log.Info("password change challenge issued", zap.Int64("user_id", user.ID))
	return nil
}

// ConfirmPasswordChange verifies the emailed code and replaces the password hash.
func (s *ProfileService) ConfirmPasswordChange(ctx context.Context, st *domain.SessionState, code, newPassword string) error {
	if !st.Authenticated() {
		return ErrNotAuthenticated
	}

	pending, err := s.challenges.verify(ctx, &st.PendingPasswordChange, code)
	if err != nil {
		return err
	}
	if pending.UserID != st.User.ID {
		s.challenges.discard(ctx, &st.PendingPasswordChange)
		s.log.Warn("password change challenge mismatch",
			zap.Int64("user_id", st.User.ID), zap.Int64("challenge_user_id", pending.UserID))
		return ErrChallengeMismatch
	}
	if !validPassword(newPassword) {
		return errPasswordTooShort
	}
	if err := s.challenges.consume(ctx, &st.PendingPasswordChange, pending); err != nil {
		return err
	}

	hash, err := s.hasher.hash(newPassword)
	if err != nil {
		return domain.Dependency("internal error", fmt.Errorf("hash password: %w", err))
	}
	ok, err := s.users.UpdatePassword(ctx, pending.UserID, hash)
	if err != nil {
		return domain.Dependency("internal error", fmt.Errorf("update password: %w", err))
	}
	if !ok {
		return ErrUserGone
	}
	s.log.Info("password changed", zap.Int64("user_id", pending.UserID))
	return nil
}

func (s *ProfileService) currentUser(ctx context.Context, st *domain.SessionState) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, st.User.ID)
	if err != nil {
		return nil, domain.Dependency("internal error", fmt.Errorf("get user: %w", err))
	}
	if user == nil {
		return nil, ErrUserGone
	}
	return user, nil
}

func (s *ProfileService) save(ctx context.Context, user *domain.User) error {
	ok, err := s.users.Update(ctx, user)
	if err != nil {
		return domain.Dependency("internal error", fmt.Errorf("update user: %w", err))
	}
	if !ok {
		return ErrUserGone
	}
	return nil
}
