package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"bookstore/internal/domain"

	"github.com/google/uuid"
)

// ChallengeTTL is how long an emailed code stays verifiable.
const ChallengeTTL = 5 * time.Minute

var (
	// ErrNoChallenge indicates that the session holds no pending challenge.
	ErrNoChallenge = domain.NewError(domain.KindValidation, "no challenge pending")
	// ErrCodeRequired indicates that no code was submitted.
	ErrCodeRequired = domain.NewError(domain.KindValidation, "code required")
	// ErrCodeExpired indicates that the challenge outlived ChallengeTTL and has been discarded.
	ErrCodeExpired = domain.NewError(domain.KindConflict, "code expired, login again")
	// ErrIncorrectCode indicates a mismatch. The challenge is kept for another attempt.
	ErrIncorrectCode = domain.NewError(domain.KindAuth, "incorrect code")
	// ErrUserGone indicates that the challenged account was removed.
	ErrUserGone = domain.NewError(domain.KindValidation, "user no longer exists")
)

// GenerateCode returns a DDD-DDD code with each group drawn uniformly from [100, 999].
func GenerateCode() (string, error) {
	a, err := codeGroup()
	if err != nil {
		return "", err
	}
	b, err := codeGroup()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%d", a, b), nil
}

func codeGroup() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900))
	if err != nil {
		return 0, err
	}
	return n.Int64() + 100, nil
}

type challengeMail struct {
	subject string
	purpose string
}

var (
	loginCodeMail = challengeMail{
		subject: "Your login verification code",
		purpose: "login verification",
	}
	passwordCodeMail = challengeMail{
		subject: "Confirm your password change",
		purpose: "password change",
	}
)

// HashCode returns the hex SHA-256 of a code as stored in challenge records.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

type challenger struct {
	store   domain.ChallengeRepository
	mailer  domain.Mailer
	now     func() time.Time
	newCode func() (string, error)
}

func newChallenger(store domain.ChallengeRepository, mailer domain.Mailer, o options) challenger {
	return challenger{store: store, mailer: mailer, now: o.now, newCode: o.newCode}
}

// issue creates a challenge for u and mails its code. The record is stored and
// the session reference returned only once delivery succeeded.
func (c challenger) issue(ctx context.Context, u *domain.User, m challengeMail) (*domain.PendingChallenge, error) {
	code, err := c.newCode()
	if err != nil {
		return nil, domain.Dependency("internal error", fmt.Errorf("generate code: %w", err))
	}

	rec := &domain.Challenge{
		ID:       uuid.NewString(),
		UserID:   u.ID,
		CodeHash: HashCode(code),
		Expires:  c.now().Add(ChallengeTTL),
	}

	minutes := int(ChallengeTTL / time.Minute)
	msg := domain.Message{
		To:      u.Email,
		Subject: m.subject,
		Text:    fmt.Sprintf("Your %s code is %s. It expires in %d minutes.", m.purpose, code, minutes),
		HTML: fmt.Sprintf("<p>Your %s code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>",
			m.purpose, code, minutes),
	}
	if err := c.mailer.Send(ctx, msg); err != nil {
		return nil, domain.Dependency("failed to send verification code", err)
	}
	if err := c.store.SaveChallenge(ctx, rec); err != nil {
		return nil, domain.Dependency("internal error", fmt.Errorf("save challenge: %w", err))
	}

	return &domain.PendingChallenge{
		ID:      rec.ID,
		UserID:  u.ID,
		Email:   u.Email,
		Role:    u.Role,
		Expires: rec.Expires,
	}, nil
}

// discard clears the slot and drops a superseded challenge's record.
func (c challenger) discard(ctx context.Context, slot **domain.PendingChallenge) {
	if p := *slot; p != nil {
		_, _ = c.store.DeleteChallenge(ctx, p.ID)
	}
	*slot = nil
}

// verify checks submitted against the challenge referenced by *slot, in order:
// presence, submitted code, expiry, match. An expired or already consumed
// challenge is removed from the slot; a mismatched one is left in place.
// Success does not consume the challenge; callers finish with consume.
func (c challenger) verify(ctx context.Context, slot **domain.PendingChallenge, submitted string) (*domain.PendingChallenge, error) {
	p := *slot
	if p == nil {
		return nil, ErrNoChallenge
	}
	submitted = strings.TrimSpace(submitted)
	if submitted == "" {
		return nil, ErrCodeRequired
	}
	if p.Expired(c.now()) {
		c.discard(ctx, slot)
		return nil, ErrCodeExpired
	}

	rec, err := c.store.GetChallenge(ctx, p.ID)
	if err != nil {
		return nil, domain.Dependency("internal error", fmt.Errorf("get challenge: %w", err))
	}
	if rec == nil || rec.UserID != p.UserID {
		*slot = nil
		return nil, ErrNoChallenge
	}
	if !ConstantTimeCompare(rec.CodeHash, HashCode(submitted)) {
		return nil, ErrIncorrectCode
	}
	return p, nil
}

// consume deletes the record behind a verified challenge. Of two concurrent
// verifications of the same code only one gets a nil error.
func (c challenger) consume(ctx context.Context, slot **domain.PendingChallenge, p *domain.PendingChallenge) error {
	*slot = nil
	ok, err := c.store.DeleteChallenge(ctx, p.ID)
	if err != nil {
		return domain.Dependency("internal error", fmt.Errorf("delete challenge: %w", err))
	}
	if !ok {
		return ErrNoChallenge
	}
	return nil
}
