// Package auth implements account registration, credential checks and
// bearer-session resolution on top of the store.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"duelgrounds/internal/store"
	"duelgrounds/protocol"
)

// DefaultSessionTTL matches the deployment default; config can override it.
const DefaultSessionTTL = time.Hour

const minPasswordLen = 8

// Service validates credentials and manages sessions. Rejections are
// returned as *protocol.WireError so handlers can pass them to the wire
// unchanged.
type Service struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
	log   *zap.SugaredLogger
}

func NewService(st store.Store, ttl time.Duration, log *zap.SugaredLogger) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{store: st, ttl: ttl, now: time.Now, log: log}
}

// SessionTTL is the lifetime applied to new sessions.
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

func (s *Service) Register(ctx context.Context, username, email, password string) (store.Account, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || email == "" || password == "" {
		return store.Account{}, protocol.Reject(protocol.CodeValidation, "username, email and password are required")
	}
	if len(password) < minPasswordLen {
		return store.Account{}, protocol.Reject(protocol.CodeWeakPassword, "password must have at least 8 characters")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return store.Account{}, err
	}
	acc, err := s.store.CreateAccount(ctx, username, email, hash, s.now())
	if errors.Is(err, store.ErrDuplicate) {
		return store.Account{}, protocol.Reject(protocol.CodeDuplicateUser, "A user with this username or email already exists")
	}
	if err != nil {
		return store.Account{}, err
	}
	s.log.Infow("account registered", "accountId", acc.ID, "username", acc.Username)
	return acc, nil
}

// Login verifies the credential (username or email) and mints a session.
// Banned accounts are refused after the password check so the response never
// reveals whether a banned credential was valid.
func (s *Service) Login(ctx context.Context, credential, password string) (store.Session, store.Account, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" || password == "" {
		return store.Session{}, store.Account{}, protocol.Reject(protocol.CodeValidation, "credential and password are required")
	}

	acc, err := s.store.AccountByLogin(ctx, credential)
	if errors.Is(err, store.ErrNotFound) {
		return store.Session{}, store.Account{}, protocol.Reject(protocol.CodeInvalidCredentials, "Credential or password is incorrect")
	}
	if err != nil {
		return store.Session{}, store.Account{}, err
	}
	if !VerifyPassword(acc.PasswordHash, password) {
		return store.Session{}, store.Account{}, protocol.Reject(protocol.CodeInvalidCredentials, "Credential or password is incorrect")
	}

	now := s.now()
	if _, banned, err := s.store.ActiveBan(ctx, acc.ID, now); err != nil {
		return store.Session{}, store.Account{}, err
	} else if banned {
		return store.Session{}, store.Account{}, protocol.Reject(protocol.CodeBanned, "This account is banned")
	}

	sess, err := s.store.CreateSession(ctx, acc.ID, now, s.ttl)
	if err != nil {
		return store.Session{}, store.Account{}, err
	}
	if err := s.store.RecordLogin(ctx, acc.ID, now); err != nil {
		return store.Session{}, store.Account{}, err
	}
	s.log.Infow("login", "accountId", acc.ID, "username", acc.Username)
	return sess, acc, nil
}

// Logout revokes the session. Unknown tokens are ignored so logout stays
// idempotent.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.store.RevokeSession(ctx, token)
}

// ResolveToken returns the account behind a live session. Expired sessions
// are deleted on sight. Banned accounts resolve like missing sessions, so
// general endpoints reveal nothing beyond "unauthorized"; combat surfaces
// bans explicitly via CheckBan.
func (s *Service) ResolveToken(ctx context.Context, token string) (store.Account, error) {
	acc, err := s.ResolveIgnoringBan(ctx, token)
	if err != nil {
		return store.Account{}, err
	}
	if _, banned, err := s.store.ActiveBan(ctx, acc.ID, s.now()); err != nil {
		return store.Account{}, err
	} else if banned {
		return store.Account{}, errUnauthorized()
	}
	return acc, nil
}

// ResolveIgnoringBan skips the ban gate. The hit pipeline uses it to report
// BANNED as its own rejection step, and logout uses it so a banned account
// can still tear down its session.
func (s *Service) ResolveIgnoringBan(ctx context.Context, token string) (store.Account, error) {
	if token == "" {
		return store.Account{}, errUnauthorized()
	}
	sess, err := s.store.SessionByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return store.Account{}, errUnauthorized()
	}
	if err != nil {
		return store.Account{}, err
	}
	if !sess.ExpiresAt.After(s.now()) {
		if err := s.store.RevokeSession(ctx, token); err != nil {
			s.log.Warnw("revoke expired session", "error", err)
		}
		return store.Account{}, errUnauthorized()
	}
	acc, err := s.store.AccountByID(ctx, sess.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Account{}, errUnauthorized()
	}
	return acc, err
}

// CheckBan reports the active ban for an account, if any.
func (s *Service) CheckBan(ctx context.Context, accountID string) (store.Ban, bool, error) {
	return s.store.ActiveBan(ctx, accountID, s.now())
}

func errUnauthorized() *protocol.WireError {
	return protocol.Reject(protocol.CodeUnauthorized, "Valid non-banned session required")
}
