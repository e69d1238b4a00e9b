package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"duelgrounds/internal/store"
	"duelgrounds/protocol"
)

func newTestService(t *testing.T) (*Service, *store.Memory, *time.Time) {
	t.Helper()
	m := store.NewMemory()
	svc := NewService(m, time.Hour, zap.NewNop().Sugar())
	now := time.Unix(50_000, 0)
	svc.now = func() time.Time { return now }
	return svc, m, &now
}

func wireCode(t *testing.T, err error) protocol.Code {
	t.Helper()
	var we *protocol.WireError
	if !errors.As(err, &we) {
		t.Fatalf("expected wire error, got %v", err)
	}
	return we.Code
}

func register(t *testing.T, svc *Service, username, email, password string) store.Account {
	t.Helper()
	acc, err := svc.Register(context.Background(), username, email, password)
	if err != nil {
		t.Fatalf("register %q: %v", username, err)
	}
	return acc
}

func TestPasswordHashRoundTrip(t *testing.T) {
	encoded, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.Contains(encoded, ":") {
		t.Fatalf("expected salt:digest encoding, got %q", encoded)
	}
	if !VerifyPassword(encoded, "hunter22") {
		t.Fatalf("expected password to verify")
	}
	if VerifyPassword(encoded, "hunter23") {
		t.Fatalf("wrong password must not verify")
	}
	if VerifyPassword("garbage", "hunter22") {
		t.Fatalf("malformed hash must not verify")
	}
}

func TestRegisterRejections(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), "", "a@b.c", "longenough")
	if got := wireCode(t, err); got != protocol.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %s", got)
	}
	_, err = svc.Register(context.Background(), "alice", "a@b.c", "short")
	if got := wireCode(t, err); got != protocol.CodeWeakPassword {
		t.Fatalf("expected WEAK_PASSWORD, got %s", got)
	}

	register(t, svc, "alice", "alice@example.com", "password123")
	_, err = svc.Register(context.Background(), "ALICE", "other@example.com", "password123")
	if got := wireCode(t, err); got != protocol.CodeDuplicateUser {
		t.Fatalf("expected DUPLICATE_USER, got %s", got)
	}
}

func TestLoginByUsernameOrEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	acc := register(t, svc, "alice", "alice@example.com", "password123")

	sess, got, err := svc.Login(context.Background(), "ALICE", "password123")
	if err != nil {
		t.Fatalf("login by username: %v", err)
	}
	if got.ID != acc.ID {
		t.Fatalf("expected account %s, got %s", acc.ID, got.ID)
	}
	if sess.ExpiresAt.Sub(sess.IssuedAt) != time.Hour {
		t.Fatalf("unexpected session ttl: %v", sess.ExpiresAt.Sub(sess.IssuedAt))
	}

	if _, _, err := svc.Login(context.Background(), "Alice@Example.com", "password123"); err != nil {
		t.Fatalf("login by email: %v", err)
	}

	_, _, err = svc.Login(context.Background(), "alice", "wrongpass123")
	if got := wireCode(t, err); got != protocol.CodeInvalidCredentials {
		t.Fatalf("expected INVALID_CREDENTIALS, got %s", got)
	}
	_, _, err = svc.Login(context.Background(), "nobody", "password123")
	if got := wireCode(t, err); got != protocol.CodeInvalidCredentials {
		t.Fatalf("expected INVALID_CREDENTIALS for unknown user, got %s", got)
	}
}

func TestLoginRefusesBannedAccount(t *testing.T) {
	svc, m, now := newTestService(t)
	acc := register(t, svc, "alice", "alice@example.com", "password123")
	if _, err := m.AddBan(context.Background(), acc.ID, "griefing", *now, nil); err != nil {
		t.Fatalf("add ban: %v", err)
	}

	_, _, err := svc.Login(context.Background(), "alice", "password123")
	if got := wireCode(t, err); got != protocol.CodeBanned {
		t.Fatalf("expected BANNED, got %s", got)
	}
}

func TestResolveTokenDeletesExpiredSessions(t *testing.T) {
	svc, m, now := newTestService(t)
	register(t, svc, "alice", "alice@example.com", "password123")
	sess, _, err := svc.Login(context.Background(), "alice", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := svc.ResolveToken(context.Background(), sess.Token); err != nil {
		t.Fatalf("resolve fresh session: %v", err)
	}

	*now = now.Add(2 * time.Hour)
	_, err = svc.ResolveToken(context.Background(), sess.Token)
	if got := wireCode(t, err); got != protocol.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED after expiry, got %s", got)
	}
	if _, err := m.SessionByToken(context.Background(), sess.Token); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected expired session to be deleted, got %v", err)
	}
}

func TestResolveTokenHidesBansButCombatSeesThem(t *testing.T) {
	svc, m, now := newTestService(t)
	acc := register(t, svc, "alice", "alice@example.com", "password123")
	sess, _, err := svc.Login(context.Background(), "alice", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := m.AddBan(context.Background(), acc.ID, "griefing", *now, nil); err != nil {
		t.Fatalf("add ban: %v", err)
	}

	_, err = svc.ResolveToken(context.Background(), sess.Token)
	if got := wireCode(t, err); got != protocol.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED for banned account, got %s", got)
	}

	got, err := svc.ResolveIgnoringBan(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("ban-blind resolve must still identify the account: %v", err)
	}
	if got.ID != acc.ID {
		t.Fatalf("expected account %s, got %s", acc.ID, got.ID)
	}
	if _, banned, _ := svc.CheckBan(context.Background(), acc.ID); !banned {
		t.Fatalf("expected CheckBan to report the ban")
	}
}
