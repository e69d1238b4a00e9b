package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seedAccount(t *testing.T, m *Memory, username, email string) Account {
	t.Helper()
	acc, err := m.CreateAccount(context.Background(), username, email, "hash", time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("create account %q: %v", username, err)
	}
	return acc
}

func seedProfile(t *testing.T, m *Memory, accountID, name string) Profile {
	t.Helper()
	prof, err := m.CreateProfile(context.Background(), accountID, name, "", time.Unix(2000, 0))
	if err != nil {
		t.Fatalf("create profile %q: %v", name, err)
	}
	return prof
}

func TestCreateProfileGrantsStarterKit(t *testing.T) {
	m := NewMemory()
	acc := seedAccount(t, m, "alice", "alice@example.com")
	prof := seedProfile(t, m, acc.ID, "Alice")

	if prof.EquippedWeaponID != "diamond_sword" {
		t.Fatalf("expected diamond_sword equipped, got %q", prof.EquippedWeaponID)
	}
	if !prof.PvPEnabled {
		t.Fatalf("expected pvp enabled by default")
	}
	if prof.X != 0 || prof.Y != 0 {
		t.Fatalf("expected spawn at origin, got (%v, %v)", prof.X, prof.Y)
	}
	if prof.Attributes["power"] != 10 || prof.Attributes["agility"] != 10 {
		t.Fatalf("unexpected default attributes: %v", prof.Attributes)
	}
	if prof.Assets["coins"] != 100 {
		t.Fatalf("unexpected default assets: %v", prof.Assets)
	}

	owned, err := m.OwnedWeapons(context.Background(), prof.ID)
	if err != nil {
		t.Fatalf("owned weapons: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("expected 2 starter weapons, got %d", len(owned))
	}
	equipped := 0
	for _, ow := range owned {
		if ow.Equipped {
			equipped++
		}
	}
	if equipped != 1 {
		t.Fatalf("expected exactly one equipped starter weapon, got %d", equipped)
	}
}

func TestDuplicateAccountsRejectedCaseInsensitive(t *testing.T) {
	m := NewMemory()
	seedAccount(t, m, "Alice", "alice@example.com")

	if _, err := m.CreateAccount(context.Background(), "alice", "other@example.com", "hash", time.Unix(1001, 0)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for username, got %v", err)
	}
	if _, err := m.CreateAccount(context.Background(), "bob", "ALICE@example.com", "hash", time.Unix(1001, 0)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for email, got %v", err)
	}
}

func TestAccountByLoginMatchesUsernameOrEmail(t *testing.T) {
	m := NewMemory()
	acc := seedAccount(t, m, "Alice", "alice@example.com")

	byName, err := m.AccountByLogin(context.Background(), "ALICE")
	if err != nil || byName.ID != acc.ID {
		t.Fatalf("lookup by username: got %+v, %v", byName, err)
	}
	byEmail, err := m.AccountByLogin(context.Background(), "Alice@Example.com")
	if err != nil || byEmail.ID != acc.ID {
		t.Fatalf("lookup by email: got %+v, %v", byEmail, err)
	}
	if _, err := m.AccountByLogin(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEquipRejectsUnownedWeaponWithoutChanges(t *testing.T) {
	m := NewMemory()
	acc := seedAccount(t, m, "alice", "alice@example.com")
	prof := seedProfile(t, m, acc.ID, "Alice")

	if err := m.EquipWeapon(context.Background(), prof.ID, "netherite_sword"); err != nil {
		t.Fatalf("equip owned weapon: %v", err)
	}
	if err := m.EquipWeapon(context.Background(), prof.ID, "excalibur"); !errors.Is(err, ErrWeaponNotOwned) {
		t.Fatalf("expected ErrWeaponNotOwned, got %v", err)
	}

	w, ok, err := m.EquippedWeapon(context.Background(), prof.ID)
	if err != nil || !ok {
		t.Fatalf("equipped weapon: ok=%v err=%v", ok, err)
	}
	if w.ID != "netherite_sword" {
		t.Fatalf("failed equip must not change equipment, got %q", w.ID)
	}
}

func TestConcurrentEquipsKeepExactlyOneEquipped(t *testing.T) {
	m := NewMemory()
	acc := seedAccount(t, m, "alice", "alice@example.com")
	prof := seedProfile(t, m, acc.ID, "Alice")

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		weaponID := starterWeaponIDs[g%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if err := m.EquipWeapon(context.Background(), prof.ID, weaponID); err != nil {
					t.Errorf("equip %s: %v", weaponID, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	owned, err := m.OwnedWeapons(context.Background(), prof.ID)
	if err != nil {
		t.Fatalf("owned weapons: %v", err)
	}
	equipped := 0
	for _, ow := range owned {
		if ow.Equipped {
			equipped++
		}
	}
	if equipped != 1 {
		t.Fatalf("expected exactly one equipped weapon after concurrent equips, got %d", equipped)
	}
}

func TestAtomicSerializesProfilePairs(t *testing.T) {
	m := NewMemory()
	acc := seedAccount(t, m, "alice", "alice@example.com")
	a := seedProfile(t, m, acc.ID, "A")
	b := seedProfile(t, m, acc.ID, "B")

	bump := func(tx Store, id string) error {
		prof, err := tx.ProfileByID(context.Background(), id)
		if err != nil {
			return err
		}
		return tx.UpdatePosition(context.Background(), id, prof.X+1, prof.Y)
	}

	const rounds = 50
	var wg sync.WaitGroup
	for _, order := range [][]string{{a.ID, b.ID}, {b.ID, a.ID}} {
		order := order
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				err := m.Atomic(context.Background(), order, func(tx Store) error {
					if err := bump(tx, order[0]); err != nil {
						return err
					}
					return bump(tx, order[1])
				})
				if err != nil {
					t.Errorf("atomic: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, id := range []string{a.ID, b.ID} {
		prof, err := m.ProfileByID(context.Background(), id)
		if err != nil {
			t.Fatalf("profile %s: %v", id, err)
		}
		if prof.X != 2*rounds {
			t.Fatalf("expected x=%d after serialized increments, got %v", 2*rounds, prof.X)
		}
	}
}

func TestAtomicRejectsNesting(t *testing.T) {
	m := NewMemory()
	err := m.Atomic(context.Background(), nil, func(tx Store) error {
		return tx.Atomic(context.Background(), nil, func(Store) error { return nil })
	})
	if !errors.Is(err, ErrNestedAtomic) {
		t.Fatalf("expected ErrNestedAtomic, got %v", err)
	}
}

func TestAcceptQuestKeepsFirstAcceptedAt(t *testing.T) {
	m := NewMemory()
	acc := seedAccount(t, m, "alice", "alice@example.com")
	prof := seedProfile(t, m, acc.ID, "Alice")

	first := time.Unix(3000, 0)
	again := time.Unix(4000, 0)
	if err := m.AcceptQuest(context.Background(), prof.ID, "welcome_duel", first); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := m.AcceptQuest(context.Background(), prof.ID, "welcome_duel", again); err != nil {
		t.Fatalf("re-accept: %v", err)
	}

	quests, err := m.QuestsFor(context.Background(), prof.ID)
	if err != nil {
		t.Fatalf("quests: %v", err)
	}
	if len(quests) != 1 {
		t.Fatalf("expected one quest row, got %d", len(quests))
	}
	if !quests[0].AcceptedAt.Equal(first) {
		t.Fatalf("re-accept must keep original AcceptedAt, got %v", quests[0].AcceptedAt)
	}
	if !quests[0].UpdatedAt.Equal(again) {
		t.Fatalf("re-accept must refresh UpdatedAt, got %v", quests[0].UpdatedAt)
	}

	if err := m.AcceptQuest(context.Background(), prof.ID, "no_such_quest", again); !errors.Is(err, ErrQuestUnknown) {
		t.Fatalf("expected ErrQuestUnknown, got %v", err)
	}
}

func TestHitEventsNewestFirstWithLimit(t *testing.T) {
	m := NewMemory()
	acc := seedAccount(t, m, "alice", "alice@example.com")
	attacker := seedProfile(t, m, acc.ID, "A")
	target := seedProfile(t, m, acc.ID, "B")

	for i := 0; i < 3; i++ {
		ev := HitEvent{
			AttackerID: attacker.ID,
			TargetID:   target.ID,
			WeaponID:   "diamond_sword",
			Applied:    true,
			KnockbackX: float64(i),
			CreatedAt:  time.Unix(int64(5000+i), 0),
		}
		stored, err := m.AppendHitEvent(context.Background(), ev)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if stored.ID == "" {
			t.Fatalf("expected an assigned event id")
		}
	}

	events, err := m.HitEventsFor(context.Background(), target.ID, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].KnockbackX != 2 || events[1].KnockbackX != 1 {
		t.Fatalf("expected newest first, got %v then %v", events[0].KnockbackX, events[1].KnockbackX)
	}
}

func TestSessionLifecycle(t *testing.T) {
	m := NewMemory()
	acc := seedAccount(t, m, "alice", "alice@example.com")

	sess, err := m.CreateSession(context.Background(), acc.ID, time.Unix(1000, 0), time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !sess.ExpiresAt.Equal(time.Unix(1000, 0).Add(time.Hour)) {
		t.Fatalf("unexpected expiry: %v", sess.ExpiresAt)
	}

	got, err := m.SessionByToken(context.Background(), sess.Token)
	if err != nil || got.AccountID != acc.ID {
		t.Fatalf("lookup: got %+v, %v", got, err)
	}
	if err := m.RevokeSession(context.Background(), sess.Token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := m.SessionByToken(context.Background(), sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke, got %v", err)
	}
}

func TestActiveBanHonorsExpiry(t *testing.T) {
	m := NewMemory()
	acc := seedAccount(t, m, "alice", "alice@example.com")
	now := time.Unix(10000, 0)

	past := now.Add(-time.Minute)
	if _, err := m.AddBan(context.Background(), acc.ID, "expired", now.Add(-time.Hour), &past); err != nil {
		t.Fatalf("add expired ban: %v", err)
	}
	if _, banned, _ := m.ActiveBan(context.Background(), acc.ID, now); banned {
		t.Fatalf("expired ban must not count as active")
	}

	if _, err := m.AddBan(context.Background(), acc.ID, "griefing", now, nil); err != nil {
		t.Fatalf("add permanent ban: %v", err)
	}
	ban, banned, err := m.ActiveBan(context.Background(), acc.ID, now)
	if err != nil || !banned {
		t.Fatalf("expected active ban, got banned=%v err=%v", banned, err)
	}
	if ban.Reason != "griefing" {
		t.Fatalf("unexpected ban reason %q", ban.Reason)
	}
}

func TestUpdatePositionUnknownProfile(t *testing.T) {
	m := NewMemory()
	if err := m.UpdatePosition(context.Background(), "missing", 1, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
