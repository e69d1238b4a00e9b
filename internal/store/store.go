// Package store persists accounts, sessions, duel profiles, catalogs and
// combat audit events. Two implementations exist: an in-memory store used
// by tests and local development, and a Postgres store for deployments.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by every implementation. Callers match them with
// errors.Is and translate them to wire rejections at the edge.
var (
	ErrNotFound       = errors.New("store: not found")
	ErrDuplicate      = errors.New("store: duplicate")
	ErrWeaponNotOwned = errors.New("store: weapon not owned")
	ErrSkillUnknown   = errors.New("store: unknown skill")
	ErrQuestUnknown   = errors.New("store: unknown quest")
	ErrNestedAtomic   = errors.New("store: atomic sections do not nest")
)

// Account is a registered user able to hold any number of duel profiles.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

// Session is a bearer credential minted at login.
type Session struct {
	Token     string
	AccountID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Ban blocks an account. A nil ExpiresAt means permanent.
type Ban struct {
	ID        string
	AccountID string
	Reason    string
	CreatedAt time.Time
	ExpiresAt *time.Time
	Active    bool
}

// Profile is one combat-capable avatar owned by an account.
// EquippedWeaponID is derived from the owned-weapon rows on read; it is
// empty when nothing is equipped.
type Profile struct {
	ID               string
	AccountID        string
	DisplayName      string
	SkillID          string
	EquippedWeaponID string
	X                float64
	Y                float64
	PvPEnabled       bool
	Attributes       map[string]int
	Assets           map[string]int
	CreatedAt        time.Time
}

// Weapon is a catalog entry. BaseKnockback scales the impulse applied to a
// struck profile before the attacker's skill multiplier.
type Weapon struct {
	ID            string
	Name          string
	BaseKnockback float64
}

// Skill is a catalog entry multiplying the equipped weapon's knockback.
type Skill struct {
	ID         string
	Name       string
	Multiplier float64
}

// Quest is a catalog entry profiles can accept.
type Quest struct {
	ID          string
	Title       string
	Description string
}

// OwnedWeapon links a profile to a catalog weapon. At most one row per
// profile has Equipped set; the stores enforce that invariant.
type OwnedWeapon struct {
	ProfileID  string
	WeaponID   string
	Equipped   bool
	ObtainedAt time.Time
}

// ProfileQuest tracks quest progress for one profile.
type ProfileQuest struct {
	ProfileID  string
	QuestID    string
	Status     string
	AcceptedAt time.Time
	UpdatedAt  time.Time
}

// QuestAccepted is the only status written today; completion flows are
// handled out of band.
const QuestAccepted = "accepted"

// HitEvent is an immutable audit record for one resolved hit attempt,
// applied or not. IDs are ULIDs so the log sorts by creation time.
type HitEvent struct {
	ID         string
	AttackerID string
	TargetID   string
	WeaponID   string
	Applied    bool
	Reason     string
	KnockbackX float64
	KnockbackY float64
	CreatedAt  time.Time
}

// Store is the persistence surface the services run against.
//
// Operations touching a single profile serialize against other writers of
// that profile. Atomic extends the same guarantee across several profiles
// at once so multi-profile updates commit as a unit. Plain reads never
// wait on profile writers; a snapshot assembled while a write is in flight
// may simply predate it.
type Store interface {
	// Accounts and sessions.
	CreateAccount(ctx context.Context, username, email, passwordHash string, at time.Time) (Account, error)
	AccountByID(ctx context.Context, id string) (Account, error)
	AccountByLogin(ctx context.Context, login string) (Account, error)
	RecordLogin(ctx context.Context, accountID string, at time.Time) error
	CreateSession(ctx context.Context, accountID string, at time.Time, ttl time.Duration) (Session, error)
	SessionByToken(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string) error
	ActiveBan(ctx context.Context, accountID string, now time.Time) (Ban, bool, error)
	AddBan(ctx context.Context, accountID, reason string, at time.Time, expiresAt *time.Time) (Ban, error)

	// Profiles.
	CreateProfile(ctx context.Context, accountID, displayName, skillID string, at time.Time) (Profile, error)
	ProfileByID(ctx context.Context, id string) (Profile, error)
	ProfilesByAccount(ctx context.Context, accountID string) ([]Profile, error)
	Profiles(ctx context.Context) ([]Profile, error)
	UpdatePosition(ctx context.Context, profileID string, x, y float64) error
	SetPvP(ctx context.Context, profileID string, enabled bool) error

	// Catalogs.
	Weapons(ctx context.Context) ([]Weapon, error)
	WeaponByID(ctx context.Context, id string) (Weapon, error)
	Skills(ctx context.Context) ([]Skill, error)
	SkillByID(ctx context.Context, id string) (Skill, error)
	Quests(ctx context.Context) ([]Quest, error)
	QuestByID(ctx context.Context, id string) (Quest, error)

	// Equipment and quests per profile.
	OwnedWeapons(ctx context.Context, profileID string) ([]OwnedWeapon, error)
	GrantWeapon(ctx context.Context, profileID, weaponID string, at time.Time) error
	EquipWeapon(ctx context.Context, profileID, weaponID string) error
	EquippedWeapon(ctx context.Context, profileID string) (Weapon, bool, error)
	AcceptQuest(ctx context.Context, profileID, questID string, at time.Time) error
	QuestsFor(ctx context.Context, profileID string) ([]ProfileQuest, error)

	// Combat audit log.
	AppendHitEvent(ctx context.Context, ev HitEvent) (HitEvent, error)
	HitEventsFor(ctx context.Context, profileID string, limit int) ([]HitEvent, error)

	// Atomic runs fn while holding exclusive write access to every listed
	// profile, acquired in ascending id order so concurrent sections never
	// deadlock. fn receives a view of the same store; calling Atomic on
	// that view fails with ErrNestedAtomic. If fn returns an error none of
	// its writes survive on transactional backends.
	Atomic(ctx context.Context, profileIDs []string, fn func(tx Store) error) error

	Close() error
}
