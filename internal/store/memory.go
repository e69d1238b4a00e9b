package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/sasha-s/go-deadlock"
)

// memoryCore holds the shared tables plus the per-profile lock registry.
// core.mu guards every map; profileLocks serialize writers of the same
// profile so multi-step updates observe a stable row.
type memoryCore struct {
	mu deadlock.RWMutex

	accounts        map[string]Account
	accountsByName  map[string]string
	accountsByEmail map[string]string
	sessions        map[string]Session
	bans            map[string][]Ban

	profiles      map[string]Profile
	owned         map[string][]OwnedWeapon
	profileQuests map[string][]ProfileQuest

	weapons      map[string]Weapon
	skills       map[string]Skill
	questCatalog map[string]Quest

	events []HitEvent

	lockTableMu  deadlock.Mutex
	profileLocks map[string]*deadlock.Mutex
}

// Memory is the in-memory Store used by tests and local single-node runs.
// The zero value is not usable; construct with NewMemory.
type Memory struct {
	core *memoryCore
	intx bool
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store with the catalogs seeded.
func NewMemory() *Memory {
	core := &memoryCore{
		accounts:        make(map[string]Account),
		accountsByName:  make(map[string]string),
		accountsByEmail: make(map[string]string),
		sessions:        make(map[string]Session),
		bans:            make(map[string][]Ban),
		profiles:        make(map[string]Profile),
		owned:           make(map[string][]OwnedWeapon),
		profileQuests:   make(map[string][]ProfileQuest),
		weapons:         make(map[string]Weapon),
		skills:          make(map[string]Skill),
		questCatalog:    make(map[string]Quest),
		profileLocks:    make(map[string]*deadlock.Mutex),
	}
	for _, w := range seedWeapons {
		core.weapons[w.ID] = w
	}
	for _, s := range seedSkills {
		core.skills[s.ID] = s
	}
	for _, q := range seedQuests {
		core.questCatalog[q.ID] = q
	}
	return &Memory{core: core}
}

// lockProfiles takes the write locks for the given profiles in ascending id
// order and returns the matching unlock. Inside an Atomic section the locks
// are already held, so the view returns a no-op.
func (m *Memory) lockProfiles(ids ...string) func() {
	if m.intx {
		return func() {}
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	m.core.lockTableMu.Lock()
	locks := make([]*deadlock.Mutex, 0, len(sorted))
	prev := ""
	for i, id := range sorted {
		if i > 0 && id == prev {
			continue
		}
		prev = id
		lk, ok := m.core.profileLocks[id]
		if !ok {
			lk = &deadlock.Mutex{}
			m.core.profileLocks[id] = lk
		}
		locks = append(locks, lk)
	}
	m.core.lockTableMu.Unlock()

	for _, lk := range locks {
		lk.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (m *Memory) CreateAccount(ctx context.Context, username, email, passwordHash string, at time.Time) (Account, error) {
	nameKey := strings.ToLower(username)
	emailKey := strings.ToLower(email)

	m.core.mu.Lock()
	defer m.core.mu.Unlock()
	if _, taken := m.core.accountsByName[nameKey]; taken {
		return Account{}, ErrDuplicate
	}
	if _, taken := m.core.accountsByEmail[emailKey]; taken {
		return Account{}, ErrDuplicate
	}
	acc := Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    at,
	}
	m.core.accounts[acc.ID] = acc
	m.core.accountsByName[nameKey] = acc.ID
	m.core.accountsByEmail[emailKey] = acc.ID
	return acc, nil
}

func (m *Memory) AccountByID(ctx context.Context, id string) (Account, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	acc, ok := m.core.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acc, nil
}

// AccountByLogin resolves a username or email, case-insensitively.
func (m *Memory) AccountByLogin(ctx context.Context, login string) (Account, error) {
	key := strings.ToLower(login)
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	id, ok := m.core.accountsByName[key]
	if !ok {
		id, ok = m.core.accountsByEmail[key]
	}
	if !ok {
		return Account{}, ErrNotFound
	}
	return m.core.accounts[id], nil
}

func (m *Memory) RecordLogin(ctx context.Context, accountID string, at time.Time) error {
	m.core.mu.Lock()
	defer m.core.mu.Unlock()
	acc, ok := m.core.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	acc.LastLoginAt = at
	m.core.accounts[accountID] = acc
	return nil
}

func (m *Memory) CreateSession(ctx context.Context, accountID string, at time.Time, ttl time.Duration) (Session, error) {
	m.core.mu.Lock()
	defer m.core.mu.Unlock()
	if _, ok := m.core.accounts[accountID]; !ok {
		return Session{}, ErrNotFound
	}
	sess := Session{
		Token:     uuid.NewString(),
		AccountID: accountID,
		IssuedAt:  at,
		ExpiresAt: at.Add(ttl),
	}
	m.core.sessions[sess.Token] = sess
	return sess, nil
}

func (m *Memory) SessionByToken(ctx context.Context, token string) (Session, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	sess, ok := m.core.sessions[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// RevokeSession deletes the session if present. Revoking an unknown token
// is not an error; logout is idempotent.
func (m *Memory) RevokeSession(ctx context.Context, token string) error {
	m.core.mu.Lock()
	defer m.core.mu.Unlock()
	delete(m.core.sessions, token)
	return nil
}

func (m *Memory) ActiveBan(ctx context.Context, accountID string, now time.Time) (Ban, bool, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	for _, b := range m.core.bans[accountID] {
		if !b.Active {
			continue
		}
		if b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
			continue
		}
		return b, true, nil
	}
	return Ban{}, false, nil
}

func (m *Memory) AddBan(ctx context.Context, accountID, reason string, at time.Time, expiresAt *time.Time) (Ban, error) {
	m.core.mu.Lock()
	defer m.core.mu.Unlock()
	if _, ok := m.core.accounts[accountID]; !ok {
		return Ban{}, ErrNotFound
	}
	ban := Ban{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Reason:    reason,
		CreatedAt: at,
		ExpiresAt: expiresAt,
		Active:    true,
	}
	m.core.bans[accountID] = append(m.core.bans[accountID], ban)
	return ban, nil
}

// CreateProfile inserts the profile with arena defaults, grants the starter
// weapons and equips the first of them.
func (m *Memory) CreateProfile(ctx context.Context, accountID, displayName, skillID string, at time.Time) (Profile, error) {
	if skillID == "" {
		skillID = defaultSkillID
	}

	m.core.mu.Lock()
	defer m.core.mu.Unlock()
	if _, ok := m.core.accounts[accountID]; !ok {
		return Profile{}, ErrNotFound
	}
	if _, ok := m.core.skills[skillID]; !ok {
		return Profile{}, ErrSkillUnknown
	}
	p := Profile{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		DisplayName: displayName,
		SkillID:     skillID,
		PvPEnabled:  true,
		Attributes:  defaultAttributes(),
		Assets:      defaultAssets(),
		CreatedAt:   at,
	}
	m.core.profiles[p.ID] = p
	for i, weaponID := range starterWeaponIDs {
		m.core.owned[p.ID] = append(m.core.owned[p.ID], OwnedWeapon{
			ProfileID:  p.ID,
			WeaponID:   weaponID,
			Equipped:   i == 0,
			ObtainedAt: at,
		})
	}
	return m.core.profileLocked(p.ID)
}

// profileLocked clones the row and derives EquippedWeaponID from the owned
// rows. Callers hold core.mu in at least read mode.
func (c *memoryCore) profileLocked(id string) (Profile, error) {
	p, ok := c.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	p.Attributes = cloneCounts(p.Attributes)
	p.Assets = cloneCounts(p.Assets)
	for _, ow := range c.owned[id] {
		if ow.Equipped {
			p.EquippedWeaponID = ow.WeaponID
			break
		}
	}
	return p, nil
}

func cloneCounts(src map[string]int) map[string]int {
	if src == nil {
		return nil
	}
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *Memory) ProfileByID(ctx context.Context, id string) (Profile, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	return m.core.profileLocked(id)
}

func (m *Memory) ProfilesByAccount(ctx context.Context, accountID string) ([]Profile, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	var out []Profile
	for id, p := range m.core.profiles {
		if p.AccountID != accountID {
			continue
		}
		clone, err := m.core.profileLocked(id)
		if err != nil {
			return nil, err
		}
		out = append(out, clone)
	}
	sortProfiles(out)
	return out, nil
}

func (m *Memory) Profiles(ctx context.Context) ([]Profile, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	out := make([]Profile, 0, len(m.core.profiles))
	for id := range m.core.profiles {
		clone, err := m.core.profileLocked(id)
		if err != nil {
			return nil, err
		}
		out = append(out, clone)
	}
	sortProfiles(out)
	return out, nil
}

func sortProfiles(profiles []Profile) {
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].ID < profiles[j].ID
		}
		return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
	})
}

func (m *Memory) UpdatePosition(ctx context.Context, profileID string, x, y float64) error {
	unlock := m.lockProfiles(profileID)
	defer unlock()

	m.core.mu.Lock()
	defer m.core.mu.Unlock()
	p, ok := m.core.profiles[profileID]
	if !ok {
		return ErrNotFound
	}
	p.X, p.Y = x, y
	m.core.profiles[profileID] = p
	return nil
}

func (m *Memory) SetPvP(ctx context.Context, profileID string, enabled bool) error {
	unlock := m.lockProfiles(profileID)
	defer unlock()

	m.core.mu.Lock()
	defer m.core.mu.Unlock()
	p, ok := m.core.profiles[profileID]
	if !ok {
		return ErrNotFound
	}
	p.PvPEnabled = enabled
	m.core.profiles[profileID] = p
	return nil
}

func (m *Memory) Weapons(ctx context.Context) ([]Weapon, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	out := make([]Weapon, 0, len(m.core.weapons))
	for _, w := range m.core.weapons {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) WeaponByID(ctx context.Context, id string) (Weapon, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	w, ok := m.core.weapons[id]
	if !ok {
		return Weapon{}, ErrNotFound
	}
	return w, nil
}

func (m *Memory) Skills(ctx context.Context) ([]Skill, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	out := make([]Skill, 0, len(m.core.skills))
	for _, s := range m.core.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SkillByID(ctx context.Context, id string) (Skill, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	s, ok := m.core.skills[id]
	if !ok {
		return Skill{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) Quests(ctx context.Context) ([]Quest, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	out := make([]Quest, 0, len(m.core.questCatalog))
	for _, q := range m.core.questCatalog {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) QuestByID(ctx context.Context, id string) (Quest, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	q, ok := m.core.questCatalog[id]
	if !ok {
		return Quest{}, ErrNotFound
	}
	return q, nil
}

func (m *Memory) OwnedWeapons(ctx context.Context, profileID string) ([]OwnedWeapon, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	if _, ok := m.core.profiles[profileID]; !ok {
		return nil, ErrNotFound
	}
	return append([]OwnedWeapon(nil), m.core.owned[profileID]...), nil
}

// GrantWeapon adds the weapon unequipped. Granting an already owned weapon
// is a no-op.
func (m *Memory) GrantWeapon(ctx context.Context, profileID, weaponID string, at time.Time) error {
	unlock := m.lockProfiles(profileID)
	defer unlock()

	m.core.mu.Lock()
	defer m.core.mu.Unlock()
	if _, ok := m.core.profiles[profileID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.core.weapons[weaponID]; !ok {
		return ErrNotFound
	}
	for _, ow := range m.core.owned[profileID] {
		if ow.WeaponID == weaponID {
			return nil
		}
	}
	m.core.owned[profileID] = append(m.core.owned[profileID], OwnedWeapon{
		ProfileID:  profileID,
		WeaponID:   weaponID,
		ObtainedAt: at,
	})
	return nil
}

// EquipWeapon marks weaponID as the single equipped row for the profile.
// Ownership is checked before anything is flipped, so a failed equip leaves
// the previous weapon in hand.
func (m *Memory) EquipWeapon(ctx context.Context, profileID, weaponID string) error {
	unlock := m.lockProfiles(profileID)
	defer unlock()

	m.core.mu.Lock()
	defer m.core.mu.Unlock()
	if _, ok := m.core.profiles[profileID]; !ok {
		return ErrNotFound
	}
	rows := m.core.owned[profileID]
	owned := false
	for _, ow := range rows {
		if ow.WeaponID == weaponID {
			owned = true
			break
		}
	}
	if !owned {
		return ErrWeaponNotOwned
	}
	for i := range rows {
		rows[i].Equipped = rows[i].WeaponID == weaponID
	}
	return nil
}

func (m *Memory) EquippedWeapon(ctx context.Context, profileID string) (Weapon, bool, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	if _, ok := m.core.profiles[profileID]; !ok {
		return Weapon{}, false, ErrNotFound
	}
	for _, ow := range m.core.owned[profileID] {
		if !ow.Equipped {
			continue
		}
		w, ok := m.core.weapons[ow.WeaponID]
		if !ok {
			return Weapon{}, false, ErrNotFound
		}
		return w, true, nil
	}
	return Weapon{}, false, nil
}

// AcceptQuest upserts the profile-quest row. Re-accepting refreshes the
// status and UpdatedAt but keeps the original AcceptedAt.
func (m *Memory) AcceptQuest(ctx context.Context, profileID, questID string, at time.Time) error {
	unlock := m.lockProfiles(profileID)
	defer unlock()

	m.core.mu.Lock()
	defer m.core.mu.Unlock()
	if _, ok := m.core.questCatalog[questID]; !ok {
		return ErrQuestUnknown
	}
	if _, ok := m.core.profiles[profileID]; !ok {
		return ErrNotFound
	}
	rows := m.core.profileQuests[profileID]
	for i := range rows {
		if rows[i].QuestID == questID {
			rows[i].Status = QuestAccepted
			rows[i].UpdatedAt = at
			return nil
		}
	}
	m.core.profileQuests[profileID] = append(rows, ProfileQuest{
		ProfileID:  profileID,
		QuestID:    questID,
		Status:     QuestAccepted,
		AcceptedAt: at,
		UpdatedAt:  at,
	})
	return nil
}

func (m *Memory) QuestsFor(ctx context.Context, profileID string) ([]ProfileQuest, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	if _, ok := m.core.profiles[profileID]; !ok {
		return nil, ErrNotFound
	}
	return append([]ProfileQuest(nil), m.core.profileQuests[profileID]...), nil
}

func (m *Memory) AppendHitEvent(ctx context.Context, ev HitEvent) (HitEvent, error) {
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	m.core.mu.Lock()
	defer m.core.mu.Unlock()
	m.core.events = append(m.core.events, ev)
	return ev, nil
}

// HitEventsFor returns events involving the profile, newest first.
// limit <= 0 means no limit.
func (m *Memory) HitEventsFor(ctx context.Context, profileID string, limit int) ([]HitEvent, error) {
	m.core.mu.RLock()
	defer m.core.mu.RUnlock()
	var out []HitEvent
	for i := len(m.core.events) - 1; i >= 0; i-- {
		ev := m.core.events[i]
		if ev.AttackerID != profileID && ev.TargetID != profileID {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Atomic(ctx context.Context, profileIDs []string, fn func(tx Store) error) error {
	if m.intx {
		return ErrNestedAtomic
	}
	unlock := m.lockProfiles(profileIDs...)
	defer unlock()
	return fn(&Memory{core: m.core, intx: true})
}

func (m *Memory) Close() error {
	return nil
}
