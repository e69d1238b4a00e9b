package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"
)

// schemaSQL is applied on open. Every statement is idempotent so the store
// can reopen against an existing database.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	user_id       TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    BIGINT NOT NULL,
	last_login_at BIGINT
);
CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower ON users (lower(username));
CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower ON users (lower(email));

CREATE TABLE IF NOT EXISTS auth_sessions (
	session_id TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users (user_id),
	issued_at  BIGINT NOT NULL,
	expires_at BIGINT NOT NULL,
	revoked_at BIGINT
);

CREATE TABLE IF NOT EXISTS user_bans (
	ban_id     TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users (user_id),
	reason     TEXT NOT NULL DEFAULT '',
	banned_at  BIGINT NOT NULL,
	expires_at BIGINT,
	is_active  BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS weapons (
	weapon_id      TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	base_knockback DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS skills (
	skill_id             TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	knockback_multiplier DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS quests (
	quest_id    TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS player_profiles (
	player_id                 TEXT PRIMARY KEY,
	user_id                   TEXT NOT NULL REFERENCES users (user_id),
	display_name              TEXT NOT NULL,
	skill_id                  TEXT NOT NULL REFERENCES skills (skill_id),
	pos_x                     DOUBLE PRECISION NOT NULL DEFAULT 0,
	pos_y                     DOUBLE PRECISION NOT NULL DEFAULT 0,
	can_receive_pvp_knockback BOOLEAN NOT NULL DEFAULT TRUE,
	attributes_json           JSONB NOT NULL DEFAULT '{}',
	assets_json               JSONB NOT NULL DEFAULT '{}',
	created_at                BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS player_weapons_owned (
	player_id   TEXT NOT NULL REFERENCES player_profiles (player_id),
	weapon_id   TEXT NOT NULL REFERENCES weapons (weapon_id),
	equipped    BOOLEAN NOT NULL DEFAULT FALSE,
	obtained_at BIGINT NOT NULL,
	PRIMARY KEY (player_id, weapon_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS player_weapons_one_equipped
	ON player_weapons_owned (player_id) WHERE equipped;

CREATE TABLE IF NOT EXISTS player_quests (
	player_id   TEXT NOT NULL REFERENCES player_profiles (player_id),
	quest_id    TEXT NOT NULL REFERENCES quests (quest_id),
	status      TEXT NOT NULL,
	accepted_at BIGINT NOT NULL,
	updated_at  BIGINT NOT NULL,
	PRIMARY KEY (player_id, quest_id)
);

CREATE TABLE IF NOT EXISTS combat_hit_events (
	hit_id              TEXT PRIMARY KEY,
	attacker_player_id  TEXT NOT NULL REFERENCES player_profiles (player_id),
	target_player_id    TEXT NOT NULL REFERENCES player_profiles (player_id),
	weapon_id           TEXT NOT NULL,
	knockback_applied_x DOUBLE PRECISION NOT NULL DEFAULT 0,
	knockback_applied_y DOUBLE PRECISION NOT NULL DEFAULT 0,
	was_applied         BOOLEAN NOT NULL,
	server_reason       TEXT,
	created_at          BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS combat_hit_events_attacker
	ON combat_hit_events (attacker_player_id, created_at);
CREATE INDEX IF NOT EXISTS combat_hit_events_target
	ON combat_hit_events (target_player_id, created_at);
`

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// every query runs the same inside and outside an Atomic section.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres is the lib/pq backed Store. Per-profile serialization uses row
// locks: writers SELECT ... FOR UPDATE the profile row before touching its
// dependent tables.
type Postgres struct {
	db   *sql.DB
	q    querier
	intx bool
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects, applies the schema and seeds the catalogs.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	p := &Postgres{db: db, q: db}
	if err := p.seedCatalogs(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed catalogs: %w", err)
	}
	return p, nil
}

func (p *Postgres) seedCatalogs(ctx context.Context) error {
	for _, w := range seedWeapons {
		if _, err := p.q.ExecContext(ctx,
			`INSERT INTO weapons (weapon_id, name, base_knockback) VALUES ($1, $2, $3)
			 ON CONFLICT (weapon_id) DO NOTHING`,
			w.ID, w.Name, w.BaseKnockback); err != nil {
			return err
		}
	}
	for _, s := range seedSkills {
		if _, err := p.q.ExecContext(ctx,
			`INSERT INTO skills (skill_id, name, knockback_multiplier) VALUES ($1, $2, $3)
			 ON CONFLICT (skill_id) DO NOTHING`,
			s.ID, s.Name, s.Multiplier); err != nil {
			return err
		}
	}
	for _, q := range seedQuests {
		if _, err := p.q.ExecContext(ctx,
			`INSERT INTO quests (quest_id, title, description) VALUES ($1, $2, $3)
			 ON CONFLICT (quest_id) DO NOTHING`,
			q.ID, q.Title, q.Description); err != nil {
			return err
		}
	}
	return nil
}

// withTx runs fn inside a transaction, or directly when already inside an
// Atomic section.
func (p *Postgres) withTx(ctx context.Context, fn func(q querier) error) error {
	if p.intx {
		return fn(p.q)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// lockProfileRow takes the row lock that serializes writers of one profile.
func lockProfileRow(ctx context.Context, q querier, profileID string) error {
	var id string
	err := q.QueryRowContext(ctx,
		`SELECT player_id FROM player_profiles WHERE player_id = $1 FOR UPDATE`,
		profileID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func (p *Postgres) CreateAccount(ctx context.Context, username, email, passwordHash string, at time.Time) (Account, error) {
	acc := Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    at,
	}
	_, err := p.q.ExecContext(ctx,
		`INSERT INTO users (user_id, username, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		acc.ID, acc.Username, acc.Email, acc.PasswordHash, at.Unix())
	if isUniqueViolation(err) {
		return Account{}, ErrDuplicate
	}
	if err != nil {
		return Account{}, err
	}
	return acc, nil
}

func scanAccount(row *sql.Row) (Account, error) {
	var acc Account
	var created int64
	var lastLogin sql.NullInt64
	err := row.Scan(&acc.ID, &acc.Username, &acc.Email, &acc.PasswordHash, &created, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	acc.CreatedAt = fromUnix(created)
	if lastLogin.Valid {
		acc.LastLoginAt = fromUnix(lastLogin.Int64)
	}
	return acc, nil
}

func (p *Postgres) AccountByID(ctx context.Context, id string) (Account, error) {
	return scanAccount(p.q.QueryRowContext(ctx,
		`SELECT user_id, username, email, password_hash, created_at, last_login_at
		 FROM users WHERE user_id = $1`, id))
}

func (p *Postgres) AccountByLogin(ctx context.Context, login string) (Account, error) {
	return scanAccount(p.q.QueryRowContext(ctx,
		`SELECT user_id, username, email, password_hash, created_at, last_login_at
		 FROM users WHERE lower(username) = lower($1) OR lower(email) = lower($1)`, login))
}

func (p *Postgres) RecordLogin(ctx context.Context, accountID string, at time.Time) error {
	res, err := p.q.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2 WHERE user_id = $1`, accountID, at.Unix())
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func errIfNoRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateSession(ctx context.Context, accountID string, at time.Time, ttl time.Duration) (Session, error) {
	sess := Session{
		Token:     uuid.NewString(),
		AccountID: accountID,
		IssuedAt:  at,
		ExpiresAt: at.Add(ttl),
	}
	_, err := p.q.ExecContext(ctx,
		`INSERT INTO auth_sessions (session_id, user_id, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		sess.Token, accountID, sess.IssuedAt.Unix(), sess.ExpiresAt.Unix())
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (p *Postgres) SessionByToken(ctx context.Context, token string) (Session, error) {
	var sess Session
	var issued, expires int64
	err := p.q.QueryRowContext(ctx,
		`SELECT session_id, user_id, issued_at, expires_at FROM auth_sessions
		 WHERE session_id = $1 AND revoked_at IS NULL`,
		token).Scan(&sess.Token, &sess.AccountID, &issued, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	sess.IssuedAt = fromUnix(issued)
	sess.ExpiresAt = fromUnix(expires)
	return sess, nil
}

func (p *Postgres) RevokeSession(ctx context.Context, token string) error {
	_, err := p.q.ExecContext(ctx, `DELETE FROM auth_sessions WHERE session_id = $1`, token)
	return err
}

func (p *Postgres) ActiveBan(ctx context.Context, accountID string, now time.Time) (Ban, bool, error) {
	var ban Ban
	var created int64
	var expires sql.NullInt64
	err := p.q.QueryRowContext(ctx,
		`SELECT ban_id, user_id, reason, banned_at, expires_at, is_active FROM user_bans
		 WHERE user_id = $1 AND is_active AND (expires_at IS NULL OR expires_at > $2)
		 ORDER BY banned_at DESC LIMIT 1`,
		accountID, now.Unix()).
		Scan(&ban.ID, &ban.AccountID, &ban.Reason, &created, &expires, &ban.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return Ban{}, false, nil
	}
	if err != nil {
		return Ban{}, false, err
	}
	ban.CreatedAt = fromUnix(created)
	if expires.Valid {
		t := fromUnix(expires.Int64)
		ban.ExpiresAt = &t
	}
	return ban, true, nil
}

func (p *Postgres) AddBan(ctx context.Context, accountID, reason string, at time.Time, expiresAt *time.Time) (Ban, error) {
	ban := Ban{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Reason:    reason,
		CreatedAt: at,
		ExpiresAt: expiresAt,
		Active:    true,
	}
	var expires sql.NullInt64
	if expiresAt != nil {
		expires = sql.NullInt64{Int64: expiresAt.Unix(), Valid: true}
	}
	_, err := p.q.ExecContext(ctx,
		`INSERT INTO user_bans (ban_id, user_id, reason, banned_at, expires_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, TRUE)`,
		ban.ID, accountID, reason, at.Unix(), expires)
	if err != nil {
		return Ban{}, err
	}
	return ban, nil
}

func (p *Postgres) CreateProfile(ctx context.Context, accountID, displayName, skillID string, at time.Time) (Profile, error) {
	if skillID == "" {
		skillID = defaultSkillID
	}
	prof := Profile{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		DisplayName: displayName,
		SkillID:     skillID,
		PvPEnabled:  true,
		Attributes:  defaultAttributes(),
		Assets:      defaultAssets(),
		CreatedAt:   at,
	}
	attrs, err := json.Marshal(prof.Attributes)
	if err != nil {
		return Profile{}, err
	}
	assets, err := json.Marshal(prof.Assets)
	if err != nil {
		return Profile{}, err
	}
	err = p.withTx(ctx, func(q querier) error {
		var one int
		err := q.QueryRowContext(ctx, `SELECT 1 FROM skills WHERE skill_id = $1`, skillID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSkillUnknown
		}
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO player_profiles
			   (player_id, user_id, display_name, skill_id, pos_x, pos_y,
			    can_receive_pvp_knockback, attributes_json, assets_json, created_at)
			 VALUES ($1, $2, $3, $4, 0, 0, TRUE, $5, $6, $7)`,
			prof.ID, accountID, displayName, skillID, attrs, assets, at.Unix()); err != nil {
			return err
		}
		for i, weaponID := range starterWeaponIDs {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO player_weapons_owned (player_id, weapon_id, equipped, obtained_at)
				 VALUES ($1, $2, $3, $4)`,
				prof.ID, weaponID, i == 0, at.Unix()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Profile{}, err
	}
	prof.EquippedWeaponID = starterWeaponIDs[0]
	return prof, nil
}

const profileColumns = `
	p.player_id, p.user_id, p.display_name, p.skill_id,
	COALESCE(ow.weapon_id, ''), p.pos_x, p.pos_y,
	p.can_receive_pvp_knockback, p.attributes_json, p.assets_json, p.created_at`

const profileFrom = `
	FROM player_profiles p
	LEFT JOIN player_weapons_owned ow ON ow.player_id = p.player_id AND ow.equipped`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var prof Profile
	var attrs, assets []byte
	var created int64
	err := row.Scan(&prof.ID, &prof.AccountID, &prof.DisplayName, &prof.SkillID,
		&prof.EquippedWeaponID, &prof.X, &prof.Y, &prof.PvPEnabled, &attrs, &assets, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	if err := json.Unmarshal(attrs, &prof.Attributes); err != nil {
		return Profile{}, fmt.Errorf("decode attributes: %w", err)
	}
	if err := json.Unmarshal(assets, &prof.Assets); err != nil {
		return Profile{}, fmt.Errorf("decode assets: %w", err)
	}
	prof.CreatedAt = fromUnix(created)
	return prof, nil
}

func (p *Postgres) ProfileByID(ctx context.Context, id string) (Profile, error) {
	return scanProfile(p.q.QueryRowContext(ctx,
		`SELECT`+profileColumns+profileFrom+` WHERE p.player_id = $1`, id))
}

func (p *Postgres) queryProfiles(ctx context.Context, query string, args ...any) ([]Profile, error) {
	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Profile
	for rows.Next() {
		prof, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, prof)
	}
	return out, rows.Err()
}

func (p *Postgres) ProfilesByAccount(ctx context.Context, accountID string) ([]Profile, error) {
	return p.queryProfiles(ctx,
		`SELECT`+profileColumns+profileFrom+
			` WHERE p.user_id = $1 ORDER BY p.created_at, p.player_id`, accountID)
}

func (p *Postgres) Profiles(ctx context.Context) ([]Profile, error) {
	return p.queryProfiles(ctx,
		`SELECT`+profileColumns+profileFrom+` ORDER BY p.created_at, p.player_id`)
}

func (p *Postgres) UpdatePosition(ctx context.Context, profileID string, x, y float64) error {
	res, err := p.q.ExecContext(ctx,
		`UPDATE player_profiles SET pos_x = $2, pos_y = $3 WHERE player_id = $1`,
		profileID, x, y)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (p *Postgres) SetPvP(ctx context.Context, profileID string, enabled bool) error {
	res, err := p.q.ExecContext(ctx,
		`UPDATE player_profiles SET can_receive_pvp_knockback = $2 WHERE player_id = $1`,
		profileID, enabled)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (p *Postgres) Weapons(ctx context.Context) ([]Weapon, error) {
	rows, err := p.q.QueryContext(ctx,
		`SELECT weapon_id, name, base_knockback FROM weapons ORDER BY weapon_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Weapon
	for rows.Next() {
		var w Weapon
		if err := rows.Scan(&w.ID, &w.Name, &w.BaseKnockback); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (p *Postgres) WeaponByID(ctx context.Context, id string) (Weapon, error) {
	var w Weapon
	err := p.q.QueryRowContext(ctx,
		`SELECT weapon_id, name, base_knockback FROM weapons WHERE weapon_id = $1`, id).
		Scan(&w.ID, &w.Name, &w.BaseKnockback)
	if errors.Is(err, sql.ErrNoRows) {
		return Weapon{}, ErrNotFound
	}
	return w, err
}

func (p *Postgres) Skills(ctx context.Context) ([]Skill, error) {
	rows, err := p.q.QueryContext(ctx,
		`SELECT skill_id, name, knockback_multiplier FROM skills ORDER BY skill_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Skill
	for rows.Next() {
		var s Skill
		if err := rows.Scan(&s.ID, &s.Name, &s.Multiplier); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) SkillByID(ctx context.Context, id string) (Skill, error) {
	var s Skill
	err := p.q.QueryRowContext(ctx,
		`SELECT skill_id, name, knockback_multiplier FROM skills WHERE skill_id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Multiplier)
	if errors.Is(err, sql.ErrNoRows) {
		return Skill{}, ErrNotFound
	}
	return s, err
}

func (p *Postgres) Quests(ctx context.Context) ([]Quest, error) {
	rows, err := p.q.QueryContext(ctx,
		`SELECT quest_id, title, description FROM quests ORDER BY quest_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Quest
	for rows.Next() {
		var q Quest
		if err := rows.Scan(&q.ID, &q.Title, &q.Description); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (p *Postgres) QuestByID(ctx context.Context, id string) (Quest, error) {
	var q Quest
	err := p.q.QueryRowContext(ctx,
		`SELECT quest_id, title, description FROM quests WHERE quest_id = $1`, id).
		Scan(&q.ID, &q.Title, &q.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return Quest{}, ErrNotFound
	}
	return q, err
}

func (p *Postgres) OwnedWeapons(ctx context.Context, profileID string) ([]OwnedWeapon, error) {
	if _, err := p.ProfileByID(ctx, profileID); err != nil {
		return nil, err
	}
	rows, err := p.q.QueryContext(ctx,
		`SELECT player_id, weapon_id, equipped, obtained_at FROM player_weapons_owned
		 WHERE player_id = $1 ORDER BY obtained_at, weapon_id`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OwnedWeapon
	for rows.Next() {
		var ow OwnedWeapon
		var obtained int64
		if err := rows.Scan(&ow.ProfileID, &ow.WeaponID, &ow.Equipped, &obtained); err != nil {
			return nil, err
		}
		ow.ObtainedAt = fromUnix(obtained)
		out = append(out, ow)
	}
	return out, rows.Err()
}

func (p *Postgres) GrantWeapon(ctx context.Context, profileID, weaponID string, at time.Time) error {
	return p.withTx(ctx, func(q querier) error {
		if err := lockProfileRow(ctx, q, profileID); err != nil {
			return err
		}
		var one int
		err := q.QueryRowContext(ctx, `SELECT 1 FROM weapons WHERE weapon_id = $1`, weaponID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx,
			`INSERT INTO player_weapons_owned (player_id, weapon_id, equipped, obtained_at)
			 VALUES ($1, $2, FALSE, $3)
			 ON CONFLICT (player_id, weapon_id) DO NOTHING`,
			profileID, weaponID, at.Unix())
		return err
	})
}

func (p *Postgres) EquipWeapon(ctx context.Context, profileID, weaponID string) error {
	return p.withTx(ctx, func(q querier) error {
		if err := lockProfileRow(ctx, q, profileID); err != nil {
			return err
		}
		var one int
		err := q.QueryRowContext(ctx,
			`SELECT 1 FROM player_weapons_owned WHERE player_id = $1 AND weapon_id = $2`,
			profileID, weaponID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrWeaponNotOwned
		}
		if err != nil {
			return err
		}
		// Clear before set so the partial unique index never sees two
		// equipped rows mid-statement.
		if _, err := q.ExecContext(ctx,
			`UPDATE player_weapons_owned SET equipped = FALSE WHERE player_id = $1 AND equipped`,
			profileID); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx,
			`UPDATE player_weapons_owned SET equipped = TRUE WHERE player_id = $1 AND weapon_id = $2`,
			profileID, weaponID)
		return err
	})
}

func (p *Postgres) EquippedWeapon(ctx context.Context, profileID string) (Weapon, bool, error) {
	var w Weapon
	err := p.q.QueryRowContext(ctx,
		`SELECT w.weapon_id, w.name, w.base_knockback
		 FROM player_weapons_owned ow
		 JOIN weapons w ON w.weapon_id = ow.weapon_id
		 WHERE ow.player_id = $1 AND ow.equipped`, profileID).
		Scan(&w.ID, &w.Name, &w.BaseKnockback)
	if errors.Is(err, sql.ErrNoRows) {
		if _, perr := p.ProfileByID(ctx, profileID); perr != nil {
			return Weapon{}, false, perr
		}
		return Weapon{}, false, nil
	}
	if err != nil {
		return Weapon{}, false, err
	}
	return w, true, nil
}

func (p *Postgres) AcceptQuest(ctx context.Context, profileID, questID string, at time.Time) error {
	return p.withTx(ctx, func(q querier) error {
		var one int
		err := q.QueryRowContext(ctx, `SELECT 1 FROM quests WHERE quest_id = $1`, questID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrQuestUnknown
		}
		if err != nil {
			return err
		}
		if err := lockProfileRow(ctx, q, profileID); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx,
			`INSERT INTO player_quests (player_id, quest_id, status, accepted_at, updated_at)
			 VALUES ($1, $2, $3, $4, $4)
			 ON CONFLICT (player_id, quest_id)
			 DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
			profileID, questID, QuestAccepted, at.Unix())
		return err
	})
}

func (p *Postgres) QuestsFor(ctx context.Context, profileID string) ([]ProfileQuest, error) {
	if _, err := p.ProfileByID(ctx, profileID); err != nil {
		return nil, err
	}
	rows, err := p.q.QueryContext(ctx,
		`SELECT player_id, quest_id, status, accepted_at, updated_at FROM player_quests
		 WHERE player_id = $1 ORDER BY accepted_at, quest_id`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProfileQuest
	for rows.Next() {
		var entry ProfileQuest
		var accepted, updated int64
		if err := rows.Scan(&entry.ProfileID, &entry.QuestID, &entry.Status, &accepted, &updated); err != nil {
			return nil, err
		}
		entry.AcceptedAt = fromUnix(accepted)
		entry.UpdatedAt = fromUnix(updated)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (p *Postgres) AppendHitEvent(ctx context.Context, ev HitEvent) (HitEvent, error) {
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	reason := sql.NullString{String: ev.Reason, Valid: ev.Reason != ""}
	_, err := p.q.ExecContext(ctx,
		`INSERT INTO combat_hit_events
		   (hit_id, attacker_player_id, target_player_id, weapon_id,
		    knockback_applied_x, knockback_applied_y, was_applied, server_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.AttackerID, ev.TargetID, ev.WeaponID,
		ev.KnockbackX, ev.KnockbackY, ev.Applied, reason, ev.CreatedAt.Unix())
	if err != nil {
		return HitEvent{}, err
	}
	return ev, nil
}

func (p *Postgres) HitEventsFor(ctx context.Context, profileID string, limit int) ([]HitEvent, error) {
	query := `SELECT hit_id, attacker_player_id, target_player_id, weapon_id,
	                 knockback_applied_x, knockback_applied_y, was_applied, server_reason, created_at
	          FROM combat_hit_events
	          WHERE attacker_player_id = $1 OR target_player_id = $1
	          ORDER BY created_at DESC, hit_id DESC`
	args := []any{profileID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HitEvent
	for rows.Next() {
		var ev HitEvent
		var created int64
		var reason sql.NullString
		if err := rows.Scan(&ev.ID, &ev.AttackerID, &ev.TargetID, &ev.WeaponID,
			&ev.KnockbackX, &ev.KnockbackY, &ev.Applied, &reason, &created); err != nil {
			return nil, err
		}
		ev.Reason = reason.String
		ev.CreatedAt = fromUnix(created)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Atomic locks the listed profiles in ascending id order inside one
// transaction and runs fn against it. Unknown ids lock nothing; fn is
// expected to surface them as not-found.
func (p *Postgres) Atomic(ctx context.Context, profileIDs []string, fn func(tx Store) error) error {
	if p.intx {
		return ErrNestedAtomic
	}
	sorted := append([]string(nil), profileIDs...)
	sort.Strings(sorted)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	prev := ""
	for i, id := range sorted {
		if i > 0 && id == prev {
			continue
		}
		prev = id
		if err := lockProfileRow(ctx, tx, id); err != nil && !errors.Is(err, ErrNotFound) {
			_ = tx.Rollback()
			return err
		}
	}
	if err := fn(&Postgres{db: p.db, q: tx, intx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
