package protocol

// All timestamps on the wire are Unix milliseconds.

// Vec2 is a plain x/y pair on the wire.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	// Credential is a username or an email address.
	Credential string `json:"credential"`
	Password   string `json:"password"`
}

type UserPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type SessionPayload struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

type RegisterResponse struct {
	User UserPayload `json:"user"`
	Next string      `json:"next"`
}

type LoginResponse struct {
	Session SessionPayload `json:"session"`
	User    UserPayload    `json:"user"`
}

type ProfilePayload struct {
	ID               string         `json:"id"`
	UserID           string         `json:"userId,omitempty"`
	DisplayName      string         `json:"displayName"`
	SkillID          string         `json:"skillId,omitempty"`
	EquippedWeaponID string         `json:"equippedWeaponId,omitempty"`
	Position         Vec2           `json:"position"`
	PvPEnabled       bool           `json:"pvpEnabled"`
	Attributes       map[string]int `json:"attributes"`
	Assets           map[string]int `json:"assets"`
	CreatedAt        int64          `json:"createdAt"`
}

type CreateProfileRequest struct {
	DisplayName string `json:"displayName"`
	SkillID     string `json:"skillId,omitempty"`
}

// PositionRequest moves a profile. X and Y are pointers so an omitted
// coordinate can be told apart from a legitimate zero.
type PositionRequest struct {
	ProfileID string   `json:"profileId"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
}

// PvPRequest toggles whether a profile can receive PvP knockback.
type PvPRequest struct {
	ProfileID string `json:"profileId"`
	Enabled   *bool  `json:"enabled"`
}

type EquipRequest struct {
	ProfileID string `json:"profileId"`
	WeaponID  string `json:"weaponId"`
}

type AcceptQuestRequest struct {
	ProfileID string `json:"profileId"`
	QuestID   string `json:"questId"`
}

type HitRequest struct {
	AttackerProfileID string `json:"attackerProfileId"`
	TargetProfileID   string `json:"targetProfileId"`
}

// HitResult reports the outcome of a resolved hit. Applied=false with a
// reason of TARGET_PVP_DISABLED is still a successful call: the hit
// connected but had no physical consequence.
type HitResult struct {
	EventID   string  `json:"eventId"`
	WeaponID  string  `json:"weaponId"`
	Distance  float64 `json:"distance"`
	Knockback Vec2    `json:"knockback"`
	Applied   bool    `json:"applied"`
	Reason    Code    `json:"reason,omitempty"`
}

// WorldPlayer is one profile's public state in a world snapshot.
type WorldPlayer struct {
	ProfileID        string `json:"profileId"`
	UserID           string `json:"userId"`
	DisplayName      string `json:"displayName"`
	EquippedWeaponID string `json:"equippedWeaponId,omitempty"`
	Position         Vec2   `json:"position"`
	Online           bool   `json:"online"`
}

// WorldState is the full poll payload: every known profile with its
// latest authoritative position and presence flag.
type WorldState struct {
	Players    []WorldPlayer `json:"players"`
	Count      int           `json:"count"`
	ServerTime int64         `json:"serverTime"`
}

type OnlineUser struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	ConnectedAt int64  `json:"connectedAt"`
	LastSeen    int64  `json:"lastSeen"`
}

type OnlineResponse struct {
	Online []OnlineUser `json:"online"`
	Count  int          `json:"count"`
}

type WeaponPayload struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	BaseKnockback float64 `json:"baseKnockback"`
}

type SkillPayload struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	KnockbackMultiplier float64 `json:"knockbackMultiplier"`
}

type QuestPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type LogoutResponse struct {
	LoggedOut bool `json:"loggedOut"`
}

type ConnectResponse struct {
	Connected bool        `json:"connected"`
	User      UserPayload `json:"user"`
}

type DisconnectResponse struct {
	Disconnected bool `json:"disconnected"`
}

// MeResponse describes the authenticated account and how many duel
// profiles it owns.
type MeResponse struct {
	User          UserPayload `json:"user"`
	ProfilesCount int         `json:"profilesCount"`
}

type ProfileResponse struct {
	Profile ProfilePayload `json:"profile"`
}

type ProfilesResponse struct {
	Profiles []ProfilePayload `json:"profiles"`
}

type PositionResponse struct {
	ProfileID string `json:"profileId"`
	Position  Vec2   `json:"position"`
}

type EquipResponse struct {
	ProfileID        string `json:"profileId"`
	EquippedWeaponID string `json:"equippedWeaponId"`
}

type AcceptQuestResponse struct {
	ProfileID string `json:"profileId"`
	QuestID   string `json:"questId"`
	Status    string `json:"status"`
}

type PvPResponse struct {
	ProfileID  string `json:"profileId"`
	PvPEnabled bool   `json:"pvpEnabled"`
}

type HitResponse struct {
	Combat HitResult `json:"combat"`
}

// HitEventPayload is one row of the combat audit log.
type HitEventPayload struct {
	EventID           string `json:"eventId"`
	AttackerProfileID string `json:"attackerProfileId"`
	TargetProfileID   string `json:"targetProfileId"`
	WeaponID          string `json:"weaponId"`
	Knockback         Vec2   `json:"knockback"`
	Applied           bool   `json:"applied"`
	Reason            Code   `json:"reason,omitempty"`
	CreatedAt         int64  `json:"createdAt"`
}

type HitEventsResponse struct {
	ProfileID string            `json:"profileId"`
	Events    []HitEventPayload `json:"events"`
}

type WeaponsResponse struct {
	Weapons []WeaponPayload `json:"weapons"`
}

type SkillsResponse struct {
	Skills []SkillPayload `json:"skills"`
}

type QuestsResponse struct {
	Quests []QuestPayload `json:"quests"`
}
