// Package net exposes the duelgrounds HTTP surface: the JSON REST API
// the browser client talks to, the /ws snapshot stream, and the static
// client bundle. Every REST response travels inside the protocol
// envelope and carries permissive CORS headers so the client can be
// served from anywhere.
package net

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"duelgrounds/internal/auth"
	"duelgrounds/internal/combat"
	"duelgrounds/internal/store"
	"duelgrounds/internal/world"
	"duelgrounds/protocol"
)

// sessionCookie is where browsers keep the session token. Non-browser
// clients send the same token as an Authorization bearer instead.
const sessionCookie = "session_id"

const maxBodyBytes = 1 << 20

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Store    store.Store
	Auth     *auth.Service
	Combat   *combat.Resolver
	Hub      *world.Hub
	Presence *world.Presence
}

// HandlerConfig carries the transport-level knobs.
type HandlerConfig struct {
	// ClientDir is the directory holding the static web client. Empty
	// disables static serving.
	ClientDir string
	Logger    *zap.SugaredLogger
}

type api struct {
	store    store.Store
	auth     *auth.Service
	combat   *combat.Resolver
	hub      *world.Hub
	presence *world.Presence
	log      *zap.SugaredLogger
	started  time.Time
}

// NewHandler wires the REST routes, the websocket stream and the static
// client into a single handler.
func NewHandler(deps Deps, cfg HandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	h := &api{
		store:    deps.Store,
		auth:     deps.Auth,
		combat:   deps.Combat,
		hub:      deps.Hub,
		presence: deps.Presence,
		log:      logger,
		started:  time.Now(),
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/diagnostics", h.diagnostics)

	mux.HandleFunc("/auth/register", h.register)
	mux.HandleFunc("/auth/login", h.login)
	mux.HandleFunc("/auth/logout", h.logout)

	mux.HandleFunc("/session/connect", h.connect)
	mux.HandleFunc("/session/disconnect", h.disconnect)
	mux.HandleFunc("/session/online", h.online)

	mux.HandleFunc("/profile/me", h.me)
	mux.HandleFunc("/profiles", h.profiles)
	mux.HandleFunc("/profiles/position", h.updatePosition)
	mux.HandleFunc("/profiles/equip", h.equipWeapon)
	mux.HandleFunc("/profiles/pvp", h.setPvP)
	mux.HandleFunc("/profiles/quests/accept", h.acceptQuest)

	mux.HandleFunc("/combat/hit", h.combatHit)
	mux.HandleFunc("/combat/events", h.combatEvents)

	mux.HandleFunc("/world/state", h.worldState)

	mux.HandleFunc("/catalog/weapons", h.listWeapons)
	mux.HandleFunc("/catalog/skills", h.listSkills)
	mux.HandleFunc("/catalog/quests", h.listQuests)

	mux.HandleFunc("/ws", h.stream)

	if cfg.ClientDir != "" {
		assets := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/assets/", assets)
		index := filepath.Join(cfg.ClientDir, "index.html")
		mux.HandleFunc("/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
			if r.URL.Path == "/" || r.URL.Path == "/index.html" {
				nethttp.ServeFile(w, r, index)
				return
			}
			h.endpointNotFound(w, r)
		})
	} else {
		mux.HandleFunc("/", h.endpointNotFound)
	}

	return withCORS(mux)
}

// withCORS adds the permissive headers the browser client expects and
// short-circuits preflight requests.
func withCORS(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == nethttp.MethodOptions {
			w.WriteHeader(nethttp.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *api) health(w nethttp.ResponseWriter, _ *nethttp.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (h *api) diagnostics(w nethttp.ResponseWriter, _ *nethttp.Request) {
	payload := struct {
		Status       string `json:"status"`
		ServerTime   int64  `json:"serverTime"`
		UptimeMillis int64  `json:"uptimeMillis"`
		Online       int    `json:"online"`
		Streams      int    `json:"streams"`
	}{
		Status:       "ok",
		ServerTime:   time.Now().UnixMilli(),
		UptimeMillis: time.Since(h.started).Milliseconds(),
		Online:       len(h.presence.Snapshot()),
		Streams:      h.hub.Subscribers(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (h *api) register(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodPost {
		h.endpointNotFound(w, r)
		return
	}
	var req protocol.RegisterRequest
	h.readBody(r, &req)

	acct, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, nethttp.StatusCreated, protocol.RegisterResponse{
		User: userPayload(acct),
		Next: "login_required",
	})
}

func (h *api) login(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodPost {
		h.endpointNotFound(w, r)
		return
	}
	var req protocol.LoginRequest
	h.readBody(r, &req)

	sess, acct, err := h.auth.Login(r.Context(), req.Credential, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	ttlSeconds := int64(h.auth.SessionTTL() / time.Second)
	nethttp.SetCookie(w, sessionCookieFor(sess.Token, int(ttlSeconds)))
	h.writeData(w, nethttp.StatusOK, protocol.LoginResponse{
		Session: protocol.SessionPayload{Token: sess.Token, ExpiresIn: ttlSeconds},
		User:    userPayload(acct),
	})
}

func (h *api) logout(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodPost {
		h.endpointNotFound(w, r)
		return
	}
	token := sessionToken(r)
	// A banned account can still log out; drop its presence entry before
	// the session disappears so the roster never lists a dead session.
	if acct, err := h.auth.ResolveIgnoringBan(r.Context(), token); err == nil {
		h.presence.Disconnect(acct.ID)
	}
	if err := h.auth.Logout(r.Context(), token); err != nil {
		h.writeError(w, err)
		return
	}
	nethttp.SetCookie(w, sessionCookieFor("", -1))
	h.writeData(w, nethttp.StatusOK, protocol.LogoutResponse{LoggedOut: true})
}

func (h *api) connect(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodPost {
		h.endpointNotFound(w, r)
		return
	}
	acct, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	h.presence.Connect(acct.ID, time.Now())
	h.writeData(w, nethttp.StatusOK, protocol.ConnectResponse{
		Connected: true,
		User:      protocol.UserPayload{ID: acct.ID, Username: acct.Username},
	})
}

func (h *api) disconnect(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodPost {
		h.endpointNotFound(w, r)
		return
	}
	acct, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	h.presence.Disconnect(acct.ID)
	h.writeData(w, nethttp.StatusOK, protocol.DisconnectResponse{Disconnected: true})
}

func (h *api) online(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet {
		h.endpointNotFound(w, r)
		return
	}
	acct, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	h.presence.Touch(acct.ID, time.Now())

	entries := h.presence.Snapshot()
	users := make([]protocol.OnlineUser, 0, len(entries))
	for _, e := range entries {
		account, err := h.store.AccountByID(r.Context(), e.AccountID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			h.writeError(w, err)
			return
		}
		users = append(users, protocol.OnlineUser{
			ID:          account.ID,
			Username:    account.Username,
			ConnectedAt: e.ConnectedAt.UnixMilli(),
			LastSeen:    e.LastSeen.UnixMilli(),
		})
	}
	h.writeData(w, nethttp.StatusOK, protocol.OnlineResponse{Online: users, Count: len(users)})
}

func (h *api) me(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet {
		h.endpointNotFound(w, r)
		return
	}
	acct, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	profiles, err := h.store.ProfilesByAccount(r.Context(), acct.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, nethttp.StatusOK, protocol.MeResponse{
		User:          userPayload(acct),
		ProfilesCount: len(profiles),
	})
}

func (h *api) profiles(w nethttp.ResponseWriter, r *nethttp.Request) {
	switch r.Method {
	case nethttp.MethodGet:
		h.listProfiles(w, r)
	case nethttp.MethodPost:
		h.createProfile(w, r)
	default:
		h.endpointNotFound(w, r)
	}
}

func (h *api) listProfiles(w nethttp.ResponseWriter, r *nethttp.Request) {
	acct, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	profiles, err := h.store.ProfilesByAccount(r.Context(), acct.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload := make([]protocol.ProfilePayload, 0, len(profiles))
	for _, p := range profiles {
		payload = append(payload, profilePayload(p))
	}
	h.writeData(w, nethttp.StatusOK, protocol.ProfilesResponse{Profiles: payload})
}

func (h *api) createProfile(w nethttp.ResponseWriter, r *nethttp.Request) {
	acct, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	var req protocol.CreateProfileRequest
	h.readBody(r, &req)

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		h.writeError(w, protocol.Reject(protocol.CodeValidation, "displayName is required"))
		return
	}
	profile, err := h.store.CreateProfile(r.Context(), acct.ID, displayName, req.SkillID, time.Now())
	if errors.Is(err, store.ErrSkillUnknown) {
		h.writeError(w, protocol.Reject(protocol.CodeSkillNotFound, "Unable to create profile"))
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, nethttp.StatusCreated, protocol.ProfileResponse{Profile: profilePayload(profile)})
}

func (h *api) updatePosition(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodPost {
		h.endpointNotFound(w, r)
		return
	}
	acct, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	var req protocol.PositionRequest
	h.readBody(r, &req)

	if req.ProfileID == "" || req.X == nil || req.Y == nil {
		h.writeError(w, protocol.Reject(protocol.CodeValidation, "profileId, x and y are required"))
		return
	}
	if _, err := h.ownedProfile(r.Context(), acct.ID, req.ProfileID); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.store.UpdatePosition(r.Context(), req.ProfileID, *req.X, *req.Y); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, nethttp.StatusOK, protocol.PositionResponse{
		ProfileID: req.ProfileID,
		Position:  protocol.Vec2{X: *req.X, Y: *req.Y},
	})
}

func (h *api) equipWeapon(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodPost {
		h.endpointNotFound(w, r)
		return
	}
	acct, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	var req protocol.EquipRequest
	h.readBody(r, &req)

	if req.ProfileID == "" || req.WeaponID == "" {
		h.writeError(w, protocol.Reject(protocol.CodeValidation, "profileId and weaponId are required"))
		return
	}
	if _, err := h.ownedProfile(r.Context(), acct.ID, req.ProfileID); err != nil {
		h.writeError(w, err)
		return
	}
	err := h.store.EquipWeapon(r.Context(), req.ProfileID, req.WeaponID)
	if errors.Is(err, store.ErrWeaponNotOwned) {
		h.writeError(w, protocol.Reject(protocol.CodeWeaponNotOwned, "Unable to equip weapon"))
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, nethttp.StatusOK, protocol.EquipResponse{
		ProfileID:        req.ProfileID,
		EquippedWeaponID: req.WeaponID,
	})
}

func (h *api) setPvP(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodPost {
		h.endpointNotFound(w, r)
		return
	}
	acct, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	var req protocol.PvPRequest
	h.readBody(r, &req)

	if req.ProfileID == "" || req.Enabled == nil {
		h.writeError(w, protocol.Reject(protocol.CodeValidation, "profileId and enabled are required"))
		return
	}
	if _, err := h.ownedProfile(r.Context(), acct.ID, req.ProfileID); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.store.SetPvP(r.Context(), req.ProfileID, *req.Enabled); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, nethttp.StatusOK, protocol.PvPResponse{
		ProfileID:  req.ProfileID,
		PvPEnabled: *req.Enabled,
	})
}

func (h *api) acceptQuest(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodPost {
		h.endpointNotFound(w, r)
		return
	}
	acct, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	var req protocol.AcceptQuestRequest
	h.readBody(r, &req)

	if req.ProfileID == "" || req.QuestID == "" {
		h.writeError(w, protocol.Reject(protocol.CodeValidation, "profileId and questId are required"))
		return
	}
	if _, err := h.ownedProfile(r.Context(), acct.ID, req.ProfileID); err != nil {
		h.writeError(w, err)
		return
	}
	err := h.store.AcceptQuest(r.Context(), req.ProfileID, req.QuestID, time.Now())
	if errors.Is(err, store.ErrQuestUnknown) {
		h.writeError(w, protocol.Reject(protocol.CodeQuestNotFound, "Unable to accept quest"))
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, nethttp.StatusOK, protocol.AcceptQuestResponse{
		ProfileID: req.ProfileID,
		QuestID:   req.QuestID,
		Status:    store.QuestAccepted,
	})
}

func (h *api) combatHit(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodPost {
		h.endpointNotFound(w, r)
		return
	}
	var req protocol.HitRequest
	h.readBody(r, &req)

	res, err := h.combat.ResolveHit(r.Context(), sessionToken(r), req.AttackerProfileID, req.TargetProfileID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, nethttp.StatusOK, protocol.HitResponse{Combat: hitResult(res)})
}

func (h *api) combatEvents(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet {
		h.endpointNotFound(w, r)
		return
	}
	acct, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	profileID := query.Get("profileId")
	if profileID == "" {
		h.writeError(w, protocol.Reject(protocol.CodeValidation, "profileId is required"))
		return
	}
	if _, err := h.ownedProfile(r.Context(), acct.ID, profileID); err != nil {
		h.writeError(w, err)
		return
	}
	limit := defaultEventLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, protocol.Reject(protocol.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxEventLimit)
	}
	events, err := h.store.HitEventsFor(r.Context(), profileID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload := make([]protocol.HitEventPayload, 0, len(events))
	for _, ev := range events {
		payload = append(payload, hitEventPayload(ev))
	}
	h.writeData(w, nethttp.StatusOK, protocol.HitEventsResponse{ProfileID: profileID, Events: payload})
}

func (h *api) worldState(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet {
		h.endpointNotFound(w, r)
		return
	}
	acct, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	h.presence.Touch(acct.ID, time.Now())

	state, err := h.hub.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, nethttp.StatusOK, state)
}

func (h *api) listWeapons(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet {
		h.endpointNotFound(w, r)
		return
	}
	if _, ok := h.requireAccount(w, r); !ok {
		return
	}
	weapons, err := h.store.Weapons(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload := make([]protocol.WeaponPayload, 0, len(weapons))
	for _, wpn := range weapons {
		payload = append(payload, protocol.WeaponPayload{
			ID:            wpn.ID,
			Name:          wpn.Name,
			BaseKnockback: wpn.BaseKnockback,
		})
	}
	h.writeData(w, nethttp.StatusOK, protocol.WeaponsResponse{Weapons: payload})
}

func (h *api) listSkills(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet {
		h.endpointNotFound(w, r)
		return
	}
	if _, ok := h.requireAccount(w, r); !ok {
		return
	}
	skills, err := h.store.Skills(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload := make([]protocol.SkillPayload, 0, len(skills))
	for _, sk := range skills {
		payload = append(payload, protocol.SkillPayload{
			ID:                  sk.ID,
			Name:                sk.Name,
			KnockbackMultiplier: sk.Multiplier,
		})
	}
	h.writeData(w, nethttp.StatusOK, protocol.SkillsResponse{Skills: payload})
}

func (h *api) listQuests(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet {
		h.endpointNotFound(w, r)
		return
	}
	if _, ok := h.requireAccount(w, r); !ok {
		return
	}
	quests, err := h.store.Quests(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload := make([]protocol.QuestPayload, 0, len(quests))
	for _, q := range quests {
		payload = append(payload, protocol.QuestPayload{
			ID:          q.ID,
			Title:       q.Title,
			Description: q.Description,
		})
	}
	h.writeData(w, nethttp.StatusOK, protocol.QuestsResponse{Quests: payload})
}

// requireAccount resolves the session or writes the UNAUTHORIZED
// envelope. Banned accounts fail here exactly like missing sessions.
func (h *api) requireAccount(w nethttp.ResponseWriter, r *nethttp.Request) (store.Account, bool) {
	acct, err := h.auth.ResolveToken(r.Context(), sessionToken(r))
	if err != nil {
		h.writeError(w, err)
		return store.Account{}, false
	}
	return acct, true
}

// ownedProfile loads a profile and verifies ownership. Missing and
// foreign profiles are indistinguishable to the caller.
func (h *api) ownedProfile(ctx context.Context, accountID, profileID string) (store.Profile, error) {
	profile, err := h.store.ProfileByID(ctx, profileID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, errNotOwned()
	}
	if err != nil {
		return store.Profile{}, err
	}
	if profile.AccountID != accountID {
		return store.Profile{}, errNotOwned()
	}
	return profile, nil
}

func errNotOwned() *protocol.WireError {
	return protocol.Reject(protocol.CodeForbidden, "Profile not owned by this user")
}

// sessionToken pulls the session from the cookie, falling back to a
// bearer token for non-browser clients.
func sessionToken(r *nethttp.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// sessionCookieFor builds the cookie the browser client stores the
// session under. maxAge < 0 clears it.
func sessionCookieFor(token string, maxAge int) *nethttp.Cookie {
	return &nethttp.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: nethttp.SameSiteLaxMode,
	}
}

// readBody decodes a JSON body into dst. Malformed and missing bodies
// are treated as empty so the field checks produce the rejection.
func (h *api) readBody(r *nethttp.Request, dst any) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, dst); err != nil {
		h.log.Debugw("discarding malformed body", "path", r.URL.Path, "error", err)
	}
}

func userPayload(a store.Account) protocol.UserPayload {
	return protocol.UserPayload{ID: a.ID, Username: a.Username, Email: a.Email}
}

func profilePayload(p store.Profile) protocol.ProfilePayload {
	return protocol.ProfilePayload{
		ID:               p.ID,
		UserID:           p.AccountID,
		DisplayName:      p.DisplayName,
		SkillID:          p.SkillID,
		EquippedWeaponID: p.EquippedWeaponID,
		Position:         protocol.Vec2{X: p.X, Y: p.Y},
		PvPEnabled:       p.PvPEnabled,
		Attributes:       p.Attributes,
		Assets:           p.Assets,
		CreatedAt:        p.CreatedAt.UnixMilli(),
	}
}

func hitResult(res combat.Result) protocol.HitResult {
	return protocol.HitResult{
		EventID:   res.EventID,
		WeaponID:  res.WeaponID,
		Distance:  res.Distance,
		Knockback: protocol.Vec2{X: res.Knockback.X(), Y: res.Knockback.Y()},
		Applied:   res.Applied,
		Reason:    res.Reason,
	}
}

func hitEventPayload(ev store.HitEvent) protocol.HitEventPayload {
	return protocol.HitEventPayload{
		EventID:           ev.ID,
		AttackerProfileID: ev.AttackerID,
		TargetProfileID:   ev.TargetID,
		WeaponID:          ev.WeaponID,
		Knockback:         protocol.Vec2{X: ev.KnockbackX, Y: ev.KnockbackY},
		Applied:           ev.Applied,
		Reason:            protocol.Code(ev.Reason),
		CreatedAt:         ev.CreatedAt.UnixMilli(),
	}
}

func (h *api) writeData(w nethttp.ResponseWriter, status int, payload any) {
	h.writeEnvelope(w, status, protocol.Envelope{OK: true, Data: payload})
}

// writeError maps a WireError onto its HTTP status; anything else is a
// server fault and stays opaque to the client.
func (h *api) writeError(w nethttp.ResponseWriter, err error) {
	var wire *protocol.WireError
	if !errors.As(err, &wire) {
		h.log.Errorw("request failed", "error", err)
		wire = protocol.Reject(protocol.CodeInternal, "internal server error")
	}
	h.writeEnvelope(w, statusFor(wire.Code), protocol.Envelope{OK: false, Error: wire})
}

func (h *api) writeEnvelope(w nethttp.ResponseWriter, status int, env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Errorw("encoding envelope", "error", err)
		nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (h *api) endpointNotFound(w nethttp.ResponseWriter, _ *nethttp.Request) {
	h.writeError(w, protocol.Reject(protocol.CodeNotFound, "Endpoint not found"))
}

// statusFor maps stable rejection codes onto HTTP statuses.
func statusFor(code protocol.Code) int {
	switch code {
	case protocol.CodeUnauthorized, protocol.CodeInvalidCredentials:
		return nethttp.StatusUnauthorized
	case protocol.CodeForbidden, protocol.CodeBanned:
		return nethttp.StatusForbidden
	case protocol.CodeNotFound, protocol.CodeUserNotFound:
		return nethttp.StatusNotFound
	case protocol.CodeDuplicateUser:
		return nethttp.StatusConflict
	case protocol.CodeInternal:
		return nethttp.StatusInternalServerError
	default:
		return nethttp.StatusBadRequest
	}
}
