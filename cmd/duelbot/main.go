// Command duelbot drives a scripted duelist against a running server: it
// registers an account, joins the world, chases the nearest player with
// an aggro machine, and swings whenever its target comes into reach.
// Useful for soaking the snapshot feed and the hit pipeline without a
// browser client.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	nethttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"duelgrounds/aggro"
	"duelgrounds/client"
	"duelgrounds/protocol"
	"duelgrounds/sim"
)

const (
	tickInterval  = 100 * time.Millisecond
	swingCooldown = 500 * time.Millisecond
	teardownGrace = 3 * time.Second
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "server base url")
	username := flag.String("username", "duelbot", "account username")
	password := flag.String("password", "duelbot-pass", "account password")
	display := flag.String("display", "Duelbot", "profile display name")
	codecName := flag.String("codec", "json", "stream codec: json or msgpack")
	usePoll := flag.Bool("poll", false, "poll /world/state instead of streaming")
	reach := flag.Float64("reach", 56, "distance at which the bot swings")
	duration := flag.Duration("duration", 30*time.Second, "how long to duel before leaving")
	flag.Parse()

	codec, err := protocol.ParseCodec(*codecName)
	if err != nil {
		fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	api := &apiClient{
		base: strings.TrimRight(*serverURL, "/"),
		http: &nethttp.Client{Timeout: 10 * time.Second},
	}

	if err := api.join(ctx, *username, *password); err != nil {
		fail(fmt.Errorf("join: %w", err))
	}
	fmt.Printf("duelbot: logged in as %s\n", *username)

	profile, err := api.ensureProfile(ctx, *display)
	if err != nil {
		fail(fmt.Errorf("profile: %w", err))
	}
	fmt.Printf("duelbot: dueling as %q (%s)\n", profile.DisplayName, profile.ID)

	if err := api.post(ctx, "/session/connect", nil, nil); err != nil {
		fail(fmt.Errorf("connect: %w", err))
	}
	defer api.leave()

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	snapshots, feedErr := startFeed(ctx, api, codec, *usePoll, logger.Sugar())

	if err := duel(ctx, api, profile, snapshots, feedErr, *reach); err != nil {
		fail(err)
	}
	fmt.Println("duelbot: scenario complete")
}

// startFeed launches the chosen snapshot source and returns its channel
// plus a channel that reports a transport failure.
func startFeed(ctx context.Context, api *apiClient, codec protocol.Codec, poll bool, log *zap.SugaredLogger) (<-chan []sim.Snapshot, <-chan error) {
	errCh := make(chan error, 1)
	if poll {
		poller := client.NewPoller(api.base, api.token, client.DefaultPollInterval, log)
		go func() {
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded) {
				errCh <- err
			}
		}()
		return poller.Snapshots(), errCh
	}
	stream := client.NewStream(api.base, api.token, codec, log)
	go func() {
		if err := stream.Run(ctx); err != nil {
			errCh <- err
		}
	}()
	return stream.Snapshots(), errCh
}

// duel is the bot's brain: estimate the other players, let the aggro
// machine pick a target and a velocity, report movement to the server,
// and swing when the target is in reach. The server stays authoritative;
// every position reply is reconciled back into the local estimate.
func duel(ctx context.Context, api *apiClient, profile protocol.ProfilePayload, snapshots <-chan []sim.Snapshot, feedErr <-chan error, reach float64) error {
	machine := aggro.NewMachine(aggro.DefaultConfig())
	tracker := sim.NewTracker()
	self := mgl64.Vec2{profile.Position.X, profile.Position.Y}
	latest := make(map[string]struct{})

	var tick uint64
	var lastSwing time.Time

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-feedErr:
			return fmt.Errorf("feed: %w", err)
		case batch := <-snapshots:
			clear(latest)
			for _, snap := range batch {
				if snap.ActorID == profile.ID {
					self, _ = sim.Reconcile(self, snap.Position)
					continue
				}
				latest[snap.ActorID] = struct{}{}
				tracker.Observe(snap.ActorID, snap.Position, snap.At)
			}
			for _, id := range tracker.IDs() {
				if _, ok := latest[id]; !ok {
					tracker.Forget(id)
				}
			}
		case now := <-ticker.C:
			tick++
			dt := tickInterval.Seconds()

			contacts := make([]aggro.Contact, 0, len(latest))
			positions := make(map[string]mgl64.Vec2, len(latest))
			for _, id := range tracker.IDs() {
				state, ok := tracker.Step(id, now, dt)
				if !ok || !state.Known {
					continue
				}
				contacts = append(contacts, aggro.Contact{ID: id, Pos: state.Position})
				positions[id] = state.Position
			}

			decision := machine.Tick(tick, self, contacts)
			if decision.Velocity.LenSqr() > 0 {
				self = self.Add(decision.Velocity.Mul(dt))
				if err := api.reportPosition(ctx, profile.ID, &self); err != nil && ctx.Err() == nil {
					fmt.Printf("duelbot: position update failed: %v\n", err)
				}
			}

			if decision.Phase != aggro.PhaseChasing || decision.TargetID == "" {
				continue
			}
			targetPos, ok := positions[decision.TargetID]
			if !ok || targetPos.Sub(self).Len() > reach {
				continue
			}
			if now.Sub(lastSwing) < swingCooldown {
				continue
			}
			lastSwing = now
			api.swing(ctx, profile.ID, decision.TargetID)
		}
	}
}

// apiClient is a minimal envelope-aware REST client.
type apiClient struct {
	base  string
	token string
	http  *nethttp.Client
}

// join registers the account, tolerating an existing one, then logs in.
func (a *apiClient) join(ctx context.Context, username, password string) error {
	err := a.post(ctx, "/auth/register", protocol.RegisterRequest{
		Username: username,
		Email:    username + "@duelbot.local",
		Password: password,
	}, nil)
	var wire *protocol.WireError
	if err != nil && (!errors.As(err, &wire) || wire.Code != protocol.CodeDuplicateUser) {
		return err
	}

	var login protocol.LoginResponse
	if err := a.post(ctx, "/auth/login", protocol.LoginRequest{
		Credential: username,
		Password:   password,
	}, &login); err != nil {
		return err
	}
	a.token = login.Session.Token
	return nil
}

// ensureProfile reuses the account's first profile or creates one.
func (a *apiClient) ensureProfile(ctx context.Context, display string) (protocol.ProfilePayload, error) {
	var existing protocol.ProfilesResponse
	if err := a.get(ctx, "/profiles", &existing); err != nil {
		return protocol.ProfilePayload{}, err
	}
	if len(existing.Profiles) > 0 {
		return existing.Profiles[0], nil
	}

	var created protocol.ProfileResponse
	if err := a.post(ctx, "/profiles", protocol.CreateProfileRequest{DisplayName: display}, &created); err != nil {
		return protocol.ProfilePayload{}, err
	}
	return created.Profile, nil
}

// reportPosition pushes the local position and folds the authoritative
// reply back in, so a knockback the bot missed cannot drift forever.
func (a *apiClient) reportPosition(ctx context.Context, profileID string, self *mgl64.Vec2) error {
	x, y := self.X(), self.Y()
	var resp protocol.PositionResponse
	if err := a.post(ctx, "/profiles/position", protocol.PositionRequest{
		ProfileID: profileID,
		X:         &x,
		Y:         &y,
	}, &resp); err != nil {
		return err
	}
	*self, _ = sim.Reconcile(*self, mgl64.Vec2{resp.Position.X, resp.Position.Y})
	return nil
}

// swing attempts a hit and narrates the outcome. Rejections are part of
// normal play here: the target may have moved out of range or logged off
// between the estimate and the server's resolution.
func (a *apiClient) swing(ctx context.Context, attackerID, targetID string) {
	var resp protocol.HitResponse
	err := a.post(ctx, "/combat/hit", protocol.HitRequest{
		AttackerProfileID: attackerID,
		TargetProfileID:   targetID,
	}, &resp)
	if err != nil {
		var wire *protocol.WireError
		if errors.As(err, &wire) {
			fmt.Printf("duelbot: swing at %s rejected: %s\n", targetID, wire.Code)
			return
		}
		if ctx.Err() == nil {
			fmt.Printf("duelbot: swing failed: %v\n", err)
		}
		return
	}
	if resp.Combat.Applied {
		fmt.Printf("duelbot: hit %s with %s, knockback (%.1f, %.1f)\n",
			targetID, resp.Combat.WeaponID, resp.Combat.Knockback.X, resp.Combat.Knockback.Y)
		return
	}
	fmt.Printf("duelbot: hit %s connected but had no effect (%s)\n", targetID, resp.Combat.Reason)
}

// leave tears the session down on a fresh context; the duel context is
// usually already expired by the time we get here.
func (a *apiClient) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), teardownGrace)
	defer cancel()
	if err := a.post(ctx, "/session/disconnect", nil, nil); err != nil {
		fmt.Printf("duelbot: disconnect failed: %v\n", err)
	}
	if err := a.post(ctx, "/auth/logout", nil, nil); err != nil {
		fmt.Printf("duelbot: logout failed: %v\n", err)
	}
}

func (a *apiClient) post(ctx context.Context, path string, body, out any) error {
	return a.do(ctx, nethttp.MethodPost, path, body, out)
}

func (a *apiClient) get(ctx context.Context, path string, out any) error {
	return a.do(ctx, nethttp.MethodGet, path, nil, out)
}

func (a *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, a.base+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	data, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func fail(err error) {
	fmt.Println(err.Error())
	os.Exit(1)
}
