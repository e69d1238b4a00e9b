// Package combat resolves hit attempts between duel profiles. Every check
// and write for one attempt happens inside a single atomic store section so
// concurrent hits on the same profiles serialize cleanly.
package combat

import (
	"context"
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"duelgrounds/internal/store"
	"duelgrounds/protocol"
)

// DefaultMaxHitDistance bounds melee reach in world units: sword reach plus
// tolerance for snapshot staleness between client and server.
const DefaultMaxHitDistance = 64.0

// SessionResolver identifies the attacking account without the ban gate;
// the pipeline reports bans as their own rejection step.
type SessionResolver interface {
	ResolveIgnoringBan(ctx context.Context, token string) (store.Account, error)
	CheckBan(ctx context.Context, accountID string) (store.Ban, bool, error)
}

// Result mirrors the audit row written for a resolved attempt. Reason is
// empty when the knockback was applied.
type Result struct {
	EventID   string
	WeaponID  string
	Distance  float64
	Knockback mgl64.Vec2
	Applied   bool
	Reason    protocol.Code
}

// Resolver runs the hit pipeline. Rejections come back as
// *protocol.WireError; an applied=false Result with reason
// TARGET_PVP_DISABLED is a success with no physical effect.
type Resolver struct {
	store    store.Store
	sessions SessionResolver
	maxDist  float64
	now      func() time.Time
	log      *zap.SugaredLogger
}

func NewResolver(st store.Store, sessions SessionResolver, maxDist float64, log *zap.SugaredLogger) *Resolver {
	if maxDist <= 0 {
		maxDist = DefaultMaxHitDistance
	}
	return &Resolver{store: st, sessions: sessions, maxDist: maxDist, now: time.Now, log: log}
}

// MaxDistance is the configured hit range.
func (r *Resolver) MaxDistance() float64 {
	return r.maxDist
}

// ResolveHit validates and applies one hit attempt. Check order: session,
// ban, attacker ownership, target existence, equipped weapon, range, then
// the target's PvP flag. All validation precedes any write; the position
// update and the audit append commit together or not at all.
func (r *Resolver) ResolveHit(ctx context.Context, token, attackerID, targetID string) (Result, error) {
	if attackerID == "" || targetID == "" {
		return Result{}, protocol.Reject(protocol.CodeValidation, "attackerProfileId and targetProfileId are required")
	}
	if attackerID == targetID {
		return Result{}, protocol.Reject(protocol.CodeValidation, "attacker cannot target itself")
	}

	acc, err := r.sessions.ResolveIgnoringBan(ctx, token)
	if err != nil {
		return Result{}, err
	}
	if _, banned, err := r.sessions.CheckBan(ctx, acc.ID); err != nil {
		return Result{}, err
	} else if banned {
		return Result{}, protocol.Reject(protocol.CodeBanned, "This account is banned")
	}

	var res Result
	err = r.store.Atomic(ctx, []string{attackerID, targetID}, func(tx store.Store) error {
		attacker, err := tx.ProfileByID(ctx, attackerID)
		if errors.Is(err, store.ErrNotFound) {
			return protocol.Reject(protocol.CodeForbidden, "Attacker profile not owned by this user")
		}
		if err != nil {
			return err
		}
		if attacker.AccountID != acc.ID {
			return protocol.Reject(protocol.CodeForbidden, "Attacker profile not owned by this user")
		}

		target, err := tx.ProfileByID(ctx, targetID)
		if errors.Is(err, store.ErrNotFound) {
			return protocol.Reject(protocol.CodeNotFound, "Target profile not found")
		}
		if err != nil {
			return err
		}

		weapon, equipped, err := tx.EquippedWeapon(ctx, attackerID)
		if err != nil {
			return err
		}
		if !equipped {
			return protocol.Reject(protocol.CodeNoWeaponEquipped, "Attacker has no equipped weapon")
		}

		multiplier := 1.0
		if attacker.SkillID != "" {
			skill, err := tx.SkillByID(ctx, attacker.SkillID)
			if err == nil {
				multiplier = skill.Multiplier
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		knockback, distance := Knockback(
			mgl64.Vec2{attacker.X, attacker.Y},
			mgl64.Vec2{target.X, target.Y},
			weapon.BaseKnockback, multiplier)
		if distance > r.maxDist {
			return protocol.Reject(protocol.CodeOutOfRange, "Target is out of range")
		}

		applied := target.PvPEnabled
		reason := protocol.Code("")
		if applied {
			if err := tx.UpdatePosition(ctx, targetID, target.X+knockback.X(), target.Y+knockback.Y()); err != nil {
				return err
			}
		} else {
			knockback = mgl64.Vec2{}
			reason = protocol.CodeTargetPvPDisabled
		}

		ev, err := tx.AppendHitEvent(ctx, store.HitEvent{
			AttackerID: attackerID,
			TargetID:   targetID,
			WeaponID:   weapon.ID,
			Applied:    applied,
			Reason:     string(reason),
			KnockbackX: knockback.X(),
			KnockbackY: knockback.Y(),
			CreatedAt:  r.now(),
		})
		if err != nil {
			return err
		}

		res = Result{
			EventID:   ev.ID,
			WeaponID:  weapon.ID,
			Distance:  distance,
			Knockback: knockback,
			Applied:   applied,
			Reason:    reason,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	r.log.Infow("hit resolved",
		"eventId", res.EventID,
		"attacker", attackerID,
		"target", targetID,
		"applied", res.Applied,
		"distance", res.Distance)
	return res, nil
}
