// Package sim implements the client-side motion core: intent prediction
// for the local actor, trajectory estimation for remote actors, and
// reconciliation of predicted positions against authoritative snapshots.
package sim

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// AnimationKey names the animation a renderer should play.
type AnimationKey string

const (
	AnimationIdle AnimationKey = "idle"
	AnimationWalk AnimationKey = "walk"
)

// epsilonSq is the squared-length floor below which a vector counts as zero.
const epsilonSq = 1e-4

// Intent is one tick of raw player input, consumed once. Movement carries
// the stick/key vector with components in [-1, 1] and is deliberately not
// normalized: diagonal input yields higher speed, matching raw vector
// semantics.
type Intent struct {
	Movement mgl64.Vec2
	Aim      mgl64.Vec2 // zero vector means "no aim"
	Attack   bool       // true only on the tick the action began
}

// WeaponPose places the weapon sprite relative to the actor origin.
type WeaponPose struct {
	Offset   mgl64.Vec2
	Rotation float64 // radians, angle of the facing vector
	Flipped  bool
}

// ActorState is the render-facing state for one actor. Facing is the only
// field carried forward between ticks; everything else is derived.
type ActorState struct {
	Facing    mgl64.Vec2
	Velocity  mgl64.Vec2
	Animation AnimationKey
	Weapon    WeaponPose
}

// Snapshot is one authoritative position report for an actor. Each newer
// snapshot supersedes the previous one entirely.
type Snapshot struct {
	ActorID  string
	Position mgl64.Vec2
	At       time.Time
}

// Params tunes the motion predictor.
type Params struct {
	MoveSpeed    float64 // world units per second
	WeaponRadius float64 // weapon orbit distance from the actor origin
}

func DefaultParams() Params {
	return Params{MoveSpeed: 160, WeaponRadius: 18}
}

// DefaultFacing is screen-space down, the spawn orientation.
func DefaultFacing() mgl64.Vec2 {
	return mgl64.Vec2{0, 1}
}

// NewActorState returns an idle actor facing down.
func NewActorState() ActorState {
	state := ActorState{
		Facing:    DefaultFacing(),
		Animation: AnimationIdle,
	}
	state.Weapon = weaponPose(state.Facing, DefaultParams().WeaponRadius)
	return state
}

// Predict converts an Intent into the next ActorState. Pure computation:
// applying the velocity to physics and playing animations are the
// caller's job. The returned bool is the attack trigger passed through
// untouched; Predict never suppresses or queues it.
func Predict(prev ActorState, in Intent, p Params) (ActorState, bool) {
	next := prev
	next.Velocity = in.Movement.Mul(p.MoveSpeed)

	switch {
	case in.Aim.LenSqr() > epsilonSq:
		next.Facing = in.Aim.Normalize()
	case next.Velocity.LenSqr() > epsilonSq:
		next.Facing = next.Velocity.Normalize()
	}

	if next.Velocity.LenSqr() > epsilonSq {
		next.Animation = AnimationWalk
	} else {
		next.Animation = AnimationIdle
	}

	next.Weapon = weaponPose(next.Facing, p.WeaponRadius)
	return next, in.Attack
}

func weaponPose(facing mgl64.Vec2, radius float64) WeaponPose {
	return WeaponPose{
		Offset:   facing.Mul(radius),
		Rotation: math.Atan2(facing.Y(), facing.X()),
		Flipped:  facing.X() < 0,
	}
}
