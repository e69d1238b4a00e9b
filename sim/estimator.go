package sim

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// maxExtrapolation caps how far past the last snapshot the estimator
	// projects, so a stalled feed freezes the actor instead of launching it.
	maxExtrapolation = 250 * time.Millisecond
	// minSnapshotGap floors the elapsed time used for the velocity
	// finite-difference, avoiding division blow-up on bunched snapshots.
	minSnapshotGap = time.Millisecond
	// smoothingRate scales frame delta into the exponential smoothing
	// factor; at 60 fps this converges without visible overshoot and the
	// factor saturates to 1 when frames get long.
	smoothingRate = 12.0
)

// EstimatedState is the smoothed render state for one remote actor.
// Known is false until the first snapshot arrives.
type EstimatedState struct {
	Position  mgl64.Vec2
	Facing    mgl64.Vec2
	Animation AnimationKey
	Known     bool
}

// Estimator turns sparse authoritative snapshots for a single remote
// actor into a continuously queryable trajectory. Not safe for
// concurrent use; callers drive it from their render loop.
type Estimator struct {
	target   mgl64.Vec2
	velocity mgl64.Vec2
	lastAt   time.Time
	hasData  bool

	rendered mgl64.Vec2
	facing   mgl64.Vec2
	anim     AnimationKey
}

func NewEstimator() *Estimator {
	return &Estimator{facing: DefaultFacing(), anim: AnimationIdle}
}

// Observe feeds one authoritative snapshot. The first snapshot seeds the
// estimate in place with zero velocity; later ones update the velocity by
// finite difference over wall time.
func (e *Estimator) Observe(pos mgl64.Vec2, at time.Time) {
	if !e.hasData {
		e.target = pos
		e.velocity = mgl64.Vec2{}
		e.rendered = pos
		e.lastAt = at
		e.hasData = true
		return
	}

	elapsed := at.Sub(e.lastAt)
	if elapsed < minSnapshotGap {
		elapsed = minSnapshotGap
	}
	e.velocity = pos.Sub(e.target).Mul(1 / elapsed.Seconds())
	e.target = pos
	e.lastAt = at
}

// Step advances the smoothed estimate one render tick and returns the
// state a renderer should draw. Facing and animation derive from the
// displacement between the previously rendered position and this tick's
// predicted target, so stale actors settle into idle on their own.
func (e *Estimator) Step(now time.Time, frameDt float64) EstimatedState {
	if !e.hasData {
		return EstimatedState{Facing: e.facing, Animation: e.anim}
	}

	ahead := now.Sub(e.lastAt)
	if ahead < 0 {
		ahead = 0
	}
	if ahead > maxExtrapolation {
		ahead = maxExtrapolation
	}
	predicted := e.target.Add(e.velocity.Mul(ahead.Seconds()))

	displacement := predicted.Sub(e.rendered)
	if displacement.LenSqr() > epsilonSq {
		e.facing = displacement.Normalize()
		e.anim = AnimationWalk
	} else {
		e.anim = AnimationIdle
	}

	factor := frameDt * smoothingRate
	if factor < 0 {
		factor = 0
	}
	if factor > 1 {
		factor = 1
	}
	e.rendered = e.rendered.Add(displacement.Mul(factor))

	return EstimatedState{
		Position:  e.rendered,
		Facing:    e.facing,
		Animation: e.anim,
		Known:     true,
	}
}

// Tracker owns one Estimator per remote actor.
type Tracker struct {
	estimators map[string]*Estimator
}

func NewTracker() *Tracker {
	return &Tracker{estimators: make(map[string]*Estimator)}
}

// Observe routes a snapshot to the actor's estimator, creating it on the
// actor's first appearance.
func (t *Tracker) Observe(actorID string, pos mgl64.Vec2, at time.Time) {
	est, ok := t.estimators[actorID]
	if !ok {
		est = NewEstimator()
		t.estimators[actorID] = est
	}
	est.Observe(pos, at)
}

// Step queries one actor's estimator. The bool is false for actors the
// tracker has never seen.
func (t *Tracker) Step(actorID string, now time.Time, frameDt float64) (EstimatedState, bool) {
	est, ok := t.estimators[actorID]
	if !ok {
		return EstimatedState{}, false
	}
	return est.Step(now, frameDt), true
}

// Forget drops an actor's estimator when it leaves the world.
func (t *Tracker) Forget(actorID string) {
	delete(t.estimators, actorID)
}

// IDs lists the actors currently tracked, for pruning against a snapshot.
func (t *Tracker) IDs() []string {
	ids := make([]string, 0, len(t.estimators))
	for id := range t.estimators {
		ids = append(ids, id)
	}
	return ids
}
