// Package aggro implements the per-enemy targeting state machine:
// hysteresis detection radii, first-come target ordering, and an
// orthogonal external-force override used for knockback and stun.
package aggro

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Phase is the machine's tagged state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseChasing
)

func (p Phase) String() string {
	if p == PhaseChasing {
		return "chasing"
	}
	return "idle"
}

const (
	knockbackTicks = 10
	staggerTicks   = 4
)

// Config tunes one enemy's detection and movement.
type Config struct {
	EnterRadius float64
	ExitRadius  float64
	ChaseSpeed  float64 // world units per second
}

func DefaultConfig() Config {
	return Config{EnterRadius: 120, ExitRadius: 140, ChaseSpeed: 90}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.EnterRadius <= 0 {
		c.EnterRadius = def.EnterRadius
	}
	if c.ExitRadius <= 0 {
		c.ExitRadius = def.ExitRadius
	}
	if c.ExitRadius < c.EnterRadius {
		c.ExitRadius = c.EnterRadius
	}
	if c.ChaseSpeed <= 0 {
		c.ChaseSpeed = def.ChaseSpeed
	}
	return c
}

// Contact is one player visible to the enemy this tick.
type Contact struct {
	ID  string
	Pos mgl64.Vec2
}

// Decision is the machine's movement output for one tick. Forced marks
// ticks where an external force is overriding the chase velocity.
type Decision struct {
	Velocity mgl64.Vec2
	Phase    Phase
	TargetID string
	Forced   bool
}

// entry records when a player first crossed the enter radius. The tick is
// immutable once set; re-entering after leaving creates a fresh entry.
type entry struct {
	enteredTick uint64
}

// Machine tracks aggro for a single enemy. Each enemy owns its machine
// outright, so enemies stay independently testable and there is no shared
// registry to synchronize. Not safe for concurrent use.
type Machine struct {
	cfg     Config
	phase   Phase
	target  string
	tracked map[string]entry

	force      mgl64.Vec2
	forceLeft  int
	forceTotal int
}

func NewMachine(cfg Config) *Machine {
	return &Machine{
		cfg:     cfg.normalized(),
		tracked: make(map[string]entry),
	}
}

// Tick re-evaluates tracking, target selection, and movement from the
// current contact set. State is recomputed every tick; nothing is queued.
func (m *Machine) Tick(tick uint64, self mgl64.Vec2, players []Contact) Decision {
	positions := make(map[string]mgl64.Vec2, len(players))
	for _, c := range players {
		positions[c.ID] = c.Pos
	}

	// Hysteresis: tracked players stay tracked until they cross the exit
	// radius or despawn; untracked players are added only inside the
	// enter radius.
	for id := range m.tracked {
		pos, present := positions[id]
		if !present || pos.Sub(self).Len() > m.cfg.ExitRadius {
			delete(m.tracked, id)
		}
	}
	for _, c := range players {
		if _, ok := m.tracked[c.ID]; ok {
			continue
		}
		if c.Pos.Sub(self).Len() <= m.cfg.EnterRadius {
			m.tracked[c.ID] = entry{enteredTick: tick}
		}
	}

	// Sticky target: keep the current one while it remains tracked,
	// otherwise fall back to the earliest entry.
	if _, ok := m.tracked[m.target]; !ok {
		m.target = m.earliestTracked()
	}

	decision := Decision{Phase: PhaseIdle}
	if m.target == "" {
		m.phase = PhaseIdle
	} else {
		targetPos := positions[m.target]
		delta := targetPos.Sub(self)
		radius := m.cfg.EnterRadius
		if m.phase == PhaseChasing {
			radius = m.cfg.ExitRadius
		}
		if delta.Len() <= radius {
			m.phase = PhaseChasing
			decision.Phase = PhaseChasing
			decision.TargetID = m.target
			if delta.LenSqr() > 1e-9 {
				decision.Velocity = delta.Normalize().Mul(m.cfg.ChaseSpeed)
			}
		} else {
			m.phase = PhaseIdle
		}
	}

	// An active external force overrides the movement output; the
	// tracking and targeting above keep updating underneath it.
	if m.forceLeft > 0 {
		decision.Velocity = m.force.Mul(float64(m.forceLeft) / float64(m.forceTotal))
		decision.Forced = true
		m.forceLeft--
	}

	return decision
}

func (m *Machine) earliestTracked() string {
	best := ""
	var bestTick uint64
	for id, e := range m.tracked {
		if best == "" || e.enteredTick < bestTick || (e.enteredTick == bestTick && id < best) {
			best = id
			bestTick = e.enteredTick
		}
	}
	return best
}

// ApplyForce overrides movement with a linearly decaying velocity for the
// given number of ticks. A zero vector acts as a stun.
func (m *Machine) ApplyForce(v mgl64.Vec2, ticks int) {
	if ticks <= 0 {
		return
	}
	m.force = v
	m.forceLeft = ticks
	m.forceTotal = ticks
}

// Phase reports the machine's current tagged state.
func (m *Machine) Phase() Phase {
	return m.phase
}

// TargetID reports the current target, empty when none is selected.
func (m *Machine) TargetID() string {
	return m.target
}

// Tracked lists tracked player ids in a stable order.
func (m *Machine) Tracked() []string {
	ids := make([]string, 0, len(m.tracked))
	for id := range m.tracked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TrackedSince reports the tick a player entered tracking.
func (m *Machine) TrackedSince(id string) (uint64, bool) {
	e, ok := m.tracked[id]
	return e.enteredTick, ok
}
