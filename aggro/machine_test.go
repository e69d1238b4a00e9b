package aggro

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func testConfig() Config {
	return Config{EnterRadius: 120, ExitRadius: 140, ChaseSpeed: 90}
}

func TestFirstEntryWinsOverProximity(t *testing.T) {
	m := NewMachine(testConfig())
	self := mgl64.Vec2{0, 0}

	a := Contact{ID: "player-a", Pos: mgl64.Vec2{100, 0}}
	m.Tick(0, self, []Contact{a})

	b := Contact{ID: "player-b", Pos: mgl64.Vec2{50, 0}}
	decision := m.Tick(1, self, []Contact{a, b})
	decision = m.Tick(2, self, []Contact{a, b})

	if decision.TargetID != "player-a" {
		t.Fatalf("expected earlier entry player-a to keep priority, got %q", decision.TargetID)
	}
	if decision.Phase != PhaseChasing {
		t.Fatalf("expected chasing phase, got %v", decision.Phase)
	}
}

func TestChaseVelocityPointsAtTarget(t *testing.T) {
	m := NewMachine(testConfig())
	decision := m.Tick(0, mgl64.Vec2{0, 0}, []Contact{{ID: "p", Pos: mgl64.Vec2{60, 80}}})

	if decision.Phase != PhaseChasing {
		t.Fatalf("expected chasing inside enter radius, got %v", decision.Phase)
	}
	// (60,80) normalizes to (0.6,0.8); chase speed 90.
	if math.Abs(decision.Velocity.X()-54) > 1e-9 || math.Abs(decision.Velocity.Y()-72) > 1e-9 {
		t.Fatalf("expected velocity (54,72), got (%v,%v)", decision.Velocity.X(), decision.Velocity.Y())
	}
}

func TestHysteresisHoldsTargetBetweenRadii(t *testing.T) {
	m := NewMachine(testConfig())
	self := mgl64.Vec2{0, 0}

	m.Tick(0, self, []Contact{{ID: "p", Pos: mgl64.Vec2{110, 0}}})

	// Between enter and exit radius: still tracked, still chased.
	decision := m.Tick(1, self, []Contact{{ID: "p", Pos: mgl64.Vec2{130, 0}}})
	if decision.Phase != PhaseChasing || decision.TargetID != "p" {
		t.Fatalf("expected chase to persist at 130 units, got %v target %q", decision.Phase, decision.TargetID)
	}

	// A fresh machine never acquires a player in the hysteresis band.
	fresh := NewMachine(testConfig())
	decision = fresh.Tick(0, self, []Contact{{ID: "p", Pos: mgl64.Vec2{130, 0}}})
	if decision.Phase != PhaseIdle {
		t.Fatalf("expected idle for a player outside enter radius, got %v", decision.Phase)
	}

	// Past the exit radius the target is dropped entirely.
	decision = m.Tick(2, self, []Contact{{ID: "p", Pos: mgl64.Vec2{150, 0}}})
	if decision.Phase != PhaseIdle {
		t.Fatalf("expected idle past exit radius, got %v", decision.Phase)
	}
	if decision.Velocity != (mgl64.Vec2{}) {
		t.Fatalf("expected zero velocity when idle, got %v", decision.Velocity)
	}
	if m.TargetID() != "" {
		t.Fatalf("expected target cleared, got %q", m.TargetID())
	}
}

func TestReentryCreatesFreshEntry(t *testing.T) {
	m := NewMachine(testConfig())
	self := mgl64.Vec2{0, 0}

	inside := mgl64.Vec2{100, 0}
	gone := mgl64.Vec2{500, 0}

	m.Tick(0, self, []Contact{{ID: "player-a", Pos: inside}})
	m.Tick(1, self, []Contact{{ID: "player-a", Pos: gone}, {ID: "player-b", Pos: inside}})
	decision := m.Tick(2, self, []Contact{{ID: "player-a", Pos: inside}, {ID: "player-b", Pos: inside}})

	if decision.TargetID != "player-b" {
		t.Fatalf("expected player-b to win after player-a re-entered, got %q", decision.TargetID)
	}
	since, ok := m.TrackedSince("player-a")
	if !ok || since != 2 {
		t.Fatalf("expected player-a re-entry at tick 2, got %d (tracked=%v)", since, ok)
	}
}

func TestEntryTimestampIsImmutableWhileTracked(t *testing.T) {
	m := NewMachine(testConfig())
	self := mgl64.Vec2{0, 0}

	m.Tick(0, self, []Contact{{ID: "p", Pos: mgl64.Vec2{100, 0}}})
	for tick := uint64(1); tick < 10; tick++ {
		m.Tick(tick, self, []Contact{{ID: "p", Pos: mgl64.Vec2{100, 0}}})
	}

	since, ok := m.TrackedSince("p")
	if !ok || since != 0 {
		t.Fatalf("expected original entry tick 0, got %d (tracked=%v)", since, ok)
	}
}

func TestSimultaneousEntriesBreakTiesLexically(t *testing.T) {
	m := NewMachine(testConfig())
	decision := m.Tick(0, mgl64.Vec2{0, 0}, []Contact{
		{ID: "zed", Pos: mgl64.Vec2{10, 0}},
		{ID: "amy", Pos: mgl64.Vec2{90, 0}},
	})

	if decision.TargetID != "amy" {
		t.Fatalf("expected lexical tiebreak to pick amy, got %q", decision.TargetID)
	}
}

func TestKnockbackOverridesMovementAndDecays(t *testing.T) {
	m := NewMachine(testConfig())
	self := mgl64.Vec2{0, 0}
	players := []Contact{{ID: "p", Pos: mgl64.Vec2{50, 0}}}

	m.Tick(0, self, players)
	m.ApplyKnockback(mgl64.Vec2{-100, 0})

	decision := m.Tick(1, self, players)
	if !decision.Forced {
		t.Fatalf("expected forced movement during knockback")
	}
	if decision.Velocity.X() != -100 {
		t.Fatalf("expected full knockback velocity on first tick, got %v", decision.Velocity.X())
	}
	if decision.Phase != PhaseChasing || decision.TargetID != "p" {
		t.Fatalf("expected tracking to continue under knockback, got %v target %q", decision.Phase, decision.TargetID)
	}

	prev := decision.Velocity.X()
	forced := 1
	for tick := uint64(2); ; tick++ {
		decision = m.Tick(tick, self, players)
		if !decision.Forced {
			break
		}
		forced++
		if decision.Velocity.X() <= -100 || decision.Velocity.X() < prev {
			t.Fatalf("expected knockback velocity to decay, got %v after %v", decision.Velocity.X(), prev)
		}
		prev = decision.Velocity.X()
	}

	if forced != knockbackTicks {
		t.Fatalf("expected %d forced ticks, got %d", knockbackTicks, forced)
	}
	if decision.Velocity.X() <= 0 {
		t.Fatalf("expected chase to resume after knockback, got velocity %v", decision.Velocity.X())
	}
}

func TestOnHitStaggersWithoutDisplacement(t *testing.T) {
	m := NewMachine(testConfig())
	self := mgl64.Vec2{0, 0}
	players := []Contact{{ID: "p", Pos: mgl64.Vec2{50, 0}}}

	m.Tick(0, self, players)
	m.OnHit(mgl64.Vec2{50, 0})

	for tick := uint64(1); tick <= staggerTicks; tick++ {
		decision := m.Tick(tick, self, players)
		if !decision.Forced {
			t.Fatalf("expected stagger at tick %d", tick)
		}
		if decision.Velocity != (mgl64.Vec2{}) {
			t.Fatalf("expected zero velocity during stagger, got %v", decision.Velocity)
		}
	}

	decision := m.Tick(staggerTicks+1, self, players)
	if decision.Forced {
		t.Fatalf("expected stagger to expire after %d ticks", staggerTicks)
	}
}

func TestIdleWithNoPlayers(t *testing.T) {
	m := NewMachine(testConfig())
	decision := m.Tick(0, mgl64.Vec2{0, 0}, nil)

	if decision.Phase != PhaseIdle || decision.Velocity != (mgl64.Vec2{}) {
		t.Fatalf("expected idle zero-velocity decision, got %+v", decision)
	}
	if len(m.Tracked()) != 0 {
		t.Fatalf("expected empty tracked set, got %v", m.Tracked())
	}
}
