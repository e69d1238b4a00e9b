package combat

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func approxVec(t *testing.T, got, want mgl64.Vec2) {
	t.Helper()
	if math.Abs(got.X()-want.X()) > 1e-9 || math.Abs(got.Y()-want.Y()) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestKnockbackFollowsAttackLine(t *testing.T) {
	kb, dist := Knockback(mgl64.Vec2{0, 0}, mgl64.Vec2{10, 0}, 10, 1)
	if dist != 10 {
		t.Fatalf("expected distance 10, got %v", dist)
	}
	if kb != (mgl64.Vec2{10, 0}) {
		t.Fatalf("expected knockback (10,0), got %v", kb)
	}
}

func TestKnockbackNormalizesDiagonals(t *testing.T) {
	kb, dist := Knockback(mgl64.Vec2{0, 0}, mgl64.Vec2{3, 4}, 10, 1)
	if dist != 5 {
		t.Fatalf("expected distance 5, got %v", dist)
	}
	approxVec(t, kb, mgl64.Vec2{6, 8})
}

func TestKnockbackZeroDistanceFallsBackToPlusX(t *testing.T) {
	kb, dist := Knockback(mgl64.Vec2{7, 7}, mgl64.Vec2{7, 7}, 12, 1.5)
	if dist != 0 {
		t.Fatalf("expected distance 0, got %v", dist)
	}
	if kb != (mgl64.Vec2{18, 0}) {
		t.Fatalf("expected fallback knockback (18,0), got %v", kb)
	}
}

func TestKnockbackScalesWithSkillMultiplier(t *testing.T) {
	kb, _ := Knockback(mgl64.Vec2{0, 0}, mgl64.Vec2{0, 2}, 12, 1.2)
	approxVec(t, kb, mgl64.Vec2{0, 14.4})
}
