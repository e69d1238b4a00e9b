package sim

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestReconcileSnapsOnLargeDivergence(t *testing.T) {
	local := mgl64.Vec2{0, 0}
	server := mgl64.Vec2{96, 0}

	pos, correction := Reconcile(local, server)
	if correction != CorrectionSnap {
		t.Fatalf("expected snap at the hard threshold, got %v", correction)
	}
	if pos != server {
		t.Fatalf("expected teleport to server position %v, got %v", server, pos)
	}

	pos, correction = Reconcile(local, mgl64.Vec2{300, 400})
	if correction != CorrectionSnap || pos.X() != 300 || pos.Y() != 400 {
		t.Fatalf("expected snap far beyond threshold, got %v at %v", correction, pos)
	}
}

func TestReconcileBlendsInSoftBand(t *testing.T) {
	local := mgl64.Vec2{10, 10}
	server := mgl64.Vec2{50, 10} // 40 apart

	pos, correction := Reconcile(local, server)
	if correction != CorrectionBlend {
		t.Fatalf("expected blend in the soft band, got %v", correction)
	}
	if want := 10 + 0.15*40; math.Abs(pos.X()-want) > 1e-9 || pos.Y() != 10 {
		t.Fatalf("expected blended position (%v,10), got (%v,%v)", want, pos.X(), pos.Y())
	}

	// The soft boundary itself still blends.
	pos, correction = Reconcile(mgl64.Vec2{0, 0}, mgl64.Vec2{8, 0})
	if correction != CorrectionBlend {
		t.Fatalf("expected blend at exactly the soft threshold, got %v", correction)
	}
	if want := 8 * 0.15; math.Abs(pos.X()-want) > 1e-9 {
		t.Fatalf("expected blended x=%v, got %v", want, pos.X())
	}
}

func TestReconcileAcceptsSmallDrift(t *testing.T) {
	local := mgl64.Vec2{100, 100}
	server := mgl64.Vec2{104, 103} // 5 apart

	pos, correction := Reconcile(local, server)
	if correction != CorrectionNone {
		t.Fatalf("expected no correction below soft threshold, got %v", correction)
	}
	if pos != local {
		t.Fatalf("expected untouched local position %v, got %v", local, pos)
	}
}
