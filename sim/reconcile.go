package sim

import "github.com/go-gl/mathgl/mgl64"

// Correction classifies what the reconciliation policy did with a snapshot.
type Correction int

const (
	CorrectionNone Correction = iota
	CorrectionBlend
	CorrectionSnap
)

func (c Correction) String() string {
	switch c {
	case CorrectionBlend:
		return "blend"
	case CorrectionSnap:
		return "snap"
	default:
		return "none"
	}
}

const (
	// HardSnapDistance is the divergence beyond which the prediction is
	// abandoned outright: a respawn, teleport, or long disconnect, where
	// smoothing would look worse than the cut.
	HardSnapDistance = 96.0
	// SoftCorrectDistance is the divergence below which the prediction is
	// accepted as-is, so measurement noise never causes micro-jitter.
	SoftCorrectDistance = 8.0
	// BlendFactor is the share of the remaining error corrected per
	// snapshot in the soft band.
	BlendFactor = 0.15
)

// Reconcile merges the locally predicted position with the authoritative
// one, applied once per received snapshot. It never blocks input
// processing; the result overlays whatever the predictor computed for the
// current tick.
func Reconcile(local, server mgl64.Vec2) (mgl64.Vec2, Correction) {
	delta := server.Sub(local)
	dist := delta.Len()
	switch {
	case dist >= HardSnapDistance:
		return server, CorrectionSnap
	case dist >= SoftCorrectDistance:
		return local.Add(delta.Mul(BlendFactor)), CorrectionBlend
	default:
		return local, CorrectionNone
	}
}
