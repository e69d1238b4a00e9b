package combat

import "github.com/go-gl/mathgl/mgl64"

// fallbackDirection pushes overlapping actors along +X; a zero-length
// attack line has no direction of its own.
var fallbackDirection = mgl64.Vec2{1, 0}

// Knockback returns the impulse applied to the target and the distance
// between the two positions. The impulse points from attacker to target
// with magnitude base*multiplier.
func Knockback(attacker, target mgl64.Vec2, base, multiplier float64) (mgl64.Vec2, float64) {
	delta := target.Sub(attacker)
	distance := delta.Len()
	dir := fallbackDirection
	if distance > 0 {
		dir = delta.Mul(1 / distance)
	}
	return dir.Mul(base * multiplier), distance
}
