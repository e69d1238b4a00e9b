package aggro

import "github.com/go-gl/mathgl/mgl64"

// Damageable is the capability contract for actors that react to strikes.
// Actor kinds that can be hit implement it explicitly; callers select on
// the actor kind rather than probing at runtime.
type Damageable interface {
	OnHit(from mgl64.Vec2)
	ApplyKnockback(force mgl64.Vec2)
}

var _ Damageable = (*Machine)(nil)

// OnHit is the strike feedback hook: a brief stagger that zeroes movement
// while aggro tracking keeps updating underneath.
func (m *Machine) OnHit(from mgl64.Vec2) {
	m.ApplyForce(mgl64.Vec2{}, staggerTicks)
}

// ApplyKnockback spreads the impulse as a decaying velocity override.
func (m *Machine) ApplyKnockback(force mgl64.Vec2) {
	m.ApplyForce(force, knockbackTicks)
}
