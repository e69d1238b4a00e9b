// Package client consumes the duelgrounds snapshot feed. Poller fetches
// /world/state on an interval; Stream subscribes to the /ws push channel.
// Both deliver sim.Snapshot batches on a capacity-1 channel with
// latest-wins semantics: a slow consumer always sees the freshest world
// and never blocks the feed.
package client

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"duelgrounds/protocol"
	"duelgrounds/sim"
)

// toSnapshots stamps every player in an authoritative payload with the
// local receipt time, keeping estimator extrapolation on a single clock.
// The server's own timestamp only feeds RTT measurement.
func toSnapshots(players []protocol.WorldPlayer, at time.Time) []sim.Snapshot {
	batch := make([]sim.Snapshot, 0, len(players))
	for _, p := range players {
		batch = append(batch, sim.Snapshot{
			ActorID:  p.ProfileID,
			Position: mgl64.Vec2{p.Position.X, p.Position.Y},
			At:       at,
		})
	}
	return batch
}

// offer delivers a batch latest-wins. An undrained previous batch is
// replaced, never queued behind. If the consumer races the replacement,
// dropping the new batch is fine: the next one supersedes it anyway.
func offer(ch chan []sim.Snapshot, batch []sim.Snapshot) {
	select {
	case ch <- batch:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- batch:
	default:
	}
}
