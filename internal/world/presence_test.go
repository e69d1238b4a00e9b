package world

import (
	"testing"
	"time"
)

func TestPresenceConnectTouchDisconnect(t *testing.T) {
	p := NewPresence()
	t0 := time.Unix(1000, 0)

	p.Connect("acc-1", t0)
	if !p.Online("acc-1") {
		t.Fatalf("expected acc-1 online after connect")
	}

	p.Touch("acc-1", t0.Add(5*time.Second))
	p.Touch("acc-2", t0.Add(5*time.Second))
	if p.Online("acc-2") {
		t.Fatalf("touch must not create presence for offline accounts")
	}

	snap := p.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected one online entry, got %d", len(snap))
	}
	if !snap[0].ConnectedAt.Equal(t0) || !snap[0].LastSeen.Equal(t0.Add(5*time.Second)) {
		t.Fatalf("unexpected entry times: %+v", snap[0])
	}

	p.Disconnect("acc-1")
	if p.Online("acc-1") {
		t.Fatalf("expected acc-1 offline after disconnect")
	}
}

func TestPresenceSnapshotOrdersByConnectionTime(t *testing.T) {
	p := NewPresence()
	t0 := time.Unix(1000, 0)
	p.Connect("late", t0.Add(time.Minute))
	p.Connect("early", t0)
	p.Connect("tie-b", t0.Add(time.Second))
	p.Connect("tie-a", t0.Add(time.Second))

	snap := p.Snapshot()
	got := make([]string, 0, len(snap))
	for _, e := range snap {
		got = append(got, e.AccountID)
	}
	want := []string{"early", "tie-a", "tie-b", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestPresenceReconnectResetsConnectionTime(t *testing.T) {
	p := NewPresence()
	t0 := time.Unix(1000, 0)
	p.Connect("acc-1", t0)
	p.Connect("acc-1", t0.Add(time.Hour))

	snap := p.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected a single entry, got %d", len(snap))
	}
	if !snap[0].ConnectedAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("expected reconnect to reset connected_at, got %v", snap[0].ConnectedAt)
	}
}
