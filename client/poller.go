package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"duelgrounds/protocol"
	"duelgrounds/sim"
)

// DefaultPollInterval matches the cadence the stock web client uses when
// it falls back from the stream to plain polling.
const DefaultPollInterval = 250 * time.Millisecond

const maxResponseBytes = 1 << 20

// Poller fetches /world/state on a fixed interval. A failed poll is
// logged and skipped; the next tick tries again.
type Poller struct {
	baseURL  string
	token    string
	interval time.Duration
	client   *nethttp.Client
	log      *zap.SugaredLogger
	out      chan []sim.Snapshot
}

// NewPoller builds a poller against the server's base HTTP URL. The
// session token travels as a bearer credential on every request.
func NewPoller(baseURL, token string, interval time.Duration, log *zap.SugaredLogger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		interval: interval,
		client:   &nethttp.Client{Timeout: 10 * time.Second},
		log:      log,
		out:      make(chan []sim.Snapshot, 1),
	}
}

// Snapshots is the feed. Each batch supersedes the previous one and the
// channel is never closed; Run returning means the feed has gone stale.
func (p *Poller) Snapshots() <-chan []sim.Snapshot {
	return p.out
}

// Run polls until ctx is canceled. The first poll fires immediately so
// consumers do not wait a full interval for their first world view.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	state, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Warnw("world poll failed", "error", err)
		return
	}
	offer(p.out, toSnapshots(state.Players, time.Now()))
}

func (p *Poller) fetch(ctx context.Context) (protocol.WorldState, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, p.baseURL+"/world/state", nil)
	if err != nil {
		return protocol.WorldState{}, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return protocol.WorldState{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return protocol.WorldState{}, err
	}

	data, err := protocol.DecodeEnvelope(body)
	if err != nil {
		return protocol.WorldState{}, err
	}

	var state protocol.WorldState
	if err := json.Unmarshal(data, &state); err != nil {
		return protocol.WorldState{}, fmt.Errorf("decoding world state: %w", err)
	}
	return state, nil
}
