// Package supervisor owns the single global active-tunnel slot: at most
// one tunnel runs at a time, and every control-plane operation (connect,
// disconnect, status, stats) goes through this package rather than
// touching tunnel state directly. Narrowed from the teacher's
// wireguard.Manager (a mutex-guarded map of many tunnels keyed by name) to
// a single optional slot, matching original_source's
// crates/daemon/src/tunnel_manager.rs, which tracks exactly one
// operator-facing connection at a time. The slot is explicitly
// constructed and passed to callers (see SPEC_FULL.md §9) rather than
// reached via a package-level singleton.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/cloudtether/vpnd/internal/dnsguard"
	"github.com/cloudtether/vpnd/internal/metrics"
	"github.com/cloudtether/vpnd/internal/routing"
	"github.com/cloudtether/vpnd/internal/tunnel"
	"github.com/cloudtether/vpnd/internal/vpnerrors"
)

// ActiveTunnel is everything the supervisor must hold onto to describe and
// later tear down one running tunnel.
type ActiveTunnel struct {
	InstanceID  string
	ConnectedAt time.Time
	PublicIPv4  string
	PublicIPv6  string
	Runner      *tunnel.Runner
	Routes      *routing.Installed
	DNS         dnsguard.Guard // nil if DNS was not overridden
	Cancel      context.CancelFunc
	Done        <-chan struct{}
}

// Status is the read-only view of an ActiveTunnel exposed to control-plane
// status queries (spec §4.H: {connected, instance_id?, public_ip_v4?,
// public_ip_v6?}).
type Status struct {
	Connected  bool   `json:"connected"`
	InstanceID string `json:"instance_id,omitempty"`
	PublicIPv4 string `json:"public_ip_v4,omitempty"`
	PublicIPv6 string `json:"public_ip_v6,omitempty"`
}

// finished reports whether done has been closed, i.e. the tunnel's runner
// goroutine has exited (spec §4.G: connected = !task.finished).
func finished(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// Supervisor guards the single active-tunnel slot.
type Supervisor struct {
	mu     sync.Mutex
	active *ActiveTunnel
}

func New() *Supervisor {
	return &Supervisor{}
}

// MARK: Install

// Install occupies the slot, failing if a tunnel is already running.
func (s *Supervisor) Install(t *ActiveTunnel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return vpnerrors.Daemon("Connect", vpnerrors.ErrTunnelAlreadyUp)
	}
	s.active = t
	return nil
}

// MARK: Take

// Take removes and returns the active tunnel, or nil if none is running.
// The caller is responsible for tearing it down (canceling its context,
// removing routes, restoring DNS).
func (s *Supervisor) Take() *ActiveTunnel {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.active
	s.active = nil
	return t
}

// MARK: PeekStatus

// PeekStatus reports the current Status without disturbing the slot.
// Connected is false both when no tunnel occupies the slot and when the
// occupying tunnel's runner has already exited but Disconnect hasn't been
// called yet (the slot isn't cleared until Take runs). The bool result
// reports whether a tunnel occupies the slot at all, regardless of
// Connected.
func (s *Supervisor) PeekStatus() (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return Status{}, false
	}
	return Status{
		Connected:  !finished(s.active.Done),
		InstanceID: s.active.InstanceID,
		PublicIPv4: s.active.PublicIPv4,
		PublicIPv6: s.active.PublicIPv6,
	}, true
}

// MARK: SnapshotMetrics

// SnapshotMetrics returns the active tunnel's current counters, or nil if
// no tunnel is running — the control-plane Stats command's wire response
// is the literal JSON null in that case (spec §9 open question
// resolution), not an error or an empty object.
func (s *Supervisor) SnapshotMetrics() *metrics.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil
	}
	snap := s.active.Runner.Counters().Snapshot()
	return &snap
}

// MARK: IsRunning

func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}
