// Package tunnel runs the per-connection event loop that shuttles packets
// between a TUN device and a UDP socket through a wireguard.Session. The
// original_source Rust implementation (crates/core/src/tunnel.rs) drives
// this with a single tokio::select! over four event sources; Go has no
// single-threaded cooperative reactor; instead two reader goroutines feed
// channels that a single consuming goroutine selects over, preserving the
// "exactly one goroutine touches the session and writes packets out" rule
// the original's single-threaded loop gave for free.
package tunnel

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/cloudtether/vpnd/internal/logging"
	"github.com/cloudtether/vpnd/internal/metrics"
	"github.com/cloudtether/vpnd/internal/routing"
	"github.com/cloudtether/vpnd/internal/vpnerrors"
	"github.com/cloudtether/vpnd/internal/wireguard"
)

// keepaliveCheckInterval matches wireguard.Session's fixed 15-second
// keepalive floor (original_source crates/core/src/tunnel.rs:124-134):
// ticking faster would just poll KeepaliveDue without changing when it
// actually fires.
const keepaliveCheckInterval = 15 * time.Second

// Runner owns one tunnel's entire lifetime: it reads plaintext packets off
// the TUN device and ciphertext datagrams off the UDP socket, drives them
// through a Session, and writes whatever comes back out the other side.
type Runner struct {
	tun      *routing.TUNDevice
	udp      *net.UDPConn
	session  *wireguard.Session
	endpoint netip.AddrPort
	counters *metrics.Counters
	log      *logging.Logger
	pool     *PacketBufferPool
}

func NewRunner(tun *routing.TUNDevice, udp *net.UDPConn, session *wireguard.Session, endpoint netip.AddrPort, log *logging.Logger) *Runner {
	return &Runner{
		tun:      tun,
		udp:      udp,
		session:  session,
		endpoint: endpoint,
		counters: &metrics.Counters{},
		log:      log,
		pool:     NewPacketBufferPool(8),
	}
}

// Counters exposes the running byte/packet totals to the metrics server.
func (r *Runner) Counters() *metrics.Counters { return r.counters }

type tunRead struct {
	buf *PacketBuffer
	err error
}

type udpRead struct {
	buf  *PacketBuffer
	from netip.AddrPort
	err  error
}

// MARK: Run

// Run blocks until ctx is canceled or a fatal I/O error occurs on either
// the TUN device or the UDP socket.
func (r *Runner) Run(ctx context.Context) error {
	tunCh := make(chan tunRead, 4)
	udpCh := make(chan udpRead, 4)

	go r.readTUN(ctx, tunCh)
	go r.readUDP(ctx, udpCh)

	if err := r.sendHandshakeInitiation(); err != nil {
		return err
	}

	keepaliveTicker := time.NewTicker(keepaliveCheckInterval)
	defer keepaliveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case tr := <-tunCh:
			if tr.err != nil {
				return vpnerrors.Tunnel("TUNRead", tr.err)
			}
			r.handleOutbound(tr.buf)

		case ur := <-udpCh:
			if ur.err != nil {
				return vpnerrors.Tunnel("UDPRead", ur.err)
			}
			r.handleInbound(ur.buf)

		case now := <-keepaliveTicker.C:
			r.maybeSendKeepalive(now)
		}
	}
}

func (r *Runner) readTUN(ctx context.Context, out chan<- tunRead) {
	for {
		buf := r.pool.Get()
		n, err := r.tun.File().Read(buf.Data)
		if err != nil {
			select {
			case out <- tunRead{err: err}:
			case <-ctx.Done():
			}
			return
		}
		buf.Length = n

		select {
		case out <- tunRead{buf: buf}:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) readUDP(ctx context.Context, out chan<- udpRead) {
	for {
		buf := r.pool.Get()
		n, addr, err := r.udp.ReadFromUDPAddrPort(buf.Data)
		if err != nil {
			select {
			case out <- udpRead{err: err}:
			case <-ctx.Done():
			}
			return
		}
		buf.Length = n

		select {
		case out <- udpRead{buf: buf, from: addr}:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) handleOutbound(buf *PacketBuffer) {
	defer r.pool.Put(buf)

	outcome := r.session.Encapsulate(buf.Data[:buf.Length])
	r.deliver(outcome)
}

func (r *Runner) handleInbound(buf *PacketBuffer) {
	defer r.pool.Put(buf)

	// Every received datagram counts, handshake/keepalive traffic included
	// (original_source crates/core/src/tunnel.rs:97-102 increments by the
	// raw recv_from length before decapsulation, not by the decrypted
	// payload length and not only for packets that reach the TUN device).
	r.counters.AddRx(buf.Length)

	outcome := r.session.Decapsulate(buf.Data[:buf.Length])
	r.deliver(outcome)
}

func (r *Runner) deliver(outcome wireguard.Outcome) {
	switch outcome.Kind {
	case wireguard.Done:
		return
	case wireguard.Err:
		r.log.Warn("session outcome error", "error", outcome.Error)
		return
	case wireguard.WriteToNetwork:
		if _, err := r.udp.WriteToUDPAddrPort(outcome.Packet, r.endpoint); err != nil {
			r.log.Warn("writing to UDP socket failed", "error", err)
			return
		}
		r.counters.AddTx(len(outcome.Packet))
	case wireguard.WriteToTunnelV4, wireguard.WriteToTunnelV6:
		if _, err := r.tun.File().Write(outcome.Packet); err != nil {
			r.log.Warn("writing to TUN device failed", "error", err)
		}
	}
}

func (r *Runner) sendHandshakeInitiation() error {
	outcome := r.session.InitiateHandshake()
	if outcome.Kind == wireguard.Err {
		return vpnerrors.Tunnel("Connect", outcome.Error)
	}
	r.deliver(outcome)
	return nil
}

func (r *Runner) maybeSendKeepalive(now time.Time) {
	if !r.session.KeepaliveDue(now) {
		return
	}
	outcome := r.session.Keepalive()
	r.deliver(outcome)
}
