package control

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudtether/vpnd/internal/config"
	"github.com/cloudtether/vpnd/internal/daemoncfg"
	"github.com/cloudtether/vpnd/internal/dnsguard"
	"github.com/cloudtether/vpnd/internal/logging"
	"github.com/cloudtether/vpnd/internal/routing"
	"github.com/cloudtether/vpnd/internal/supervisor"
	"github.com/cloudtether/vpnd/internal/tunnel"
	"github.com/cloudtether/vpnd/internal/vpnerrors"
	"github.com/cloudtether/vpnd/internal/wireguard"
	"github.com/cloudtether/vpnd/internal/wireguard/noise"
)

// Server accepts control-plane connections, one command per connection,
// dispatching against the single active-tunnel supervisor.
type Server struct {
	socketPath string
	settings   daemoncfg.Settings
	sup        *supervisor.Supervisor
	log        *logging.Logger
}

func NewServer(socketPath string, settings daemoncfg.Settings, sup *supervisor.Supervisor, log *logging.Logger) *Server {
	return &Server{socketPath: socketPath, settings: settings, sup: sup, log: log}
}

// MARK: Run

func (s *Server) Run(ctx context.Context) error {
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return vpnerrors.System("ControlListen", err)
	}
	if err := os.Chmod(s.socketPath, 0777); err != nil {
		listener.Close()
		return vpnerrors.System("ControlListen", err)
	}
	defer listener.Close()
	defer os.Remove(s.socketPath)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Warn("control socket accept failed", "error", err)
				continue
			}
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	correlationID := uuid.New().String()
	log := s.log

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return
	}

	var cmd Command
	encoder := json.NewEncoder(conn)
	if err := json.Unmarshal(line, &cmd); err != nil {
		log.Warn("malformed control command", "correlation_id", correlationID, "error", err)
		encoder.Encode(invalidCommandLine(err))
		return
	}

	log.Info("control command received", "correlation_id", correlationID, "action", cmd.Action)

	response := s.dispatch(ctx, cmd)
	if err := encoder.Encode(response); err != nil {
		log.Warn("writing control response failed", "correlation_id", correlationID, "error", err)
	}
}

func invalidCommandLine(err error) string {
	return "Invalid command: " + err.Error()
}

func (s *Server) dispatch(ctx context.Context, cmd Command) interface{} {
	switch cmd.Action {
	case ActionConnect:
		return s.handleConnect(ctx, cmd)
	case ActionDisconnect:
		return s.handleDisconnect()
	case ActionStatus:
		return s.handleStatus()
	case ActionStats:
		return s.handleStats()
	case ActionHealthCheck:
		return responseHealthy
	default:
		return invalidCommandLine(unknownActionError{cmd.Action})
	}
}

type unknownActionError struct{ action string }

func (e unknownActionError) Error() string { return "unknown action \"" + e.action + "\"" }

// MARK: handleConnect

func (s *Server) handleConnect(ctx context.Context, cmd Command) interface{} {
	if s.sup.IsRunning() {
		return vpnerrors.ClientLine("Connect", vpnerrors.Daemon("Connect", vpnerrors.ErrTunnelAlreadyUp))
	}

	profile, err := config.ParseFile(cmd.ConfigPath)
	if err != nil {
		return vpnerrors.ClientLine("Connect", err)
	}

	tunName := s.settings.TUNName
	mtu := s.settings.MTU
	if tunName == "" {
		tunName = daemoncfg.DefaultTUNName
	}
	if mtu <= 0 {
		mtu = daemoncfg.DefaultMTU
	}

	installed, err := routing.Install(tunName, mtu, profile.IPv4Address, profile.IPv6Address, profile.Endpoint, s.log)
	if err != nil {
		return vpnerrors.ClientLine("Connect", vpnerrors.Interface("Connect", err))
	}

	var guard dnsguard.Guard
	if len(profile.DNSServers) > 0 {
		servers := make([]string, len(profile.DNSServers))
		for i, d := range profile.DNSServers {
			servers[i] = d.String()
		}
		guard, err = dnsguard.Apply(servers)
		if err != nil {
			routing.Teardown(installed)
			return vpnerrors.ClientLine("Connect", err)
		}
	}

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		if guard != nil {
			guard.Restore()
		}
		routing.Teardown(installed)
		return vpnerrors.ClientLine("Connect", vpnerrors.System("Connect", err))
	}

	var psk noise.PresharedKey
	session := wireguard.NewSession(noise.PrivateKey(profile.PrivateKey), noise.PublicKey(profile.PeerPublicKey), psk, profile.KeepaliveSecs)

	runnerCtx, cancel := context.WithCancel(ctx)
	runner := tunnel.NewRunner(installed.TUN, udpConn, session, profile.Endpoint, s.log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer udpConn.Close()
		if err := runner.Run(runnerCtx); err != nil {
			s.log.Warn("tunnel runner exited", "error", err)
		}
	}()

	active := &supervisor.ActiveTunnel{
		InstanceID: instanceIDFromPath(cmd.ConfigPath),
		PublicIPv4: profile.IPv4Address.Addr().String(),
		PublicIPv6: profile.IPv6Address.Addr().String(),
		Runner:     runner,
		Routes:     installed,
		DNS:        guard,
		Cancel:     cancel,
		Done:       done,
	}
	active.ConnectedAt = time.Now()

	if err := s.sup.Install(active); err != nil {
		cancel()
		<-done
		if guard != nil {
			guard.Restore()
		}
		routing.Teardown(installed)
		return vpnerrors.ClientLine("Connect", err)
	}

	return responseConnected
}

// MARK: handleDisconnect

func (s *Server) handleDisconnect() interface{} {
	active := s.sup.Take()
	if active == nil {
		return vpnerrors.ClientLine("Disconnect", vpnerrors.Daemon("Disconnect", vpnerrors.ErrNoActiveTunnel))
	}

	active.Cancel()
	<-active.Done

	if active.DNS != nil {
		if err := active.DNS.Restore(); err != nil {
			s.log.Warn("restoring DNS failed", "error", err)
		}
	}
	routing.Teardown(active.Routes)

	return responseDisconnected
}

// MARK: handleStatus

// handleStatus always renders a Status object, never a bare null: with no
// tunnel installed it's the zero value, which serializes as
// {"connected":false} (spec §4.H / S3).
func (s *Server) handleStatus() interface{} {
	status, _ := s.sup.PeekStatus()
	return status
}

// MARK: handleStats

func (s *Server) handleStats() interface{} {
	snap := s.sup.SnapshotMetrics()
	if snap == nil {
		return nil
	}
	return snap
}

// instanceIDFromPath derives a ConnectionDescriptor-style instance id from
// the profile's file stem (spec §3 supplement), since there is no cloud
// collaborator here to hand out an identifier.
func instanceIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
