package control

import (
	"context"
	"testing"

	"github.com/cloudtether/vpnd/internal/daemoncfg"
	"github.com/cloudtether/vpnd/internal/logging"
	"github.com/cloudtether/vpnd/internal/supervisor"
)

func newTestServer() *Server {
	return NewServer("/tmp/unused.sock", daemoncfg.Settings{}, supervisor.New(), logging.NewLogger("error"))
}

func TestDispatchHealthCheck(t *testing.T) {
	s := newTestServer()
	resp := s.dispatch(context.Background(), Command{Action: ActionHealthCheck})
	if resp != responseHealthy {
		t.Fatalf("health check response = %v, want %q", resp, responseHealthy)
	}
}

func TestDispatchStatusWhenIdle(t *testing.T) {
	s := newTestServer()
	resp := s.dispatch(context.Background(), Command{Action: ActionStatus})
	status, ok := resp.(supervisor.Status)
	if !ok {
		t.Fatalf("status response is %T, want supervisor.Status", resp)
	}
	if status.Connected {
		t.Fatalf("status response with no tunnel = %+v, want Connected: false", status)
	}
}

func TestDispatchStatsWhenIdle(t *testing.T) {
	s := newTestServer()
	resp := s.dispatch(context.Background(), Command{Action: ActionStats})
	if resp != nil {
		t.Fatalf("stats response with no tunnel = %v, want nil", resp)
	}
}

func TestDispatchDisconnectWhenIdle(t *testing.T) {
	s := newTestServer()
	resp := s.dispatch(context.Background(), Command{Action: ActionDisconnect})
	line, ok := resp.(string)
	if !ok {
		t.Fatalf("disconnect-when-idle response is %T, want string", resp)
	}
	if line == responseDisconnected {
		t.Fatalf("expected an error line, not success, when no tunnel is active")
	}
}

func TestDispatchUnknownAction(t *testing.T) {
	s := newTestServer()
	resp := s.dispatch(context.Background(), Command{Action: "bogus"})
	line, ok := resp.(string)
	if !ok {
		t.Fatalf("unknown-action response is %T, want string", resp)
	}
	if len(line) == 0 || line[:16] != "Invalid command:" {
		t.Fatalf("unknown-action response = %q, want it to start with %q", line, "Invalid command:")
	}
}
