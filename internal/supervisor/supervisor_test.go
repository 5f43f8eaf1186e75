package supervisor

import (
	"testing"
	"time"

	"github.com/cloudtether/vpnd/internal/vpnerrors"
)

func TestInstallRejectsSecondTunnel(t *testing.T) {
	s := New()

	first := &ActiveTunnel{InstanceID: "profile-a", ConnectedAt: time.Now()}
	if err := s.Install(first); err != nil {
		t.Fatalf("first Install: %v", err)
	}

	second := &ActiveTunnel{InstanceID: "profile-b", ConnectedAt: time.Now()}
	err := s.Install(second)
	if err == nil {
		t.Fatalf("expected second Install to fail while a tunnel is active")
	}
	if !vpnerrors.Is(err, vpnerrors.KindDaemon) {
		t.Fatalf("expected a daemon-kind error, got %v", err)
	}
}

func TestTakeClearsSlot(t *testing.T) {
	s := New()
	tun := &ActiveTunnel{InstanceID: "profile-a", ConnectedAt: time.Now()}
	if err := s.Install(tun); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if _, running := s.PeekStatus(); !running {
		t.Fatalf("expected PeekStatus to report running after Install")
	}

	taken := s.Take()
	if taken != tun {
		t.Fatalf("Take returned a different tunnel than was installed")
	}

	if _, running := s.PeekStatus(); running {
		t.Fatalf("expected PeekStatus to report not running after Take")
	}
	if s.Take() != nil {
		t.Fatalf("expected a second Take to return nil")
	}
}

func TestSnapshotMetricsNilWhenIdle(t *testing.T) {
	s := New()
	if snap := s.SnapshotMetrics(); snap != nil {
		t.Fatalf("expected nil metrics snapshot with no active tunnel, got %+v", snap)
	}
}

func TestPeekStatusReflectsFinishedRunner(t *testing.T) {
	s := New()
	done := make(chan struct{})
	tun := &ActiveTunnel{InstanceID: "profile-a", ConnectedAt: time.Now(), Done: done}
	if err := s.Install(tun); err != nil {
		t.Fatalf("Install: %v", err)
	}

	status, ok := s.PeekStatus()
	if !ok {
		t.Fatalf("expected PeekStatus to report the slot occupied")
	}
	if !status.Connected {
		t.Fatalf("expected Connected: true while the runner is still alive")
	}

	close(done)

	status, ok = s.PeekStatus()
	if !ok {
		t.Fatalf("expected PeekStatus to still report the slot occupied before Take")
	}
	if status.Connected {
		t.Fatalf("expected Connected: false once the runner's Done channel is closed")
	}
}
