// Command vpnd is the VPN data-plane daemon: it loads ambient settings,
// opens the control-plane and metrics sockets, and waits for a client to
// hand it a WireGuard profile to connect. Wiring sequence follows the
// teacher's cmd/finguard/main.go newApplication/start pattern.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudtether/vpnd/internal/control"
	"github.com/cloudtether/vpnd/internal/daemoncfg"
	"github.com/cloudtether/vpnd/internal/logging"
	"github.com/cloudtether/vpnd/internal/metrics"
	"github.com/cloudtether/vpnd/internal/supervisor"
	"github.com/cloudtether/vpnd/version"
)

func main() {
	settings, err := daemoncfg.Load()
	if err != nil {
		panic(err)
	}

	log := logging.NewLogger(settings.LogLevel)
	log.Info("starting vpnd", "version", version.AsString())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sup := supervisor.New()

	controlPath, err := settings.ControlSocketPath()
	if err != nil {
		log.Error("resolving control socket path failed", "error", err)
		os.Exit(1)
	}
	metricsPath, err := settings.MetricsSocketPath()
	if err != nil {
		log.Error("resolving metrics socket path failed", "error", err)
		os.Exit(1)
	}

	controlServer := control.NewServer(controlPath, settings, sup, log)
	metricsServer := metrics.NewServer(metricsPath, metricsSource{sup}, log)

	errCh := make(chan error, 2)
	go func() { errCh <- controlServer.Run(ctx) }()
	go func() { errCh <- metricsServer.Run(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error("server exited with error", "error", err)
		}
	}
}

// metricsSource adapts the supervisor's snapshot accessor to
// metrics.Source, returning an all-zero snapshot when no tunnel is
// running (the metrics socket always streams, even while idle; only the
// control socket's Stats command distinguishes "no tunnel" with a literal
// null).
type metricsSource struct {
	sup *supervisor.Supervisor
}

func (m metricsSource) Snapshot() metrics.Snapshot {
	if snap := m.sup.SnapshotMetrics(); snap != nil {
		return *snap
	}
	return metrics.Snapshot{}
}
