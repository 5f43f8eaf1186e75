// Command vpnctl is a thin CLI over the daemon's control socket: connect,
// disconnect, status, stats, health. Process spawn/terminate/list of the
// daemon itself is an external collaborator's job (spec §1 scope), not
// this binary's.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloudtether/vpnd/internal/control"
	"github.com/cloudtether/vpnd/internal/daemoncfg"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	settings, err := daemoncfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading settings:", err)
		os.Exit(1)
	}
	socketPath, err := settings.ControlSocketPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, "resolving control socket path:", err)
		os.Exit(1)
	}
	client := control.NewClient(socketPath)

	switch os.Args[1] {
	case "connect":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: vpnctl connect <profile-path>")
			os.Exit(2)
		}
		runCommand(client, control.Command{Action: control.ActionConnect, ConfigPath: os.Args[2]})
	case "disconnect":
		runCommand(client, control.Command{Action: control.ActionDisconnect})
	case "status":
		runCommand(client, control.Command{Action: control.ActionStatus})
	case "stats":
		runCommand(client, control.Command{Action: control.ActionStats})
	case "health":
		if err := client.HealthCheck(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("healthy")
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vpnctl <connect|disconnect|status|stats|health> [args]")
}

func runCommand(client *control.Client, cmd control.Command) {
	var raw json.RawMessage
	if err := client.Send(cmd, &raw); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Println(string(raw))
}
