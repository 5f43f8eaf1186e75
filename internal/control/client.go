package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff"
)

// Client is a thin wrapper over the control socket: connect, send one
// command, read one response, close. WaitForDaemon retries with
// cenkalti/backoff's constant backoff, the same fixed-delay shape as the
// teacher's retry loops (FinGuard only ever used backoff transitively,
// via golang.zx2c4.com/wireguard's module graph; here this client is its
// only direct user).
type Client struct {
	socketPath string
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// MARK: Send

// Send dials the socket, writes cmd as one JSON line, and decodes the
// response into out (a string, a struct pointer, or any JSON-compatible
// type the caller expects for that action).
func (c *Client) Send(cmd Command, out interface{}) error {
	conn, err := net.DialTimeout("unix", c.socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("dialing control socket: %w", err)
	}
	defer conn.Close()

	line, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	line = append(line, '\n')

	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("writing command: %w", err)
	}

	reader := bufio.NewReader(conn)
	respLine, err := reader.ReadBytes('\n')
	if err != nil && len(respLine) == 0 {
		return fmt.Errorf("reading response: %w", err)
	}

	if err := json.Unmarshal(respLine, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

const (
	daemonRetryInterval = 100 * time.Millisecond
	maxDaemonRetries    = 50
)

// MARK: WaitForDaemon

// WaitForDaemon retries a health check until the daemon answers, at most
// maxDaemonRetries times daemonRetryInterval apart (about 5s in all), used
// by callers that just spawned the daemon and need to know when its
// control socket is ready.
func (c *Client) WaitForDaemon() error {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(daemonRetryInterval), maxDaemonRetries)

	operation := func() error {
		return c.HealthCheck()
	}

	return backoff.Retry(operation, policy)
}

// MARK: HealthCheck

// HealthCheck reports nil if the daemon is reachable and answers the
// exact "healthy" response, or an error describing why it didn't.
func (c *Client) HealthCheck() error {
	var resp string
	if err := c.Send(Command{Action: ActionHealthCheck}, &resp); err != nil {
		return err
	}
	if resp != responseHealthy {
		return fmt.Errorf("unexpected health response: %q", resp)
	}
	return nil
}

// MARK: IsDaemonRunning

func (c *Client) IsDaemonRunning() bool {
	return c.HealthCheck() == nil
}
