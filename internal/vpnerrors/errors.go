// Package vpnerrors defines the daemon's error taxonomy (spec §7): a small
// set of kinds, not types, so that every layer can classify a failure
// without a growing switch of concrete error structs. Every error that
// crosses the control socket is flattened to a single human-readable line
// via (*Error).ClientLine.
package vpnerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into one of the taxonomy's buckets.
type Kind string

const (
	KindConfig    Kind = "config"
	KindInterface Kind = "interface"
	KindRoute     Kind = "route"
	KindDNS       Kind = "dns"
	KindTunnel    Kind = "tunnel"
	KindDaemon    Kind = "daemon"
	KindSystem    Kind = "system"
	KindIO        Kind = "io"
	KindJSON      Kind = "json"
)

// Error wraps a cause with the operation that failed and its taxonomy kind.
type Error struct {
	Kind Kind
	Op   string
	Key  string // offending config key, route, peer, etc. — optional
	Err  error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ClientLine renders the error the way it crosses the control socket:
// "<Op> error: <reason>".
func (e *Error) ClientLine() string {
	reason := e.Err
	if reason == nil {
		return fmt.Sprintf("%s error: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s error: %v", e.Op, reason)
}

// MARK: constructors

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func NewWithKey(kind Kind, op, key string, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

func Config(op, key string, err error) *Error    { return NewWithKey(KindConfig, op, key, err) }
func Interface(op string, err error) *Error      { return New(KindInterface, op, err) }
func Route(op string, err error) *Error          { return New(KindRoute, op, err) }
func DNS(op string, err error) *Error            { return New(KindDNS, op, err) }
func Tunnel(op string, err error) *Error         { return New(KindTunnel, op, err) }
func Daemon(op string, err error) *Error         { return New(KindDaemon, op, err) }
func System(op string, err error) *Error         { return New(KindSystem, op, err) }

// MARK: sentinel Daemon errors

var (
	ErrNotRunning         = errors.New("daemon not running")
	ErrTimeout            = errors.New("timed out")
	ErrAlreadyRunning     = errors.New("daemon already running")
	ErrTunnelAlreadyUp    = errors.New("tunnel already running")
	ErrNoActiveTunnel     = errors.New("no active tunnel")
)

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ClientLine renders any error the way it crosses the control socket,
// falling back to "<op> error: <err>" for errors that were never wrapped
// into the typed taxonomy.
func ClientLine(op string, err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.ClientLine()
	}
	return fmt.Sprintf("%s error: %v", op, err)
}
