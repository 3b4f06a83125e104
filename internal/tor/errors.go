package tor

import (
	"errors"
	"fmt"
)

// ErrorKind classifies Tor transport failures so callers can decide whether to
// degrade to a direct connection, retry later, or report to the user.
type ErrorKind string

// ErrorKind values returned by Manager operations.
const (
	// KindExecutableNotFound indicates no tor binary could be located.
	KindExecutableNotFound ErrorKind = "executable_not_found"
	// KindLaunchFailed indicates the tor binary could not be spawned.
	KindLaunchFailed ErrorKind = "launch_failed"
	// KindProcessExited indicates tor exited before its SOCKS port opened.
	KindProcessExited ErrorKind = "process_exited"
	// KindStartupTimeout indicates the SOCKS port did not open within the startup window.
	KindStartupTimeout ErrorKind = "startup_timeout"
	// KindNotManaged indicates a control operation was requested for a Tor
	// process that onionwatch did not launch.
	KindNotManaged ErrorKind = "not_managed"
	// KindControlFailed indicates a ControlPort request failed.
	KindControlFailed ErrorKind = "control_failed"
)

// Error is the error type returned by Manager.
// errors.Is matches on Kind, so callers compare against the Err* sentinels.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Op names the operation that failed.
	Op string
	// Msg is an optional human-readable description.
	Msg string
	// Err is the wrapped cause.
	Err error
}

// Sentinels for errors.Is checks against Manager errors.
var (
	ErrExecutableNotFound = &Error{Kind: KindExecutableNotFound}
	ErrLaunchFailed       = &Error{Kind: KindLaunchFailed}
	ErrProcessExited      = &Error{Kind: KindProcessExited}
	ErrStartupTimeout     = &Error{Kind: KindStartupTimeout}
	ErrNotManaged         = &Error{Kind: KindNotManaged}
	ErrControlFailed      = &Error{Kind: KindControlFailed}
)

// Error returns a message containing Op, Kind, Msg and the wrapped error.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	message := string(e.Kind)
	if e.Op != "" {
		message = fmt.Sprintf("%s: %s", e.Op, message)
	}
	if e.Msg != "" {
		message = fmt.Sprintf("%s: %s", message, e.Msg)
	}
	if e.Err != nil {
		message = fmt.Sprintf("%s: %s", message, e.Err)
	}
	return message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return e.Kind != "" && e.Kind == te.Kind
}

func newError(kind ErrorKind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// SOCKS proxy verification errors.
var (
	// ErrProxyNotTor is returned when the address answers but does not speak SOCKS5
	// the way Tor does.
	ErrProxyNotTor = errors.New("proxy is not a Tor SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy could be made.
	ErrProxyCannotConnect = errors.New("cannot connect to Tor proxy")

	// ErrProxyTimeout is returned when the proxy handshake times out.
	ErrProxyTimeout = errors.New("timeout connecting to Tor proxy")

	// ErrInvalidProxyAddress is returned when the proxy address is not "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
)

// ProxyStatus is the result of a SOCKS5 handshake against a proxy address.
type ProxyStatus int

const (
	// ProxyStatusOK indicates the proxy is a working Tor SOCKS5 proxy.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates something answered but it is not Tor.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates no connection could be established.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the handshake timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not Tor)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Err returns the error for this status, or nil if OK.
func (s ProxyStatus) Err() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotTor
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
