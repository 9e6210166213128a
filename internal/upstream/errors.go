package upstream

import "fmt"

// Code identifies the taxonomy of upstream failures named in §7.
type Code int

const (
	// Timeout means the upstream did not reply within its deadline.
	Timeout Code = iota
	// Network covers dial/read/write failures not otherwise classified.
	Network
	// TLSHandshake means the DoT TLS handshake failed.
	TLSHandshake
	// ConnectionReset means a pooled DoT connection was reset mid-use.
	ConnectionReset
	// HTTPStatus means the DoH upstream answered with a non-2xx status.
	HTTPStatus
	// Truncated means a UDP response set TC with no larger transport to fall back to.
	Truncated
)

func (c Code) String() string {
	switch c {
	case Timeout:
		return "UpstreamTimeout"
	case Network:
		return "UpstreamNetwork"
	case TLSHandshake:
		return "TlsHandshake"
	case ConnectionReset:
		return "ConnectionReset"
	case HTTPStatus:
		return "Http"
	case Truncated:
		return "Truncated"
	default:
		return "Unknown"
	}
}

// Error is a typed upstream failure, shaped on the project's
// middleware/resolver/errors.go ValidationError pattern (Code, Message,
// wrapped Err, Unwrap).
type Error struct {
	Code    Code
	Tag     string
	Status  int // populated for HTTPStatus
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s: %s%d: %s", e.Tag, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s: %s", e.Tag, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(tag string, code Code, message string, err error) *Error {
	return &Error{Tag: tag, Code: code, Message: message, Err: err}
}

// HybridAllFailed aggregates per-child failures when every child of a
// hybrid upstream fails or returns ServFail, per §4.5/§7.
type HybridAllFailed struct {
	Tag      string
	Children map[string]error
}

func (e *HybridAllFailed) Error() string {
	return fmt.Sprintf("hybrid %s: all %d children failed", e.Tag, len(e.Children))
}

// ConfigErrorCode identifies a startup-time configuration defect.
type ConfigErrorCode int

const (
	// CyclicUpstream means the hybrid dependency graph has a cycle.
	CyclicUpstream ConfigErrorCode = iota
	// UnknownTag means a hybrid or script reference names a tag that
	// was never declared.
	UnknownTag
	// BadURI means a DoH uri field failed to parse.
	BadURI
)

// ConfigError aborts startup, per §7 ("configuration errors abort startup").
type ConfigError struct {
	Code ConfigErrorCode
	Tag  string
	Err  error
}

func (e *ConfigError) Error() string {
	msg := "ConfigError"
	switch e.Code {
	case CyclicUpstream:
		msg = "cyclic upstream graph"
	case UnknownTag:
		msg = "unknown upstream tag"
	case BadURI:
		msg = "malformed upstream URI"
	}
	if e.Tag != "" {
		return fmt.Sprintf("%s: %s", msg, e.Tag)
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }
