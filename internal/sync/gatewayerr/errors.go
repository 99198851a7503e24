// Package gatewayerr classifies Remote Gateway failures into a closed sum
// type, replacing the ad-hoc string-comparison error discrimination the
// source exhibited (spec §9) with a single classification function at the
// gateway boundary. Downstream code switches on the variant instead of
// inspecting error text.
package gatewayerr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of ways a Remote Gateway call can fail.
type Kind int

const (
	// KindTransport covers network unavailability, timeouts, and non-auth
	// 5xx responses. Retryable.
	KindTransport Kind = iota
	// KindAuth is a row-level-security rejection: the caller is not the
	// row's owner. Evidence the local copy is foreign; not retryable.
	KindAuth
	// KindMalformed is a malformed-primary-key rejection on the wire.
	KindMalformed
	// KindNotFound is the gateway's distinguished "no such row" signal on
	// a point read. Not a failure from the caller's perspective.
	KindNotFound
	// KindOther is any other rejection the engine must not retry blindly
	// (e.g. validation failure on a push).
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindMalformed:
		return "malformed"
	case KindNotFound:
		return "not_found"
	default:
		return "other"
	}
}

// Error wraps a classified Remote Gateway failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, err error) *Error { return &Error{Kind: kind, Err: err} }

func Transport(err error) *Error { return New(KindTransport, err) }
func Auth(err error) *Error      { return New(KindAuth, err) }
func Malformed(err error) *Error { return New(KindMalformed, err) }
func NotFound(err error) *Error  { return New(KindNotFound, err) }
func Other(err error) *Error     { return New(KindOther, err) }

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	var ge *Error
	if !errors.As(err, &ge) {
		return false
	}
	return ge.Kind == kind
}
