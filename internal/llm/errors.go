package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind tags an error with the failure class it belongs to
type Kind string

const (
	KindUnknown            Kind = ""
	KindTimeout            Kind = "timeout"
	KindRateLimit          Kind = "rate_limit"
	KindNetwork            Kind = "network"
	KindParse              Kind = "parse"
	KindTokenLimit         Kind = "token_limit"
	KindAuth               Kind = "auth"
	KindServiceUnavailable Kind = "service_unavailable"
)

// Error is returned by providers; Kind is assigned where the failure originates
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Provider != "" {
		sb.WriteString(e.Provider)
		sb.WriteString(": ")
	}
	if e.Kind != KindUnknown {
		sb.WriteString(string(e.Kind))
		sb.WriteString(": ")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, "status %d: ", e.StatusCode)
	}
	if e.Err != nil {
		sb.WriteString(e.Err.Error())
	}
	return strings.TrimSuffix(sb.String(), ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError tags err with kind
func NewError(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf returns the tag carried by err, or KindUnknown for untagged errors
func KindOf(err error) Kind {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Kind
	}
	return KindUnknown
}

// KindForStatus maps an HTTP status code to a Kind
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway:
		return KindServiceUnavailable
	case status == http.StatusRequestEntityTooLarge:
		return KindTokenLimit
	default:
		return KindUnknown
	}
}

// WrapTransportError tags err using its status code when known and the transport
// error type otherwise. Errors that are already tagged pass through unchanged.
func WrapTransportError(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return err
	}

	kind := KindForStatus(status)
	if kind == KindUnknown {
		kind = transportKind(err)
	}
	return &Error{Kind: kind, Provider: provider, StatusCode: status, Err: err}
}

func transportKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}
	return KindUnknown
}
