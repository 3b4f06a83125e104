package model

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// FailureKind classifies why a fetch did not produce a response.
// The liveness layer only distinguishes alive from dead, but the kind is
// kept for diagnostics and reporting.
type FailureKind string

const (
	// FailureTimeout indicates the request exceeded its deadline.
	FailureTimeout FailureKind = "timeout"

	// FailureConnection indicates the TCP or SOCKS connection failed
	// (refused, reset, unreachable, proxy rejected the CONNECT).
	FailureConnection FailureKind = "connection"

	// FailureDNS indicates the gateway hostname could not be resolved.
	FailureDNS FailureKind = "dns"

	// FailureTLS indicates the TLS handshake or certificate verification failed.
	FailureTLS FailureKind = "tls"

	// FailureCanceled indicates the caller canceled the request.
	FailureCanceled FailureKind = "canceled"

	// FailureHTTPStatus indicates a response arrived but with a non-success status.
	// Fetches themselves never produce this kind; the liveness layer uses it
	// when it classifies a non-200 response as dead.
	FailureHTTPStatus FailureKind = "http_status"

	// FailureInvalidURL indicates the URL could not be parsed or rewritten.
	FailureInvalidURL FailureKind = "invalid_url"

	// FailureInternal indicates an unexpected error inside onionwatch itself,
	// such as a recovered panic.
	FailureInternal FailureKind = "internal"
)

// FetchError is a classified fetch failure.
type FetchError struct {
	// Kind is the failure classification.
	Kind FailureKind `json:"kind"`

	// Message is the underlying error text.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// FetchResult is the outcome of a single fetch.
//
// A result is never partially populated: when Success is false, Content,
// Text, StatusCode, Headers and FinalURL are zero and Err is set. When
// Success is true, Err is nil. Success only means a response was received;
// callers inspect StatusCode to decide whether the response is useful.
type FetchResult struct {
	// Success reports whether an HTTP response was received.
	Success bool `json:"success"`

	// Content is the raw response body. Binary resources use this field.
	Content []byte `json:"-"`

	// Text is the response body decoded as text. HTML consumers use this field.
	Text string `json:"text,omitempty"`

	// StatusCode is the HTTP status code of the final response.
	StatusCode int `json:"status_code,omitempty"`

	// Headers holds the response headers, one value per canonical name.
	Headers map[string]string `json:"headers,omitempty"`

	// FinalURL is the URL after following redirects.
	FinalURL string `json:"final_url,omitempty"`

	// ContentType is the effective media type of the body.
	ContentType string `json:"content_type,omitempty"`

	// Err describes the failure when Success is false.
	Err *FetchError `json:"error,omitempty"`
}

// IsOK reports whether a response was received with HTTP 200.
func (r FetchResult) IsOK() bool {
	return r.Success && r.StatusCode == http.StatusOK
}

// Reason returns a short diagnostic string explaining why the result does
// not count as alive, or an empty string for a 200 response.
func (r FetchResult) Reason() string {
	switch {
	case r.IsOK():
		return ""
	case !r.Success && r.Err != nil:
		return r.Err.Error()
	case !r.Success:
		return string(FailureInternal) + ": fetch failed without an error"
	default:
		return "HTTP " + strconv.Itoa(r.StatusCode)
	}
}

// NewFailedResult converts err into a failed FetchResult.
func NewFailedResult(err error) FetchResult {
	return FetchResult{
		Success: false,
		Err:     ClassifyError(err),
	}
}

// FlattenHeaders converts http.Header into a single-valued map.
// Multiple values for the same header are joined with ", " as RFC 9110 allows.
func FlattenHeaders(h http.Header) map[string]string {
	flat := make(map[string]string, len(h))
	for name, values := range h {
		flat[http.CanonicalHeaderKey(name)] = strings.Join(values, ", ")
	}
	return flat
}

// ClassifyError maps a transport error to a FetchError.
// A nil error yields nil.
func ClassifyError(err error) *FetchError {
	if err == nil {
		return nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	return &FetchError{Kind: classifyKind(err), Message: err.Error()}
}

// classifyKind inspects the error chain. Order matters: a canceled context
// is reported as canceled even when the transport surfaces it as a net.Error.
func classifyKind(err error) FailureKind {
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return FailureTimeout
		}
		return FailureDNS
	}

	if isTLSError(err) {
		return FailureTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	return FailureConnection
}

// isTLSError reports whether err originates from the TLS layer.
func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		certInvalid x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &verifyErr),
		errors.As(err, &recordErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &hostnameErr),
		errors.As(err, &certInvalid):
		return true
	}
	return strings.Contains(err.Error(), "tls: ")
}
