// Package transport defines the backend clients that move messages and
// captured files to their final destination.
package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/GabrielNunesIT/motion-relay/internal/model"
)

// ErrMissingCredentials is returned by constructors when a backend lacks the
// settings it needs to connect.
var ErrMissingCredentials = errors.New("missing credentials")

// Transport is a backend-specific client. Lifecycle ordering is enforced by
// the destination wrapping it, so implementations may assume Open precedes
// Handshake and sends only happen between Handshake and Close.
type Transport interface {
	// Name returns a stable, human readable identifier.
	Name() string

	// Open establishes the backend client and validates credentials.
	Open(ctx context.Context) error

	// Handshake confirms the backend is reachable before sends begin.
	Handshake(ctx context.Context) error

	// SendText delivers a notification.
	SendText(ctx context.Context, body, subject string) error

	// SendFile delivers a captured image or video.
	SendFile(ctx context.Context, asset model.CapturedAsset) error

	// Close releases transient connections.
	Close() error

	// Wipe clears credentials and client state from memory.
	Wipe()
}

// HTTPDoer abstracts HTTP client operations for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Ensure http.Client implements HTTPDoer.
var _ HTTPDoer = (*http.Client)(nil)
