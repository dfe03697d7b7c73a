// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

// Package interfaces defines abstract interfaces for core system components.
// This package promotes loose coupling and testability by allowing
// dependency injection and easy mocking in tests.
package interfaces

import (
	"context"
	"net/http"
)

// Authenticator performs the browser-driven SSO handshake against the
// identity provider and returns the resulting session cookies.
//
// The portal client never depends on a specific automation engine; it only
// needs the cookies that fall out of a successful login. Implementations
// must tear down any browser process they start before returning, whether
// the login succeeded or not.
type Authenticator interface {
	// Login drives the identity provider's login pages with the given
	// credentials and returns all cookies from the browser context after
	// the redirect back to the portal.
	Login(ctx context.Context, email, password string) ([]*http.Cookie, error)
}
