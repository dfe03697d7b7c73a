// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

// Package browser completes the Azure B2C single-sign-on handshake of the
// Minol customer portal with a headless Chrome instance and harvests the
// resulting session cookies. The portal's identity provider requires
// JavaScript redirects that a plain HTTP client cannot follow.
package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/errors"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/logger"
)

const (
	loginProviderHost = "minolauth.b2clogin.com"
	monitoringPath    = "/minol.com~kundenportal~em~web/resources/monitoring/index.html?isMieter=true&redirect2=true"

	redirectToLoginTimeout = 5 * time.Second
	usernameFieldTimeout   = 10 * time.Second
	passwordFieldTimeout   = 5 * time.Second
	loginCompleteTimeout   = 30 * time.Second
	pollInterval           = 250 * time.Millisecond
)

// Authenticator drives a headless browser through the portal login flow.
// Each Login call creates and tears down its own browser instance.
type Authenticator struct {
	baseURL  string
	headless bool
}

// New creates a browser authenticator for the given portal base URL.
func New(baseURL string) *Authenticator {
	return &Authenticator{
		baseURL:  strings.TrimRight(baseURL, "/"),
		headless: true,
	}
}

// Login performs the full SSO handshake and returns the session cookies of
// the authenticated browser.
//
// Flow: open the monitoring page, get redirected to the identity provider,
// fill in the credentials, submit, wait for the redirect back to the
// portal, then revisit the monitoring page so all portal-side cookies are
// set before they are dumped.
func (a *Authenticator) Login(ctx context.Context, email, password string) ([]*http.Cookie, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", a.headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	monitoringURL := a.baseURL + monitoringPath

	logger.Debug().Str("url", monitoringURL).Msg("Opening portal login page")
	if err := chromedp.Run(browserCtx, chromedp.Navigate(monitoringURL)); err != nil {
		return nil, fmt.Errorf("failed to open portal: %w", err)
	}

	if err := a.waitForHost(browserCtx, loginProviderHost, redirectToLoginTimeout); err != nil {
		return nil, errors.ErrLoginTimeout
	}

	logger.Debug().Msg("Identity provider reached, submitting credentials")
	if err := chromedp.Run(browserCtx,
		waitVisibleTimeout("#signInName", usernameFieldTimeout),
		chromedp.SendKeys("#signInName", email, chromedp.ByID),
		waitVisibleTimeout("#password", passwordFieldTimeout),
		chromedp.SendKeys("#password", password, chromedp.ByID),
		chromedp.Click("button[type=submit]", chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to submit credentials: %w", err)
	}

	if err := a.waitForPortal(browserCtx, loginCompleteTimeout); err != nil {
		return nil, errors.ErrLoginTimeout
	}

	// The portal frontend sets additional cookies on first authenticated
	// page load.
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(monitoringURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to reload portal after login: %w", err)
	}

	cookies, err := dumpCookies(browserCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to read browser cookies: %w", err)
	}

	logger.Info().Int("cookies", len(cookies)).Msg("Browser login completed")
	return cookies, nil
}

// waitForHost polls the current location until it lands on the given host.
func (a *Authenticator) waitForHost(ctx context.Context, host string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var location string
		if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
			return err
		}
		if strings.Contains(location, host) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return fmt.Errorf("no redirect to %s within %s", host, timeout)
}

// waitForPortal polls the current location until it has left the identity
// provider and is back on the portal domain.
func (a *Authenticator) waitForPortal(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var location string
		if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
			return err
		}
		if !strings.Contains(location, loginProviderHost) && strings.Contains(location, "minol") {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return fmt.Errorf("login did not complete within %s", timeout)
}

// waitVisibleTimeout wraps WaitVisible with a per-step timeout instead of
// inheriting the whole context's deadline.
func waitVisibleTimeout(sel string, timeout time.Duration) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return chromedp.WaitVisible(sel, chromedp.ByID).Do(stepCtx)
	}
}

// dumpCookies reads all cookies of the browser session, across both the
// portal and the identity provider domains.
func dumpCookies(ctx context.Context) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		cookies = make([]*http.Cookie, 0, len(raw))
		for _, c := range raw {
			cookies = append(cookies, &http.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
				Secure: c.Secure,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return cookies, nil
}
