// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

// Package portal provides the client for the Minol customer portal.
//
// The portal sits behind an Azure B2C single-sign-on flow that only a real
// browser can complete; the client delegates that handshake to an
// interfaces.Authenticator and then continues with a plain HTTP session
// carrying the harvested cookies. Consumption data itself comes from a
// small set of JSON REST endpoints consumed as opaque vendor schema.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/errors"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/interfaces"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/logger"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/metrics"
)

const (
	tenantsPath    = "/minol.com~kundenportal~em~web/rest/EMData/getUserTenants"
	readDataPath   = "/minol.com~kundenportal~em~web/rest/EMData/readData"
	userDetailPath = "/minol.com~util~framework~ui5~common~web/rest/UserInfo/getUserDetail"
	monitoringPath = "/minol.com~kundenportal~em~web/resources/monitoring/index.html?isMieter=true"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

	httpTimeout    = 30 * time.Second
	snapshotMaxAge = time.Hour
	daysPerMonth   = 30 // vendor periods are month-granular; the window is approximated the same way the portal UI does it
)

// Client is the Minol customer portal API client. It owns one HTTP session
// (cookie jar plus authentication flag) whose lifecycle is a single process
// run; authentication is re-attempted on demand when the flag is unset.
type Client struct {
	email    string
	password string
	baseURL  string

	auth       interfaces.Authenticator
	httpClient *http.Client

	mu            sync.Mutex
	authenticated bool
	userNum       string
	tenants       []rawTenant

	cached   *Snapshot
	cachedAt time.Time

	now func() time.Time
}

// NewClient creates a portal client for one account. The authenticator is
// the browser capability that performs the SSO handshake.
func NewClient(email, password, baseURL string, auth interfaces.Authenticator) (*Client, error) {
	if baseURL == "" {
		return nil, errors.NewConfigError("minol.base_url", "", fmt.Errorf("base URL is required"))
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		email:    email,
		password: password,
		baseURL:  strings.TrimRight(baseURL, "/"),
		auth:     auth,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: httpTimeout,
		},
		now: time.Now,
	}, nil
}

// IsAuthenticated reports whether the client holds an authenticated session.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// Authenticate performs the SSO handshake and the post-login tenant lookup.
//
// The browser capability drives the identity provider's login pages and
// hands back the session cookies, which are imported into the client's own
// HTTP session. A failure at any step leaves the session flag unset so the
// next cycle retries from scratch; there are no retries within one attempt.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authenticated = false

	start := c.now()
	cookies, err := c.auth.Login(ctx, c.email, c.password)
	metrics.AuthDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AuthFailures.Inc()
		return errors.NewAuthError("browser login", err)
	}

	c.importCookies(cookies)
	logger.Info().Int("cookies", len(cookies)).Msg("Transferred browser session cookies")

	if err := c.fetchUserTenants(ctx); err != nil {
		metrics.AuthFailures.Inc()
		return errors.NewAuthError("tenant lookup", err)
	}

	c.authenticated = true
	logger.Info().Str("user_num", c.userNum).Msg("Portal authentication successful")
	return nil
}

// importCookies translates browser cookies into the plain HTTP session.
// This is a one-time adaptation step per login, not shared state with the
// browser context.
func (c *Client) importCookies(cookies []*http.Cookie) {
	byDomain := make(map[string][]*http.Cookie)
	for _, ck := range cookies {
		domain := strings.TrimPrefix(ck.Domain, ".")
		if domain == "" {
			continue
		}
		byDomain[domain] = append(byDomain[domain], ck)
	}
	for domain, list := range byDomain {
		u := &url.URL{Scheme: "https", Host: domain, Path: "/"}
		c.httpClient.Jar.SetCookies(u, list)
	}
}

// fetchUserTenants resolves the account's tenant records and user number.
// Caller holds c.mu.
func (c *Client) fetchUserTenants(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, tenantsPath, nil)
	if err != nil {
		return err
	}

	body, err := c.doJSON(req)
	if err != nil {
		return err
	}

	var tenants []rawTenant
	if err := json.Unmarshal(body, &tenants); err != nil {
		return fmt.Errorf("failed to decode tenants response: %w", err)
	}
	if len(tenants) == 0 || tenants[0].UserNumber == "" {
		return errors.ErrNoTenant
	}

	c.tenants = tenants
	c.userNum = string(tenants[0].UserNumber)
	return nil
}

// readDataRequest is the vendor's consumption-data request body.
type readDataRequest struct {
	UserNum          string `json:"userNum"`
	Layer            string `json:"layer"`
	Scale            string `json:"scale"`
	ChartRefUnit     string `json:"chartRefUnit"`
	RefObject        string `json:"refObject"`
	ConsType         string `json:"consType"`
	DashBoardKey     string `json:"dashBoardKey"`
	TimelineStart    string `json:"timelineStart"`
	TimelineStartTxt string `json:"timelineStartTxt"`
	TimelineEnd      string `json:"timelineEnd"`
	TimelineEndTxt   string `json:"timelineEndTxt"`
	ValuesInKWH      bool   `json:"valuesInKWH"`
	DlgKey           string `json:"dlgKey"`
}

// FetchCategory issues one authenticated readData call for a category over
// a YYYYMM period window and returns the decoded vendor payload.
func (c *Client) FetchCategory(ctx context.Context, cat Category, start, end string) (*RawConsumption, error) {
	c.mu.Lock()
	authenticated := c.authenticated
	userNum := c.userNum
	c.mu.Unlock()

	if !authenticated {
		return nil, errors.NewFetchError("post", string(cat), errors.ErrNotAuthenticated)
	}

	params, ok := categoryRequest[cat]
	if !ok {
		return nil, errors.NewFetchError("post", string(cat), fmt.Errorf("unknown category"))
	}

	payload := readDataRequest{
		UserNum:          userNum,
		Layer:            "NE",
		Scale:            "CALMONTH",
		ChartRefUnit:     "ABS",
		RefObject:        "DIN_AVG",
		ConsType:         params.consType,
		DashBoardKey:     "PE",
		TimelineStart:    start,
		TimelineStartTxt: periodText(start),
		TimelineEnd:      end,
		TimelineEndTxt:   periodText(end),
		ValuesInKWH:      true,
		DlgKey:           params.dlgKey,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewFetchError("encode", string(cat), err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, readDataPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewFetchError("post", string(cat), err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	respBody, err := c.doJSON(req)
	if err != nil {
		return nil, errors.NewFetchError("post", string(cat), err)
	}

	var raw RawConsumption
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, errors.NewFetchError("decode", string(cat), err)
	}

	logger.Debug().
		Str("category", string(cat)).
		Str("start", start).
		Str("end", end).
		Int("table_rows", len(raw.Table)).
		Int("chart_points", len(raw.Chart)).
		Msg("Fetched consumption data")

	return &raw, nil
}

// UserDetails fetches the customer detail record. The result is tolerated
// to fail; it only enriches the profile.
func (c *Client) UserDetails(ctx context.Context) (map[string]any, error) {
	c.mu.Lock()
	authenticated := c.authenticated
	c.mu.Unlock()

	if !authenticated {
		return nil, errors.ErrNotAuthenticated
	}

	req, err := c.newRequest(ctx, http.MethodGet, userDetailPath, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.doJSON(req)
	if err != nil {
		return nil, err
	}

	var details map[string]any
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("failed to decode user details: %w", err)
	}
	return details, nil
}

// Snapshot returns the normalized consumption data for the trailing
// monthsBack months.
//
// A snapshot younger than one hour is returned unchanged unless
// forceRefresh is set; the scheduled sync always forces a refresh, the
// cache serves ad-hoc accessors. Category fetches are independent: a
// failing category carries an error marker and does not block its
// siblings.
func (c *Client) Snapshot(ctx context.Context, monthsBack int, forceRefresh bool) (*Snapshot, error) {
	c.mu.Lock()
	if !forceRefresh && c.cached != nil && c.now().Sub(c.cachedAt) < snapshotMaxAge {
		snap := c.cached
		c.mu.Unlock()
		logger.Debug().Time("cached_at", c.cachedAt).Msg("Returning cached snapshot")
		return snap, nil
	}
	authenticated := c.authenticated
	c.mu.Unlock()

	if !authenticated {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	nowTime := c.now()
	start, end := periodWindow(nowTime, monthsBack)

	snap := &Snapshot{
		Timestamp:   nowTime,
		PeriodStart: start,
		PeriodEnd:   end,
		Categories:  make(map[Category]*ConsumptionCategory, 3),
	}

	for _, cat := range Categories() {
		raw, err := c.FetchCategory(ctx, cat, start, end)
		if err != nil {
			logger.Error().Err(err).Str("category", string(cat)).Msg("Category fetch failed")
			metrics.CategoryFetchErrors.WithLabelValues(string(cat)).Inc()
			snap.Categories[cat] = &ConsumptionCategory{Err: err.Error()}
			continue
		}
		snap.Categories[cat] = Normalize(raw)
	}

	snap.Profile = c.buildProfile(ctx)

	c.mu.Lock()
	c.cached = snap
	c.cachedAt = c.now()
	c.mu.Unlock()

	return snap, nil
}

// buildProfile assembles the customer profile from the first tenant record,
// enriched with the user-detail endpoint where the tenant record is blank.
func (c *Client) buildProfile(ctx context.Context) *Profile {
	c.mu.Lock()
	tenants := c.tenants
	c.mu.Unlock()

	if len(tenants) == 0 {
		return nil
	}

	t := tenants[0]
	profile := &Profile{
		Email:          t.Email,
		CustomerNumber: string(t.UserNumber),
		TenantNumber:   strings.TrimSpace(t.Nenr),
		PropertyNumber: strings.TrimSpace(t.Lgnr),
		Floor:          t.GeschossText,
		Position:       t.LageText,
		Address:        joinAddress(t.AddrStreet, t.AddrHouseNum, t.AddrPostal, t.AddrCity),
		Name:           t.Name,
		MoveInDate:     t.EinzugMieter,
	}

	if profile.Name == "" || profile.Email == "" {
		details, err := c.UserDetails(ctx)
		if err != nil {
			logger.Debug().Err(err).Msg("User detail lookup failed, using tenant record only")
			return profile
		}
		if profile.Name == "" {
			if name, ok := details["name"].(string); ok {
				profile.Name = name
			}
		}
		if profile.Email == "" {
			if email, ok := details["email"].(string); ok {
				profile.Email = email
			}
		}
	}

	return profile
}

// HeatingTotal returns the cached total heating consumption.
func (c *Client) HeatingTotal(ctx context.Context) (float64, error) {
	return c.categoryTotal(ctx, CategoryHeating)
}

// HotWaterTotal returns the cached total hot water consumption.
func (c *Client) HotWaterTotal(ctx context.Context) (float64, error) {
	return c.categoryTotal(ctx, CategoryHotWater)
}

// ColdWaterTotal returns the cached total cold water consumption.
func (c *Client) ColdWaterTotal(ctx context.Context) (float64, error) {
	return c.categoryTotal(ctx, CategoryColdWater)
}

func (c *Client) categoryTotal(ctx context.Context, cat Category) (float64, error) {
	snap, err := c.Snapshot(ctx, 12, false)
	if err != nil {
		return 0, err
	}
	category := snap.Category(cat)
	if category.Failed() {
		return 0, errors.NewFetchError("total", string(cat), fmt.Errorf("%s", category.Err))
	}
	return category.Total, nil
}

// Rooms returns the cached per-room readings for a category.
func (c *Client) Rooms(ctx context.Context, cat Category) ([]RoomReading, error) {
	snap, err := c.Snapshot(ctx, 12, false)
	if err != nil {
		return nil, err
	}
	category := snap.Category(cat)
	if category.Failed() {
		return nil, errors.NewFetchError("rooms", string(cat), fmt.Errorf("%s", category.Err))
	}
	return category.ByRoom, nil
}

// Timeline returns the cached monthly timeline for a category.
func (c *Client) Timeline(ctx context.Context, cat Category) ([]MonthlyPoint, error) {
	snap, err := c.Snapshot(ctx, 12, false)
	if err != nil {
		return nil, err
	}
	category := snap.Category(cat)
	if category.Failed() {
		return nil, errors.NewFetchError("timeline", string(cat), fmt.Errorf("%s", category.Err))
	}
	return category.Timeline, nil
}

// newRequest builds a portal request with the session headers the vendor
// backend expects from its own frontend.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Referer", c.baseURL+monitoringPath)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	return req, nil
}

// doJSON executes a request and returns the body, requiring a 2xx status
// and a JSON content type. A login redirect to an HTML page shows up here
// as a content-type mismatch, which callers treat as an auth failure.
func (c *Client) doJSON(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Path)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return nil, fmt.Errorf("expected JSON response, got Content-Type %q", contentType)
	}

	return body, nil
}

// periodWindow computes the YYYYMM period range ending now and starting
// monthsBack months earlier.
func periodWindow(now time.Time, monthsBack int) (start, end string) {
	startTime := now.Add(-time.Duration(monthsBack) * daysPerMonth * 24 * time.Hour)
	return startTime.Format("200601"), now.Format("200601")
}

// periodText renders a YYYYMM period as the display form MM.YYYY used in
// the vendor request body.
func periodText(period string) string {
	if len(period) != 6 {
		return period
	}
	return period[4:] + "." + period[:4]
}
