// Package ims implements the client for the IMS distribution portal: a
// session-cookie authenticated HTTP client with bounded retries, point
// of delivery discovery and the normalizer that turns the portal's
// loosely-typed payloads into typed aggregates.
package ims

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/podwatch/podwatch/pkg/common"
	"github.com/podwatch/podwatch/pkg/log"
	"github.com/podwatch/podwatch/pkg/types"
)

const (
	defaultTimeout = time.Minute
	// initial attempt plus retries at 1s, 2s, 4s
	defaultMaxAttempts = 4
	defaultBackoffBase = time.Second

	dateFormat     = "2006-01-02"
	dateTimeFormat = "2006-01-02T15:04:05"
)

// Client implements Portal against the IMS portal. The session cookie
// lives in the http client's jar; Client tracks whether it believes the
// session is valid and re-logs-in once when the portal rejects it.
type Client struct {
	client      *http.Client
	baseURL     string
	creds       types.Credentials
	loc         *time.Location
	maxAttempts int
	backoffBase time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	mu            sync.Mutex
	authenticated bool
	authFailed    bool
	pods          map[string]podEntry
}

var _ Portal = (*Client)(nil)

// NewClient returns a portal client for the given base URL and
// credentials. Period ranges and interval timestamps are interpreted in
// loc, the portal's local civil calendar.
func NewClient(baseURL string, creds types.Credentials, loc *time.Location, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := common.HTTPClient(timeout)
	// the portal authenticates via a session cookie set on login
	jar, err := cookiejar.New(nil)
	if err != nil {
		// cookiejar.New with nil options cannot fail
		panic(fmt.Errorf("failed to create cookie jar: %w", err))
	}
	httpClient.Jar = jar

	return &Client{
		client:      httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		creds:       creds,
		loc:         loc,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		sleep:       common.Sleep,
	}
}

// Location returns the portal's local civil calendar.
func (c *Client) Location() *time.Location {
	return c.loc
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload interface{}) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, path)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	return req, nil
}

// send performs one logical request with bounded retries on
// transport-level failures. Non-2xx statuses are not retried here; the
// caller classifies them. The request is rebuilt per attempt because a
// body reader cannot be replayed.
func (c *Client) send(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, []byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase << (attempt - 1)
			log.Ctx(ctx).DebugContext(ctx, "retrying portal request",
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
				slog.Any("error", lastErr),
			)
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, nil, err
			}
		}

		req, err := build(ctx)
		if err != nil {
			return nil, nil, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		return resp, body, nil
	}
	return nil, nil, &types.NetworkError{Attempts: c.maxAttempts, Err: lastErr}
}

// sessionExpired reports whether the response means the portal no longer
// accepts our cookie. The portal also answers 200 with a login page when
// the session dies, so an HTML content type on a JSON endpoint counts.
func sessionExpired(resp *http.Response) bool {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return true
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	return resp.StatusCode == http.StatusOK && strings.Contains(ct, "text/html")
}

// login must be called with c.mu held.
func (c *Client) login(ctx context.Context) error {
	if c.authFailed {
		return &types.AuthenticationError{Reason: "credentials previously rejected"}
	}
	if c.creds.Username == "" || c.creds.Password == "" {
		c.authFailed = true
		return &types.AuthenticationError{Reason: "missing credentials"}
	}

	build := func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, loginPath, loginRequest{
			Username: c.creds.Username,
			Password: c.creds.Password,
		})
	}
	resp, _, err := c.send(ctx, build)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		c.authenticated = true
		// session-scoped point ids from any previous session are dead now
		c.pods = nil
		log.Ctx(ctx).DebugContext(ctx, "portal login success", slog.String("username", c.creds.Username))
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.authFailed = true
		log.Ctx(ctx).ErrorContext(ctx, "portal rejected credentials", slog.Int("status", resp.StatusCode))
		return &types.AuthenticationError{Reason: fmt.Sprintf("login rejected with status %d", resp.StatusCode)}
	default:
		return &types.UpstreamError{StatusCode: resp.StatusCode}
	}
}

// ensureLogin must be called with c.mu held.
func (c *Client) ensureLogin(ctx context.Context) error {
	if c.authFailed {
		return &types.AuthenticationError{Reason: "credentials previously rejected"}
	}
	if !c.authenticated {
		return c.login(ctx)
	}
	return nil
}

// doJSON issues an authenticated request and decodes the response into
// dest. On a rejected session it drops the session, re-logs-in once and
// retries the request once; a second rejection is an AuthenticationError.
// Must be called with c.mu held.
func (c *Client) doJSON(ctx context.Context, build func(ctx context.Context) (*http.Request, error), dest interface{}) error {
	if err := c.ensureLogin(ctx); err != nil {
		return err
	}

	for attempt := 0; attempt < 2; attempt++ {
		resp, body, err := c.send(ctx, build)
		if err != nil {
			return err
		}

		if sessionExpired(resp) {
			c.authenticated = false
			c.pods = nil
			if attempt > 0 {
				break
			}
			log.Ctx(ctx).DebugContext(ctx, "portal session expired, re-logging in")
			if err := c.login(ctx); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &types.UpstreamError{StatusCode: resp.StatusCode}
		}

		if dest != nil {
			if err := json.Unmarshal(body, dest); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to decode portal response", slog.Any("error", err))
				return &types.MalformedResponseError{Err: err}
			}
		}
		return nil
	}
	return &types.AuthenticationError{Reason: "session rejected again after re-login"}
}

// Authenticate performs an eager login.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}

// DiscoverPoints fetches the delivery points visible to the session and
// refreshes the session-scoped id cache. Entries whose label has no
// valid stable code are skipped.
func (c *Client) DiscoverPoints(ctx context.Context) ([]types.DeliveryPoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discoverLocked(ctx)
}

func (c *Client) discoverLocked(ctx context.Context) ([]types.DeliveryPoint, error) {
	build := func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, podsPath, nil)
	}

	var entries []podEntry
	if err := c.doJSON(ctx, build, &entries); err != nil {
		return nil, err
	}

	pods := make(map[string]podEntry, len(entries))
	points := make([]types.DeliveryPoint, 0, len(entries))
	for _, e := range entries {
		id, err := types.ExtractPointID(e.Text)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping delivery point with unparseable label", slog.Any("error", err))
			continue
		}
		pods[id] = e
		points = append(points, types.DeliveryPoint{
			ID:          id,
			DisplayName: e.Text,
			Discovered:  true,
		})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no delivery points visible to session")
	}

	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })
	c.pods = pods

	log.Ctx(ctx).DebugContext(ctx, "discovered delivery points", slog.Int("count", len(points)))
	return points, nil
}

// resolvePod maps a stable point code to the current session's entry,
// discovering lazily if this session has not listed points yet. Must be
// called with c.mu held.
func (c *Client) resolvePod(ctx context.Context, pointID string) (podEntry, error) {
	if c.pods == nil {
		if _, err := c.discoverLocked(ctx); err != nil {
			return podEntry{}, err
		}
	}
	pod, ok := c.pods[pointID]
	if !ok {
		return podEntry{}, fmt.Errorf("delivery point %s not visible to session", pointID)
	}
	return pod, nil
}

// FetchChartData returns the raw summary payload for [start, end). The
// portal takes inclusive dates, so the end date sent is the day before
// end.
func (c *Client) FetchChartData(ctx context.Context, pointID string, start, end time.Time) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pod, err := c.resolvePod(ctx, pointID)
	if err != nil {
		return nil, err
	}

	last := end.AddDate(0, 0, -1)
	payload := chartDataRequest{
		PointOfDeliveryID:   pod.Value,
		ValidFromDate:       start.Format(dateFormat) + "T00:00:00",
		ValidToDate:         last.Format(dateFormat) + "T23:59:59",
		PointOfDeliveryText: pod.Text,
	}
	build := func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, chartPath, payload)
	}

	var raw json.RawMessage
	if err := c.doJSON(ctx, build, &raw); err != nil {
		return nil, err
	}
	log.Ctx(ctx).DebugContext(ctx, "fetched chart data",
		slog.String("pointID", pointID),
		slog.String("from", payload.ValidFromDate),
		slog.String("to", payload.ValidToDate),
	)
	return raw, nil
}

// FetchProfileRows returns the interval readings for [start, end).
func (c *Client) FetchProfileRows(ctx context.Context, pointID string, start, end time.Time) ([]ProfileRow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pod, err := c.resolvePod(ctx, pointID)
	if err != nil {
		return nil, err
	}

	last := end.AddDate(0, 0, -1)
	payload := profileDataRequest{
		PointOfDeliveryID: pod.Value,
		ValidFromDate:     start.Format(dateFormat),
		ValidToDate:       last.Format(dateFormat),
	}
	build := func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, profilePath, payload)
	}

	var res profileDataResponse
	if err := c.doJSON(ctx, build, &res); err != nil {
		return nil, err
	}

	rows := make([]ProfileRow, 0, len(res.Rows))
	for _, raw := range res.Rows {
		row, ok := c.parseProfileRow(ctx, raw)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetched profile rows",
		slog.String("pointID", pointID),
		slog.Int("rows", len(rows)),
	)
	return rows, nil
}

// parseProfileRow converts one positional row. Columns are, in order:
// timestamp, period and then value/quality pairs for active consumption,
// active supply, reactive consumption and reactive supply.
func (c *Client) parseProfileRow(ctx context.Context, raw profileDataRow) (ProfileRow, bool) {
	if len(raw.Values) < 9 {
		log.Ctx(ctx).WarnContext(ctx, "skipping short profile row", slog.Int("values", len(raw.Values)))
		return ProfileRow{}, false
	}

	var tsStr string
	if err := json.Unmarshal(raw.Values[0], &tsStr); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "skipping profile row with non-string timestamp", slog.Any("error", err))
		return ProfileRow{}, false
	}
	ts, err := time.Parse(time.RFC3339, tsStr)
	if err != nil {
		ts, err = time.ParseInLocation(dateTimeFormat, tsStr, c.loc)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping profile row with unparseable timestamp", slog.String("timestamp", tsStr))
			return ProfileRow{}, false
		}
	}

	row := ProfileRow{Time: ts}
	if err := json.Unmarshal(raw.Values[1], &row.Period); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "profile row has non-numeric period", slog.Any("error", err))
	}
	row.ActiveConsumption = optionalNumber(raw.Values[2])
	row.ActiveSupply = optionalNumber(raw.Values[4])
	row.ReactiveConsumption = optionalNumber(raw.Values[6])
	row.ReactiveSupply = optionalNumber(raw.Values[8])
	return row, true
}

// optionalNumber decodes a numeric value, degrading null or misshapen
// input to nil.
func optionalNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
