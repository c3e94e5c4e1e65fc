// Package oura is a minimal client for the Oura Ring v2 usercollection API.
// It fetches the daily sleep summary and the sleep session list with a
// static personal access token and hands back the decoded documents.
package oura

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the production API host.
	DefaultBaseURL = "https://api.ouraring.com"
	// DefaultTimeout bounds each request when no timeout is configured.
	DefaultTimeout = 10 * time.Second

	dateLayout   = "2006-01-02"
	maxErrorBody = 256
)

// Fetcher retrieves one collection document.
type Fetcher interface {
	Fetch(ctx context.Context, resource Resource, token string) (*Document, error)
}

// Options configures a Client
type Options struct {
	BaseURL string
	Timeout time.Duration
	// LookbackDays adds a start_date/end_date window covering the last
	// LookbackDays days through tomorrow. Zero leaves the API default.
	LookbackDays int
	// Location is used to compute the window dates. Defaults to time.Local.
	Location *time.Location
	// Now overrides the wall clock for the window computation.
	Now func() time.Time
}

// Client implements Fetcher over HTTP.
type Client struct {
	http    *resty.Client
	timeout time.Duration
	opts    Options
	logger  *zap.Logger
}

// NewClient creates a new Oura API client
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger = logger.Named("oura")

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetLogger(logger.Sugar())

	return &Client{
		http:    httpClient,
		timeout: opts.Timeout,
		opts:    opts,
		logger:  logger,
	}
}

// Fetch performs a single GET against resource. There are no retries and no
// caching; every call goes to the network.
func (c *Client) Fetch(ctx context.Context, resource Resource, token string) (*Document, error) {
	if !resource.valid() {
		return nil, fmt.Errorf("unknown oura resource %q", resource)
	}
	if token == "" {
		return nil, &AuthenticationError{Resource: resource}
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(c.window())

	c.logger.Debug("Fetching resource",
		zap.String("resource", string(resource)),
		zap.String("path", resource.Path()))

	resp, err := req.Get(resource.Path())
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Resource: resource, Timeout: c.timeout, Err: err}
		}
		return nil, &TransportError{Resource: resource, Err: err}
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, &AuthenticationError{Resource: resource, Status: status}
	case status < 200 || status > 299:
		return nil, &HTTPError{Resource: resource, Status: status, Body: truncate(resp.String(), maxErrorBody)}
	}

	doc, err := decodeDocument(resp.Body())
	if err != nil {
		return nil, &DecodeError{Resource: resource, Err: err}
	}

	c.logger.Debug("Fetched resource",
		zap.String("resource", string(resource)),
		zap.Bool("has_data", doc.HasData()),
		zap.Int("records", len(doc.Records())))

	if doc.NextToken != "" {
		c.logger.Debug("Response has more pages, only the first is read",
			zap.String("resource", string(resource)),
			zap.String("next_token", doc.NextToken))
	}

	return doc, nil
}

// window returns the date range query parameters, if any.
func (c *Client) window() map[string]string {
	if c.opts.LookbackDays <= 0 {
		return nil
	}

	now := c.opts.Now().In(c.opts.Location)
	return map[string]string{
		"start_date": now.AddDate(0, 0, -c.opts.LookbackDays).Format(dateLayout),
		"end_date":   now.AddDate(0, 0, 1).Format(dateLayout),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
