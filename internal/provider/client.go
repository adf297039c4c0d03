// Package provider talks to the device-provider control API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frudas24/farmdeck/internal/geometry"
	"github.com/frudas24/farmdeck/internal/logging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout = 5 * time.Second
	maxErrorBody   = 512
)

// TokenFunc returns the current provider session token.
type TokenFunc func() string

// DeviceInfo is a device as listed by the provider.
type DeviceInfo struct {
	UDID      string `json:"udid"`
	Name      string `json:"name"`
	OS        string `json:"os"`
	Screen    string `json:"screen"`
	StreamURL string `json:"streamUrl"`
}

type pointBody struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type swipeBody struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	EndX float64 `json:"endX"`
	EndY float64 `json:"endY"`
}

// Client issues control requests against one provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenFunc
	log        *logrus.Entry
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient returns a client for the provider at baseURL.
func NewClient(baseURL string, token TokenFunc, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid provider url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("provider url %q must be http or https", baseURL)
	}
	if token == nil {
		token = func() string { return "" }
	}
	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		token:      token,
		log:        logging.For("provider"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized provider URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Tap taps the device at p (device pixels).
func (c *Client) Tap(ctx context.Context, udid string, p geometry.Point) error {
	return c.do(ctx, http.MethodPost, devicePath(udid, "tap"), pointBody{X: p.X, Y: p.Y}, nil)
}

// TouchAndHold long-presses the device at p (device pixels).
func (c *Client) TouchAndHold(ctx context.Context, udid string, p geometry.Point) error {
	return c.do(ctx, http.MethodPost, devicePath(udid, "touchAndHold"), pointBody{X: p.X, Y: p.Y}, nil)
}

// Swipe drags on the device from one point to another (device pixels).
func (c *Client) Swipe(ctx context.Context, udid string, from, to geometry.Point) error {
	body := swipeBody{X: from.X, Y: from.Y, EndX: to.X, EndY: to.Y}
	return c.do(ctx, http.MethodPost, devicePath(udid, "swipe"), body, nil)
}

// Health checks that the device is reachable through the provider.
func (c *Client) Health(ctx context.Context, udid string) error {
	return c.do(ctx, http.MethodGet, devicePath(udid, "health"), nil, nil)
}

// Devices lists the devices known to the provider.
func (c *Client) Devices(ctx context.Context) ([]DeviceInfo, error) {
	var out []DeviceInfo
	if err := c.do(ctx, http.MethodGet, "/devices", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do sends one authenticated request and classifies the outcome.
func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	op := method + " " + path
	token := c.token()
	if token == "" {
		return errors.Wrapf(ErrSessionExpired, "%s: no session token", op)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "%s: encode body", op)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "%s: build request", op)
	}
	reqID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Id", reqID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithFields(logrus.Fields{"op": op, "request_id": reqID}).Debugf("request failed: %v", err)
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"op":         op,
		"status":     resp.StatusCode,
		"request_id": reqID,
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Debug("provider request")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return errors.Wrapf(ErrSessionExpired, "%s: status %d", op, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "%s: decode response", op)
	}
	return nil
}

// devicePath builds a per-device control path.
func devicePath(udid, action string) string {
	return "/device/" + url.PathEscape(udid) + "/" + action
}
