package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/adamwoolhether/deltapipe/client/ratelimit"
	"github.com/adamwoolhether/deltapipe/stream"
)

// Client talks to a deltapipe server. It wraps the std-lib
// *http.Client, whose transport can be customized via options.
type Client struct {
	c       *http.Client
	baseURL *url.URL
	logger  *slog.Logger
}

// New builds a Client for the server at baseURL, e.g.
// "http://localhost:8080".
func New(baseURL string, optFns ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url[%s] must be http or https", baseURL)
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	client := Client{
		c:       &http.Client{},
		baseURL: u,
		logger:  slog.Default(),
	}

	if opts.client != nil {
		client.c = opts.client
	}
	if opts.logger != nil {
		client.logger = opts.logger
	}
	if opts.timeout != nil {
		client.c.Timeout = *opts.timeout
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = http.DefaultTransport
	}
	if opts.userAgent != "" {
		transport = userAgent{value: opts.userAgent, base: transport}
	}
	if opts.rateLimit != nil {
		rt, err := ratelimit.NewRoundTripper(*opts.rateLimit, func() *slog.Logger { return client.logger }, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring rate limit: %w", err)
		}
		transport = rt
	}
	client.c.Transport = transport

	return &client, nil
}

// PostDelta appends data to the remote stream sessionID. When flush is
// set, the server emits the stream's buffer right away.
func (c *Client) PostDelta(ctx context.Context, sessionID, data string, flush bool) error {
	body := DeltaRequest{Data: data, Flush: flush}

	req, err := c.request(ctx, http.MethodPost, streamPath(sessionID, "deltas"), body)
	if err != nil {
		return err
	}

	return c.exec(req, http.StatusAccepted, nil)
}

// Flush asks the server to emit the pending output of sessionID.
func (c *Client) Flush(ctx context.Context, sessionID string) error {
	req, err := c.request(ctx, http.MethodPost, streamPath(sessionID, "flush"), nil)
	if err != nil {
		return err
	}

	return c.exec(req, http.StatusNoContent, nil)
}

// End flushes and closes the remote stream sessionID.
func (c *Client) End(ctx context.Context, sessionID string) error {
	req, err := c.request(ctx, http.MethodDelete, streamPath(sessionID), nil)
	if err != nil {
		return err
	}

	return c.exec(req, http.StatusNoContent, nil)
}

// Streams lists the server's open streams.
func (c *Client) Streams(ctx context.Context) ([]stream.Stat, error) {
	req, err := c.request(ctx, http.MethodGet, "/v1/streams", nil)
	if err != nil {
		return nil, err
	}

	var stats []stream.Stat
	if err := c.exec(req, http.StatusOK, &stats); err != nil {
		return nil, err
	}

	return stats, nil
}

// Send implements stream.Sink by forwarding each batch as one delta,
// letting a local Registry coalesce before anything hits the network.
func (c *Client) Send(ctx context.Context, ev stream.Event) error {
	return c.PostDelta(ctx, ev.SessionID, ev.Data, false)
}

func (c *Client) request(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var payload io.Reader = http.NoBody
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encoding request payload: %w", err)
		}
		payload = &buf
	}

	u := c.baseURL.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), payload)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// exec runs the request and, after checking the status code, decodes
// the body into dest when dest is non-nil.
func (c *Client) exec(req *http.Request, expCode int, dest any) error {
	resp, err := c.c.Do(req)
	if err != nil {
		return fmt.Errorf("exec http do: %w", err)
	}

	defer func() {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			c.logger.Error("failed to discard unused body", "error", err)
		}
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != expCode {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
		if err != nil {
			b = []byte("unable to read body")
		}

		statusErr := ErrUnexpectedStatusCode
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			statusErr = errors.Join(ErrUnexpectedStatusCode, ErrAuthFailure)
		}

		return &UnexpectedStatusError{
			StatusCode: resp.StatusCode,
			Body:       string(b),
			Err:        statusErr,
		}
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("decoding body: %w", err)
		}
	}

	return nil
}

// DeltaRequest is the body of POST /v1/streams/{session}/deltas.
type DeltaRequest struct {
	Data  string `json:"data"`
	Flush bool   `json:"flush"`
}

// streamPath escapes sessionID so ids holding '/' stay one segment.
func streamPath(sessionID string, elem ...string) string {
	return strings.Join(append([]string{"/v1/streams", url.PathEscape(sessionID)}, elem...), "/")
}
