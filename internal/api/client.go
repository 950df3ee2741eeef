package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable reports that no daemon API is configured or reachable.
var ErrUnavailable = errors.New("folio API unavailable")

// StatusError is a non-2xx reply from the API.
type StatusError struct {
	Code      int
	Message   string
	RequestID string
}

func (e *StatusError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api returned %d: %s (request %s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("api returned %d: %s", e.Code, e.Message)
}

// Client talks to a running daemon.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient returns a client for bind, or nil when bind is empty.
func NewClient(bind string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base: base,
		// Status long polls block up to their own timeout.
		http: &http.Client{},
	}, nil
}

// Ping checks that the daemon answers within timeout.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.Status(ctx, time.Time{}, 0)
	return err
}

// Status fetches the status payload, long-polling when since is set.
func (c *Client) Status(ctx context.Context, since time.Time, wait time.Duration) (StatusResponse, error) {
	values := url.Values{}
	if !since.IsZero() {
		values.Set("since", since.UTC().Format(time.RFC3339Nano))
		values.Set("timeout", wait.String())
	}
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", values, nil, &resp)
	return resp, err
}

// Import enqueues Add tasks for paths.
func (c *Client) Import(ctx context.Context, req ImportRequest) (EnqueueResponse, error) {
	var resp EnqueueResponse
	err := c.do(ctx, http.MethodPost, "/api/import", nil, req, &resp)
	return resp, err
}

// Comic returns a comic with pages and list memberships.
func (c *Client) Comic(ctx context.Context, id int64) (ComicResponse, error) {
	var resp ComicResponse
	err := c.do(ctx, http.MethodGet, comicPath(id, ""), nil, nil, &resp)
	return resp, err
}

// Convert enqueues a Convert task.
func (c *Client) Convert(ctx context.Context, id int64, req ConvertRequest) (EnqueueResponse, error) {
	var resp EnqueueResponse
	err := c.do(ctx, http.MethodPost, comicPath(id, "convert"), nil, req, &resp)
	return resp, err
}

// Rescan enqueues a Rescan task.
func (c *Client) Rescan(ctx context.Context, id int64) (EnqueueResponse, error) {
	var resp EnqueueResponse
	err := c.do(ctx, http.MethodPost, comicPath(id, "rescan"), nil, nil, &resp)
	return resp, err
}

// Export enqueues an Export task.
func (c *Client) Export(ctx context.Context, id int64, req ExportRequest) (EnqueueResponse, error) {
	var resp EnqueueResponse
	err := c.do(ctx, http.MethodPost, comicPath(id, "export"), nil, req, &resp)
	return resp, err
}

// Delete enqueues a Delete task.
func (c *Client) Delete(ctx context.Context, id int64, hard bool) (EnqueueResponse, error) {
	values := url.Values{}
	if hard {
		values.Set("hard", "true")
	}
	var resp EnqueueResponse
	err := c.do(ctx, http.MethodDelete, comicPath(id, ""), values, nil, &resp)
	return resp, err
}

// Queue lists task records.
func (c *Client) Queue(ctx context.Context, q QueueQuery) ([]TaskRecord, error) {
	values := url.Values{}
	for _, t := range q.Types {
		values.Add("type", t)
	}
	if q.FailedOnly {
		values.Set("failed", "true")
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	var resp QueueListResponse
	err := c.do(ctx, http.MethodGet, "/api/queue", values, nil, &resp)
	return resp.Items, err
}

// QueueHealth summarizes queue state.
func (c *Client) QueueHealth(ctx context.Context) (QueueHealth, error) {
	var resp QueueHealth
	err := c.do(ctx, http.MethodGet, "/api/queue/health", nil, nil, &resp)
	return resp, err
}

// Retry clears the failure of ids, or all failed records.
func (c *Client) Retry(ctx context.Context, ids []int64) (int64, error) {
	var resp CountResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/retry", nil, RetryRequest{IDs: ids}, &resp)
	return resp.Count, err
}

// ClearFailed deletes failed records.
func (c *Client) ClearFailed(ctx context.Context) (int64, error) {
	var resp CountResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/clear-failed", nil, nil, &resp)
	return resp.Count, err
}

// Collection lists the comics of a collection.
func (c *Client) Collection(ctx context.Context, kind, name string) (CollectionResponse, error) {
	var resp CollectionResponse
	path := "/api/collections/" + url.PathEscape(kind) + "/" + url.PathEscape(name)
	err := c.do(ctx, http.MethodGet, path, nil, nil, &resp)
	return resp, err
}

func comicPath(id int64, action string) string {
	path := "/api/comics/" + strconv.FormatInt(id, 10)
	if action != "" {
		path += "/" + action
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, values url.Values, body, out any) error {
	if c == nil {
		return ErrUnavailable
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &StatusError{Code: resp.StatusCode, Message: apiErr.Error, RequestID: resp.Header.Get(RequestIDHeader)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrUnavailable) || errors.As(err, &opErr)
}
