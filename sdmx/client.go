// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdmx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/stockparfait/databuilder/fault"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/logging"
)

// Default retry policy of the Client.
const (
	DefaultRetries = 5
	DefaultBackoff = time.Second
	DefaultMaxWait = time.Minute
	DefaultTimeout = 10 * time.Second
)

// StatusError is returned for a non-2xx HTTP response.
type StatusError struct {
	Code   int
	Status string
}

var _ error = &StatusError{}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("HTTP status %s", e.Status)
	}
	return fmt.Sprintf("HTTP status %d", e.Code)
}

// Transient status codes are worth retrying.
func (e *StatusError) Transient() bool {
	switch e.Code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client executes GET requests with a per-attempt timeout, retrying connection
// errors and transient HTTP statuses with exponential backoff.
type Client struct {
	HTTP    *http.Client  // http.DefaultClient when nil
	Retries int           // additional attempts after the first one
	Backoff time.Duration // the n-th retry waits Backoff * 2^n
	MaxWait time.Duration // caps both the backoff and Retry-After
	Timeout time.Duration // per attempt, including reading the body
}

// NewClient creates a Client with the default policy.
func NewClient(hc *http.Client) *Client {
	return &Client{
		HTTP:    hc,
		Retries: DefaultRetries,
		Backoff: DefaultBackoff,
		MaxWait: DefaultMaxWait,
		Timeout: DefaultTimeout,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

func (c *Client) maxWait() time.Duration {
	if c.MaxWait <= 0 {
		return DefaultMaxWait
	}
	return c.MaxWait
}

func (c *Client) params() *fetch.Params {
	return fetch.NewParams().Retries(c.Retries).MinWait(c.Backoff).MaxWait(c.maxWait())
}

// wait is the backoff fetch.Retry sleeps after the given failed attempt.
func (c *Client) wait(attempt int) time.Duration {
	w := c.Backoff
	for i := 0; i < attempt; i++ {
		w *= 2
		if w > c.maxWait() {
			w = c.maxWait()
		}
	}
	return w
}

// attempt executes a single request. Connection errors and transient statuses
// are returned as *fetch.RetriableError.
func (c *Client) attempt(ctx context.Context, uri string, header http.Header) (*Response, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, errors.Annotate(err, "failed to create request for %s", uri)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fetch.NewRetriableError(errors.Annotate(err, "request failed"))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fetch.NewRetriableError(
			errors.Annotate(err, "failed to read response body"))
	}
	r := &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}
	if !fetch.ResponseOK(resp) {
		se := &StatusError{Code: resp.StatusCode, Status: resp.Status}
		if se.Transient() {
			return r, fetch.NewRetriableError(se)
		}
		return r, se
	}
	return r, nil
}

// retryAfter parses the Retry-After header in seconds, if present.
func retryAfter(r *Response) time.Duration {
	if r == nil {
		return 0
	}
	s := r.Header.Get("Retry-After")
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// Get fetches uri with the given query and headers. Only a 2xx response is
// returned; any other outcome is a fault.Network error.
func (c *Client) Get(ctx context.Context, uri string, query url.Values, header http.Header) (*Response, error) {
	if len(query) > 0 {
		uri = uri + "?" + query.Encode()
	}
	var resp *Response
	var extra time.Duration // Retry-After beyond the regular backoff
	var attempts int
	var exhausted bool
	err := fetch.Retry(ctx, c.params(), func(i int) error {
		if err := sleep(ctx, extra); err != nil {
			return err
		}
		attempts = i + 1
		r, err := c.attempt(ctx, uri, header)
		if err == nil {
			resp = r
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var re *fetch.RetriableError
		if !errors.As(err, &re) {
			return err
		}
		if i >= c.Retries {
			exhausted = true
			return re.Err // no backoff after the last attempt
		}
		wait := c.wait(i)
		extra = 0
		if ra := retryAfter(r); ra > wait {
			if ra > c.maxWait() {
				ra = c.maxWait()
			}
			extra = ra - wait
		}
		logging.Debugf(ctx, "attempt %d/%d for %s failed, retrying in %s: %s",
			i+1, c.Retries+1, uri, wait+extra, err.Error())
		return err
	})
	switch {
	case err == nil:
		return resp, nil
	case ctx.Err() != nil:
		return nil, fault.Wrap(fault.Network, err,
			"GET %s cancelled after %d attempts", uri, attempts)
	case exhausted:
		return nil, fault.Wrap(fault.Network, err,
			"GET %s failed after %d attempts", uri, attempts)
	}
	return nil, fault.Wrap(fault.Network, err, "GET %s failed", uri)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
	}
	return nil
}
