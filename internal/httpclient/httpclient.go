// Package httpclient builds the retrying HTTP clients used to talk to the
// REST services of the pipeline, and sends JSON requests through them.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultRetryMax     = 3
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 5 * time.Second
	DefaultTimeout      = 120 * time.Second
)

// Options tunes the retry policy. Zero values take the defaults.
type Options struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

// New returns a retrying client that logs through logrus and hands the
// last response back once retries are exhausted, so it surfaces as an
// APIError.
func New(opts Options) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = DefaultRetryMax
	if opts.RetryMax > 0 {
		c.RetryMax = opts.RetryMax
	}
	c.RetryWaitMin = DefaultRetryWaitMin
	if opts.RetryWaitMin > 0 {
		c.RetryWaitMin = opts.RetryWaitMin
	}
	c.RetryWaitMax = DefaultRetryWaitMax
	if opts.RetryWaitMax > 0 {
		c.RetryWaitMax = opts.RetryWaitMax
	}
	c.HTTPClient.Timeout = DefaultTimeout
	if opts.Timeout > 0 {
		c.HTTPClient.Timeout = opts.Timeout
	}
	c.Logger = adapter{}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

// adapter sends retryablehttp messages to logrus.
type adapter struct{}

func (a adapter) format(s string, i ...interface{}) string {
	builder := strings.Builder{}
	builder.WriteString(s)
	for _, x := range i {
		builder.WriteString(" ")
		builder.WriteString(fmt.Sprintf("%v", x))
	}
	return builder.String()
}

func (a adapter) Error(s string, i ...interface{}) { log.Error(a.format(s, i...)) }
func (a adapter) Info(s string, i ...interface{})  { log.Debug(a.format(s, i...)) }
func (a adapter) Debug(s string, i ...interface{}) { log.Debug(a.format(s, i...)) }
func (a adapter) Warn(s string, i ...interface{})  { log.Warn(a.format(s, i...)) }

var _ retryablehttp.LeveledLogger = adapter{}

// APIError is returned when a service answers with an unexpected status.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Request is one call to a JSON service.
type Request struct {
	Method string
	URL    string
	Header http.Header
	// ContentType defaults to application/json.
	ContentType string
	Body        []byte
}

// JSONBody encodes in as the request body.
func (r *Request) JSONBody(in interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrapf(err, "unable to encode %s %s request", r.Method, r.URL)
	}
	r.Body = body
	return nil
}

// Do sends r and decodes the answer into out when out is not nil. Any
// status but 200 and 201 is an APIError.
func Do(ctx context.Context, hc *retryablehttp.Client, r *Request, out interface{}) error {
	var reader io.Reader
	if r.Body != nil {
		reader = bytes.NewReader(r.Body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, r.Method, r.URL, reader)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s %s request", r.Method, r.URL)
	}
	for k, v := range r.Header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if r.Body != nil {
		ct := r.ContentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.Set("Content-Type", ct)
	}

	log.WithFields(log.Fields{"method": r.Method, "url": redact(r.URL)}).Debug("http request")
	resp, err := hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", r.Method, redact(r.URL))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "unable to read %s %s response", r.Method, redact(r.URL))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &APIError{Method: r.Method, URL: redact(r.URL), StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "unable to decode %s %s response", r.Method, redact(r.URL))
	}
	return nil
}

// redact hides the api_key query parameter Bugzilla authenticates with.
func redact(rawURL string) string {
	i := strings.Index(rawURL, "api_key=")
	if i < 0 {
		return rawURL
	}
	end := strings.IndexByte(rawURL[i:], '&')
	if end < 0 {
		return rawURL[:i] + "api_key=REDACTED"
	}
	return rawURL[:i] + "api_key=REDACTED" + rawURL[i+end:]
}
