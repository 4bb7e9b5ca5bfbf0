// Package reportportal is a small client for the ReportPortal v1 REST API,
// covering what the test pipeline needs: launch import, attribute edits,
// merge, delete and failed case lookups.
package reportportal

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/openshift-qe/qetools/internal/httpclient"
)

type Options struct {
	Endpoint string
	Project  string
	Token    string
	// AttrToken is used for attribute updates; Token when empty.
	AttrToken string

	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

type Client struct {
	launchURL string
	itemURL   string
	logURL    string
	token     string
	attrToken string
	http      *retryablehttp.Client
	now       func() time.Time
}

func NewClient(opts Options) *Client {
	base := strings.TrimSuffix(opts.Endpoint, "/") + "/v1/" + opts.Project
	attrToken := opts.AttrToken
	if attrToken == "" {
		attrToken = opts.Token
	}
	return &Client{
		launchURL: base + "/launch",
		itemURL:   base + "/item",
		logURL:    base + "/log",
		token:     opts.Token,
		attrToken: attrToken,
		http: httpclient.New(httpclient.Options{
			RetryMax:     opts.RetryMax,
			RetryWaitMin: opts.RetryWaitMin,
			RetryWaitMax: opts.RetryWaitMax,
			Timeout:      opts.Timeout,
		}),
		now: time.Now,
	}
}

// APIError is returned when ReportPortal answers with an unexpected status.
type APIError = httpclient.APIError

// doJSON sends in (when not nil) as JSON and decodes the answer into out
// (when not nil).
func (c *Client) doJSON(ctx context.Context, method, url, token string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return errors.Wrapf(err, "unable to encode %s %s request", method, url)
		}
	}
	return c.do(ctx, method, url, token, "application/json", body, out)
}

func (c *Client) do(ctx context.Context, method, url, token, contentType string, body []byte, out interface{}) error {
	return httpclient.Do(ctx, c.http, &httpclient.Request{
		Method:      method,
		URL:         url,
		Header:      http.Header{"Authorization": {"bearer " + token}},
		ContentType: contentType,
		Body:        body,
	}, out)
}
