// Package bugzilla reads and updates bugs through the Bugzilla REST API and
// follows the verification of FastFix bugs.
package bugzilla

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/openshift-qe/qetools/internal/httpclient"
)

const (
	DefaultEndpoint = "https://bugzilla.redhat.com/rest"
	// ShowBugURL is followed by the bug id.
	ShowBugURL = "https://bugzilla.redhat.com/show_bug.cgi?id="

	bugFields = "id,cf_verified,cf_qa_whiteboard,last_change_time,external_bugs,keywords,qa_contact,status,assigned_to"
)

// ErrBugNotFound is returned when Bugzilla answers without the asked bug.
var ErrBugNotFound = errors.New("bug not found")

type Options struct {
	Endpoint string
	APIKey   string
	HTTP     httpclient.Options
}

type Client struct {
	bugURL string
	apiKey string
	http   *retryablehttp.Client
}

func NewClient(opts Options) *Client {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		bugURL: strings.TrimRight(endpoint, "/") + "/bug",
		apiKey: opts.APIKey,
		http:   httpclient.New(opts.HTTP),
	}
}

type Person struct {
	Email string `json:"email"`
	Name  string `json:"real_name"`
}

type ExternalBug struct {
	ID   string `json:"ext_bz_bug_id"`
	Type struct {
		Type string `json:"type"`
	} `json:"type"`
}

type Bug struct {
	ID               int64         `json:"id"`
	Status           string        `json:"status"`
	Verified         []string      `json:"cf_verified"`
	QAWhiteboard     string        `json:"cf_qa_whiteboard"`
	LastChangeTime   time.Time     `json:"last_change_time"`
	ExternalBugs     []ExternalBug `json:"external_bugs"`
	Keywords         []string      `json:"keywords"`
	QAContact        string        `json:"qa_contact"`
	QAContactDetail  Person        `json:"qa_contact_detail"`
	AssignedTo       string        `json:"assigned_to"`
	AssignedToDetail Person        `json:"assigned_to_detail"`
}

// HasPR reports whether a GitHub pull request is linked to the bug.
func (b *Bug) HasPR() bool {
	for _, e := range b.ExternalBugs {
		if e.Type.Type == "GitHub" {
			return true
		}
	}
	return false
}

// PreVerified reports whether QA already tested the fix.
func (b *Bug) PreVerified() bool {
	for _, v := range b.Verified {
		if v == "Tested" {
			return true
		}
	}
	return false
}

type Comment struct {
	Creator      string    `json:"creator"`
	CreationTime time.Time `json:"creation_time"`
}

// SearchQuery selects bugs of the OpenShift product.
type SearchQuery struct {
	Statuses []string
	// Keywords must all be set on a bug.
	Keywords []string
}

var DefaultStatuses = []string{"NEW", "ASSIGNED", "POST", "MODIFIED", "ON_DEV", "ON_QA"}

func (q SearchQuery) values() url.Values {
	v := url.Values{}
	statuses := q.Statuses
	if len(statuses) == 0 {
		statuses = DefaultStatuses
	}
	for _, s := range statuses {
		if s = strings.TrimSpace(s); s != "" {
			v.Add("bug_status", s)
		}
	}
	v.Set("classification", "Red Hat")
	v.Set("product", "OpenShift Container Platform")
	if len(q.Keywords) > 0 {
		v.Set("keywords", strings.Join(q.Keywords, ", ")+", ")
		v.Set("keywords_type", "allwords")
	}
	v.Set("include_fields", "id")
	return v
}

func (c *Client) url(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	return c.bugURL + path + "?" + q.Encode()
}

func (c *Client) get(ctx context.Context, u string, out interface{}) error {
	return httpclient.Do(ctx, c.http, &httpclient.Request{Method: http.MethodGet, URL: u}, out)
}

// Search returns the ids of the bugs matching q.
func (c *Client) Search(ctx context.Context, q SearchQuery) ([]int64, error) {
	page := struct {
		Bugs []struct {
			ID int64 `json:"id"`
		} `json:"bugs"`
	}{}
	if err := c.get(ctx, c.url("", q.values()), &page); err != nil {
		return nil, errors.Wrap(err, "unable to search bugs")
	}
	ids := make([]int64, 0, len(page.Bugs))
	for _, b := range page.Bugs {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

// Bug returns the fields of bug id the FastFix monitor reads.
func (c *Client) Bug(ctx context.Context, id int64) (*Bug, error) {
	page := struct {
		Bugs []Bug `json:"bugs"`
	}{}
	q := url.Values{}
	q.Set("include_fields", bugFields)
	if err := c.get(ctx, c.url("/"+strconv.FormatInt(id, 10), q), &page); err != nil {
		return nil, errors.Wrapf(err, "unable to get bug %d", id)
	}
	if len(page.Bugs) == 0 {
		return nil, errors.Wrapf(ErrBugNotFound, "bug %d", id)
	}
	return &page.Bugs[0], nil
}

// Comments returns the comments of bug id, oldest first.
func (c *Client) Comments(ctx context.Context, id int64) ([]Comment, error) {
	page := struct {
		Bugs map[string]struct {
			Comments []Comment `json:"comments"`
		} `json:"bugs"`
	}{}
	key := strconv.FormatInt(id, 10)
	if err := c.get(ctx, c.url("/"+key+"/comment", nil), &page); err != nil {
		return nil, errors.Wrapf(err, "unable to get comments of bug %d", id)
	}
	return page.Bugs[key].Comments, nil
}

// Update sets the given fields of bug id.
func (c *Client) Update(ctx context.Context, id int64, fields map[string]interface{}) error {
	r := &httpclient.Request{Method: http.MethodPut, URL: c.url("/"+strconv.FormatInt(id, 10), nil)}
	if err := r.JSONBody(fields); err != nil {
		return err
	}
	if err := httpclient.Do(ctx, c.http, r, nil); err != nil {
		return errors.Wrapf(err, "unable to update bug %d", id)
	}
	return nil
}

// AppendQAWhiteboard adds line to the QA whiteboard of bug id, reading the
// current value first.
func (c *Client) AppendQAWhiteboard(ctx context.Context, id int64, line string) error {
	bug, err := c.Bug(ctx, id)
	if err != nil {
		return err
	}
	return c.Update(ctx, id, map[string]interface{}{whiteboardField: joinLines(bug.QAWhiteboard, line)})
}
