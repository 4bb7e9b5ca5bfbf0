package reportportal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrLaunchNotFound  = errors.New("launch not found")
	ErrAmbiguousLaunch = errors.New("more than one launch matched")
)

// rpTimeLayout is the timestamp format accepted by the merge endpoint.
const rpTimeLayout = "2006-01-02T15:04:05.000Z"

var failedCaseIDRegex = regexp.MustCompile(`OCP-\d{4,}`)

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Timestamp reads the epoch milliseconds or the ISO-8601 text ReportPortal
// answers with, depending on its version, and writes the ISO form.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(rpTimeLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return errors.Wrapf(err, "invalid timestamp %q", s)
		}
		t.Time = parsed.UTC()
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return errors.Wrapf(err, "invalid timestamp %s", data)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

type Launch struct {
	ID         int64       `json:"id"`
	UUID       string      `json:"uuid"`
	Name       string      `json:"name"`
	Number     int64       `json:"number"`
	Status     string      `json:"status"`
	StartTime  Timestamp   `json:"startTime"`
	Attributes []Attribute `json:"attributes"`
}

// HasAttribute reports whether the launch carries key=value.
func (l *Launch) HasAttribute(a Attribute) bool {
	for _, attr := range l.Attributes {
		if attr.Key == a.Key && attr.Value == a.Value {
			return true
		}
	}
	return false
}

// Attribute returns the value of the first attribute named key.
func (l *Launch) Attribute(key string) (string, bool) {
	for _, attr := range l.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

type Item struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	StartTime Timestamp `json:"startTime"`
	EndTime   Timestamp `json:"endTime"`
}

type launchPage struct {
	Content []Launch `json:"content"`
}

type itemPage struct {
	Content []Item `json:"content"`
}

const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// AttributeChange is one entry of a bulk attribute update.
type AttributeChange struct {
	Action string     `json:"action"`
	From   *Attribute `json:"from,omitempty"`
	To     *Attribute `json:"to,omitempty"`
}

func CreateAttribute(key, value string) AttributeChange {
	return AttributeChange{Action: ActionCreate, To: &Attribute{Key: key, Value: value}}
}

func DeleteAttribute(key, value string) AttributeChange {
	return AttributeChange{Action: ActionDelete, From: &Attribute{Key: key, Value: value}}
}

func UpdateAttribute(key, oldValue, newValue string) AttributeChange {
	return AttributeChange{
		Action: ActionUpdate,
		From:   &Attribute{Key: key, Value: oldValue},
		To:     &Attribute{Key: key, Value: newValue},
	}
}

func (c *Client) LaunchByUUID(ctx context.Context, uuid string) (*Launch, error) {
	launch := &Launch{}
	if err := c.doJSON(ctx, http.MethodGet, c.launchURL+"/uuid/"+url.PathEscape(uuid), c.token, nil, launch); err != nil {
		return nil, errors.Wrapf(err, "unable to get launch %s", uuid)
	}
	return launch, nil
}

func (c *Client) LaunchByID(ctx context.Context, id int64) (*Launch, error) {
	launch := &Launch{}
	if err := c.doJSON(ctx, http.MethodGet, c.launchURL+"/"+strconv.FormatInt(id, 10), c.token, nil, launch); err != nil {
		return nil, errors.Wrapf(err, "unable to get launch %d", id)
	}
	return launch, nil
}

// FindLaunches lists the launches named name. When filter is set only the
// launches carrying that attribute are returned.
func (c *Client) FindLaunches(ctx context.Context, name string, filter *Attribute) ([]Launch, error) {
	q := url.Values{}
	q.Set("filter.eq.name", name)
	page := &launchPage{}
	if err := c.doJSON(ctx, http.MethodGet, c.launchURL+"?"+q.Encode(), c.token, nil, page); err != nil {
		return nil, errors.Wrapf(err, "unable to list launches named %q", name)
	}
	if filter == nil {
		return page.Content, nil
	}
	launches := []Launch{}
	for i := range page.Content {
		if page.Content[i].HasAttribute(*filter) {
			launches = append(launches, page.Content[i])
		}
	}
	return launches, nil
}

// FindLaunch returns the only launch named name carrying filter.
func (c *Client) FindLaunch(ctx context.Context, name string, filter *Attribute) (*Launch, error) {
	launches, err := c.FindLaunches(ctx, name, filter)
	if err != nil {
		return nil, err
	}
	switch len(launches) {
	case 0:
		return nil, errors.Wrapf(ErrLaunchNotFound, "name %q", name)
	case 1:
		return &launches[0], nil
	}
	ids := make([]int64, 0, len(launches))
	for _, l := range launches {
		ids = append(ids, l.ID)
	}
	return nil, errors.Wrapf(ErrAmbiguousLaunch, "name %q matched %v, check the launch name and subteam", name, ids)
}

// UpdateAttributes applies changes to every launch in ids.
func (c *Client) UpdateAttributes(ctx context.Context, ids []int64, changes []AttributeChange) error {
	body := struct {
		Attributes []AttributeChange `json:"attributes"`
		IDs        []int64           `json:"ids"`
	}{Attributes: changes, IDs: ids}
	if err := c.doJSON(ctx, http.MethodPut, c.launchURL+"/info", c.attrToken, body, nil); err != nil {
		return errors.Wrapf(err, "unable to update attributes of launches %v", ids)
	}
	log.WithField("launches", ids).Infof("updated %d attributes", len(changes))
	return nil
}

// FailedItems lists the failed items of a launch.
func (c *Client) FailedItems(ctx context.Context, launchID int64) ([]Item, error) {
	q := url.Values{}
	q.Set("filter.eq.launchId", strconv.FormatInt(launchID, 10))
	q.Set("filter.eq.status", "FAILED")
	q.Set("isLatest", "false")
	q.Set("launchesLimit", "0")
	q.Set("page.size", "150")
	page := &itemPage{}
	if err := c.doJSON(ctx, http.MethodGet, c.itemURL+"?"+q.Encode(), c.token, nil, page); err != nil {
		return nil, errors.Wrapf(err, "unable to list failed items of launch %d", launchID)
	}
	return page.Content, nil
}

// CaseIDsOfItems returns, without the OCP- prefix, the first case ID of
// every STEP item.
func CaseIDsOfItems(items []Item) []string {
	ids := []string{}
	for _, item := range items {
		if item.Type != "STEP" {
			continue
		}
		if m := failedCaseIDRegex.FindString(item.Name); m != "" {
			ids = append(ids, m[len("OCP-"):])
		}
	}
	return ids
}

// FailedCaseIDs returns the case IDs that failed in the launch named
// launchName owned by subteam. Exactly one launch must match.
func (c *Client) FailedCaseIDs(ctx context.Context, launchName, subteam string) ([]string, error) {
	launch, err := c.FindLaunch(ctx, launchName, &Attribute{Key: "team", Value: subteam})
	if err != nil {
		return nil, err
	}
	items, err := c.FailedItems(ctx, launch.ID)
	if err != nil {
		return nil, err
	}
	ids := CaseIDsOfItems(items)
	log.WithFields(log.Fields{"launch": launch.ID, "subteam": subteam}).Debugf("%d failed items, %d case IDs", len(items), len(ids))
	return ids, nil
}

// MergeLaunches merges every launch named name into a new launch of the
// same name tagged combined=yes.
func (c *Client) MergeLaunches(ctx context.Context, name string) error {
	launches, err := c.FindLaunches(ctx, name, nil)
	if err != nil {
		return err
	}
	if len(launches) == 0 {
		return errors.Wrapf(ErrLaunchNotFound, "name %q", name)
	}
	ids := make([]int64, 0, len(launches))
	for _, l := range launches {
		ids = append(ids, l.ID)
	}
	now := c.now().UTC().Format(rpTimeLayout)
	body := map[string]interface{}{
		"attributes":              []Attribute{{Key: "combined", Value: "yes"}},
		"description":             "testrun " + name,
		"endTime":                 now,
		"extendSuitesDescription": "true",
		"launches":                ids,
		"mergeType":               "BASIC",
		"mode":                    "DEFAULT",
		"name":                    name,
		"startTime":               now,
	}
	if err := c.doJSON(ctx, http.MethodPost, c.launchURL+"/merge", c.token, body, nil); err != nil {
		return errors.Wrapf(err, "unable to merge launches %v", ids)
	}
	log.Infof("merged %d launches into %q", len(ids), name)
	return nil
}

// DeleteLaunches removes every launch named name and returns their IDs.
func (c *Client) DeleteLaunches(ctx context.Context, name string) ([]int64, error) {
	launches, err := c.FindLaunches(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	if len(launches) == 0 {
		return nil, errors.Wrapf(ErrLaunchNotFound, "name %q", name)
	}
	ids := make([]int64, 0, len(launches))
	for _, l := range launches {
		ids = append(ids, l.ID)
	}
	if err := c.DeleteLaunchIDs(ctx, ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) DeleteLaunchIDs(ctx context.Context, ids []int64) error {
	body := struct {
		IDs []int64 `json:"ids"`
	}{IDs: ids}
	if err := c.doJSON(ctx, http.MethodDelete, c.launchURL, c.token, body, nil); err != nil {
		return errors.Wrapf(err, "unable to delete launches %v", ids)
	}
	log.Info(fmt.Sprintf("deleted launches %v", ids))
	return nil
}
