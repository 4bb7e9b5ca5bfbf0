package reportportal

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// TimeRangeLayout is the layout of both ends of a LaunchFilter time range,
// read in local time.
const TimeRangeLayout = "2006-01-02 15:04:05"

// LaunchFilter selects launches for a bulk status change.
type LaunchFilter struct {
	// NameContains matches part of the launch name; spaces are ignored.
	NameContains   string
	AttributeKey   string
	Subteam        string
	AttributeValue string
	// Since and Until bound the launch start time when Since is set.
	Since time.Time
	Until time.Time
	// MinFailed is the least number of failed executions; 1 when zero.
	MinFailed int
}

// ParseTimeRange reads "start[,end]" where both ends use TimeRangeLayout
// in loc. A missing end is now.
func ParseTimeRange(s string, loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	parts := strings.SplitN(s, ",", 2)
	since, err := time.ParseInLocation(TimeRangeLayout, strings.TrimSpace(parts[0]), loc)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrapf(err, "invalid range start %q", parts[0])
	}
	until := now
	if len(parts) == 2 {
		if until, err = time.ParseInLocation(TimeRangeLayout, strings.TrimSpace(parts[1]), loc); err != nil {
			return time.Time{}, time.Time{}, errors.Wrapf(err, "invalid range end %q", parts[1])
		}
	}
	if until.Before(since) {
		return time.Time{}, time.Time{}, errors.Errorf("range end %s is before its start %s", until.Format(TimeRangeLayout), since.Format(TimeRangeLayout))
	}
	return since, until, nil
}

// Query renders the filter as launch list parameters.
func (f LaunchFilter) Query() url.Values {
	q := url.Values{}
	q.Set("page.page", "1")
	q.Set("page.size", "500")
	if f.NameContains != "" {
		q.Set("filter.cnt.name", strings.ReplaceAll(f.NameContains, " ", ""))
	}
	if f.AttributeKey != "" {
		q.Set("filter.has.attributeKey", strings.ReplaceAll(f.AttributeKey, " ", ""))
	}
	values := []string{}
	for _, v := range []string{f.Subteam, f.AttributeValue} {
		if v != "" {
			values = append(values, v)
		}
	}
	if len(values) > 0 {
		q.Set("filter.has.attributeValue", strings.Join(values, ","))
	}
	if !f.Since.IsZero() {
		// the end second is included
		q.Set("filter.btw.startTime", strconv.FormatInt(f.Since.UnixMilli(), 10)+","+strconv.FormatInt(f.Until.UnixMilli()+1000, 10))
	}
	minFailed := f.MinFailed
	if minFailed <= 0 {
		minFailed = 1
	}
	q.Set("filter.gte.statistics$executions$failed", strconv.Itoa(minFailed))
	return q
}

// MarkReport lists what MarkFailedAsPassed changed.
type MarkReport struct {
	Launches []int64
	Updated  []int64
	// Failed lists the items whose status could not be changed.
	Failed []int64
	// Warnings lists launches whose items could not be read.
	Warnings []string
}

// MarkFailedAsPassed sets every failed step of the golang launches matching
// f to passed, tagging it manually=passed.
func (c *Client) MarkFailedAsPassed(ctx context.Context, f LaunchFilter) (*MarkReport, error) {
	page := &launchPage{}
	if err := c.doJSON(ctx, http.MethodGet, c.launchURL+"?"+f.Query().Encode(), c.token, nil, page); err != nil {
		return nil, errors.Wrap(err, "unable to list launches")
	}
	report := &MarkReport{}
	for i := range page.Content {
		if page.Content[i].HasAttribute(Attribute{Key: "launchtype", Value: LaunchType}) {
			report.Launches = append(report.Launches, page.Content[i].ID)
		}
	}
	if len(report.Launches) == 0 {
		return nil, errors.Wrap(ErrLaunchNotFound, "no golang launch matched the filter")
	}

	for _, id := range report.Launches {
		items, err := c.failedSteps(ctx, id)
		if err != nil {
			report.Warnings = append(report.Warnings, err.Error())
			continue
		}
		for _, item := range items {
			if err := c.markPassed(ctx, item.ID); err != nil {
				log.WithError(err).Warnf("item %d of launch %d kept its status, rerun or change it by hand", item.ID, id)
				report.Failed = append(report.Failed, item.ID)
				continue
			}
			report.Updated = append(report.Updated, item.ID)
		}
		log.WithField("launch", id).Infof("%d failed steps marked passed", len(items))
	}
	return report, nil
}

func (c *Client) failedSteps(ctx context.Context, launchID int64) ([]Item, error) {
	q := url.Values{}
	q.Set("filter.eq.launchId", strconv.FormatInt(launchID, 10))
	q.Set("filter.eq.type", "STEP")
	q.Set("filter.eq.status", statusFailed)
	q.Set("isLatest", "false")
	q.Set("launchesLimit", "0")
	q.Set("page.size", "500")
	page := &itemPage{}
	if err := c.doJSON(ctx, http.MethodGet, c.itemURL+"?"+q.Encode(), c.token, nil, page); err != nil {
		return nil, errors.Wrapf(err, "unable to list failed steps of launch %d", launchID)
	}
	return page.Content, nil
}

func (c *Client) markPassed(ctx context.Context, itemID int64) error {
	body := struct {
		Attributes []Attribute `json:"attributes"`
		Status     string      `json:"status"`
	}{
		Attributes: []Attribute{{Key: "manually", Value: "passed"}},
		Status:     "passed",
	}
	return c.doJSON(ctx, http.MethodPut, c.itemURL+"/"+strconv.FormatInt(itemID, 10)+"/update", c.token, body, nil)
}
