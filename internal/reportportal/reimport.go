package reportportal

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openshift-qe/qetools/internal/result"
	"github.com/openshift-qe/qetools/pkg/api"
)

const (
	statusPassed  = "PASSED"
	statusFailed  = "FAILED"
	statusSkipped = "SKIPPED"

	// toInvestigate is the default defect type of a failed step.
	toInvestigate = "ti001"
)

// ImportOrRerun imports opts.File as a new launch, unless a launch with the
// same name already exists for the subteam. In that case the cases of
// opts.RerunReport replace their previous results in that launch. The
// returned bool reports a rerun.
func (c *Client) ImportOrRerun(ctx context.Context, opts ImportOptions) (*Launch, bool, error) {
	name := LaunchName(opts.File)
	launch, err := c.FindLaunch(ctx, name, &Attribute{Key: "team", Value: opts.Subteam})
	if errors.Is(err, ErrLaunchNotFound) {
		launch, err := c.Import(ctx, opts)
		return launch, false, err
	}
	if err != nil {
		return nil, false, err
	}
	report := opts.RerunReport
	if report == "" {
		report = result.SplitFileName(opts.Subteam)
	}
	log.WithFields(log.Fields{"launch": launch.ID, "subteam": opts.Subteam}).Infof("launch %s exists, replaying %s", name, report)
	if err := c.Rerun(ctx, launch, report, opts.BuildNum); err != nil {
		return launch, true, err
	}
	return launch, true, nil
}

// Rerun replays the cases of the JUnit report onto launch. Previous items
// of the same name are deleted and the new ones take their start and end
// time; cases new to the launch are laid out one after another from the
// launch start. buildNum, when set, is added to the gbuildnum attribute.
func (c *Client) Rerun(ctx context.Context, launch *Launch, report, buildNum string) error {
	fd, err := os.Open(report)
	if err != nil {
		return errors.Wrapf(err, "unable to open %s", report)
	}
	suite, err := api.ParseJUnit(fd)
	fd.Close()
	if err != nil {
		return errors.Wrapf(err, "unable to parse %s", report)
	}

	previous := map[string]Item{}
	dropped := map[string]bool{}
	for _, tc := range suite.TestCases {
		children, err := c.itemsNamed(ctx, launch.ID, tc.Name)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			continue
		}
		previous[tc.Name] = children[0]
		for _, child := range children {
			if err := c.DeleteItem(ctx, child.ID); err != nil {
				log.WithError(err).Warnf("case %q left out of the rerun", tc.Name)
				dropped[tc.Name] = true
			}
		}
	}

	if buildNum != "" {
		if err := c.AddBuildNum(ctx, launch.ID, buildNum); err != nil {
			log.WithError(err).Warn("build number not recorded")
		}
	}

	r := &rerun{c: c, launchUUID: launch.UUID, start: launch.StartTime.Add(time.Second)}
	return r.run(ctx, launch.Name, suite, previous, dropped)
}

type rerun struct {
	c          *Client
	launchUUID string
	start      time.Time
	// elapsed is the sum of the case durations laid out so far.
	elapsed time.Duration
	status  string
}

func (r *rerun) run(ctx context.Context, name string, suite *api.TestSuite, previous map[string]Item, dropped map[string]bool) (err error) {
	if err := r.c.startRerunLaunch(ctx, name, r.launchUUID, r.start); err != nil {
		return err
	}
	r.status = statusPassed
	defer func() {
		end := r.start.Add(r.elapsed)
		if ferr := r.c.finishRerunLaunch(ctx, r.launchUUID, r.status, end); ferr != nil && err == nil {
			err = ferr
		}
	}()

	suiteID, err := r.c.startItem(ctx, "", r.item(suite.Name, "SUITE", r.start))
	if err != nil {
		return errors.Wrap(err, "unable to start the rerun suite")
	}
	defer r.finish(ctx, suiteID, &err)

	containerID, err := r.c.startItem(ctx, suiteID, r.item(suite.Name, "TEST", r.start))
	if err != nil {
		return errors.Wrap(err, "unable to start the rerun container")
	}
	defer r.finish(ctx, containerID, &err)

	for i := range suite.TestCases {
		tc := &suite.TestCases[i]
		if len(tc.Failures) > 0 {
			r.status = statusFailed
		}
		start := r.start.Add(r.elapsed)
		d := caseDuration(tc.Time)
		r.elapsed += d
		end := start.Add(d)
		if dropped[tc.Name] {
			continue
		}
		if old, ok := previous[tc.Name]; ok && !old.StartTime.IsZero() {
			start, end = old.StartTime.Time, old.EndTime.Time
		}
		if err := r.step(ctx, containerID, tc, start, end); err != nil {
			return err
		}
	}
	return nil
}

// finish closes an item at the end of the laid out cases and keeps the
// first error in err.
func (r *rerun) finish(ctx context.Context, uuid string, err *error) {
	body := map[string]interface{}{
		"endTime":    Timestamp{r.start.Add(r.elapsed)},
		"launchUuid": r.launchUUID,
	}
	if ferr := r.c.finishItem(ctx, uuid, body); ferr != nil && *err == nil {
		*err = ferr
	}
}

func (r *rerun) item(name, itemType string, start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"launchUuid": r.launchUUID,
		"name":       name,
		"startTime":  Timestamp{start},
		"type":       itemType,
	}
}

func (r *rerun) step(ctx context.Context, parent string, tc *api.TestCase, start, end time.Time) error {
	id, err := r.c.startItem(ctx, parent, r.item(tc.Name, "STEP", start))
	if err != nil {
		return errors.Wrapf(err, "unable to start %q", tc.Name)
	}
	body := map[string]interface{}{
		"endTime":    Timestamp{end},
		"launchUuid": r.launchUUID,
	}
	switch tc.Status() {
	case api.TestStatusPass:
		body["status"] = statusPassed
	default:
		body["status"] = statusFailed
		if tc.Status() == api.TestStatusSkipped {
			body["status"] = statusSkipped
		}
		body["issue"] = map[string]interface{}{
			"issueType":            toInvestigate,
			"autoAnalyzed":         false,
			"ignoreAnalyzer":       false,
			"externalSystemIssues": []interface{}{},
		}
		if len(tc.Failures) > 0 {
			if err := r.c.saveLog(ctx, r.launchUUID, id, "ERROR", tc.Failures[0].Text, start); err != nil {
				return err
			}
		}
		if tc.SystemOut != "" {
			if err := r.c.saveLog(ctx, r.launchUUID, id, "INFO", tc.SystemOut, start); err != nil {
				return err
			}
		}
	}
	if err := r.c.finishItem(ctx, id, body); err != nil {
		return errors.Wrapf(err, "unable to finish %q", tc.Name)
	}
	return nil
}

// caseDuration truncates the JUnit time attribute to whole seconds.
func caseDuration(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(int64(f)) * time.Second
}

func (c *Client) itemsNamed(ctx context.Context, launchID int64, name string) ([]Item, error) {
	q := url.Values{}
	q.Set("filter.eq.launchId", strconv.FormatInt(launchID, 10))
	q.Set("filter.eq.name", name)
	q.Set("isLatest", "false")
	q.Set("launchesLimit", "0")
	page := &itemPage{}
	if err := c.doJSON(ctx, http.MethodGet, c.itemURL+"?"+q.Encode(), c.token, nil, page); err != nil {
		return nil, errors.Wrapf(err, "unable to list items %q of launch %d", name, launchID)
	}
	return page.Content, nil
}

func (c *Client) DeleteItem(ctx context.Context, id int64) error {
	if err := c.doJSON(ctx, http.MethodDelete, c.itemURL+"/"+strconv.FormatInt(id, 10), c.token, nil, nil); err != nil {
		return errors.Wrapf(err, "unable to delete item %d", id)
	}
	return nil
}

type entryCreated struct {
	ID string `json:"id"`
}

// startItem starts a root item, or a child of parent when set, and returns
// its UUID.
func (c *Client) startItem(ctx context.Context, parent string, body interface{}) (string, error) {
	u := c.itemURL
	if parent != "" {
		u += "/" + url.PathEscape(parent)
	}
	created := &entryCreated{}
	if err := c.doJSON(ctx, http.MethodPost, u, c.token, body, created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *Client) finishItem(ctx context.Context, uuid string, body interface{}) error {
	return c.doJSON(ctx, http.MethodPut, c.itemURL+"/"+url.PathEscape(uuid), c.token, body, nil)
}

func (c *Client) saveLog(ctx context.Context, launchUUID, itemUUID, level, message string, at time.Time) error {
	body := map[string]interface{}{
		"launchUuid": launchUUID,
		"itemUuid":   itemUUID,
		"time":       Timestamp{at},
		"message":    message,
		"level":      level,
	}
	if err := c.doJSON(ctx, http.MethodPost, c.logURL, c.token, body, nil); err != nil {
		return errors.Wrapf(err, "unable to save %s log of item %s", level, itemUUID)
	}
	return nil
}

func (c *Client) startRerunLaunch(ctx context.Context, name, uuid string, start time.Time) error {
	body := map[string]interface{}{
		"mode":      "DEFAULT",
		"name":      name,
		"rerun":     true,
		"rerunOf":   uuid,
		"startTime": Timestamp{start},
	}
	if err := c.doJSON(ctx, http.MethodPost, c.launchURL, c.token, body, nil); err != nil {
		return errors.Wrapf(err, "unable to start a rerun of launch %s", uuid)
	}
	return nil
}

func (c *Client) finishRerunLaunch(ctx context.Context, uuid, status string, end time.Time) error {
	body := map[string]interface{}{
		"endTime": Timestamp{end},
		"status":  status,
	}
	if err := c.doJSON(ctx, http.MethodPut, c.launchURL+"/"+url.PathEscape(uuid)+"/finish", c.token, body, nil); err != nil {
		return errors.Wrapf(err, "unable to finish the rerun of launch %s", uuid)
	}
	return nil
}

// buildType is the second dash separated field of a build number, or the
// whole number when it has a single field.
func buildType(buildNum string) string {
	parts := strings.Split(strings.ReplaceAll(buildNum, " ", ""), "-")
	if len(parts) < 2 {
		return parts[0]
	}
	return parts[1]
}

// AddBuildNum appends buildNum to the gbuildnum attribute of the launch,
// unless it or a build of the same type is already recorded.
func (c *Client) AddBuildNum(ctx context.Context, launchID int64, buildNum string) error {
	launch, err := c.LaunchByID(ctx, launchID)
	if err != nil {
		return err
	}
	existing, _ := launch.Attribute(BuildNumAttribute)
	if existing == "" {
		return errors.Errorf("launch %d has no %s attribute", launchID, BuildNumAttribute)
	}
	if strings.Contains(existing, buildNum) {
		return nil
	}
	want := buildType(buildNum)
	for _, bid := range strings.Split(existing, ",") {
		if buildType(bid) == want {
			log.WithField("launch", launchID).Debugf("build type %s already recorded in %s", want, existing)
			return nil
		}
	}
	return c.UpdateAttributes(ctx, []int64{launchID}, []AttributeChange{
		UpdateAttribute(BuildNumAttribute, existing, existing+","+buildNum),
	})
}
