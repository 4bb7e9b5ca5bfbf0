package bugzilla

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// Notification tells how the QA contact of a bug is reminded.
type Notification string

const (
	// NotifySlack is the first reminder, posted to Slack.
	NotifySlack Notification = "slack"
	// NotifyContactDev asks QA to get a pull request from the developer.
	NotifyContactDev Notification = "contactdevforpr"
	// NotifyTrack repeats the reminder every ten hours.
	NotifyTrack Notification = "continoustrack"
	// NotifyEscalate is sent one day after the first reminder when QA
	// has not commented, and every two days after.
	NotifyEscalate Notification = "escalatetrack"
)

const (
	whiteboardField = "cf_qa_whiteboard"
	whiteboardSep   = "\r\n"

	notifiedMark   = "Already notify QA to pre-verify"
	notifiedPrefix = "Already notify QA to pre-verify it at UTC "
	askedDevMark   = "Already notify QA to contact with Dev for PR"
	askedDevPrefix = "Already notify QA to contact with Dev for PR at UTC "

	// notifyTimeLayout is written in UTC. Parsing also accepts any
	// fraction of a second.
	notifyTimeLayout = "2006-01-02T15:04:05.000000"

	howToURL = "https://docs.google.com/document/d/1qSVZtKR4TGsrZjj-IDNW3IN40YicbZm9F2UzFTy1qvI/edit?usp=sharing"
	ccGroup  = "openshift-qe-lead"
)

// Reminder schedules, in half hours since the first reminder.
var (
	escalateSchedule = schedule{every: 96, after: 48}
	trackSchedule    = schedule{every: 20}
)

// Result is a reminder due for a bug.
type Result struct {
	ID       int64        `yaml:"id"`
	QA       string       `yaml:"qa"`
	Notify   Notification `yaml:"notify"`
	Assignee string       `yaml:"assignee"`
}

// Notifier posts a Slack message.
type Notifier interface {
	Notify(ctx context.Context, msg *slack.WebhookMessage) error
}

// Monitor checks FastFix bugs and reminds their QA contacts. The reminders
// already sent are recorded on the QA whiteboard of each bug.
type Monitor struct {
	client   *Client
	notifier Notifier
	now      func() time.Time
}

func NewMonitor(client *Client, notifier Notifier) *Monitor {
	return &Monitor{client: client, notifier: notifier, now: time.Now}
}

// Check returns the reminder due for bug id, or nil when none is. A first
// reminder is recorded on the whiteboard before it is returned.
func (m *Monitor) Check(ctx context.Context, id int64) (*Result, error) {
	bug, err := m.client.Bug(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := log.WithField("bug", id)
	now := m.now().UTC()

	if !bug.HasPR() {
		if bug.Status == "NEW" || bug.Status == "ASSIGNED" {
			logger.Infof("no PR yet in status %s, not verifying it now", bug.Status)
			return nil, nil
		}
		if strings.Contains(bug.QAWhiteboard, askedDevMark) {
			logger.Info("no PR yet, QA already asked to contact Dev for it")
			return nil, nil
		}
		if err := m.client.AppendQAWhiteboard(ctx, id, askedDevPrefix+now.Format(notifyTimeLayout)); err != nil {
			return nil, errors.Wrap(err, "unable to record the PR reminder, QA is reminded next time")
		}
		logger.Infof("no PR yet in status %s, asking QA to contact Dev for it", bug.Status)
		return newResult(bug, NotifyContactDev), nil
	}

	if bug.PreVerified() {
		logger.Info("already pre-verified")
		return nil, nil
	}

	if strings.Contains(bug.QAWhiteboard, notifiedMark) {
		notified, ok := notifyTime(bug.QAWhiteboard)
		if !ok {
			return nil, nil
		}
		halfHours := halfHoursSince(notified, now)
		logger.Debugf("first reminder sent %d half hours ago", halfHours)
		if escalateSchedule.due(halfHours) {
			commented, err := m.commentedSince(ctx, bug, notified)
			if err != nil {
				logger.WithError(err).Warn("comments unavailable, not escalating")
				commented = true
			}
			if !commented {
				logger.Info("no comment from QA within a day of the reminder")
				return newResult(bug, NotifyEscalate), nil
			}
		}
		if trackSchedule.due(halfHours) {
			logger.Info("reminding QA again")
			return newResult(bug, NotifyTrack), nil
		}
		return nil, nil
	}

	if err := m.client.AppendQAWhiteboard(ctx, id, notifiedPrefix+now.Format(notifyTimeLayout)); err != nil {
		return nil, errors.Wrap(err, "unable to record the reminder, QA is reminded next time")
	}
	logger.Info("first reminder to pre-verify")
	return newResult(bug, NotifySlack), nil
}

func newResult(bug *Bug, n Notification) *Result {
	return &Result{ID: bug.ID, QA: bug.QAContactDetail.Email, Notify: n, Assignee: bug.AssignedToDetail.Email}
}

func (m *Monitor) commentedSince(ctx context.Context, bug *Bug, since time.Time) (bool, error) {
	comments, err := m.client.Comments(ctx, bug.ID)
	if err != nil {
		return false, err
	}
	for _, c := range comments {
		if c.Creator == bug.QAContactDetail.Email && c.CreationTime.After(since) {
			return true, nil
		}
	}
	return false, nil
}

// Run checks every bug matching q and posts the first reminders to Slack in
// a single message. When the post fails, the reminders are taken off the
// whiteboards so the next run sends them again.
func (m *Monitor) Run(ctx context.Context, q SearchQuery) ([]Result, error) {
	ids, err := m.client.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		log.Info("no fastfix bug found")
		return nil, nil
	}

	results := []Result{}
	first := []Result{}
	for _, id := range ids {
		r, err := m.Check(ctx, id)
		if err != nil {
			log.WithError(err).WithField("bug", id).Warn("bug skipped")
			continue
		}
		if r == nil {
			continue
		}
		results = append(results, *r)
		if r.Notify == NotifySlack {
			first = append(first, *r)
		}
	}
	if len(first) == 0 {
		return results, nil
	}

	if err := m.notifier.Notify(ctx, &slack.WebhookMessage{Text: ReminderText(first)}); err != nil {
		for _, r := range first {
			if rerr := m.client.ClearReminder(ctx, r.ID); rerr != nil {
				log.WithError(rerr).WithField("bug", r.ID).Error("reminder left on the whiteboard")
			}
		}
		return results, err
	}
	return results, nil
}

// ClearReminder removes the first reminder lines from the whiteboard of
// bug id.
func (c *Client) ClearReminder(ctx context.Context, id int64) error {
	bug, err := c.Bug(ctx, id)
	if err != nil {
		return err
	}
	if !strings.Contains(bug.QAWhiteboard, notifiedMark) {
		return nil
	}
	kept := []string{}
	for _, line := range strings.Split(bug.QAWhiteboard, whiteboardSep) {
		if !strings.Contains(line, notifiedPrefix) {
			kept = append(kept, line)
		}
	}
	return c.Update(ctx, id, map[string]interface{}{whiteboardField: strings.Join(kept, whiteboardSep)})
}

// ReminderText groups the bugs by QA contact, mentioning each by the local
// part of their email.
func ReminderText(results []Result) string {
	order := []string{}
	byQA := map[string][]int64{}
	for _, r := range results {
		if _, ok := byQA[r.QA]; !ok {
			order = append(order, r.QA)
		}
		byQA[r.QA] = append(byQA[r.QA], r.ID)
	}

	b := strings.Builder{}
	for _, qa := range order {
		fmt.Fprintf(&b, "Hi @%s, please finish the verification of fastfix bugs in one day per process required:\n", strings.SplitN(qa, "@", 2)[0])
		for _, id := range byQA[qa] {
			fmt.Fprintf(&b, "%s%d\n", ShowBugURL, id)
		}
		b.WriteString("Thanks!\n")
	}
	fmt.Fprintf(&b, "\nFor How, please refer to %s \n", howToURL)
	fmt.Fprintf(&b, "cc @%s\n", ccGroup)
	return b.String()
}

// WriteResults saves results as YAML for the mail reminders.
func WriteResults(fs afero.Fs, path string, results []Result) error {
	if results == nil {
		results = []Result{}
	}
	data, err := yaml.Marshal(results)
	if err != nil {
		return errors.Wrap(err, "unable to encode results")
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return errors.Wrapf(err, "unable to write %s", path)
	}
	return nil
}

func joinLines(text, line string) string {
	if text == "" {
		return line
	}
	return text + whiteboardSep + line
}

// notifyTime reads the time of the first reminder on the whiteboard.
func notifyTime(whiteboard string) (time.Time, bool) {
	for _, line := range strings.Split(whiteboard, whiteboardSep) {
		i := strings.Index(line, notifiedPrefix)
		if i < 0 {
			continue
		}
		t, err := time.Parse("2006-01-02T15:04:05", strings.TrimSpace(line[i+len(notifiedPrefix):]))
		if err != nil {
			log.WithError(err).Warnf("unreadable reminder time in %q", line)
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// halfHoursSince counts the half hours from t to now, rounding up from the
// twentieth minute so a run scheduled every half hour lands on the count.
func halfHoursSince(t, now time.Time) int {
	return int(now.Add(10*time.Minute).Sub(t) / (30 * time.Minute))
}

type schedule struct {
	every int
	after int
}

func (s schedule) due(halfHours int) bool {
	if halfHours == 0 || halfHours < s.after {
		return false
	}
	return (halfHours-s.after)%s.every == 0
}
