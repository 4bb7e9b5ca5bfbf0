package bugzilla

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/slack-go/slack"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

var now = time.Date(2024, 6, 11, 12, 0, 0, 0, time.UTC)

func reminderAt(d time.Duration) string {
	return "QE ack\r\n" + notifiedPrefix + now.Add(-d).Format(notifyTimeLayout)
}

type fakeNotifier struct {
	msgs []*slack.WebhookMessage
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, msg *slack.WebhookMessage) error {
	n.msgs = append(n.msgs, msg)
	return n.err
}

func newTestMonitor(t *testing.T, fake *fakeBugzilla, n Notifier) *Monitor {
	m := NewMonitor(newTestClient(t, fake), n)
	m.now = func() time.Time { return now }
	return m
}

func TestCheck(t *testing.T) {
	cases := []struct {
		name       string
		status     string
		whiteboard string
		pr         bool
		verified   []string
		comments   []Comment
		want       Notification
		// whiteboard after the check, unchanged when empty
		after string
	}{
		{name: "no PR while new", status: "NEW", whiteboard: ""},
		{name: "no PR while assigned", status: "ASSIGNED", whiteboard: ""},
		{name: "no PR, dev already asked", status: "POST", whiteboard: askedDevPrefix + "2024-06-10T08:00:00.000000"},
		{
			name: "no PR after POST", status: "MODIFIED", whiteboard: "",
			want: NotifyContactDev, after: askedDevPrefix + "2024-06-11T12:00:00.000000",
		},
		{name: "pre-verified", status: "ON_QA", pr: true, verified: []string{"Tested"}},
		{
			name: "first reminder", status: "ON_QA", pr: true, whiteboard: "QE ack",
			want: NotifySlack, after: "QE ack\r\n" + notifiedPrefix + "2024-06-11T12:00:00.000000",
		},
		{name: "reminded five hours ago", status: "ON_QA", pr: true, whiteboard: reminderAt(5 * time.Hour)},
		{name: "reminded ten hours ago", status: "ON_QA", pr: true, whiteboard: reminderAt(10 * time.Hour), want: NotifyTrack},
		{name: "silent for a day", status: "ON_QA", pr: true, whiteboard: reminderAt(24 * time.Hour), want: NotifyEscalate},
		{
			name: "commented within a day", status: "ON_QA", pr: true, whiteboard: reminderAt(24 * time.Hour),
			comments: []Comment{{Creator: "qa1@redhat.com", CreationTime: now.Add(-2 * time.Hour)}},
		},
		{
			name: "commented before the reminder", status: "ON_QA", pr: true, whiteboard: reminderAt(24 * time.Hour),
			comments: []Comment{{Creator: "qa1@redhat.com", CreationTime: now.Add(-48 * time.Hour)}},
			want:     NotifyEscalate,
		},
		{name: "silent for three days", status: "ON_QA", pr: true, whiteboard: reminderAt(72 * time.Hour), want: NotifyEscalate},
		{name: "unreadable reminder time", status: "ON_QA", pr: true, whiteboard: notifiedPrefix + "yesterday"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := newFakeBugzilla()
			fake.add(101, tc.status, tc.whiteboard, tc.pr, tc.verified...)
			fake.comments[101] = tc.comments
			m := newTestMonitor(t, fake, &fakeNotifier{})

			got, err := m.Check(context.Background(), 101)
			require.NoError(t, err)
			if tc.want == "" {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, Result{ID: 101, QA: "qa1@redhat.com", Notify: tc.want, Assignee: "dev@redhat.com"}, *got)
			}
			after := tc.after
			if after == "" {
				after = tc.whiteboard
			}
			assert.Equal(t, after, fake.whiteboard(101))
		})
	}
}

func TestCheckUnrecordedReminder(t *testing.T) {
	fake := newFakeBugzilla()
	fake.add(101, "ON_QA", "", true)
	fake.failUpdate[101] = true
	m := newTestMonitor(t, fake, &fakeNotifier{})

	got, err := m.Check(context.Background(), 101)
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestRun(t *testing.T) {
	fake := newFakeBugzilla()
	fake.add(101, "ON_QA", "", true)
	fake.add(102, "ON_QA", "", true)
	fake.bugs[102]["qa_contact_detail"] = map[string]string{"email": "qa2@redhat.com"}
	fake.add(103, "POST", "", false)
	fake.add(104, "ON_QA", "", true, "Tested")
	fake.add(105, "ON_QA", "", true)
	notifier := &fakeNotifier{}
	m := newTestMonitor(t, fake, notifier)

	results, err := m.Run(context.Background(), SearchQuery{Keywords: []string{"FastFix"}})
	require.NoError(t, err)
	assert.Equal(t, []Notification{NotifySlack, NotifySlack, NotifyContactDev, NotifySlack}, notifications(results))

	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, "Hi @qa1, please finish the verification of fastfix bugs in one day per process required:\n"+
		"https://bugzilla.redhat.com/show_bug.cgi?id=101\n"+
		"https://bugzilla.redhat.com/show_bug.cgi?id=105\n"+
		"Thanks!\n"+
		"Hi @qa2, please finish the verification of fastfix bugs in one day per process required:\n"+
		"https://bugzilla.redhat.com/show_bug.cgi?id=102\n"+
		"Thanks!\n"+
		"\nFor How, please refer to "+howToURL+" \n"+
		"cc @openshift-qe-lead\n", notifier.msgs[0].Text)
	assert.Empty(t, notifier.msgs[0].Attachments)
}

func TestRunSlackFailure(t *testing.T) {
	fake := newFakeBugzilla()
	fake.add(101, "ON_QA", "QE ack", true)
	fake.add(103, "POST", "", false)
	notifier := &fakeNotifier{err: errors.New("channel_not_found")}
	m := newTestMonitor(t, fake, notifier)

	results, err := m.Run(context.Background(), SearchQuery{})
	assert.ErrorContains(t, err, "channel_not_found")
	assert.Len(t, results, 2)
	assert.Equal(t, "QE ack", fake.whiteboard(101), "the reminder is sent again next run")
	assert.Contains(t, fake.whiteboard(103), askedDevMark)
}

func TestRunNothingFound(t *testing.T) {
	notifier := &fakeNotifier{}
	m := newTestMonitor(t, newFakeBugzilla(), notifier)

	results, err := m.Run(context.Background(), SearchQuery{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, notifier.msgs)
}

func TestWriteResults(t *testing.T) {
	fs := afero.NewMemMapFs()
	results := []Result{{ID: 101, QA: "qa1@redhat.com", Notify: NotifyEscalate, Assignee: "dev@redhat.com"}}
	require.NoError(t, WriteResults(fs, "/tmp/fast_fix.yaml", results))

	data, err := afero.ReadFile(fs, "/tmp/fast_fix.yaml")
	require.NoError(t, err)
	got := []Result{}
	require.NoError(t, yaml.NewDecoder(bytes.NewReader(data)).Decode(&got))
	assert.Equal(t, results, got)
	assert.Contains(t, string(data), "notify: escalatetrack")

	require.NoError(t, WriteResults(fs, "/tmp/empty.yaml", nil))
	data, err = afero.ReadFile(fs, "/tmp/empty.yaml")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestSchedules(t *testing.T) {
	due := func(s schedule) []int {
		out := []int{}
		for h := 0; h <= 300; h++ {
			if s.due(h) {
				out = append(out, h)
			}
		}
		return out
	}
	assert.Equal(t, []int{48, 144, 240}, due(escalateSchedule))
	assert.Equal(t, []int{20, 40, 60, 80, 100, 120, 140, 160, 180, 200, 220, 240, 260, 280, 300}, due(trackSchedule))

	notified := time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, halfHoursSince(notified, notified.Add(19*time.Minute)))
	assert.Equal(t, 1, halfHoursSince(notified, notified.Add(20*time.Minute)))
	assert.Equal(t, 20, halfHoursSince(notified, notified.Add(10*time.Hour)))
}

func notifications(results []Result) []Notification {
	out := []Notification{}
	for _, r := range results {
		out = append(out, r.Notify)
	}
	return out
}
