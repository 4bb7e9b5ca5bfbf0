// Package notify posts run summaries to Slack.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"github.com/openshift-qe/qetools/internal/result"
)

const (
	colorFailed = "danger"
	colorPassed = "good"
	topSignals  = 3
)

// SubteamReport holds the results of one subteam.
type SubteamReport struct {
	Subteam     string
	Total       int
	Failed      int
	Skipped     int
	FailedCases []string
	Signals     []result.SortedData
}

// RunReport is what gets posted for one launch.
type RunReport struct {
	Launch       string
	Profile      string
	BuildVersion string
	// Link, when set, is appended to the headline.
	Link     string
	Tally    string
	Subteams []SubteamReport
	Extra    string
}

func (r RunReport) totals() (total, failed, skipped int) {
	for _, s := range r.Subteams {
		total += s.Total
		failed += s.Failed
		skipped += s.Skipped
	}
	return
}

// NewRunReport groups records by subteam. The monitor case is not counted.
func NewRunReport(launch string, records []result.CaseRecord) RunReport {
	bySubteam := map[string][]result.CaseRecord{}
	kept := []result.CaseRecord{}
	for _, r := range records {
		if result.IsMonitorCase(r.Name) {
			continue
		}
		bySubteam[r.Subteam] = append(bySubteam[r.Subteam], r)
		kept = append(kept, r)
	}

	names := make([]string, 0, len(bySubteam))
	for n := range bySubteam {
		names = append(names, n)
	}
	sort.Strings(names)

	report := RunReport{Launch: launch, Tally: result.NewSubteamTally(kept).ShowSorted()}
	for _, n := range names {
		sr := SubteamReport{Subteam: n}
		for _, r := range bySubteam[n] {
			sr.Total++
			switch r.Outcome {
			case result.OutcomeFail:
				sr.Failed++
				sr.FailedCases = append(sr.FailedCases, r.SummaryKeys()...)
			case result.OutcomeSkip:
				sr.Skipped++
			}
		}
		sr.Signals = result.RecordSignals(bySubteam[n]).Top(topSignals)
		report.Subteams = append(report.Subteams, sr)
	}
	return report
}

// BuildRunMessage renders report. owner returns the mention of a subteam,
// or "" when it has none.
func BuildRunMessage(report RunReport, owner func(subteam string) string) *slack.WebhookMessage {
	total, failed, skipped := report.totals()
	head := []string{fmt.Sprintf("*golang test result: %s*", report.Launch)}
	if report.Profile != "" {
		head = append(head, "profile: "+report.Profile)
	}
	if report.BuildVersion != "" {
		head = append(head, "build_version: "+report.BuildVersion)
	}
	summary := fmt.Sprintf("total: %d, failed: %d, skipped: %d", total, failed, skipped)
	if report.Link != "" {
		summary += ", " + report.Link
	}
	head = append(head, summary)
	if report.Tally != "" {
		head = append(head, "subteams: "+report.Tally)
	}

	msg := &slack.WebhookMessage{}
	mentions := []string{}
	for _, s := range report.Subteams {
		if s.Failed == 0 {
			continue
		}
		fields := []slack.AttachmentField{
			{Title: "Total", Value: fmt.Sprint(s.Total), Short: true},
			{Title: "Failed", Value: fmt.Sprint(s.Failed), Short: true},
			{Title: "Skipped", Value: fmt.Sprint(s.Skipped), Short: true},
		}
		if len(s.Signals) > 0 {
			sig := make([]string, 0, len(s.Signals))
			for _, d := range s.Signals {
				sig = append(sig, fmt.Sprintf("`%s` x%d", d.Key, d.Value))
			}
			fields = append(fields, slack.AttachmentField{Title: "Failure signals", Value: strings.Join(sig, ", ")})
		}
		msg.Attachments = append(msg.Attachments, slack.Attachment{
			Color:      colorFailed,
			Title:      "subteam: " + s.Subteam,
			Text:       "Failed Cases: " + strings.Join(s.FailedCases, " "),
			Fields:     fields,
			MarkdownIn: []string{"text", "fields"},
		})
		if owner != nil {
			if m := owner(s.Subteam); m != "" {
				mentions = append(mentions, m)
			}
		}
	}
	if failed == 0 {
		msg.Attachments = append(msg.Attachments, slack.Attachment{Color: colorPassed, Text: "No fail case"})
	}
	if len(mentions) > 0 {
		head = append(head, strings.Join(mentions, " ")+" Please debug failed cases, thanks!")
	}
	if report.Extra != "" {
		head = append(head, report.Extra)
	}
	msg.Text = strings.Join(head, "\n")
	return msg
}

// Poster sends a webhook message.
type Poster func(ctx context.Context, url string, msg *slack.WebhookMessage) error

type SlackNotifier struct {
	webhookURL string
	post       Poster
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL, post: slack.PostWebhookContext}
}

// Enabled reports whether a webhook is configured.
func (n *SlackNotifier) Enabled() bool {
	return n.webhookURL != ""
}

// Notify posts msg. Without a webhook it only logs a warning.
func (n *SlackNotifier) Notify(ctx context.Context, msg *slack.WebhookMessage) error {
	if !n.Enabled() {
		log.Warn("slack webhook URL is empty, not sending the message")
		return nil
	}
	if err := n.post(ctx, n.webhookURL, msg); err != nil {
		return errors.Wrap(err, "unable to post slack message")
	}
	log.Info("slack message sent")
	return nil
}
