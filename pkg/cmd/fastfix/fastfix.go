package fastfix

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openshift-qe/qetools/internal/bugzilla"
	"github.com/openshift-qe/qetools/internal/config"
	"github.com/openshift-qe/qetools/internal/notify"
)

const defaultOutput = "/tmp/fast_fix.yaml"

func NewCmdFastFix() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fastfix",
		Short: "Remind QA contacts to pre-verify FastFix bugs.",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				if err := cmd.Help(); err != nil {
					log.Errorf("error loading help(): %v", err)
				}
			}
		},
	}
	cmd.PersistentFlags().String("endpoint", "", "Bugzilla REST endpoint.")
	cmd.PersistentFlags().String("api-key", "", "Bugzilla API key.")
	cmd.PersistentFlags().String("webhook-url", "", "Slack incoming webhook URL.")
	bindFlag(cmd, "endpoint", config.KeyBugzillaEndpoint)
	bindFlag(cmd, "api-key", config.KeyBugzillaAPIKey)
	bindFlag(cmd, "webhook-url", config.KeySlackWebhookURL)

	cmd.AddCommand(newCmdCheck())
	cmd.AddCommand(newCmdSearch())
	return cmd
}

func bindFlag(cmd *cobra.Command, flag, key string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		log.Warnf("Unable to bind flag %s\n", flag)
	}
}

func newMonitor() (*bugzilla.Monitor, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if cfg.Bugzilla.APIKey == "" {
		log.Warn("Bugzilla API key is empty")
	}
	client := bugzilla.NewClient(bugzilla.Options{Endpoint: cfg.Bugzilla.Endpoint, APIKey: cfg.Bugzilla.APIKey})
	return bugzilla.NewMonitor(client, notify.NewSlackNotifier(cfg.Slack.WebhookURL)), nil
}

func newCmdCheck() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check one bug and record the reminder it is due.",
		Long: `Check one bug and record the reminder it is due.

A first reminder is only written to the QA whiteboard; use search to post it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id <= 0 {
				return errors.New("please provide the --id parameter")
			}
			m, err := newMonitor()
			if err != nil {
				return err
			}
			r, err := m.Check(cmd.Context(), id)
			if err != nil {
				return err
			}
			if r == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "SUCCESS bug %d needs no reminder\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SUCCESS bug %d: %s %s (assignee %s)\n", r.ID, r.Notify, r.QA, r.Assignee)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Bug id.")
	return cmd
}

func newCmdSearch() *cobra.Command {
	var (
		statuses string
		keywords string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Check every FastFix bug, post the first reminders to Slack and save the others for mail.",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMonitor()
			if err != nil {
				return err
			}
			q := bugzilla.SearchQuery{Statuses: splitList(statuses), Keywords: splitList(keywords)}
			results, runErr := m.Run(cmd.Context(), q)
			if results != nil || runErr == nil {
				if err := bugzilla.WriteResults(afero.NewOsFs(), output, results); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SUCCESS %d reminders due, saved in %s\n", len(results), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&statuses, "status", strings.Join(bugzilla.DefaultStatuses, ","), "Comma separated bug statuses.")
	cmd.Flags().StringVarP(&keywords, "keywords", "w", "FastFix", "Comma separated keywords every bug must carry.")
	cmd.Flags().StringVarP(&output, "output", "o", defaultOutput, "YAML file listing the reminders due.")
	return cmd
}

func splitList(s string) []string {
	out := []string{}
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
