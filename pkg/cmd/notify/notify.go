package notify

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openshift-qe/qetools/internal/config"
	"github.com/openshift-qe/qetools/internal/notify"
	"github.com/openshift-qe/qetools/internal/result"
)

type slackOptions struct {
	input        string
	launch       string
	profile      string
	buildVersion string
	link         string
	message      string
	dryRun       bool
}

func NewCmdNotify() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send run summaries.",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				if err := cmd.Help(); err != nil {
					log.Errorf("error loading help(): %v", err)
				}
			}
		},
	}
	cmd.AddCommand(newCmdSlack())
	return cmd
}

func newCmdSlack() *cobra.Command {
	opts := &slackOptions{}
	cmd := &cobra.Command{
		Use:   "slack",
		Short: "Post the summary of a JUnit report to a Slack webhook.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.input == "" {
				return errors.New("please provide the --input parameter")
			}
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			records, err := result.NewTransformer(cfg.SubteamSet(), nil).Records(opts.input)
			if err != nil {
				return err
			}

			launch := opts.launch
			if launch == "" {
				launch = strings.TrimSuffix(filepath.Base(opts.input), filepath.Ext(opts.input))
			}
			report := notify.NewRunReport(launch, records)
			report.Profile = opts.profile
			report.BuildVersion = opts.buildVersion
			report.Link = opts.link
			report.Extra = opts.message

			msg := notify.BuildRunMessage(report, cfg.Owner)
			fmt.Fprintln(cmd.OutOrStdout(), msg.Text)
			for _, a := range msg.Attachments {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", a.Title, a.Text)
			}
			if opts.dryRun {
				return nil
			}
			return notify.NewSlackNotifier(cfg.Slack.WebhookURL).Notify(cmd.Context(), msg)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "JUnit XML report.")
	cmd.Flags().StringVarP(&opts.launch, "launch", "l", "", "Launch name; the report file name when empty.")
	cmd.Flags().StringVar(&opts.profile, "profile", "", "Test-run profile.")
	cmd.Flags().StringVar(&opts.buildVersion, "build-version", "", "Build under test.")
	cmd.Flags().StringVar(&opts.link, "link", "", "Link to the launch.")
	cmd.Flags().StringVar(&opts.message, "message", "", "Additional message.")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the message without sending it.")
	cmd.Flags().String("webhook-url", "", "Slack incoming webhook URL.")
	if err := viper.BindPFlag(config.KeySlackWebhookURL, cmd.Flags().Lookup("webhook-url")); err != nil {
		log.Warnf("Unable to bind flag %s\n", "webhook-url")
	}
	return cmd
}
