package rp

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openshift-qe/qetools/internal/config"
	"github.com/openshift-qe/qetools/internal/reportportal"
)

func NewCmdRP() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rp",
		Short: "Manage launches on ReportPortal.",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				if err := cmd.Help(); err != nil {
					log.Errorf("error loading help(): %v", err)
				}
			}
		},
	}
	cmd.PersistentFlags().String("endpoint", "", "ReportPortal API endpoint.")
	cmd.PersistentFlags().String("project", "", "ReportPortal project.")
	cmd.PersistentFlags().String("token", "", "ReportPortal API token.")
	cmd.PersistentFlags().String("attr-token", "", "Token used to edit launch attributes.")
	bindFlag(cmd, "endpoint", config.KeyRPEndpoint)
	bindFlag(cmd, "project", config.KeyRPProject)
	bindFlag(cmd, "token", config.KeyRPToken)
	bindFlag(cmd, "attr-token", config.KeyRPAttrToken)

	cmd.AddCommand(newCmdImport())
	cmd.AddCommand(newCmdFailedCases())
	cmd.AddCommand(newCmdRerunFilter())
	cmd.AddCommand(newCmdAttr())
	cmd.AddCommand(newCmdMerge())
	cmd.AddCommand(newCmdDelete())
	cmd.AddCommand(newCmdMarkPassed())
	return cmd
}

func bindFlag(cmd *cobra.Command, flag, key string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		log.Warnf("Unable to bind flag %s\n", flag)
	}
}

func newClient() (*reportportal.Client, *config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	if cfg.ReportPortal.Token == "" {
		log.Warn("ReportPortal token is empty")
	}
	return reportportal.NewClient(reportportal.Options{
		Endpoint:  cfg.ReportPortal.Endpoint,
		Project:   cfg.ReportPortal.Project,
		Token:     cfg.ReportPortal.Token,
		AttrToken: cfg.ReportPortal.AttrToken,
	}), cfg, nil
}

func newCmdImport() *cobra.Command {
	opts := reportportal.ImportOptions{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JUnit report as a new launch and tag it, or replay it onto the launch of the same name.",
		Long: `Import a JUnit report as a new launch and tag it.

When the subteam already has a launch of the same name, the cases of the
split report (--rerun-report, import-<subteam>.xml by default) replace their
previous results in that launch instead, and the build number is added to
its gbuildnum attribute.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.File == "" {
				return errors.New("please provide the --file parameter")
			}
			c, _, err := newClient()
			if err != nil {
				return err
			}
			launch, rerun, err := c.ImportOrRerun(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if rerun {
				fmt.Fprintf(cmd.OutOrStdout(), "SUCCESS %d rerun\n", launch.ID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SUCCESS %d\n", launch.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "JUnit report, or zip holding it.")
	cmd.Flags().StringVar(&opts.Subteam, "subteam", "", "Subteam owning the launch.")
	cmd.Flags().StringVar(&opts.Version, "version", "", "OCP version, e.g. 4.16.")
	cmd.Flags().StringVar(&opts.AttrOption, "attr-option", "", "YAML attribute option of the job.")
	cmd.Flags().StringVar(&opts.ProfileName, "profile-name", "", "Test-run profile name.")
	cmd.Flags().StringVar(&opts.ProfileDir, "profile-dir", "", "Directory holding <version>/<profile>.test_run.yaml files.")
	cmd.Flags().BoolVar(&opts.Trial, "trial", true, "Tag the launch as a trial.")
	cmd.Flags().StringVar(&opts.BuildNum, "build-num", "unknown", "CI build number, <job>-<type>, kept in the gbuildnum attribute.")
	cmd.Flags().StringVar(&opts.RerunReport, "rerun-report", "", "JUnit report replayed onto an existing launch (default import-<subteam>.xml).")
	return cmd
}

func newCmdFailedCases() *cobra.Command {
	var launch, subteam string
	var table bool
	cmd := &cobra.Command{
		Use:   "failed-cases",
		Short: "Print the failed case IDs of a subteam launch, '|' separated.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if launch == "" || subteam == "" {
				return errors.New("please provide the --launch and --subteam parameters")
			}
			c, _, err := newClient()
			if err != nil {
				return err
			}
			ids, err := c.FailedCaseIDs(cmd.Context(), launch, subteam)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(w, "No fail case")
				return nil
			}
			if table {
				renderIDs(w, ids)
				return nil
			}
			fmt.Fprintln(w, strings.Join(ids, "|"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&launch, "launch", "l", "", "Launch name.")
	cmd.Flags().StringVarP(&subteam, "subteam", "s", "", "Subteam of the launch.")
	cmd.Flags().BoolVar(&table, "table", false, "Print one case per row.")
	return cmd
}

func renderIDs(w io.Writer, ids []string) {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetHeader([]string{"#", "Case"})
	for i, id := range ids {
		table.Append([]string{strconv.Itoa(i + 1), "OCP-" + id})
	}
	table.Render()
}

func newCmdRerunFilter() *cobra.Command {
	var launch, scenarios string
	cmd := &cobra.Command{
		Use:   "rerun-filter",
		Short: "Print the scenario filter to rerun the failures of a launch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if launch == "" {
				return errors.New("please provide the --launch parameter")
			}
			c, cfg, err := newClient()
			if err != nil {
				return err
			}
			plan, err := c.RerunFilter(cmd.Context(), launch, scenarios, cfg.SubteamSet())
			if err != nil {
				return err
			}
			for _, w := range plan.Warnings {
				log.Warn(w)
			}
			fmt.Fprintln(cmd.OutOrStdout(), plan.String())
			return nil
		},
	}
	cmd.Flags().StringVarP(&launch, "launch", "l", "", "Launch name.")
	cmd.Flags().StringVar(&scenarios, "scenarios", "", "Scenarios of the previous run, '|' separated.")
	return cmd
}

func newCmdAttr() *cobra.Command {
	var id int64
	var action, key, value, oldValue string
	cmd := &cobra.Command{
		Use:   "attr",
		Short: "Add, update or delete an attribute of a launch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 || key == "" {
				return errors.New("please provide the --id and --key parameters")
			}
			c, _, err := newClient()
			if err != nil {
				return err
			}
			var change reportportal.AttributeChange
			switch action {
			case "add":
				change = reportportal.CreateAttribute(key, value)
			case "delete":
				change = reportportal.DeleteAttribute(key, value)
			case "update":
				if oldValue == "" {
					l, err := c.LaunchByID(cmd.Context(), id)
					if err != nil {
						return err
					}
					cur, ok := l.Attribute(key)
					if !ok {
						return errors.Errorf("launch %d has no attribute %q", id, key)
					}
					oldValue = cur
				}
				change = reportportal.UpdateAttribute(key, oldValue, value)
			default:
				return errors.Errorf("unknown action %q, want add, update or delete", action)
			}
			if err := c.UpdateAttributes(cmd.Context(), []int64{id}, []reportportal.AttributeChange{change}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "SUCCESS")
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Launch ID.")
	cmd.Flags().StringVarP(&action, "action", "a", "add", "add, update or delete.")
	cmd.Flags().StringVar(&key, "key", "", "Attribute key.")
	cmd.Flags().StringVar(&value, "value", "", "Attribute value, the new one for update.")
	cmd.Flags().StringVar(&oldValue, "old-value", "", "Current value for update; read from the launch when empty.")
	return cmd
}

func newCmdMerge() *cobra.Command {
	var launch string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge every launch with the given name.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if launch == "" {
				return errors.New("please provide the --launch parameter")
			}
			c, _, err := newClient()
			if err != nil {
				return err
			}
			if err := c.MergeLaunches(cmd.Context(), launch); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "SUCCESS")
			return nil
		},
	}
	cmd.Flags().StringVarP(&launch, "launch", "l", "", "Launch name.")
	return cmd
}

func newCmdDelete() *cobra.Command {
	var launch string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every launch with the given name.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if launch == "" {
				return errors.New("please provide the --launch parameter")
			}
			c, _, err := newClient()
			if err != nil {
				return err
			}
			ids, err := c.DeleteLaunches(cmd.Context(), launch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SUCCESS %v\n", ids)
			return nil
		},
	}
	cmd.Flags().StringVarP(&launch, "launch", "l", "", "Launch name.")
	return cmd
}

func newCmdMarkPassed() *cobra.Command {
	filter := reportportal.LaunchFilter{}
	var timeRange string
	cmd := &cobra.Command{
		Use:   "mark-passed",
		Short: "Mark the failed steps of the matching golang launches as passed.",
		Long: `Mark the failed steps of the matching golang launches as passed, tagging
them manually=passed. Launches are selected by part of their name, attribute
key, subteam and attribute value, and start time range.`,
		Example: `  qetools rp mark-passed --subteam SDN --time-range "2024-06-10 08:00:00,2024-06-10 20:00:00"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.NameContains == "" && filter.Subteam == "" && filter.AttributeKey == "" && filter.AttributeValue == "" && timeRange == "" {
				return errors.New("please narrow the launches with --launch, --subteam, --attr-key, --attr-value or --time-range")
			}
			if timeRange != "" {
				since, until, err := reportportal.ParseTimeRange(timeRange, time.Local, time.Now())
				if err != nil {
					return err
				}
				filter.Since, filter.Until = since, until
			}
			c, _, err := newClient()
			if err != nil {
				return err
			}
			report, err := c.MarkFailedAsPassed(cmd.Context(), filter)
			if err != nil {
				return err
			}
			for _, w := range report.Warnings {
				log.Warn(w)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SUCCESS %d items marked passed in launches %v\n", len(report.Updated), report.Launches)
			if len(report.Failed) > 0 {
				return errors.Errorf("items %v kept their status, rerun or change them by hand", report.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter.NameContains, "launch", "l", "", "Part of the launch name.")
	cmd.Flags().StringVarP(&filter.Subteam, "subteam", "s", "", "Subteam attribute value.")
	cmd.Flags().StringVar(&filter.AttributeKey, "attr-key", "", "Attribute key the launches carry.")
	cmd.Flags().StringVar(&filter.AttributeValue, "attr-value", "", "Attribute value the launches carry.")
	cmd.Flags().StringVar(&timeRange, "time-range", "", `Launch start range, "2006-01-02 15:04:05[,2006-01-02 15:04:05]" local time; the end defaults to now.`)
	cmd.Flags().IntVar(&filter.MinFailed, "min-failed", 1, "Least number of failed executions of a launch.")
	return cmd
}
